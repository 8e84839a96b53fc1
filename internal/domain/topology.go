package domain

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
)

// Topology представляє узгоджений знімок однієї лінії: сама лінія, її точки
// в порядку ordre і всі сегменти.
type Topology struct {
	Liaison  Liaison   `json:"liaison" yaml:"liaison"`
	Points   []Point   `json:"points" yaml:"points"`
	Segments []Segment `json:"segments" yaml:"segments"`
}

// Clone повертає глибоку копію знімка
func (t *Topology) Clone() *Topology {
	c := &Topology{
		Liaison:  t.Liaison,
		Points:   make([]Point, len(t.Points)),
		Segments: make([]Segment, len(t.Segments)),
	}
	copy(c.Points, t.Points)
	for i, s := range t.Segments {
		s.FromPointID = cloneID(s.FromPointID)
		s.ToPointID = cloneID(s.ToPointID)
		if s.Trace != nil {
			s.Trace = append([]Coordinate(nil), s.Trace...)
		}
		c.Segments[i] = s
	}
	return c
}

// SortPoints впорядковує точки за ordre
func (t *Topology) SortPoints() {
	sort.SliceStable(t.Points, func(i, j int) bool {
		return t.Points[i].Ordre < t.Points[j].Ordre
	})
}

// PointIndex повертає індекс точки в t.Points або -1
func (t *Topology) PointIndex(id uuid.UUID) int {
	for i := range t.Points {
		if t.Points[i].ID == id {
			return i
		}
	}
	return -1
}

// Point шукає точку лінії за ID
func (t *Topology) Point(id uuid.UUID) (*Point, bool) {
	if i := t.PointIndex(id); i >= 0 {
		return &t.Points[i], true
	}
	return nil, false
}

// FindSegment повертає індекс сегмента (from, to) або -1. nil означає якір.
func (t *Topology) FindSegment(from, to *uuid.UUID) int {
	for i := range t.Segments {
		if SameEndpoint(t.Segments[i].FromPointID, from) && SameEndpoint(t.Segments[i].ToPointID, to) {
			return i
		}
	}
	return -1
}

// HeadAnchored повідомляє, чи ланцюг прив'язаний до головної станції
func (t *Topology) HeadAnchored() bool {
	for i := range t.Segments {
		if t.Segments[i].FromPointID == nil {
			return true
		}
	}
	return false
}

// TailAnchored повідомляє, чи ланцюг прив'язаний до абонента
func (t *Topology) TailAnchored() bool {
	for i := range t.Segments {
		if t.Segments[i].ToPointID == nil {
			return true
		}
	}
	return false
}

// TotalCableKm рахує суму кабельних довжин усіх сегментів
func (t *Topology) TotalCableKm() float64 {
	var total float64
	for _, s := range t.OrderedSegments() {
		total += s.CableDistanceKm
	}
	return total
}

// OrderedSegments повертає сегменти за зростанням ordre початкової точки.
// Якір головної станції йде першим, сегменти з невідомими точками в кінці.
func (t *Topology) OrderedSegments() []Segment {
	ordre := make(map[uuid.UUID]int, len(t.Points))
	for _, p := range t.Points {
		ordre[p.ID] = p.Ordre
	}
	rank := func(id *uuid.UUID, anchor int) int {
		if id == nil {
			return anchor
		}
		if o, ok := ordre[*id]; ok {
			return o
		}
		return math.MaxInt
	}

	out := append([]Segment(nil), t.Segments...)
	sort.SliceStable(out, func(i, j int) bool {
		fi, fj := rank(out[i].FromPointID, -1), rank(out[j].FromPointID, -1)
		if fi != fj {
			return fi < fj
		}
		return rank(out[i].ToPointID, len(t.Points)) < rank(out[j].ToPointID, len(t.Points))
	})
	return out
}

// FromCoordinate повертає координату початку сегмента (якір = голова лінії)
func (t *Topology) FromCoordinate(s *Segment) (Coordinate, bool) {
	if s.FromPointID == nil {
		return t.Liaison.HeadEnd, true
	}
	p, ok := t.Point(*s.FromPointID)
	if !ok {
		return Coordinate{}, false
	}
	return p.Location, true
}

// ToCoordinate повертає координату кінця сегмента (якір = абонент)
func (t *Topology) ToCoordinate(s *Segment) (Coordinate, bool) {
	if s.ToPointID == nil {
		return t.Liaison.TailEnd, true
	}
	p, ok := t.Point(*s.ToPointID)
	if !ok {
		return Coordinate{}, false
	}
	return p.Location, true
}

// Validate перевіряє структурні інваріанти знімка
func (t *Topology) Validate() error {
	t.SortPoints()
	for i, p := range t.Points {
		if p.LiaisonID != t.Liaison.ID {
			return fmt.Errorf("%w: point %s belongs to liaison %s", ErrConflict, p.ID, p.LiaisonID)
		}
		if p.Ordre != i {
			return fmt.Errorf("%w: point ordre must be contiguous from 0, got %d at position %d", ErrConflict, p.Ordre, i)
		}
	}

	seen := make(map[[2]uuid.UUID]bool, len(t.Segments))
	for _, s := range t.Segments {
		if s.LiaisonID != t.Liaison.ID {
			return fmt.Errorf("%w: segment %s belongs to liaison %s", ErrConflict, s.ID, s.LiaisonID)
		}
		if s.FromPointID != nil && s.ToPointID != nil && *s.FromPointID == *s.ToPointID {
			return fmt.Errorf("%w: segment %s starts and ends at the same point", ErrValidation, s.ID)
		}
		for _, id := range []*uuid.UUID{s.FromPointID, s.ToPointID} {
			if id != nil && t.PointIndex(*id) < 0 {
				return fmt.Errorf("%w: segment %s references unknown point %s", ErrConflict, s.ID, *id)
			}
		}
		if s.CableDistanceKm < 0 || s.GPSDistanceKm < 0 {
			return fmt.Errorf("%w: segment %s has a negative length", ErrValidation, s.ID)
		}
		key := [2]uuid.UUID{endpointKey(s.FromPointID), endpointKey(s.ToPointID)}
		if seen[key] {
			return fmt.Errorf("%w: duplicate segment between %s and %s", ErrConflict, key[0], key[1])
		}
		seen[key] = true
	}
	return nil
}

// SameEndpoint порівнює два кінці сегментів; nil дорівнює лише nil
func SameEndpoint(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func endpointKey(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
