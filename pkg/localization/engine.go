package localization

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"fibermap/internal/domain"
	"fibermap/pkg/geodesy"
)

// Thresholds задає межі класів точності в кілометрах від початку лінії
type Thresholds struct {
	HighBelowKm   float64 `yaml:"high_below_km"`
	MediumBelowKm float64 `yaml:"medium_below_km"`
}

// DefaultThresholds повертає межі 1 км / 5 км
func DefaultThresholds() Thresholds {
	return Thresholds{HighBelowKm: 1.0, MediumBelowKm: 5.0}
}

// Result - результат локалізації. Поля-вказівники порожні, якщо відстань
// не потрапила в жоден сегмент.
type Result struct {
	AbsoluteDistanceKm  float64            `json:"absolute_distance_km"`
	Segment             *domain.Segment    `json:"segment"`
	SegmentStartKm      *float64           `json:"segment_start_km"`
	OffsetKm            *float64           `json:"offset_km"`
	Ratio               *float64           `json:"ratio"`
	EstimatedCoordinate *domain.Coordinate `json:"estimated_coordinate"`
	NearestPoint        *domain.Point      `json:"nearest_point"`
	Precision           domain.Precision   `json:"precision"`
	// Degenerate позначає вимірювання з голови лінії в бік голови
	Degenerate bool `json:"degenerate"`
}

// Matched повідомляє, чи знайдено сегмент
func (r *Result) Matched() bool {
	return r.Segment != nil
}

// Engine перетворює показ рефлектометра на позицію на трасі
type Engine struct {
	thresholds Thresholds
}

// NewEngine створює новий екземпляр Engine
func NewEngine(thresholds Thresholds) *Engine {
	return &Engine{thresholds: thresholds}
}

// Localize виконує повну локалізацію для знімка topology.
// Невідповідність між відстанню і топологією не є помилкою: повертається
// результат без сегмента і координати.
func (e *Engine) Localize(topology *domain.Topology, reading *domain.Reading) (*Result, error) {
	d, degenerate, err := e.AbsoluteDistance(topology, reading)
	if err != nil {
		return nil, err
	}

	result := &Result{
		AbsoluteDistanceKm: d,
		Precision:          e.Classify(d),
		Degenerate:         degenerate,
	}

	if seg, start, ok := findSegment(topology, d); ok {
		offset := math.Min(math.Max(d-start, 0), seg.CableDistanceKm)
		ratio := 0.0
		if seg.CableDistanceKm > 0 {
			ratio = offset / seg.CableDistanceKm
		}
		result.Segment = &seg
		result.SegmentStartKm = &start
		result.OffsetKm = &offset
		result.Ratio = &ratio
		result.EstimatedCoordinate = interpolate(topology, &seg, ratio)
	}

	result.NearestPoint = nearestPoint(topology, d)

	return result, nil
}

// AbsoluteDistance переводить сирий показ у відстань від голови лінії
func (e *Engine) AbsoluteDistance(topology *domain.Topology, reading *domain.Reading) (float64, bool, error) {
	raw := reading.RawDistanceKm
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < 0 {
		return 0, false, fmt.Errorf("%w: raw distance must be a non-negative number, got %v", domain.ErrValidation, raw)
	}
	if !reading.ScanDirection.Valid() {
		return 0, false, fmt.Errorf("%w: unknown scan direction %q", domain.ErrValidation, reading.ScanDirection)
	}

	switch reading.ProbePosition {
	case domain.ProbeHeadEnd:
		return raw, reading.ScanDirection == domain.ScanTowardHeadEnd, nil
	case domain.ProbeTailEnd:
		return topology.Liaison.TotalLengthKm - raw, false, nil
	case domain.ProbeIntermediate:
		if reading.ReferencePointID == nil {
			return 0, false, fmt.Errorf("%w: intermediate probe requires a reference point", domain.ErrValidation)
		}
		ref, ok := topology.Point(*reading.ReferencePointID)
		if !ok {
			return 0, false, fmt.Errorf("%w: reference point %s on liaison %s", domain.ErrNotFound, *reading.ReferencePointID, topology.Liaison.ID)
		}
		if reading.ScanDirection == domain.ScanTowardHeadEnd {
			return ref.DistanceFromHeadEndKm - raw, false, nil
		}
		return ref.DistanceFromHeadEndKm + raw, false, nil
	default:
		return 0, false, fmt.Errorf("%w: unknown probe position %q", domain.ErrValidation, reading.ProbePosition)
	}
}

// Classify визначає клас точності для абсолютної відстані
func (e *Engine) Classify(d float64) domain.Precision {
	switch {
	case d < e.thresholds.HighBelowKm:
		return domain.PrecisionHigh
	case d < e.thresholds.MediumBelowKm:
		return domain.PrecisionMedium
	default:
		return domain.PrecisionLow
	}
}

// boundaryEpsilon поглинає похибку додавання float64 на межах сегментів
const boundaryEpsilon = 1e-9

// findSegment проходить сегменти в порядку траси і повертає перший,
// що містить d (обидві межі включно), та його початок в кілометрах.
func findSegment(topology *domain.Topology, d float64) (domain.Segment, float64, bool) {
	traveled := 0.0
	for _, s := range topology.OrderedSegments() {
		if traveled-boundaryEpsilon <= d && d <= traveled+s.CableDistanceKm+boundaryEpsilon {
			return s, traveled, true
		}
		traveled += s.CableDistanceKm
	}
	return domain.Segment{}, 0, false
}

func interpolate(topology *domain.Topology, s *domain.Segment, ratio float64) *domain.Coordinate {
	from, ok := topology.FromCoordinate(s)
	if !ok {
		return nil
	}
	to, ok := topology.ToCoordinate(s)
	if !ok {
		return nil
	}
	lat, lng := geodesy.Interpolate(from.Latitude, from.Longitude, to.Latitude, to.Longitude, ratio)
	return &domain.Coordinate{Latitude: lat, Longitude: lng}
}

// nearestPoint шукає точку з мінімальним |distance - d|; при рівності перемагає перша за ordre
func nearestPoint(topology *domain.Topology, d float64) *domain.Point {
	var best *domain.Point
	bestDelta := math.Inf(1)
	points := append([]domain.Point(nil), topology.Points...)
	sort.SliceStable(points, func(i, j int) bool { return points[i].Ordre < points[j].Ordre })
	for i := range points {
		delta := math.Abs(points[i].DistanceFromHeadEndKm - d)
		if delta < bestDelta {
			best = &points[i]
			bestDelta = delta
		}
	}
	return best
}

// SegmentID повертає ID знайденого сегмента або nil
func (r *Result) SegmentID() *uuid.UUID {
	if r.Segment == nil {
		return nil
	}
	id := r.Segment.ID
	return &id
}

// NearestPointID повертає ID найближчої точки або nil
func (r *Result) NearestPointID() *uuid.UUID {
	if r.NearestPoint == nil {
		return nil
	}
	id := r.NearestPoint.ID
	return &id
}
