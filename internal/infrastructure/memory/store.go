package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fibermap/internal/domain"
)

// Store тримає топології, вимірювання та обриви в пам'яті процесу.
// Редагування лінії тримає м'ютекс цієї лінії до кінця редагування,
// усі інші звернення проходять через mu.
type Store struct {
	mu         sync.RWMutex
	topologies map[uuid.UUID]*domain.Topology
	locks      map[uuid.UUID]*sync.Mutex
	readings   map[uuid.UUID]*domain.Reading
	faults     map[uuid.UUID]*domain.Fault
}

// NewStore створює порожнє сховище
func NewStore() *Store {
	return &Store{
		topologies: make(map[uuid.UUID]*domain.Topology),
		locks:      make(map[uuid.UUID]*sync.Mutex),
		readings:   make(map[uuid.UUID]*domain.Reading),
		faults:     make(map[uuid.UUID]*domain.Fault),
	}
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*domain.Liaison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topologies[id]
	if !ok {
		return nil, fmt.Errorf("liaison %s: %w", id, domain.ErrNotFound)
	}
	l := t.Liaison
	return &l, nil
}

// FindAll підтримує фільтри "status" і "name"
func (s *Store) FindAll(ctx context.Context, filters map[string]interface{}) ([]*domain.Liaison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Liaison, 0, len(s.topologies))
	for _, t := range s.topologies {
		if status, ok := filters["status"]; ok && fmt.Sprint(status) != string(t.Liaison.Status) {
			continue
		}
		if name, ok := filters["name"]; ok && fmt.Sprint(name) != t.Liaison.Name {
			continue
		}
		l := t.Liaison
		out = append(out, &l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// setStatusLocked змінює стан лінії; викликач тримає mu на запис
func (s *Store) setStatusLocked(id uuid.UUID, status domain.LiaisonStatus) {
	t, ok := s.topologies[id]
	if !ok || status == "" || t.Liaison.Status == status {
		return
	}
	next := t.Clone()
	next.Liaison.Status = status
	next.Liaison.UpdatedAt = time.Now()
	s.topologies[id] = next
}

// countOpenLocked рахує відкриті обриви лінії; викликач тримає mu
func (s *Store) countOpenLocked(liaisonID uuid.UUID) int {
	n := 0
	for _, f := range s.faults {
		if f.LiaisonID == liaisonID && f.Open() {
			n++
		}
	}
	return n
}

func (s *Store) LoadTopology(ctx context.Context, liaisonID uuid.UUID) (*domain.Topology, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topologies[liaisonID]
	if !ok {
		return nil, fmt.Errorf("liaison %s: %w", liaisonID, domain.ErrNotFound)
	}
	return t.Clone(), nil
}

func (s *Store) CreateTopology(ctx context.Context, topology *domain.Topology) error {
	t := topology.Clone()
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.topologies[t.Liaison.ID]; exists {
		return fmt.Errorf("liaison %s already exists: %w", t.Liaison.ID, domain.ErrConflict)
	}
	s.topologies[t.Liaison.ID] = t
	s.locks[t.Liaison.ID] = &sync.Mutex{}
	return nil
}

// EditTopology викликає fn з приватною копією і підміняє знімок лише якщо fn
// і перевірка інваріантів пройшли; невдале редагування нічого не змінює.
func (s *Store) EditTopology(ctx context.Context, liaisonID uuid.UUID, fn func(*domain.Topology) error) (*domain.Topology, error) {
	s.mu.RLock()
	lock, ok := s.locks[liaisonID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("liaison %s: %w", liaisonID, domain.ErrNotFound)
	}

	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	working := s.topologies[liaisonID].Clone()
	s.mu.RUnlock()

	if err := fn(working); err != nil {
		return nil, err
	}
	if err := working.Validate(); err != nil {
		return nil, err
	}
	working.Liaison.UpdatedAt = time.Now()

	s.mu.Lock()
	// стан міг змінитися поза блокуванням редагування
	working.Liaison.Status = s.topologies[liaisonID].Liaison.Status
	s.topologies[liaisonID] = working
	s.mu.Unlock()

	return working.Clone(), nil
}

// Readings повертає репозиторій вимірювань поверх сховища
func (s *Store) Readings() *ReadingView { return &ReadingView{s: s} }

// Faults повертає репозиторій обривів поверх сховища
func (s *Store) Faults() *FaultView { return &FaultView{s: s} }

type ReadingView struct{ s *Store }

type FaultView struct{ s *Store }

func (v *FaultView) SaveWithReading(ctx context.Context, reading *domain.Reading, fault *domain.Fault) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.topologies[reading.LiaisonID]; !ok {
		return fmt.Errorf("liaison %s: %w", reading.LiaisonID, domain.ErrNotFound)
	}
	if _, exists := v.s.faults[fault.ID]; exists {
		return fmt.Errorf("fault %s already exists: %w", fault.ID, domain.ErrConflict)
	}
	r := *reading
	f := *fault
	v.s.readings[r.ID] = &r
	v.s.faults[f.ID] = &f
	v.s.setStatusLocked(f.LiaisonID, domain.LiaisonStatusAfter(f.Status, v.s.countOpenLocked(f.LiaisonID)))
	return nil
}

func (v *ReadingView) FindByID(ctx context.Context, id uuid.UUID) (*domain.Reading, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	r, ok := v.s.readings[id]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", id, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (v *ReadingView) FindByLiaisonID(ctx context.Context, liaisonID uuid.UUID) ([]*domain.Reading, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []*domain.Reading
	for _, r := range v.s.readings {
		if r.LiaisonID == liaisonID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MeasuredAt.After(out[j].MeasuredAt) })
	return out, nil
}

func (v *FaultView) FindByID(ctx context.Context, id uuid.UUID) (*domain.Fault, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	f, ok := v.s.faults[id]
	if !ok {
		return nil, fmt.Errorf("fault %s: %w", id, domain.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (v *FaultView) FindAll(ctx context.Context, filter domain.FaultFilter) ([]*domain.Fault, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []*domain.Fault
	for _, f := range v.s.faults {
		if filter.Matches(f) {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out, nil
}

func (v *FaultView) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.FaultStatus, resolvedAt *time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	f, ok := v.s.faults[id]
	if !ok {
		return fmt.Errorf("fault %s: %w", id, domain.ErrNotFound)
	}
	if f.Status != from {
		return fmt.Errorf("fault %s is %s, not %s: %w", id, f.Status, from, domain.ErrConflict)
	}
	cp := *f
	cp.Status = to
	cp.ResolvedAt = resolvedAt
	v.s.faults[id] = &cp
	v.s.setStatusLocked(cp.LiaisonID, domain.LiaisonStatusAfter(to, v.s.countOpenLocked(cp.LiaisonID)))
	return nil
}
