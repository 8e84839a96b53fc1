package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"fibermap/internal/domain"
	"fibermap/internal/infrastructure/memory"
	"fibermap/internal/ports"
	"fibermap/pkg/localization"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []ports.FaultEvent
}

func (r *recordingNotifier) Notify(_ context.Context, e ports.FaultEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) Events() []ports.FaultEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.FaultEvent(nil), r.events...)
}

// statusTrail пропускає записи обривів у сховище і запам'ятовує кожну зміну
// стану лінії, яку вони спричинили. failSave імітує відмову бази.
type statusTrail struct {
	ports.FaultRepository
	liaisons ports.LiaisonRepository
	failSave error

	mu      sync.Mutex
	updates []domain.LiaisonStatus
}

func (s *statusTrail) SaveWithReading(ctx context.Context, reading *domain.Reading, fault *domain.Fault) error {
	if s.failSave != nil {
		return s.failSave
	}
	before := s.status(ctx, fault.LiaisonID)
	if err := s.FaultRepository.SaveWithReading(ctx, reading, fault); err != nil {
		return err
	}
	s.record(before, s.status(ctx, fault.LiaisonID))
	return nil
}

func (s *statusTrail) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.FaultStatus, resolvedAt *time.Time) error {
	fault, err := s.FaultRepository.FindByID(ctx, id)
	if err != nil {
		return s.FaultRepository.UpdateStatus(ctx, id, from, to, resolvedAt)
	}
	before := s.status(ctx, fault.LiaisonID)
	if err := s.FaultRepository.UpdateStatus(ctx, id, from, to, resolvedAt); err != nil {
		return err
	}
	s.record(before, s.status(ctx, fault.LiaisonID))
	return nil
}

func (s *statusTrail) status(ctx context.Context, liaisonID uuid.UUID) domain.LiaisonStatus {
	l, err := s.liaisons.FindByID(ctx, liaisonID)
	if err != nil {
		return ""
	}
	return l.Status
}

func (s *statusTrail) record(before, after domain.LiaisonStatus) {
	if before == after {
		return
	}
	s.mu.Lock()
	s.updates = append(s.updates, after)
	s.mu.Unlock()
}

func (s *statusTrail) Updates() []domain.LiaisonStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LiaisonStatus(nil), s.updates...)
}

type fixture struct {
	store    *memory.Store
	statuses *statusTrail
	notifier *recordingNotifier
	topology *TopologyService
	faults   *FaultService
	nav      *NavigationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	statuses := &statusTrail{FaultRepository: store.Faults(), liaisons: store}
	notifier := &recordingNotifier{}
	return &fixture{
		store:    store,
		statuses: statuses,
		notifier: notifier,
		topology: NewTopologyService(store, store, 1.2, nil, nil),
		faults: NewFaultService(store, store, store.Readings(), statuses,
			localization.NewEngine(localization.DefaultThresholds()), notifier, nil, nil),
		nav: NewNavigationService(store, store.Faults()),
	}
}

type scenario struct {
	liaisonID uuid.UUID
	pointID   uuid.UUID
	segA      uuid.UUID
	segB      uuid.UUID
}

// seedScenario зберігає лінію 3.2 км з однією камерою на 1.1 км: сегмент A
// голова -> камера (1.1 км), сегмент B камера -> абонент (2.1 км).
func seedScenario(t *testing.T, store *memory.Store) scenario {
	t.Helper()
	sc := scenario{liaisonID: uuid.New(), pointID: uuid.New(), segA: uuid.New(), segB: uuid.New()}
	p := sc.pointID
	topo := &domain.Topology{
		Liaison: domain.Liaison{
			ID:            sc.liaisonID,
			Name:          "LS-ARIANA-07",
			HeadEnd:       domain.Coordinate{Latitude: 36.80, Longitude: 10.00},
			TailEnd:       domain.Coordinate{Latitude: 36.80, Longitude: 10.04},
			TotalLengthKm: 3.2,
			Status:        domain.LiaisonStatusActive,
		},
		Points: []domain.Point{{
			ID:                    p,
			LiaisonID:             sc.liaisonID,
			Ordre:                 0,
			Type:                  domain.PointTypeChamber,
			Name:                  "CH-12",
			Location:              domain.Coordinate{Latitude: 36.80, Longitude: 10.0125},
			DistanceFromHeadEndKm: 1.1,
		}},
		Segments: []domain.Segment{
			{ID: sc.segA, LiaisonID: sc.liaisonID, ToPointID: &p, GPSDistanceKm: 1.0, CableDistanceKm: 1.1},
			{ID: sc.segB, LiaisonID: sc.liaisonID, FromPointID: &p, GPSDistanceKm: 1.9, CableDistanceKm: 2.1},
		},
	}
	require.NoError(t, store.CreateTopology(context.Background(), topo))
	return sc
}

func tunisPoint(name string, lat, lng float64) NewPoint {
	return NewPoint{
		Type:     domain.PointTypeChamber,
		Name:     name,
		Location: domain.Coordinate{Latitude: lat, Longitude: lng},
	}
}

func segmentBetween(t *testing.T, topo *domain.Topology, from, to *uuid.UUID) domain.Segment {
	t.Helper()
	i := topo.FindSegment(from, to)
	require.GreaterOrEqual(t, i, 0, "segment %v -> %v not found", from, to)
	return topo.Segments[i]
}

func idPtr(id uuid.UUID) *uuid.UUID { return &id }
