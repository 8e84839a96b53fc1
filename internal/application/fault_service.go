package application

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fibermap/internal/domain"
	"fibermap/internal/logging"
	"fibermap/internal/observability"
	"fibermap/internal/ports"
	"fibermap/pkg/localization"
)

// ReadingInput - дані вимірювання, які технік вводить з рефлектометра
type ReadingInput struct {
	LiaisonID        uuid.UUID
	RawDistanceKm    float64
	ProbePosition    domain.ProbePosition
	ScanDirection    domain.ScanDirection
	ReferencePointID *uuid.UUID
	AttenuationDB    float64
	EventType        domain.EventType
	Note             string
}

// FaultOutcome - результат створення обриву
type FaultOutcome struct {
	Reading      *domain.Reading      `json:"reading"`
	Fault        *domain.Fault        `json:"fault"`
	Localization *localization.Result `json:"localization"`
}

// FaultService відповідає за локалізацію та облік обривів
type FaultService struct {
	topologies ports.TopologyRepository
	liaisons   ports.LiaisonRepository
	readings   ports.ReadingRepository
	faults     ports.FaultRepository
	engine     *localization.Engine
	notifier   ports.Notifier
	log        logging.Logger
	metrics    *observability.Collector
	now        func() time.Time
}

// NewFaultService створює новий екземпляр FaultService
func NewFaultService(
	topologies ports.TopologyRepository,
	liaisons ports.LiaisonRepository,
	readings ports.ReadingRepository,
	faults ports.FaultRepository,
	engine *localization.Engine,
	notifier ports.Notifier,
	log logging.Logger,
	metrics *observability.Collector,
) *FaultService {
	if log == nil {
		log = logging.Noop()
	}
	return &FaultService{
		topologies: topologies,
		liaisons:   liaisons,
		readings:   readings,
		faults:     faults,
		engine:     engine,
		notifier:   notifier,
		log:        log.With(logging.String("component", "faults")),
		metrics:    metrics,
		now:        time.Now,
	}
}

// CreateFaultReading зберігає вимірювання, локалізує обрив і фіксує його.
// Після успішного збереження лінія переходить у faulted і надсилається рівно
// одне сповіщення.
func (s *FaultService) CreateFaultReading(ctx context.Context, in ReadingInput) (out *FaultOutcome, err error) {
	ctx, span := tracer.Start(ctx, "FaultService.CreateFaultReading",
		trace.WithAttributes(attribute.String("liaison.id", in.LiaisonID.String())))
	defer func() { endSpan(span, err) }()

	reading, err := s.newReading(in)
	if err != nil {
		return nil, err
	}
	topology, err := s.topologies.LoadTopology(ctx, in.LiaisonID)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.Localize(topology, reading)
	if err != nil {
		return nil, err
	}

	fault := &domain.Fault{
		ID:                 uuid.New(),
		LiaisonID:          reading.LiaisonID,
		ReadingID:          reading.ID,
		AbsoluteDistanceKm: result.AbsoluteDistanceKm,
		SegmentID:          result.SegmentID(),
		OffsetKm:           result.OffsetKm,
		EstimatedLocation:  result.EstimatedCoordinate,
		NearestPointID:     result.NearestPointID(),
		Precision:          result.Precision,
		Status:             domain.FaultStatusDetected,
		Diagnosis:          diagnose(topology, reading, result),
		DetectedAt:         reading.MeasuredAt,
	}

	// вимірювання, обрив і стан faulted фіксуються разом або не фіксуються взагалі
	if err := s.faults.SaveWithReading(ctx, reading, fault); err != nil {
		return nil, fmt.Errorf("save fault: %w", err)
	}
	s.metrics.ObserveLocalization(result.Matched(), string(result.Precision), false)
	topology.Liaison.Status = domain.LiaisonStatusFaulted

	s.notifier.Notify(ctx, ports.FaultEvent{
		Type:       ports.FaultEventDetected,
		Fault:      *fault,
		Liaison:    topology.Liaison,
		Reading:    reading,
		OccurredAt: s.now(),
	})

	fields := []logging.Field{
		logging.String("fault_id", fault.ID.String()),
		logging.String("liaison_id", fault.LiaisonID.String()),
		logging.Float("absolute_distance_km", fault.AbsoluteDistanceKm),
		logging.String("precision", string(fault.Precision)),
	}
	if result.Matched() {
		s.log.Info(ctx, "fault localized", fields...)
	} else {
		s.log.Warn(ctx, "fault distance outside topology, created without location", fields...)
	}

	span.SetAttributes(attribute.String("fault.id", fault.ID.String()), attribute.Bool("fault.matched", result.Matched()))
	return &FaultOutcome{Reading: reading, Fault: fault, Localization: result}, nil
}

// SimulateLocalization виконує ту саму локалізацію без збереження
func (s *FaultService) SimulateLocalization(ctx context.Context, in ReadingInput) (result *localization.Result, err error) {
	ctx, span := tracer.Start(ctx, "FaultService.SimulateLocalization",
		trace.WithAttributes(attribute.String("liaison.id", in.LiaisonID.String())))
	defer func() { endSpan(span, err) }()

	reading, err := s.newReading(in)
	if err != nil {
		return nil, err
	}
	topology, err := s.topologies.LoadTopology(ctx, in.LiaisonID)
	if err != nil {
		return nil, err
	}
	result, err = s.engine.Localize(topology, reading)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveLocalization(result.Matched(), string(result.Precision), true)
	return result, nil
}

// ChangeFaultStatus переводить обрив у наступний стан життєвого циклу
func (s *FaultService) ChangeFaultStatus(ctx context.Context, faultID uuid.UUID, status domain.FaultStatus) (fault *domain.Fault, err error) {
	ctx, span := tracer.Start(ctx, "FaultService.ChangeFaultStatus",
		trace.WithAttributes(attribute.String("fault.id", faultID.String()), attribute.String("fault.status", string(status))))
	defer func() { endSpan(span, err) }()

	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown fault status %q", domain.ErrValidation, status)
	}
	fault, err = s.faults.FindByID(ctx, faultID)
	if err != nil {
		return nil, err
	}
	previous := fault.Status
	if !previous.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: fault %s cannot move from %s to %s", domain.ErrConflict, faultID, previous, status)
	}

	var resolvedAt *time.Time
	if status == domain.FaultStatusResolved {
		now := s.now()
		resolvedAt = &now
	}
	// репозиторій разом зі статусом обриву оновлює і стан лінії
	if err := s.faults.UpdateStatus(ctx, faultID, previous, status, resolvedAt); err != nil {
		return nil, err
	}
	fault.Status = status
	fault.ResolvedAt = resolvedAt
	s.metrics.ObserveFaultTransition(string(status))

	liaison, err := s.liaisons.FindByID(ctx, fault.LiaisonID)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, ports.FaultEvent{
		Type:       ports.FaultEventStatusChanged,
		Fault:      *fault,
		Liaison:    *liaison,
		Previous:   string(previous),
		OccurredAt: s.now(),
	})

	s.log.Info(ctx, "fault status changed",
		logging.String("fault_id", faultID.String()),
		logging.String("from", string(previous)),
		logging.String("to", string(status)),
	)
	return fault, nil
}

// GetFault отримує обрив за ID
func (s *FaultService) GetFault(ctx context.Context, id uuid.UUID) (*domain.Fault, error) {
	return s.faults.FindByID(ctx, id)
}

// ListFaults отримує обриви за фільтром
func (s *FaultService) ListFaults(ctx context.Context, filter domain.FaultFilter) ([]*domain.Fault, error) {
	return s.faults.FindAll(ctx, filter)
}

// ActiveFaults повертає ще не усунуті обриви
func (s *FaultService) ActiveFaults(ctx context.Context, bounds *domain.Bounds) ([]*domain.Fault, error) {
	return s.faults.FindAll(ctx, domain.FaultFilter{
		Statuses: []domain.FaultStatus{domain.FaultStatusDetected, domain.FaultStatusInProgress},
		Bounds:   bounds,
	})
}

// ListReadings повертає вимірювання лінії, новіші першими
func (s *FaultService) ListReadings(ctx context.Context, liaisonID uuid.UUID) ([]*domain.Reading, error) {
	if _, err := s.liaisons.FindByID(ctx, liaisonID); err != nil {
		return nil, err
	}
	return s.readings.FindByLiaisonID(ctx, liaisonID)
}

// GetReading отримує вимірювання за ID
func (s *FaultService) GetReading(ctx context.Context, id uuid.UUID) (*domain.Reading, error) {
	return s.readings.FindByID(ctx, id)
}

func (s *FaultService) newReading(in ReadingInput) (*domain.Reading, error) {
	if math.IsNaN(in.RawDistanceKm) || math.IsInf(in.RawDistanceKm, 0) || in.RawDistanceKm < 0 {
		return nil, fmt.Errorf("%w: raw distance must be a non-negative number, got %v", domain.ErrValidation, in.RawDistanceKm)
	}
	if !in.ProbePosition.Valid() {
		return nil, fmt.Errorf("%w: unknown probe position %q", domain.ErrValidation, in.ProbePosition)
	}
	if !in.ScanDirection.Valid() {
		return nil, fmt.Errorf("%w: unknown scan direction %q", domain.ErrValidation, in.ScanDirection)
	}
	if in.ProbePosition == domain.ProbeIntermediate && in.ReferencePointID == nil {
		return nil, fmt.Errorf("%w: intermediate probe requires a reference point", domain.ErrValidation)
	}
	event := in.EventType
	if event == "" {
		event = domain.EventBreak
	}
	if !event.Valid() {
		return nil, fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, event)
	}

	return &domain.Reading{
		ID:               uuid.New(),
		LiaisonID:        in.LiaisonID,
		RawDistanceKm:    in.RawDistanceKm,
		ProbePosition:    in.ProbePosition,
		ScanDirection:    in.ScanDirection,
		ReferencePointID: in.ReferencePointID,
		AttenuationDB:    in.AttenuationDB,
		EventType:        event,
		Note:             in.Note,
		MeasuredAt:       s.now(),
	}, nil
}

// diagnose формує текстовий висновок для бригади
func diagnose(t *domain.Topology, r *domain.Reading, res *localization.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at %.3f km from head-end (precision %s).", r.EventType, res.AbsoluteDistanceKm, res.Precision)

	if res.Matched() {
		fmt.Fprintf(&b, " Segment %s -> %s, %.3f km into a %.3f km cable run.",
			endpointLabel(t, res.Segment.FromPointID, "head-end"),
			endpointLabel(t, res.Segment.ToPointID, "tail-end"),
			*res.OffsetKm, res.Segment.CableDistanceKm)
	} else {
		fmt.Fprintf(&b, " Distance lies outside the %.3f km recorded topology; check the reading and cable lengths.",
			t.Liaison.TotalLengthKm)
	}
	if res.NearestPoint != nil {
		fmt.Fprintf(&b, " Nearest point: %s (%.3f km away).",
			pointLabel(res.NearestPoint), math.Abs(res.NearestPoint.DistanceFromHeadEndKm-res.AbsoluteDistanceKm))
	}
	if res.Degenerate {
		b.WriteString(" Reading was taken at the head-end scanning toward the head-end.")
	}
	return b.String()
}

func endpointLabel(t *domain.Topology, id *uuid.UUID, anchor string) string {
	if id == nil {
		return anchor
	}
	if p, ok := t.Point(*id); ok {
		return pointLabel(p)
	}
	return id.String()
}

func pointLabel(p *domain.Point) string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("%s #%d", p.Type, p.Ordre)
}
