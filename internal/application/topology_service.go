package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fibermap/internal/domain"
	"fibermap/internal/logging"
	"fibermap/internal/observability"
	"fibermap/internal/ports"
	"fibermap/pkg/geodesy"
)

var tracer = otel.Tracer("fibermap/internal/application")

// NewPoint описує фізичну точку, яку додають на трасу
type NewPoint struct {
	Type        domain.PointType
	Name        string
	Location    domain.Coordinate
	Description string
}

// NewLiaison описує лінію, що створюється разом з точками
type NewLiaison struct {
	Name    string
	HeadEnd domain.Coordinate
	TailEnd domain.Coordinate
	Status  domain.LiaisonStatus
	Points  []NewPoint
	// AnchorEnds додає сегменти голова -> перша точка і остання точка -> абонент
	AnchorEnds bool
}

// NewSegment описує сегмент між двома кінцями. nil означає якір лінії.
type NewSegment struct {
	FromPointID     *uuid.UUID
	ToPointID       *uuid.UUID
	CableDistanceKm *float64
	Trace           []domain.Coordinate
}

// TopologyService відповідає за підтримку інваріантів топології
type TopologyService struct {
	topologies  ports.TopologyRepository
	liaisons    ports.LiaisonRepository
	slackFactor float64
	log         logging.Logger
	metrics     *observability.Collector
	now         func() time.Time
}

// NewTopologyService створює новий екземпляр TopologyService
func NewTopologyService(
	topologies ports.TopologyRepository,
	liaisons ports.LiaisonRepository,
	slackFactor float64,
	log logging.Logger,
	metrics *observability.Collector,
) *TopologyService {
	if log == nil {
		log = logging.Noop()
	}
	return &TopologyService{
		topologies:  topologies,
		liaisons:    liaisons,
		slackFactor: slackFactor,
		log:         log.With(logging.String("component", "topology")),
		metrics:     metrics,
		now:         time.Now,
	}
}

// CreateLiaison створює лінію з точками і автоматичними сегментами між сусідами
func (s *TopologyService) CreateLiaison(ctx context.Context, in NewLiaison) (topology *domain.Topology, err error) {
	ctx, span := tracer.Start(ctx, "TopologyService.CreateLiaison")
	defer func() { endSpan(span, err) }()
	defer func() { s.metrics.ObserveTopologyEdit("create_liaison", err) }()

	if in.Name == "" {
		return nil, fmt.Errorf("%w: liaison name is required", domain.ErrValidation)
	}
	if err := validateCoordinate(in.HeadEnd); err != nil {
		return nil, err
	}
	if err := validateCoordinate(in.TailEnd); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = domain.LiaisonStatusActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown liaison status %q", domain.ErrValidation, status)
	}

	now := s.now()
	t := &domain.Topology{
		Liaison: domain.Liaison{
			ID:        uuid.New(),
			Name:      in.Name,
			HeadEnd:   in.HeadEnd,
			TailEnd:   in.TailEnd,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	for i, np := range in.Points {
		p, err := s.buildPoint(t.Liaison.ID, np, i)
		if err != nil {
			return nil, err
		}
		t.Points = append(t.Points, *p)
	}

	var prev *uuid.UUID
	if in.AnchorEnds {
		if len(t.Points) == 0 {
			if _, err := s.addSegment(ctx, t, NewSegment{}); err != nil {
				return nil, err
			}
		} else if _, err := s.addSegment(ctx, t, NewSegment{ToPointID: &t.Points[0].ID}); err != nil {
			return nil, err
		}
	}
	for i := range t.Points {
		id := t.Points[i].ID
		if prev != nil {
			if _, err := s.addSegment(ctx, t, NewSegment{FromPointID: prev, ToPointID: &id}); err != nil {
				return nil, err
			}
		}
		prev = &id
	}
	if in.AnchorEnds && prev != nil {
		if _, err := s.addSegment(ctx, t, NewSegment{FromPointID: prev}); err != nil {
			return nil, err
		}
	}
	recomputeCumulative(t)

	if err := s.topologies.CreateTopology(ctx, t); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("liaison.id", t.Liaison.ID.String()))
	s.log.Info(ctx, "liaison created",
		logging.String("liaison_id", t.Liaison.ID.String()),
		logging.Int("points", len(t.Points)),
		logging.Int("segments", len(t.Segments)),
		logging.Float("total_length_km", t.Liaison.TotalLengthKm),
	)
	return t, nil
}

// GetTopology повертає знімок лінії
func (s *TopologyService) GetTopology(ctx context.Context, liaisonID uuid.UUID) (*domain.Topology, error) {
	return s.topologies.LoadTopology(ctx, liaisonID)
}

// ListLiaisons отримує список ліній з можливістю фільтрації
func (s *TopologyService) ListLiaisons(ctx context.Context, filters map[string]interface{}) ([]*domain.Liaison, error) {
	return s.liaisons.FindAll(ctx, filters)
}

// CreateSegment створює сегмент і перераховує загальну довжину лінії
func (s *TopologyService) CreateSegment(ctx context.Context, liaisonID uuid.UUID, in NewSegment) (segment *domain.Segment, err error) {
	ctx, span := tracer.Start(ctx, "TopologyService.CreateSegment",
		trace.WithAttributes(attribute.String("liaison.id", liaisonID.String())))
	defer func() { endSpan(span, err) }()
	defer func() { s.metrics.ObserveTopologyEdit("create_segment", err) }()

	_, err = s.topologies.EditTopology(ctx, liaisonID, func(t *domain.Topology) error {
		var err error
		segment, err = s.addSegment(ctx, t, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "segment created",
		logging.String("liaison_id", liaisonID.String()),
		logging.String("segment_id", segment.ID.String()),
		logging.Float("cable_distance_km", segment.CableDistanceKm),
	)
	return segment, nil
}

// RecomputeCumulativeDistances перераховує відстані точок від голови лінії.
// Точки без сегмента від попередньої точки залишаються без змін.
func (s *TopologyService) RecomputeCumulativeDistances(ctx context.Context, liaisonID uuid.UUID) (topology *domain.Topology, err error) {
	ctx, span := tracer.Start(ctx, "TopologyService.RecomputeCumulativeDistances",
		trace.WithAttributes(attribute.String("liaison.id", liaisonID.String())))
	defer func() { endSpan(span, err) }()
	defer func() { s.metrics.ObserveTopologyEdit("recompute_distances", err) }()

	var stale []uuid.UUID
	topology, err = s.topologies.EditTopology(ctx, liaisonID, func(t *domain.Topology) error {
		stale = recomputeCumulative(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		s.log.Warn(ctx, "points left with stale distances: no segment from the previous point",
			logging.String("liaison_id", liaisonID.String()),
			logging.Any("point_ids", stale),
		)
	}
	return topology, nil
}

// InsertPoint вставляє точку в позицію position, зсуваючи наступні,
// і замінює сегмент між сусідами двома новими.
func (s *TopologyService) InsertPoint(ctx context.Context, liaisonID uuid.UUID, in NewPoint, position int) (point *domain.Point, err error) {
	ctx, span := tracer.Start(ctx, "TopologyService.InsertPoint",
		trace.WithAttributes(
			attribute.String("liaison.id", liaisonID.String()),
			attribute.Int("position", position),
		))
	defer func() { endSpan(span, err) }()
	defer func() { s.metrics.ObserveTopologyEdit("insert_point", err) }()

	if position < 0 {
		return nil, fmt.Errorf("%w: position must be >= 0, got %d", domain.ErrValidation, position)
	}

	_, err = s.topologies.EditTopology(ctx, liaisonID, func(t *domain.Topology) error {
		var err error
		point, err = s.insertPoint(ctx, t, in, position)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "point inserted",
		logging.String("liaison_id", liaisonID.String()),
		logging.String("point_id", point.ID.String()),
		logging.Int("ordre", point.Ordre),
	)
	return point, nil
}

func (s *TopologyService) insertPoint(ctx context.Context, t *domain.Topology, in NewPoint, position int) (*domain.Point, error) {
	t.SortPoints()
	n := len(t.Points)
	if position > n {
		position = n
	}

	p, err := s.buildPoint(t.Liaison.ID, in, position)
	if err != nil {
		return nil, err
	}

	// сусіди до вставки; якір вважається сусідом, якщо ланцюг до нього прив'язаний
	var prev, next *uuid.UUID
	hasPrev, hasNext := false, false
	if position > 0 {
		id := t.Points[position-1].ID
		prev, hasPrev = &id, true
	} else if t.HeadAnchored() {
		hasPrev = true
	}
	if position < n {
		id := t.Points[position].ID
		next, hasNext = &id, true
	} else if t.TailAnchored() {
		hasNext = true
	}

	for i := range t.Points {
		if t.Points[i].Ordre >= position {
			t.Points[i].Ordre++
		}
	}
	t.Points = append(t.Points, *p)
	t.SortPoints()

	if hasPrev && hasNext {
		if i := t.FindSegment(prev, next); i >= 0 {
			t.Segments = append(t.Segments[:i], t.Segments[i+1:]...)
		}
	}
	if hasPrev {
		if _, err := s.addSegment(ctx, t, NewSegment{FromPointID: prev, ToPointID: &p.ID}); err != nil {
			return nil, err
		}
	}
	if hasNext {
		if _, err := s.addSegment(ctx, t, NewSegment{FromPointID: &p.ID, ToPointID: next}); err != nil {
			return nil, err
		}
	}
	recomputeCumulative(t)

	inserted, _ := t.Point(p.ID)
	out := *inserted
	return &out, nil
}

// addSegment додає сегмент у знімок. Без виміряної довжини кабелю вона
// дорівнює GPS-відстані, помноженій на коефіцієнт запасу.
func (s *TopologyService) addSegment(ctx context.Context, t *domain.Topology, in NewSegment) (*domain.Segment, error) {
	if in.FromPointID != nil && in.ToPointID != nil && *in.FromPointID == *in.ToPointID {
		return nil, fmt.Errorf("%w: segment must join two different points", domain.ErrValidation)
	}

	seg := domain.Segment{
		ID:          uuid.New(),
		LiaisonID:   t.Liaison.ID,
		FromPointID: in.FromPointID,
		ToPointID:   in.ToPointID,
		CreatedAt:   s.now(),
	}
	from, ok := t.FromCoordinate(&seg)
	if !ok {
		return nil, fmt.Errorf("point %s on liaison %s: %w", *in.FromPointID, t.Liaison.ID, domain.ErrNotFound)
	}
	to, ok := t.ToCoordinate(&seg)
	if !ok {
		return nil, fmt.Errorf("point %s on liaison %s: %w", *in.ToPointID, t.Liaison.ID, domain.ErrNotFound)
	}
	if t.FindSegment(in.FromPointID, in.ToPointID) >= 0 {
		return nil, fmt.Errorf("%w: segment %s -> %s already exists", domain.ErrConflict, endpointName(in.FromPointID, "head_end"), endpointName(in.ToPointID, "tail_end"))
	}

	// траса лише зберігається для карти, GPS-відстань завжди між кінцями сегмента
	for _, c := range in.Trace {
		if err := validateCoordinate(c); err != nil {
			return nil, err
		}
	}
	gps, err := gpsDistance(from, to)
	if err != nil {
		return nil, err
	}
	seg.GPSDistanceKm = gps
	seg.Trace = in.Trace

	switch {
	case in.CableDistanceKm == nil:
		seg.CableDistanceKm = gps * s.slackFactor
	case *in.CableDistanceKm < 0:
		return nil, fmt.Errorf("%w: cable distance must be >= 0, got %v", domain.ErrValidation, *in.CableDistanceKm)
	default:
		seg.CableDistanceKm = *in.CableDistanceKm
		if seg.CableDistanceKm < gps {
			s.log.Warn(ctx, "measured cable shorter than GPS distance",
				logging.String("liaison_id", t.Liaison.ID.String()),
				logging.Float("cable_distance_km", seg.CableDistanceKm),
				logging.Float("gps_distance_km", gps),
			)
		}
	}

	t.Segments = append(t.Segments, seg)
	t.Liaison.TotalLengthKm = t.TotalCableKm()
	return &seg, nil
}

func (s *TopologyService) buildPoint(liaisonID uuid.UUID, in NewPoint, ordre int) (*domain.Point, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown point type %q", domain.ErrValidation, in.Type)
	}
	if err := validateCoordinate(in.Location); err != nil {
		return nil, err
	}
	return &domain.Point{
		ID:          uuid.New(),
		LiaisonID:   liaisonID,
		Ordre:       ordre,
		Type:        in.Type,
		Name:        in.Name,
		Location:    in.Location,
		Description: in.Description,
	}, nil
}

// recomputeCumulative проходить точки за ordre і повертає ID точок,
// для яких не знайшлося сегмента від попередньої.
func recomputeCumulative(t *domain.Topology) []uuid.UUID {
	t.SortPoints()
	if len(t.Points) == 0 {
		return nil
	}

	first := &t.Points[0]
	first.DistanceFromHeadEndKm = 0
	if i := t.FindSegment(nil, &first.ID); i >= 0 {
		first.DistanceFromHeadEndKm = t.Segments[i].CableDistanceKm
	}

	var stale []uuid.UUID
	for i := 1; i < len(t.Points); i++ {
		prev, cur := &t.Points[i-1], &t.Points[i]
		j := t.FindSegment(&prev.ID, &cur.ID)
		if j < 0 {
			stale = append(stale, cur.ID)
			continue
		}
		cur.DistanceFromHeadEndKm = prev.DistanceFromHeadEndKm + t.Segments[j].CableDistanceKm
	}
	return stale
}

func gpsDistance(from, to domain.Coordinate) (float64, error) {
	d, err := geodesy.DistanceKm(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return d, nil
}

func validateCoordinate(c domain.Coordinate) error {
	if err := geodesy.Validate(c.Latitude, c.Longitude); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func endpointName(id *uuid.UUID, anchor string) string {
	if id == nil {
		return anchor
	}
	return id.String()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
