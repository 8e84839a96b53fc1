package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fibermap/internal/domain"
	"fibermap/internal/ports"
	"fibermap/pkg/geodesy"
)

const (
	arrivalRadiusKm = 0.1
	metricRadiusKm  = 1.0
)

// Guidance - вказівки для техніка від його поточної позиції до цілі
type Guidance struct {
	TargetKind  string            `json:"target_kind"`
	TargetID    uuid.UUID         `json:"target_id"`
	TargetName  string            `json:"target_name"`
	Target      domain.Coordinate `json:"target"`
	DistanceKm  float64           `json:"distance_km"`
	DistanceM   float64           `json:"distance_m"`
	BearingDeg  float64           `json:"bearing_deg"`
	Cardinal    string            `json:"cardinal"`
	Instruction string            `json:"instruction"`
}

// NavigationService веде техніка до точки траси або до місця обриву
type NavigationService struct {
	topologies ports.TopologyRepository
	faults     ports.FaultRepository
}

// NewNavigationService створює новий екземпляр NavigationService
func NewNavigationService(topologies ports.TopologyRepository, faults ports.FaultRepository) *NavigationService {
	return &NavigationService{
		topologies: topologies,
		faults:     faults,
	}
}

// GuideToPoint будує вказівки до точки лінії
func (s *NavigationService) GuideToPoint(ctx context.Context, liaisonID, pointID uuid.UUID, position domain.Coordinate) (*Guidance, error) {
	t, err := s.topologies.LoadTopology(ctx, liaisonID)
	if err != nil {
		return nil, err
	}
	p, ok := t.Point(pointID)
	if !ok {
		return nil, fmt.Errorf("point %s on liaison %s: %w", pointID, liaisonID, domain.ErrNotFound)
	}
	return guide(position, p.Location, "point", p.ID, pointLabel(p))
}

// GuideToFault веде до оціночного місця обриву, а якщо координати немає, то до найближчої точки
func (s *NavigationService) GuideToFault(ctx context.Context, faultID uuid.UUID, position domain.Coordinate) (*Guidance, error) {
	f, err := s.faults.FindByID(ctx, faultID)
	if err != nil {
		return nil, err
	}
	if f.EstimatedLocation != nil {
		return guide(position, *f.EstimatedLocation, "fault", f.ID, fmt.Sprintf("fault at %.3f km", f.AbsoluteDistanceKm))
	}
	if f.NearestPointID == nil {
		return nil, fmt.Errorf("%w: fault %s has neither a location nor a nearest point", domain.ErrValidation, faultID)
	}

	t, err := s.topologies.LoadTopology(ctx, f.LiaisonID)
	if err != nil {
		return nil, err
	}
	p, ok := t.Point(*f.NearestPointID)
	if !ok {
		return nil, fmt.Errorf("nearest point %s of fault %s: %w", *f.NearestPointID, faultID, domain.ErrNotFound)
	}
	return guide(position, p.Location, "point", p.ID, pointLabel(p))
}

func guide(from, to domain.Coordinate, kind string, id uuid.UUID, name string) (*Guidance, error) {
	d, err := geodesy.DistanceKm(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	bearing, err := geodesy.BearingDeg(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	cardinal := geodesy.Cardinal(bearing)

	return &Guidance{
		TargetKind:  kind,
		TargetID:    id,
		TargetName:  name,
		Target:      to,
		DistanceKm:  d,
		DistanceM:   d * 1000,
		BearingDeg:  bearing,
		Cardinal:    cardinal,
		Instruction: instruction(d, cardinal, name),
	}, nil
}

func instruction(distanceKm float64, cardinal, name string) string {
	switch {
	case distanceKm < arrivalRadiusKm:
		return fmt.Sprintf("You have arrived at %s", name)
	case distanceKm < metricRadiusKm:
		return fmt.Sprintf("Head %s for %.0f m to reach %s", cardinal, distanceKm*1000, name)
	default:
		return fmt.Sprintf("Head %s for %.1f km to reach %s", cardinal, distanceKm, name)
	}
}
