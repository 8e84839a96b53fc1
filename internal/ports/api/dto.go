package api

import (
	"github.com/google/uuid"

	"fibermap/internal/application"
	"fibermap/internal/domain"
)

type coordinateRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

func (c coordinateRequest) toDomain() domain.Coordinate {
	return domain.Coordinate{Latitude: *c.Latitude, Longitude: *c.Longitude}
}

type pointRequest struct {
	Type        string            `json:"type" validate:"required,oneof=pop_ls pop_ftth ont chamber splice aerial_splice fat fdt splitter"`
	Name        string            `json:"name" validate:"max=200"`
	Location    coordinateRequest `json:"location"`
	Description string            `json:"description" validate:"max=2000"`
}

func (p pointRequest) toInput() application.NewPoint {
	return application.NewPoint{
		Type:        domain.PointType(p.Type),
		Name:        p.Name,
		Location:    p.Location.toDomain(),
		Description: p.Description,
	}
}

type createLiaisonRequest struct {
	Name       string            `json:"name" validate:"required,max=200"`
	HeadEnd    coordinateRequest `json:"head_end"`
	TailEnd    coordinateRequest `json:"tail_end"`
	Status     string            `json:"status" validate:"omitempty,oneof=active faulted under_repair planned"`
	Points     []pointRequest    `json:"points" validate:"dive"`
	AnchorEnds bool              `json:"anchor_ends"`
}

func (req createLiaisonRequest) toInput() application.NewLiaison {
	points := make([]application.NewPoint, len(req.Points))
	for i, p := range req.Points {
		points[i] = p.toInput()
	}
	return application.NewLiaison{
		Name:       req.Name,
		HeadEnd:    req.HeadEnd.toDomain(),
		TailEnd:    req.TailEnd.toDomain(),
		Status:     domain.LiaisonStatus(req.Status),
		Points:     points,
		AnchorEnds: req.AnchorEnds,
	}
}

type insertPointRequest struct {
	pointRequest
	// Position - бажаний ordre; без нього точка додається в кінець ланцюга
	Position *int `json:"position" validate:"omitempty,gte=0"`
}

type createSegmentRequest struct {
	FromPointID     *uuid.UUID          `json:"from_point_id"`
	ToPointID       *uuid.UUID          `json:"to_point_id"`
	CableDistanceKm *float64            `json:"cable_distance_km" validate:"omitempty,gte=0"`
	Trace           []coordinateRequest `json:"trace" validate:"omitempty,dive"`
}

func (req createSegmentRequest) toInput() application.NewSegment {
	var trace []domain.Coordinate
	for _, c := range req.Trace {
		trace = append(trace, c.toDomain())
	}
	return application.NewSegment{
		FromPointID:     req.FromPointID,
		ToPointID:       req.ToPointID,
		CableDistanceKm: req.CableDistanceKm,
		Trace:           trace,
	}
}

type readingRequest struct {
	RawDistanceKm    *float64   `json:"raw_distance_km" validate:"required,gte=0"`
	ProbePosition    string     `json:"probe_position" validate:"required,oneof=head_end tail_end intermediate"`
	ScanDirection    string     `json:"scan_direction" validate:"required,oneof=toward_head_end toward_tail_end"`
	ReferencePointID *uuid.UUID `json:"reference_point_id" validate:"required_if=ProbePosition intermediate"`
	AttenuationDB    float64    `json:"attenuation_db"`
	EventType        string     `json:"event_type" validate:"omitempty,oneof=break attenuation reflection splice"`
	Note             string     `json:"note" validate:"max=2000"`
}

func (req readingRequest) toInput(liaisonID uuid.UUID) application.ReadingInput {
	return application.ReadingInput{
		LiaisonID:        liaisonID,
		RawDistanceKm:    *req.RawDistanceKm,
		ProbePosition:    domain.ProbePosition(req.ProbePosition),
		ScanDirection:    domain.ScanDirection(req.ScanDirection),
		ReferencePointID: req.ReferencePointID,
		AttenuationDB:    req.AttenuationDB,
		EventType:        domain.EventType(req.EventType),
		Note:             req.Note,
	}
}

type faultStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=DETECTED IN_PROGRESS RESOLVED"`
}

type navigationRequest struct {
	Position coordinateRequest `json:"position"`
}
