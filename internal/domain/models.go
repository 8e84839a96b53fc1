package domain

import (
	"time"

	"github.com/google/uuid"
)

// Enums для статусів і класифікаторів
type LiaisonStatus string
type PointType string
type ProbePosition string
type ScanDirection string
type EventType string
type FaultStatus string
type Precision string

const (
	// Статуси ліній зв'язку
	LiaisonStatusActive      LiaisonStatus = "active"
	LiaisonStatusFaulted     LiaisonStatus = "faulted"
	LiaisonStatusUnderRepair LiaisonStatus = "under_repair"
	LiaisonStatusPlanned     LiaisonStatus = "planned"

	// Типи фізичних точок на трасі
	PointTypePOPLS        PointType = "pop_ls"
	PointTypePOPFTTH      PointType = "pop_ftth"
	PointTypeONT          PointType = "ont"
	PointTypeChamber      PointType = "chamber"
	PointTypeSplice       PointType = "splice"
	PointTypeAerialSplice PointType = "aerial_splice"
	PointTypeFAT          PointType = "fat"
	PointTypeFDT          PointType = "fdt"
	PointTypeSplitter     PointType = "splitter"

	// Де стояв технік з рефлектометром
	ProbeHeadEnd      ProbePosition = "head_end"
	ProbeTailEnd      ProbePosition = "tail_end"
	ProbeIntermediate ProbePosition = "intermediate"

	// Напрямок вимірювання
	ScanTowardHeadEnd ScanDirection = "toward_head_end"
	ScanTowardTailEnd ScanDirection = "toward_tail_end"

	// Тип події на рефлектограмі
	EventBreak       EventType = "break"
	EventAttenuation EventType = "attenuation"
	EventReflection  EventType = "reflection"
	EventSplice      EventType = "splice"

	// Статуси обривів
	FaultStatusDetected   FaultStatus = "DETECTED"
	FaultStatusInProgress FaultStatus = "IN_PROGRESS"
	FaultStatusResolved   FaultStatus = "RESOLVED"

	// Точність локалізації
	PrecisionHigh   Precision = "high"
	PrecisionMedium Precision = "medium"
	PrecisionLow    Precision = "low"
)

// Coordinate представляє географічну точку в градусах WGS84
type Coordinate struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Liaison представляє одну волоконну лінію від головної станції до абонента
type Liaison struct {
	ID            uuid.UUID     `json:"id" yaml:"id"`
	Name          string        `json:"name" yaml:"name"`
	HeadEnd       Coordinate    `json:"head_end" yaml:"head_end"`
	TailEnd       Coordinate    `json:"tail_end" yaml:"tail_end"`
	TotalLengthKm float64       `json:"total_length_km" yaml:"total_length_km"`
	Status        LiaisonStatus `json:"status" yaml:"status"`
	CreatedAt     time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" yaml:"updated_at"`
}

// Point представляє фізичний об'єкт на трасі (колодязь, муфта, сплітер...)
type Point struct {
	ID                    uuid.UUID  `json:"id" yaml:"id"`
	LiaisonID             uuid.UUID  `json:"liaison_id" yaml:"liaison_id"`
	Ordre                 int        `json:"ordre" yaml:"ordre"`
	Type                  PointType  `json:"type" yaml:"type"`
	Name                  string     `json:"name" yaml:"name"`
	Location              Coordinate `json:"location" yaml:"location"`
	DistanceFromHeadEndKm float64    `json:"distance_from_head_end_km" yaml:"distance_from_head_end_km"`
	Description           string     `json:"description,omitempty" yaml:"description,omitempty"`
}

// Segment представляє відрізок кабелю між двома сусідніми точками.
// FromPointID == nil означає якір головної станції, ToPointID == nil означає якір абонента.
type Segment struct {
	ID              uuid.UUID    `json:"id" yaml:"id"`
	LiaisonID       uuid.UUID    `json:"liaison_id" yaml:"liaison_id"`
	FromPointID     *uuid.UUID   `json:"from_point_id" yaml:"from_point_id"`
	ToPointID       *uuid.UUID   `json:"to_point_id" yaml:"to_point_id"`
	GPSDistanceKm   float64      `json:"gps_distance_km" yaml:"gps_distance_km"`
	CableDistanceKm float64      `json:"cable_distance_km" yaml:"cable_distance_km"`
	Trace           []Coordinate `json:"trace,omitempty" yaml:"trace,omitempty"`
	CreatedAt       time.Time    `json:"created_at" yaml:"created_at"`
}

// Reading представляє одне вимірювання рефлектометром (OTDR)
type Reading struct {
	ID               uuid.UUID     `json:"id"`
	LiaisonID        uuid.UUID     `json:"liaison_id"`
	RawDistanceKm    float64       `json:"raw_distance_km"`
	ProbePosition    ProbePosition `json:"probe_position"`
	ScanDirection    ScanDirection `json:"scan_direction"`
	ReferencePointID *uuid.UUID    `json:"reference_point_id,omitempty"`
	AttenuationDB    float64       `json:"attenuation_db"`
	EventType        EventType     `json:"event_type"`
	Note             string        `json:"note,omitempty"`
	MeasuredAt       time.Time     `json:"measured_at"`
}

// Fault представляє зафіксований обрив кабелю
type Fault struct {
	ID                 uuid.UUID   `json:"id"`
	LiaisonID          uuid.UUID   `json:"liaison_id"`
	ReadingID          uuid.UUID   `json:"reading_id"`
	AbsoluteDistanceKm float64     `json:"absolute_distance_km"`
	SegmentID          *uuid.UUID  `json:"segment_id"`
	OffsetKm           *float64    `json:"offset_km"`
	EstimatedLocation  *Coordinate `json:"estimated_location"`
	NearestPointID     *uuid.UUID  `json:"nearest_point_id"`
	Precision          Precision   `json:"precision"`
	Status             FaultStatus `json:"status"`
	Diagnosis          string      `json:"diagnosis,omitempty"`
	DetectedAt         time.Time   `json:"detected_at"`
	ResolvedAt         *time.Time  `json:"resolved_at"`
}

// Open повідомляє, чи обрив ще не усунуто
func (f *Fault) Open() bool {
	return f.Status != FaultStatusResolved
}

// Bounds описує прямокутник на карті
type Bounds struct {
	MinLatitude  float64 `json:"min_latitude"`
	MinLongitude float64 `json:"min_longitude"`
	MaxLatitude  float64 `json:"max_latitude"`
	MaxLongitude float64 `json:"max_longitude"`
}

// Contains перевіряє, чи координата лежить у прямокутнику (межі включно)
func (b Bounds) Contains(c Coordinate) bool {
	return c.Latitude >= b.MinLatitude && c.Latitude <= b.MaxLatitude &&
		c.Longitude >= b.MinLongitude && c.Longitude <= b.MaxLongitude
}

// FaultFilter задає критерії вибірки обривів
type FaultFilter struct {
	LiaisonID *uuid.UUID
	Statuses  []FaultStatus
	Bounds    *Bounds
}

// Matches застосовує фільтр до одного обриву
func (ff FaultFilter) Matches(f *Fault) bool {
	if ff.LiaisonID != nil && f.LiaisonID != *ff.LiaisonID {
		return false
	}
	if len(ff.Statuses) > 0 {
		found := false
		for _, s := range ff.Statuses {
			if f.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if ff.Bounds != nil {
		if f.EstimatedLocation == nil || !ff.Bounds.Contains(*f.EstimatedLocation) {
			return false
		}
	}
	return true
}

// Valid перевіряє, чи значення входить до відомого набору
func (s LiaisonStatus) Valid() bool {
	switch s {
	case LiaisonStatusActive, LiaisonStatusFaulted, LiaisonStatusUnderRepair, LiaisonStatusPlanned:
		return true
	}
	return false
}

func (t PointType) Valid() bool {
	switch t {
	case PointTypePOPLS, PointTypePOPFTTH, PointTypeONT, PointTypeChamber, PointTypeSplice,
		PointTypeAerialSplice, PointTypeFAT, PointTypeFDT, PointTypeSplitter:
		return true
	}
	return false
}

func (p ProbePosition) Valid() bool {
	switch p {
	case ProbeHeadEnd, ProbeTailEnd, ProbeIntermediate:
		return true
	}
	return false
}

func (d ScanDirection) Valid() bool {
	return d == ScanTowardHeadEnd || d == ScanTowardTailEnd
}

func (e EventType) Valid() bool {
	switch e {
	case EventBreak, EventAttenuation, EventReflection, EventSplice:
		return true
	}
	return false
}

func (s FaultStatus) Valid() bool {
	switch s {
	case FaultStatusDetected, FaultStatusInProgress, FaultStatusResolved:
		return true
	}
	return false
}

// CanTransitionTo описує життєвий цикл обриву: тільки вперед, RESOLVED кінцевий
func (s FaultStatus) CanTransitionTo(next FaultStatus) bool {
	switch s {
	case FaultStatusDetected:
		return next == FaultStatusInProgress || next == FaultStatusResolved
	case FaultStatusInProgress:
		return next == FaultStatusResolved
	}
	return false
}

// LiaisonStatusAfter визначає стан лінії після того, як обрив перейшов у status.
// openFaults - кількість відкритих обривів лінії вже з урахуванням цього переходу.
// Порожній результат означає, що стан лінії не змінюється.
func LiaisonStatusAfter(status FaultStatus, openFaults int) LiaisonStatus {
	switch status {
	case FaultStatusDetected:
		return LiaisonStatusFaulted
	case FaultStatusInProgress:
		return LiaisonStatusUnderRepair
	case FaultStatusResolved:
		if openFaults == 0 {
			return LiaisonStatusActive
		}
	}
	return ""
}
