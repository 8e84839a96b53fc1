package ports

import (
	"context"
	"time"

	"fibermap/internal/domain"
)

type FaultEventType string

const (
	FaultEventDetected      FaultEventType = "fault.detected"
	FaultEventStatusChanged FaultEventType = "fault.status_changed"
)

// FaultEvent - повідомлення про обрив, яке отримують усі канали сповіщень
type FaultEvent struct {
	Type       FaultEventType  `json:"type"`
	Fault      domain.Fault    `json:"fault"`
	Liaison    domain.Liaison  `json:"liaison"`
	Reading    *domain.Reading `json:"reading,omitempty"`
	Previous   string          `json:"previous_status,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Notifier розсилає подію без очікування результату
type Notifier interface {
	Notify(ctx context.Context, event FaultEvent)
}

// NotificationSink - один канал доставки (websocket, архів інцидентів...)
type NotificationSink interface {
	Name() string
	Deliver(ctx context.Context, event FaultEvent) error
}
