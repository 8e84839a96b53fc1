package ports

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// IncidentArchive визначає інтерфейс для сховища звітів про інциденти
type IncidentArchive interface {
	NotificationSink

	// Отримання збережених звітів
	GetReport(ctx context.Context, objectKey string) (io.ReadCloser, error)
	ListReportKeys(ctx context.Context, liaisonID uuid.UUID) ([]string, error)
}
