package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fibermap/internal/domain"
)

// LiaisonRepository визначає методи для роботи з лініями зв'язку
type LiaisonRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Liaison, error)
	FindAll(ctx context.Context, filters map[string]interface{}) ([]*domain.Liaison, error)
}

// TopologyRepository зберігає знімки топології цілком
type TopologyRepository interface {
	// LoadTopology повертає лінію, її точки за ordre та всі сегменти
	LoadTopology(ctx context.Context, liaisonID uuid.UUID) (*domain.Topology, error)

	// CreateTopology зберігає нову лінію разом з точками і сегментами
	CreateTopology(ctx context.Context, topology *domain.Topology) error

	// EditTopology блокує лінію на час редагування, викликає fn з копією знімка
	// і, якщо fn та перевірка інваріантів пройшли, атомарно зберігає результат.
	// Помилка fn скасовує всю зміну.
	EditTopology(ctx context.Context, liaisonID uuid.UUID, fn func(*domain.Topology) error) (*domain.Topology, error)
}

// ReadingRepository визначає методи для роботи з вимірюваннями OTDR
type ReadingRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Reading, error)
	FindByLiaisonID(ctx context.Context, liaisonID uuid.UUID) ([]*domain.Reading, error)
}

// FaultRepository визначає методи для роботи з обривами
type FaultRepository interface {
	// SaveWithReading в одній транзакції зберігає вимірювання, обрив і переводить
	// лінію у стан domain.LiaisonStatusAfter(fault.Status, ...)
	SaveWithReading(ctx context.Context, reading *domain.Reading, fault *domain.Fault) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Fault, error)
	FindAll(ctx context.Context, filter domain.FaultFilter) ([]*domain.Fault, error)
	// UpdateStatus змінює статус лише якщо поточний дорівнює from, інакше ErrConflict.
	// Підрахунок відкритих обривів і новий стан лінії фіксуються в тій самій
	// транзакції, під блокуванням лінії.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.FaultStatus, resolvedAt *time.Time) error
}
