package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"fibermap/internal/domain"
)

// queryer покриває і *sql.DB, і *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Коди помилок PostgreSQL
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

// mapError переводить помилки драйвера в доменні
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%s: %s: %w", what, pqErr.Message, domain.ErrConflict)
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", what, pqErr.Message, domain.ErrNotFound)
		case pqCheckViolation:
			return fmt.Errorf("%s: %s: %w", what, pqErr.Message, domain.ErrValidation)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

// withTx виконує fn у транзакції і відкочує її при помилці
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	return withTxOptions(ctx, db, nil, fn)
}

// snapshotTx - лише читання, всі запити бачать один знімок бази
var snapshotTx = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

func withTxOptions(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(err, "commit")
	}
	return nil
}

// lockLiaison блокує рядок лінії до кінця транзакції
func lockLiaison(ctx context.Context, q queryer, id uuid.UUID) error {
	var locked uuid.UUID
	err := q.QueryRowContext(ctx, `SELECT id FROM liaisons WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	return mapError(err, fmt.Sprintf("liaison %s", id))
}

func nullID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func idFromNull(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatFromNull(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
