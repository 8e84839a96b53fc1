package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"fibermap/internal/domain"
)

// PostgresFaultRepository імплементує FaultRepository для PostgreSQL
type PostgresFaultRepository struct {
	db *sql.DB
}

// NewPostgresFaultRepository створює новий екземпляр PostgresFaultRepository
func NewPostgresFaultRepository(db *sql.DB) *PostgresFaultRepository {
	return &PostgresFaultRepository{
		db: db,
	}
}

const faultColumns = `
	id, liaison_id, reading_id, absolute_distance_km, segment_id, offset_km,
	ST_Y(location::geometry), ST_X(location::geometry),
	nearest_point_id, precision, status, diagnosis, detected_at, resolved_at
`

func scanFault(row interface{ Scan(...interface{}) error }) (*domain.Fault, error) {
	var f domain.Fault
	var segmentID, nearestID uuid.NullUUID
	var offset, lat, lng sql.NullFloat64
	var resolvedAt sql.NullTime

	err := row.Scan(
		&f.ID,
		&f.LiaisonID,
		&f.ReadingID,
		&f.AbsoluteDistanceKm,
		&segmentID,
		&offset,
		&lat,
		&lng,
		&nearestID,
		&f.Precision,
		&f.Status,
		&f.Diagnosis,
		&f.DetectedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	f.SegmentID = idFromNull(segmentID)
	f.NearestPointID = idFromNull(nearestID)
	f.OffsetKm = floatFromNull(offset)
	if lat.Valid && lng.Valid {
		f.EstimatedLocation = &domain.Coordinate{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		f.ResolvedAt = &t
	}
	return &f, nil
}

// SaveWithReading зберігає вимірювання, обрив і новий стан лінії в одній транзакції.
// Рядок лінії блокується першим, як і в UpdateStatus.
func (r *PostgresFaultRepository) SaveWithReading(ctx context.Context, reading *domain.Reading, fault *domain.Fault) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockLiaison(ctx, tx, fault.LiaisonID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO readings (
				id, liaison_id, raw_distance_km, probe_position, scan_direction,
				reference_point_id, attenuation_db, event_type, note, measured_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			reading.ID,
			reading.LiaisonID,
			reading.RawDistanceKm,
			reading.ProbePosition,
			reading.ScanDirection,
			nullID(reading.ReferencePointID),
			reading.AttenuationDB,
			reading.EventType,
			reading.Note,
			reading.MeasuredAt,
		)
		if err != nil {
			return mapError(err, fmt.Sprintf("insert reading %s", reading.ID))
		}

		var lat, lng sql.NullFloat64
		if fault.EstimatedLocation != nil {
			lat = sql.NullFloat64{Float64: fault.EstimatedLocation.Latitude, Valid: true}
			lng = sql.NullFloat64{Float64: fault.EstimatedLocation.Longitude, Valid: true}
		}

		// ST_MakePoint з NULL дає NULL, тож обрив без координати зберігається без location
		_, err = tx.ExecContext(ctx, `
			INSERT INTO faults (
				id, liaison_id, reading_id, absolute_distance_km, segment_id, offset_km, location,
				nearest_point_id, precision, status, diagnosis, detected_at, resolved_at
			) VALUES (
				$1, $2, $3, $4, $5, $6,
				ST_SetSRID(ST_MakePoint($7::float8, $8::float8), 4326)::geography,
				$9, $10, $11, $12, $13, $14
			)
		`,
			fault.ID,
			fault.LiaisonID,
			fault.ReadingID,
			fault.AbsoluteDistanceKm,
			nullID(fault.SegmentID),
			nullFloat(fault.OffsetKm),
			lng,
			lat,
			nullID(fault.NearestPointID),
			fault.Precision,
			fault.Status,
			fault.Diagnosis,
			fault.DetectedAt,
			fault.ResolvedAt,
		)
		if err != nil {
			return mapError(err, fmt.Sprintf("insert fault %s", fault.ID))
		}
		return followLiaisonStatus(ctx, tx, fault.LiaisonID, fault.Status)
	})
}

func (r *PostgresFaultRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Fault, error) {
	query := `SELECT ` + faultColumns + ` FROM faults WHERE id = $1`

	f, err := scanFault(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("fault %s", id))
	}
	return f, nil
}

// FindAll шукає обриви за лінією, статусами і прямокутником на карті
func (r *PostgresFaultRepository) FindAll(ctx context.Context, filter domain.FaultFilter) ([]*domain.Fault, error) {
	query := `SELECT ` + faultColumns + ` FROM faults WHERE 1=1`

	var args []interface{}
	argIndex := 1

	if filter.LiaisonID != nil {
		query += fmt.Sprintf(" AND liaison_id = $%d", argIndex)
		args = append(args, *filter.LiaisonID)
		argIndex++
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argIndex)
		args = append(args, pq.Array(statuses))
		argIndex++
	}

	if b := filter.Bounds; b != nil {
		query += fmt.Sprintf(
			" AND location IS NOT NULL AND ST_Intersects(location::geometry, ST_MakeEnvelope($%d, $%d, $%d, $%d, 4326))",
			argIndex, argIndex+1, argIndex+2, argIndex+3)
		args = append(args, b.MinLongitude, b.MinLatitude, b.MaxLongitude, b.MaxLatitude)
		argIndex += 4
	}

	query += " ORDER BY detected_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query faults: %w", err)
	}
	defer rows.Close()

	var faults []*domain.Fault
	for rows.Next() {
		f, err := scanFault(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fault row: %w", err)
		}
		faults = append(faults, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fault rows: %w", err)
	}

	return faults, nil
}

// UpdateStatus змінює статус, лише якщо в базі досі стоїть from, і в тій самій
// транзакції оновлює стан лінії
func (r *PostgresFaultRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.FaultStatus, resolvedAt *time.Time) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var liaisonID uuid.UUID
		err := tx.QueryRowContext(ctx, `SELECT liaison_id FROM faults WHERE id = $1`, id).Scan(&liaisonID)
		if err != nil {
			return mapError(err, fmt.Sprintf("fault %s", id))
		}
		if err := lockLiaison(ctx, tx, liaisonID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE faults SET status = $1, resolved_at = $2 WHERE id = $3 AND status = $4`,
			to, resolvedAt, id, from)
		if err != nil {
			return mapError(err, fmt.Sprintf("fault %s", id))
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			var current domain.FaultStatus
			if err := tx.QueryRowContext(ctx, `SELECT status FROM faults WHERE id = $1`, id).Scan(&current); err != nil {
				return mapError(err, fmt.Sprintf("fault %s", id))
			}
			return fmt.Errorf("fault %s is %s, not %s: %w", id, current, from, domain.ErrConflict)
		}

		return followLiaisonStatus(ctx, tx, liaisonID, to)
	})
}

// followLiaisonStatus переводить лінію у стан, що випливає з нового статусу обриву.
// Викликач уже тримає блокування рядка лінії.
func followLiaisonStatus(ctx context.Context, q queryer, liaisonID uuid.UUID, status domain.FaultStatus) error {
	var open int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM faults WHERE liaison_id = $1 AND status <> $2`,
		liaisonID, domain.FaultStatusResolved).Scan(&open)
	if err != nil {
		return fmt.Errorf("failed to count open faults: %w", err)
	}

	next := domain.LiaisonStatusAfter(status, open)
	if next == "" {
		return nil
	}
	_, err = q.ExecContext(ctx,
		`UPDATE liaisons SET status = $1, updated_at = $2 WHERE id = $3 AND status <> $1`,
		next, time.Now(), liaisonID)
	return mapError(err, fmt.Sprintf("liaison %s", liaisonID))
}

// PostgresReadingRepository імплементує ReadingRepository для PostgreSQL
type PostgresReadingRepository struct {
	db *sql.DB
}

// NewPostgresReadingRepository створює новий екземпляр PostgresReadingRepository
func NewPostgresReadingRepository(db *sql.DB) *PostgresReadingRepository {
	return &PostgresReadingRepository{
		db: db,
	}
}

const readingColumns = `
	id, liaison_id, raw_distance_km, probe_position, scan_direction,
	reference_point_id, attenuation_db, event_type, note, measured_at
`

func scanReading(row interface{ Scan(...interface{}) error }) (*domain.Reading, error) {
	var rd domain.Reading
	var ref uuid.NullUUID
	err := row.Scan(
		&rd.ID,
		&rd.LiaisonID,
		&rd.RawDistanceKm,
		&rd.ProbePosition,
		&rd.ScanDirection,
		&ref,
		&rd.AttenuationDB,
		&rd.EventType,
		&rd.Note,
		&rd.MeasuredAt,
	)
	if err != nil {
		return nil, err
	}
	rd.ReferencePointID = idFromNull(ref)
	return &rd, nil
}

func (r *PostgresReadingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE id = $1`

	rd, err := scanReading(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("reading %s", id))
	}
	return rd, nil
}

func (r *PostgresReadingRepository) FindByLiaisonID(ctx context.Context, liaisonID uuid.UUID) ([]*domain.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE liaison_id = $1 ORDER BY measured_at DESC`

	rows, err := r.db.QueryContext(ctx, query, liaisonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []*domain.Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading row: %w", err)
		}
		readings = append(readings, rd)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reading rows: %w", err)
	}

	return readings, nil
}
