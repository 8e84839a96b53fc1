package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fibermap/internal/domain"
)

// PostgresTopologyRepository імплементує LiaisonRepository і TopologyRepository для PostgreSQL
type PostgresTopologyRepository struct {
	db *sql.DB
}

// NewPostgresTopologyRepository створює новий екземпляр PostgresTopologyRepository
func NewPostgresTopologyRepository(db *sql.DB) *PostgresTopologyRepository {
	return &PostgresTopologyRepository{
		db: db,
	}
}

const liaisonColumns = `
	id, name,
	ST_Y(head_end::geometry), ST_X(head_end::geometry),
	ST_Y(tail_end::geometry), ST_X(tail_end::geometry),
	total_length_km, status, created_at, updated_at
`

func scanLiaison(row interface{ Scan(...interface{}) error }) (*domain.Liaison, error) {
	var l domain.Liaison
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.HeadEnd.Latitude,
		&l.HeadEnd.Longitude,
		&l.TailEnd.Latitude,
		&l.TailEnd.Longitude,
		&l.TotalLengthKm,
		&l.Status,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *PostgresTopologyRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Liaison, error) {
	query := `SELECT ` + liaisonColumns + ` FROM liaisons WHERE id = $1`

	l, err := scanLiaison(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("liaison %s", id))
	}
	return l, nil
}

// FindAll шукає лінії за фільтрами "status" та "name"
func (r *PostgresTopologyRepository) FindAll(ctx context.Context, filters map[string]interface{}) ([]*domain.Liaison, error) {
	query := `SELECT ` + liaisonColumns + ` FROM liaisons WHERE 1=1`

	var args []interface{}
	argIndex := 1

	if status, ok := filters["status"]; ok {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, fmt.Sprint(status))
		argIndex++
	}

	if name, ok := filters["name"]; ok {
		query += fmt.Sprintf(" AND name = $%d", argIndex)
		args = append(args, fmt.Sprint(name))
		argIndex++
	}

	query += " ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query liaisons: %w", err)
	}
	defer rows.Close()

	var liaisons []*domain.Liaison
	for rows.Next() {
		l, err := scanLiaison(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan liaison row: %w", err)
		}
		liaisons = append(liaisons, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating liaison rows: %w", err)
	}

	return liaisons, nil
}

// LoadTopology читає лінію, точки і сегменти в одній транзакції REPEATABLE READ,
// тож паралельне редагування не змішає старі точки з новими сегментами
func (r *PostgresTopologyRepository) LoadTopology(ctx context.Context, liaisonID uuid.UUID) (*domain.Topology, error) {
	var topology *domain.Topology
	err := withTxOptions(ctx, r.db, snapshotTx, func(tx *sql.Tx) error {
		var err error
		topology, err = loadTopology(ctx, tx, liaisonID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return topology, nil
}

func (r *PostgresTopologyRepository) CreateTopology(ctx context.Context, topology *domain.Topology) error {
	t := topology.Clone()
	if err := t.Validate(); err != nil {
		return err
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO liaisons (id, name, head_end, tail_end, total_length_km, status, created_at, updated_at)
			VALUES ($1, $2,
				ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography,
				ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography,
				$7, $8, $9, $10)
		`,
			t.Liaison.ID,
			t.Liaison.Name,
			t.Liaison.HeadEnd.Longitude, // ST_MakePoint приймає (lon, lat)
			t.Liaison.HeadEnd.Latitude,
			t.Liaison.TailEnd.Longitude,
			t.Liaison.TailEnd.Latitude,
			t.Liaison.TotalLengthKm,
			t.Liaison.Status,
			t.Liaison.CreatedAt,
			t.Liaison.UpdatedAt,
		)
		if err != nil {
			return mapError(err, fmt.Sprintf("insert liaison %s", t.Liaison.ID))
		}
		return writeChain(ctx, tx, t)
	})
}

// EditTopology блокує рядок лінії через SELECT ... FOR UPDATE, тож паралельні
// редагування однієї лінії виконуються по черзі.
func (r *PostgresTopologyRepository) EditTopology(ctx context.Context, liaisonID uuid.UUID, fn func(*domain.Topology) error) (*domain.Topology, error) {
	var edited *domain.Topology

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := loadTopology(ctx, tx, liaisonID, true)
		if err != nil {
			return err
		}

		working := current.Clone()
		if err := fn(working); err != nil {
			return err
		}
		if err := working.Validate(); err != nil {
			return err
		}
		working.Liaison.Status = current.Liaison.Status
		working.Liaison.UpdatedAt = time.Now()

		_, err = tx.ExecContext(ctx,
			`UPDATE liaisons SET name = $1, total_length_km = $2, updated_at = $3 WHERE id = $4`,
			working.Liaison.Name, working.Liaison.TotalLengthKm, working.Liaison.UpdatedAt, liaisonID)
		if err != nil {
			return mapError(err, fmt.Sprintf("update liaison %s", liaisonID))
		}

		// сегменти перезаписуються цілком, точки видаляються лише зниклі
		if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE liaison_id = $1`, liaisonID); err != nil {
			return mapError(err, "delete segments")
		}
		keep := make(map[uuid.UUID]bool, len(working.Points))
		for _, p := range working.Points {
			keep[p.ID] = true
		}
		for _, p := range current.Points {
			if keep[p.ID] {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE id = $1`, p.ID); err != nil {
				return mapError(err, fmt.Sprintf("delete point %s", p.ID))
			}
		}

		if err := writeChain(ctx, tx, working); err != nil {
			return err
		}
		edited = working
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edited, nil
}

// writeChain вставляє або оновлює точки і вставляє всі сегменти знімка
func writeChain(ctx context.Context, tx *sql.Tx, t *domain.Topology) error {
	for _, p := range t.Points {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO points (id, liaison_id, ordre, point_type, name, location, distance_from_head_end_km, description)
			VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				ordre = EXCLUDED.ordre,
				point_type = EXCLUDED.point_type,
				name = EXCLUDED.name,
				location = EXCLUDED.location,
				distance_from_head_end_km = EXCLUDED.distance_from_head_end_km,
				description = EXCLUDED.description
		`,
			p.ID,
			t.Liaison.ID,
			p.Ordre,
			p.Type,
			p.Name,
			p.Location.Longitude,
			p.Location.Latitude,
			p.DistanceFromHeadEndKm,
			p.Description,
		)
		if err != nil {
			return mapError(err, fmt.Sprintf("save point %s", p.ID))
		}
	}

	for _, s := range t.Segments {
		var trace interface{}
		if len(s.Trace) > 0 {
			raw, err := json.Marshal(s.Trace)
			if err != nil {
				return fmt.Errorf("failed to marshal segment trace: %w", err)
			}
			trace = string(raw)
		}
		createdAt := s.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO segments (id, liaison_id, from_point_id, to_point_id, gps_distance_km, cable_distance_km, trace, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			s.ID,
			t.Liaison.ID,
			nullID(s.FromPointID),
			nullID(s.ToPointID),
			s.GPSDistanceKm,
			s.CableDistanceKm,
			trace,
			createdAt,
		)
		if err != nil {
			return mapError(err, fmt.Sprintf("insert segment %s", s.ID))
		}
	}
	return nil
}

// loadTopology читає лінію, точки і сегменти; forUpdate блокує рядок лінії до кінця транзакції
func loadTopology(ctx context.Context, q queryer, liaisonID uuid.UUID, forUpdate bool) (*domain.Topology, error) {
	query := `SELECT ` + liaisonColumns + ` FROM liaisons WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	liaison, err := scanLiaison(q.QueryRowContext(ctx, query, liaisonID))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("liaison %s", liaisonID))
	}
	t := &domain.Topology{Liaison: *liaison}

	rows, err := q.QueryContext(ctx, `
		SELECT id, liaison_id, ordre, point_type, name,
			ST_Y(location::geometry), ST_X(location::geometry),
			distance_from_head_end_km, description
		FROM points
		WHERE liaison_id = $1
		ORDER BY ordre
	`, liaisonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	for rows.Next() {
		var p domain.Point
		if err := rows.Scan(
			&p.ID,
			&p.LiaisonID,
			&p.Ordre,
			&p.Type,
			&p.Name,
			&p.Location.Latitude,
			&p.Location.Longitude,
			&p.DistanceFromHeadEndKm,
			&p.Description,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan point row: %w", err)
		}
		t.Points = append(t.Points, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating point rows: %w", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT id, liaison_id, from_point_id, to_point_id, gps_distance_km, cable_distance_km, trace, created_at
		FROM segments
		WHERE liaison_id = $1
		ORDER BY created_at, id
	`, liaisonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s domain.Segment
		var from, to uuid.NullUUID
		var trace []byte
		if err := rows.Scan(
			&s.ID,
			&s.LiaisonID,
			&from,
			&to,
			&s.GPSDistanceKm,
			&s.CableDistanceKm,
			&trace,
			&s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan segment row: %w", err)
		}
		s.FromPointID = idFromNull(from)
		s.ToPointID = idFromNull(to)
		if len(trace) > 0 {
			if err := json.Unmarshal(trace, &s.Trace); err != nil {
				return nil, fmt.Errorf("failed to unmarshal trace of segment %s: %w", s.ID, err)
			}
		}
		t.Segments = append(t.Segments, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating segment rows: %w", err)
	}

	return t, nil
}
