package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements створюють таблиці топології, вимірювань і обривів.
// Усі оператори ідемпотентні.
var schemaStatements = []struct {
	name  string
	query string
}{
	{"PostGIS extension", `CREATE EXTENSION IF NOT EXISTS postgis`},
	{"liaisons table", `
		CREATE TABLE IF NOT EXISTS liaisons (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			head_end GEOGRAPHY(POINT, 4326) NOT NULL,
			tail_end GEOGRAPHY(POINT, 4326) NOT NULL,
			total_length_km DOUBLE PRECISION NOT NULL CHECK (total_length_km >= 0),
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`},
	// унікальність ordre перевіряється в кінці транзакції, бо вставка точки зсуває сусідів
	{"points table", `
		CREATE TABLE IF NOT EXISTS points (
			id UUID PRIMARY KEY,
			liaison_id UUID NOT NULL REFERENCES liaisons(id) ON DELETE CASCADE,
			ordre INTEGER NOT NULL CHECK (ordre >= 0),
			point_type TEXT NOT NULL,
			name TEXT NOT NULL,
			location GEOGRAPHY(POINT, 4326) NOT NULL,
			distance_from_head_end_km DOUBLE PRECISION NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			CONSTRAINT points_liaison_ordre_key UNIQUE (liaison_id, ordre) DEFERRABLE INITIALLY DEFERRED
		)
	`},
	{"segments table", `
		CREATE TABLE IF NOT EXISTS segments (
			id UUID PRIMARY KEY,
			liaison_id UUID NOT NULL REFERENCES liaisons(id) ON DELETE CASCADE,
			from_point_id UUID REFERENCES points(id) ON DELETE CASCADE,
			to_point_id UUID REFERENCES points(id) ON DELETE CASCADE,
			gps_distance_km DOUBLE PRECISION NOT NULL CHECK (gps_distance_km >= 0),
			cable_distance_km DOUBLE PRECISION NOT NULL CHECK (cable_distance_km >= 0),
			trace JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)
	`},
	{"segment endpoints index", `
		CREATE UNIQUE INDEX IF NOT EXISTS segments_endpoints_idx ON segments (
			liaison_id,
			COALESCE(from_point_id, '00000000-0000-0000-0000-000000000000'::uuid),
			COALESCE(to_point_id, '00000000-0000-0000-0000-000000000000'::uuid)
		)
	`},
	{"readings table", `
		CREATE TABLE IF NOT EXISTS readings (
			id UUID PRIMARY KEY,
			liaison_id UUID NOT NULL REFERENCES liaisons(id) ON DELETE CASCADE,
			raw_distance_km DOUBLE PRECISION NOT NULL CHECK (raw_distance_km >= 0),
			probe_position TEXT NOT NULL,
			scan_direction TEXT NOT NULL,
			reference_point_id UUID,
			attenuation_db DOUBLE PRECISION NOT NULL DEFAULT 0,
			event_type TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			measured_at TIMESTAMPTZ NOT NULL
		)
	`},
	{"faults table", `
		CREATE TABLE IF NOT EXISTS faults (
			id UUID PRIMARY KEY,
			liaison_id UUID NOT NULL REFERENCES liaisons(id) ON DELETE CASCADE,
			reading_id UUID NOT NULL REFERENCES readings(id),
			absolute_distance_km DOUBLE PRECISION NOT NULL,
			segment_id UUID,
			offset_km DOUBLE PRECISION,
			location GEOGRAPHY(POINT, 4326),
			nearest_point_id UUID,
			precision TEXT NOT NULL,
			status TEXT NOT NULL,
			diagnosis TEXT NOT NULL DEFAULT '',
			detected_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ
		)
	`},
	{"fault location index", `CREATE INDEX IF NOT EXISTS faults_location_idx ON faults USING GIST (location)`},
	{"fault status index", `CREATE INDEX IF NOT EXISTS faults_liaison_status_idx ON faults (liaison_id, status)`},
	{"reading liaison index", `CREATE INDEX IF NOT EXISTS readings_liaison_time_idx ON readings (liaison_id, measured_at DESC)`},
}

// InitializeSchema створює розширення PostGIS, таблиці та індекси
func InitializeSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	return nil
}
