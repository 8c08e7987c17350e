package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	Name       string
	DriverName string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	schema   []string
}

var (
	Postgres = Dialect{
		Name:       "postgres",
		DriverName: "pgx",
		numbered:   true,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS crops (
				crop_id TEXT PRIMARY KEY,
				planted_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS plants (
				plant_id TEXT PRIMARY KEY,
				plant_type TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				planted_at TIMESTAMPTZ NULL,
				roi_index INTEGER NOT NULL DEFAULT -1,
				roi_x INTEGER NOT NULL DEFAULT 0,
				roi_y INTEGER NOT NULL DEFAULT 0,
				roi_w INTEGER NOT NULL DEFAULT 0,
				roi_h INTEGER NOT NULL DEFAULT 0,
				roi_sides INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS crop_plants (
				seq BIGSERIAL PRIMARY KEY,
				crop_id TEXT NOT NULL,
				plant_id TEXT NOT NULL,
				UNIQUE (crop_id, plant_id)
			)`,
			`CREATE TABLE IF NOT EXISTS plant_readings (
				id BIGSERIAL PRIMARY KEY,
				plant_id TEXT NOT NULL,
				logged_at TIMESTAMPTZ NOT NULL,
				roi INTEGER NOT NULL,
				roi_x INTEGER NOT NULL,
				roi_y INTEGER NOT NULL,
				greenness DOUBLE PRECISION NOT NULL,
				soil_type TEXT NOT NULL,
				light_type TEXT NOT NULL,
				light_frequency TEXT NOT NULL,
				light_amount TEXT NOT NULL,
				water_type TEXT NOT NULL,
				water_frequency TEXT NOT NULL,
				water_amount TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS plant_readings_plant_idx ON plant_readings (plant_id, logged_at)`,
		},
	}

	SQLite = Dialect{
		Name:       "sqlite",
		DriverName: "sqlite",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS crops (
				crop_id TEXT PRIMARY KEY,
				planted_at TIMESTAMP NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS plants (
				plant_id TEXT PRIMARY KEY,
				plant_type TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				planted_at TIMESTAMP NULL,
				roi_index INTEGER NOT NULL DEFAULT -1,
				roi_x INTEGER NOT NULL DEFAULT 0,
				roi_y INTEGER NOT NULL DEFAULT 0,
				roi_w INTEGER NOT NULL DEFAULT 0,
				roi_h INTEGER NOT NULL DEFAULT 0,
				roi_sides INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS crop_plants (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				crop_id TEXT NOT NULL,
				plant_id TEXT NOT NULL,
				UNIQUE (crop_id, plant_id)
			)`,
			`CREATE TABLE IF NOT EXISTS plant_readings (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				plant_id TEXT NOT NULL,
				logged_at TIMESTAMP NOT NULL,
				roi INTEGER NOT NULL,
				roi_x INTEGER NOT NULL,
				roi_y INTEGER NOT NULL,
				greenness REAL NOT NULL,
				soil_type TEXT NOT NULL,
				light_type TEXT NOT NULL,
				light_frequency TEXT NOT NULL,
				light_amount TEXT NOT NULL,
				water_type TEXT NOT NULL,
				water_frequency TEXT NOT NULL,
				water_amount TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS plant_readings_plant_idx ON plant_readings (plant_id, logged_at)`,
		},
	}
)

// DialectFor resolves a DB_DRIVER value.
func DialectFor(driver string) (Dialect, bool) {
	switch driver {
	case Postgres.Name:
		return Postgres, true
	case SQLite.Name:
		return SQLite, true
	default:
		return Dialect{}, false
	}
}

// Rebind rewrites ? placeholders for engines that number them.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
