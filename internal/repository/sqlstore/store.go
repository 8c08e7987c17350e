// Package sqlstore persists plants and readings in Postgres (pgx) or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/repository"
)

var _ repository.Store = (*Store)(nil)

var sqlOpen = sql.Open

// Store implements repository.Store on database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open connects, pings and applies the schema.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	db, err := sqlOpen(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		db.SetMaxOpenConns(1)
	}

	s := New(db, dialect)
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle without touching the schema.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure %s schema: %w", s.dialect.Name, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

func (s *Store) PlantIDs(ctx context.Context, cropID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT plant_id FROM crop_plants WHERE crop_id = ? ORDER BY seq`), cropID)
	if err != nil {
		return nil, fmt.Errorf("select plant ids for crop %s: %w", cropID, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan plant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const readingColumns = `plant_id, logged_at, roi, roi_x, roi_y, greenness, soil_type,
	light_type, light_frequency, light_amount, water_type, water_frequency, water_amount`

func (s *Store) PlantHistory(ctx context.Context, plantID string) ([]models.PlantReading, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+readingColumns+` FROM plant_readings WHERE plant_id = ? ORDER BY logged_at, id`), plantID)
	if err != nil {
		return nil, fmt.Errorf("select history for plant %s: %w", plantID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.PlantReading
	for rows.Next() {
		var r models.PlantReading
		if err := rows.Scan(&r.PlantID, &r.LoggedAt, &r.ROI, &r.ROIX, &r.ROIY, &r.Greenness, &r.SoilType,
			&r.LightType, &r.LightFrequency, &r.LightAmount, &r.WaterType, &r.WaterFrequency, &r.WaterAmount); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) PlantDetails(ctx context.Context, cropID, plantID string) (models.PlantDetails, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT p.plant_type, p.planted_at, c.planted_at,
			p.roi_index, p.roi_x, p.roi_y, p.roi_w, p.roi_h, p.roi_sides
		FROM crop_plants cp
		JOIN plants p ON p.plant_id = cp.plant_id
		LEFT JOIN crops c ON c.crop_id = cp.crop_id
		WHERE cp.crop_id = ? AND cp.plant_id = ?`), cropID, plantID)

	var (
		details       models.PlantDetails
		plantPlanted  sql.NullTime
		cropPlantedAt sql.NullTime
	)
	roi := &details.ROI
	if err := row.Scan(&details.Type, &plantPlanted, &cropPlantedAt,
		&roi.Index, &roi.OffsetX, &roi.OffsetY, &roi.Width, &roi.Height, &roi.Sides); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PlantDetails{}, fmt.Errorf("plant %s in crop %s: %w", plantID, cropID, repository.ErrNotFound)
		}
		return models.PlantDetails{}, fmt.Errorf("select details for plant %s: %w", plantID, err)
	}
	switch {
	case plantPlanted.Valid:
		details.PlantedAt = plantPlanted.Time
	case cropPlantedAt.Valid:
		details.PlantedAt = cropPlantedAt.Time
	}
	return details, nil
}

func (s *Store) InsertPlant(ctx context.Context, plant models.Plant) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.insertPlant(ctx, tx, plant)
	})
}

func (s *Store) insertPlant(ctx context.Context, tx *sql.Tx, plant models.Plant) error {
	exists, err := s.exists(ctx, tx, `SELECT 1 FROM plants WHERE plant_id = ?`, plant.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("plant %s: %w", plant.ID, repository.ErrAlreadyExists)
	}

	var planted any
	if !plant.PlantedAt.IsZero() {
		planted = plant.PlantedAt.UTC()
	}
	if _, err := tx.ExecContext(ctx,
		s.q(`INSERT INTO plants (plant_id, plant_type, description, planted_at,
			roi_index, roi_x, roi_y, roi_w, roi_h, roi_sides) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		plant.ID, plant.Type, plant.Description, planted,
		plant.ROI.Index, plant.ROI.OffsetX, plant.ROI.OffsetY, plant.ROI.Width, plant.ROI.Height, plant.ROI.Sides); err != nil {
		return fmt.Errorf("insert plant %s: %w", plant.ID, err)
	}
	return nil
}

func (s *Store) AssociatePlant(ctx context.Context, cropID, plantID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.associate(ctx, tx, cropID, plantID)
	})
}

func (s *Store) associate(ctx context.Context, tx *sql.Tx, cropID, plantID string) error {
	exists, err := s.exists(ctx, tx, `SELECT 1 FROM crop_plants WHERE crop_id = ? AND plant_id = ?`, cropID, plantID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("plant %s in crop %s: %w", plantID, cropID, repository.ErrAlreadyExists)
	}
	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO crop_plants (crop_id, plant_id) VALUES (?, ?)`), cropID, plantID); err != nil {
		return fmt.Errorf("associate plant %s with crop %s: %w", plantID, cropID, err)
	}
	return nil
}

// InsertSnapshot writes every reading in one transaction stamped with a single log time.
func (s *Store) InsertSnapshot(ctx context.Context, readings []models.PlantReading) error {
	if len(readings) == 0 {
		return nil
	}

	loggedAt := s.now().UTC()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.q(`INSERT INTO plant_readings (`+readingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("prepare snapshot insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, r := range readings {
			if _, err := stmt.ExecContext(ctx, r.PlantID, loggedAt, r.ROI, r.ROIX, r.ROIY, r.Greenness, r.SoilType,
				r.LightType, r.LightFrequency, r.LightAmount, r.WaterType, r.WaterFrequency, r.WaterAmount); err != nil {
				return fmt.Errorf("insert reading for plant %s: %w", r.PlantID, err)
			}
		}
		return nil
	})
}

func (s *Store) CurrentCrops(ctx context.Context) ([]models.Crop, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT crop_id, planted_at FROM crops ORDER BY crop_id`)
	if err != nil {
		return nil, fmt.Errorf("select crops: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var crops []models.Crop
	for rows.Next() {
		var c models.Crop
		if err := rows.Scan(&c.ID, &c.PlantedAt); err != nil {
			return nil, fmt.Errorf("scan crop: %w", err)
		}
		crops = append(crops, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range crops {
		ids, err := s.PlantIDs(ctx, crops[i].ID)
		if err != nil {
			return nil, err
		}
		crops[i].PlantIDs = ids
	}
	return crops, nil
}

func (s *Store) CreateCrop(ctx context.Context, crop models.Crop) (bool, error) {
	created := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := s.exists(ctx, tx, `SELECT 1 FROM crops WHERE crop_id = ?`, crop.ID)
		if err != nil || exists {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO crops (crop_id, planted_at) VALUES (?, ?)`),
			crop.ID, crop.PlantedAt.UTC()); err != nil {
			return fmt.Errorf("insert crop %s: %w", crop.ID, err)
		}
		created = true
		return nil
	})
	return created, err
}

func (s *Store) CropsWithPlants(ctx context.Context) ([]models.CropWithPlants, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.crop_id, c.planted_at, p.plant_id, p.plant_type, p.description
		FROM crops c
		LEFT JOIN crop_plants cp ON cp.crop_id = c.crop_id
		LEFT JOIN plants p ON p.plant_id = cp.plant_id
		ORDER BY c.crop_id, cp.seq`)
	if err != nil {
		return nil, fmt.Errorf("select crops with plants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.CropWithPlants
	for rows.Next() {
		var (
			cropID      string
			plantedAt   time.Time
			plantID     sql.NullString
			plantType   sql.NullString
			description sql.NullString
		)
		if err := rows.Scan(&cropID, &plantedAt, &plantID, &plantType, &description); err != nil {
			return nil, fmt.Errorf("scan crop plant: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].ID != cropID {
			out = append(out, models.CropWithPlants{ID: cropID, Plants: []models.CropPlant{}})
		}
		if !plantID.Valid {
			continue
		}
		last := &out[len(out)-1]
		last.Plants = append(last.Plants, models.CropPlant{
			ID:          plantID.String,
			Type:        plantType.String,
			Description: description.String,
			PlantedTime: plantedAt,
		})
	}
	return out, rows.Err()
}

func (s *Store) AddPlantToCrop(ctx context.Context, cropID string, plant models.Plant) (bool, error) {
	added := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := s.exists(ctx, tx, `SELECT 1 FROM plants WHERE plant_id = ?`, plant.ID)
		if err != nil || exists {
			return err
		}
		if err := s.insertPlant(ctx, tx, plant); err != nil {
			return err
		}
		if err := s.associate(ctx, tx, cropID, plant.ID); err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

func (s *Store) DeletePlantFromCrop(ctx context.Context, cropID, plantID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM crop_plants WHERE crop_id = ? AND plant_id = ?`), cropID, plantID)
		if err != nil {
			return fmt.Errorf("delete plant %s from crop %s: %w", plantID, cropID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("plant %s in crop %s: %w", plantID, cropID, repository.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM plants WHERE plant_id = ?`), plantID); err != nil {
			return fmt.Errorf("delete plant %s: %w", plantID, err)
		}
		return nil
	})
}

func (s *Store) PlantData(ctx context.Context) ([]models.PlantDataPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT plant_id, logged_at, greenness FROM plant_readings ORDER BY logged_at, id`)
	if err != nil {
		return nil, fmt.Errorf("select plant data: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.PlantDataPoint
	for rows.Next() {
		var p models.PlantDataPoint
		if err := rows.Scan(&p.PlantID, &p.LoggedAt, &p.Greenness); err != nil {
			return nil, fmt.Errorf("scan plant data: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) exists(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, s.q(query), args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("check existence: %w", err)
	default:
		return true, nil
	}
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
