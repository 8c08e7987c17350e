package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/repository"
	"github.com/mamadbah2/cropwatch/internal/repository/storetest"
)

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		s, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "cropwatch.db"))
		require.NoError(t, err)
		return s
	})
}

func TestSchemaIsIdempotent(t *testing.T) {
	s, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "cropwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	require.NoError(t, s.EnsureSchema(context.Background()))
}

func TestRebind(t *testing.T) {
	query := `SELECT 1 FROM crop_plants WHERE crop_id = ? AND plant_id = ?`
	assert.Equal(t, query, SQLite.Rebind(query))
	assert.Equal(t, `SELECT 1 FROM crop_plants WHERE crop_id = $1 AND plant_id = $2`, Postgres.Rebind(query))
}

func TestDialectFor(t *testing.T) {
	d, ok := DialectFor("postgres")
	require.True(t, ok)
	assert.Equal(t, "pgx", d.DriverName)

	d, ok = DialectFor("sqlite")
	require.True(t, ok)
	assert.Equal(t, "sqlite", d.DriverName)

	_, ok = DialectFor("mysql")
	assert.False(t, ok)
}

func TestInsertSnapshotUsesOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, Postgres)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return ts }

	readings := []models.PlantReading{
		models.NewPlantReading(models.Plant{ID: "1", Metrics: map[string]float64{"g": 0.3}}, "g"),
		models.NewPlantReading(models.Plant{ID: "2", ROI: models.ROIDescriptor{Index: 1}, Metrics: map[string]float64{"g": 0.6}}, "g"),
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO plant_readings"))
	prep.ExpectExec().
		WithArgs("1", ts, 0, 0, 0, 0.3, "Unknown", "Unknown", "Unknown", "Unknown", "Unknown", "Unknown", "Unknown").
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs("2", ts, 1, 0, 0, 0.6, "Unknown", "Unknown", "Unknown", "Unknown", "Unknown", "Unknown", "Unknown").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, s.InsertSnapshot(context.Background(), readings))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSnapshotRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, Postgres)
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO plant_readings"))
	prep.ExpectExec().WillReturnError(boom)
	mock.ExpectRollback()

	err = s.InsertSnapshot(context.Background(), []models.PlantReading{{PlantID: "1"}})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSnapshotEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, New(db, SQLite).InsertSnapshot(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlantIDsQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT plant_id FROM crop_plants WHERE crop_id = $1 ORDER BY seq")).
		WithArgs("bench-1").
		WillReturnError(errors.New("timeout"))

	_, err = New(db, Postgres).PlantIDs(context.Background(), "bench-1")
	assert.ErrorContains(t, err, "bench-1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlantDetailsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT p.plant_type").
		WithArgs("bench-1", "9").
		WillReturnRows(sqlmock.NewRows([]string{"plant_type", "planted_at", "planted_at",
			"roi_index", "roi_x", "roi_y", "roi_w", "roi_h", "roi_sides"}))

	_, err = New(db, Postgres).PlantDetails(context.Background(), "bench-1", "9")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
