package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "mongodb", cfg.Database.Driver)
	assert.Equal(t, 3*time.Hour, cfg.Monitoring.ImagePeriod)
	assert.Equal(t, time.Hour, cfg.Monitoring.DataPeriod)
	assert.Equal(t, 10*time.Second, cfg.Monitoring.FramePollInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Camera.RetryDelay)
	assert.Equal(t, 36, cfg.Monitoring.HueMin)
	assert.Equal(t, 86, cfg.Monitoring.HueMax)
	assert.Equal(t, "none", cfg.Archive.Driver)
	assert.False(t, cfg.WhatsApp.Enabled())
	assert.False(t, cfg.Sheets.Enabled())
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := writeFile(t, ".env", `
APP_PORT=9090
DB_DRIVER=sqlite
DB_DSN=file:test.db
CAMERA_DRIVER=synthetic
CAMERA_CROP_INDEXES=bench-1=2, bench-2=3
DATA_LOG_PERIOD=15m
ARCHIVE_DRIVER=disk
`)
	for _, key := range []string{"APP_PORT", "DB_DRIVER", "DB_DSN", "CAMERA_DRIVER", "CAMERA_CROP_INDEXES", "DATA_LOG_PERIOD", "ARCHIVE_DRIVER"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Monitoring.DataPeriod)
	assert.Equal(t, 2, cfg.Camera.IndexFor("bench-1"))
	assert.Equal(t, 3, cfg.Camera.IndexFor("bench-2"))
	assert.Equal(t, 0, cfg.Camera.IndexFor("other"))
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("DATA_LOG_PERIOD", "hourly")
	t.Setenv("CAMERA_INDEX", "front")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATA_LOG_PERIOD")
	assert.Contains(t, err.Error(), "CAMERA_INDEX")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]func(c *Config){
		"unknown db driver":    func(c *Config) { c.Database.Driver = "redis" },
		"sql without dsn":      func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" },
		"unknown camera":       func(c *Config) { c.Camera.Driver = "rtsp" },
		"zero persist":         func(c *Config) { c.Monitoring.PersistAttempts = 0 },
		"inverted hue":         func(c *Config) { c.Monitoring.HueMin = 90 },
		"s3 without bucket":    func(c *Config) { c.Archive.Driver = "s3" },
		"mongo archive on sql": func(c *Config) { c.Archive.Driver = "mongodb"; c.Database.Driver = "sqlite"; c.Database.DSN = "x" },
		"half sheets config":   func(c *Config) { c.Sheets.SpreadsheetID = "abc" },
		"bad timezone":         func(c *Config) { c.Reporting.Timezone = "Mars/Olympus" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultROITable(t *testing.T) {
	table := DefaultROITable()
	require.Equal(t, 9, table.Len())

	d, ok := table.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, models.ROIDescriptor{Index: 2, OffsetX: -170, OffsetY: -78, Width: 63, Height: 63, Sides: 4}, d)

	_, ok = table.Lookup(9)
	assert.False(t, ok)
}

func TestROITableResolve(t *testing.T) {
	table := DefaultROITable()

	resolved := table.Resolve(models.ROIDescriptor{Index: 4})
	assert.Equal(t, models.ROIDescriptor{Index: 4, OffsetX: -20, OffsetY: -90, Width: 40, Height: 40, Sides: 4}, resolved)

	own := models.ROIDescriptor{Index: 4, Width: 10, Height: 10, Sides: 6}
	assert.Equal(t, own, table.Resolve(own))

	unknown := models.ROIDescriptor{Index: 42}
	assert.Equal(t, unknown, table.Resolve(unknown))

	centred := table.Resolve(models.ROIDescriptor{Index: 0, OffsetsSet: true})
	assert.Zero(t, centred.OffsetX, "explicit zero offsets are kept")
	assert.Zero(t, centred.OffsetY)
	assert.Equal(t, 25, centred.Width)
	assert.Equal(t, 4, centred.Sides)

	shifted := table.Resolve(models.ROIDescriptor{Index: 0, OffsetX: 5})
	assert.Equal(t, 5, shifted.OffsetX)
	assert.Zero(t, shifted.OffsetY)
}

func TestLoadROITable(t *testing.T) {
	path := writeFile(t, "rois.yaml", `
rois:
  - index: 0
    offset_x: -10
    offset_y: 5
    size: 30
  - index: 1
    width: 40
    height: 20
    sides: 6
`)
	table, err := LoadROITable(path)
	require.NoError(t, err)

	d, ok := table.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, models.ROIDescriptor{Index: 0, OffsetX: -10, OffsetY: 5, Width: 30, Height: 30, Sides: 4}, d)

	d, ok = table.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, 6, d.Sides)
	assert.Equal(t, 40, d.Width)
	assert.Equal(t, 20, d.Height)
}

func TestLoadROITableRejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"duplicate": "rois:\n  - {index: 0, size: 10}\n  - {index: 0, size: 12}\n",
		"no size":   "rois:\n  - {index: 0}\n",
		"two sides": "rois:\n  - {index: 0, size: 10, sides: 2}\n",
		"empty":     "rois: []\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadROITable(writeFile(t, "rois.yaml", data))
			assert.Error(t, err)
		})
	}
}

func TestLoadPlantSeed(t *testing.T) {
	path := writeFile(t, "plants.yaml", `
crops:
  - id: bench-1
    plants:
      - id: "1"
        type: basil
        planted_at: 2024-05-01T00:00:00Z
        roi: {index: 0}
        care:
          soil: loam
          water: {name: water, type: tap, frequency: daily, amount: 50ml}
      - id: "2"
        type: mint
        roi: {index: 1}
`)
	seed, err := LoadPlantSeed(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"bench-1"}, seed.CropIDs())

	plants := seed.Plants("bench-1")
	require.Len(t, plants, 2)
	assert.Equal(t, "basil", plants[0].Type)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), plants[0].PlantedAt.UTC())
	require.NotNil(t, plants[0].Care.Soil)
	assert.Equal(t, "loam", *plants[0].Care.Soil)
	require.NotNil(t, plants[0].Care.Water)
	assert.Equal(t, "50ml", plants[0].Care.Water.Amount)
	assert.Nil(t, plants[0].Care.Light)
	assert.False(t, plants[1].PlantedAt.IsZero())
	assert.Equal(t, 1, plants[1].ROI.Index)

	*plants[0].Care.Soil = "clay"
	assert.Equal(t, "loam", *seed.Plants("bench-1")[0].Care.Soil)

	assert.Empty(t, seed.Plants("unknown"))
}

func TestLoadPlantSeedRejectsDuplicates(t *testing.T) {
	path := writeFile(t, "plants.yaml", `
crops:
  - id: bench-1
    plants:
      - {id: "1", type: basil}
      - {id: "1", type: mint}
`)
	_, err := LoadPlantSeed(path)
	assert.Error(t, err)
}

func TestLoadPlantSeedEmptyPath(t *testing.T) {
	seed, err := LoadPlantSeed("")
	require.NoError(t, err)
	assert.Empty(t, seed.CropIDs())
}
