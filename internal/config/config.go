package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Database   DatabaseConfig
	Camera     CameraConfig
	Monitoring MonitoringConfig
	Archive    ArchiveConfig
	WhatsApp   WhatsAppConfig
	Sheets     SheetsConfig
	Reporting  ReportingConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
	// StreamFrameInterval paces the MJPEG stream.
	StreamFrameInterval time.Duration
}

type LogConfig struct {
	Level string
}

// DatabaseConfig selects and configures the plant store.
type DatabaseConfig struct {
	Driver string
	// MongoDB
	URI    string
	DBName string
	// postgres and sqlite
	DSN string
}

// CameraConfig configures the capture device used by every crop.
type CameraConfig struct {
	Driver        string
	Index         int
	CropIndexes   map[string]int
	RetryDelay    time.Duration
	EscalateAfter int
	// synthetic driver frame size
	Width  int
	Height int
}

// IndexFor returns the capture device assigned to a crop.
func (c CameraConfig) IndexFor(cropID string) int {
	if idx, ok := c.CropIndexes[cropID]; ok {
		return idx
	}
	return c.Index
}

// MonitoringConfig tunes the per-crop image and data loggers.
type MonitoringConfig struct {
	ImagePeriod       time.Duration
	DataPeriod        time.Duration
	FramePollInterval time.Duration
	PersistAttempts   int
	RequirePlants     bool
	HueMin            int
	HueMax            int
	SatMin            int
	ValMin            int
	ROITablePath      string
	PlantsSeedPath    string
}

// ArchiveConfig selects where periodic crop images are stored.
type ArchiveConfig struct {
	Driver string
	Dir    string
	// S3 compatible object storage
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	// HTTP upload endpoint
	URL string
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	APIVersion    string
	Recipient     string
}

// Enabled reports whether outbound notifications can be sent.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != "" && c.Recipient != ""
}

// SheetsConfig contains configuration required to mirror readings to Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	ReadingsRange   string
}

func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule string
	Timezone     string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are acceptable when configuration comes from the environment.
		_ = godotenv.Load()
	}

	p := &parser{}
	cfg := &Config{
		Server: ServerConfig{
			Port:                getenvWithDefault("APP_PORT", "8080"),
			StreamFrameInterval: p.duration("STREAM_FRAME_INTERVAL", 100*time.Millisecond),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver: getenvWithDefault("DB_DRIVER", "mongodb"),
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "cropwatch"),
			DSN:    os.Getenv("DB_DSN"),
		},
		Camera: CameraConfig{
			Driver:        getenvWithDefault("CAMERA_DRIVER", "opencv"),
			Index:         p.integer("CAMERA_INDEX", 0),
			CropIndexes:   p.indexMap("CAMERA_CROP_INDEXES"),
			RetryDelay:    p.duration("CAMERA_RETRY_DELAY", 100*time.Millisecond),
			EscalateAfter: p.integer("CAMERA_ESCALATE_AFTER", 50),
			Width:         p.integer("CAMERA_WIDTH", 640),
			Height:        p.integer("CAMERA_HEIGHT", 480),
		},
		Monitoring: MonitoringConfig{
			ImagePeriod:       p.duration("IMAGE_LOG_PERIOD", 3*time.Hour),
			DataPeriod:        p.duration("DATA_LOG_PERIOD", time.Hour),
			FramePollInterval: p.duration("FRAME_POLL_INTERVAL", 10*time.Second),
			PersistAttempts:   p.integer("PERSIST_ATTEMPTS", 3),
			RequirePlants:     p.boolean("REQUIRE_PLANTS", false),
			HueMin:            p.integer("GREEN_HUE_MIN", 36),
			HueMax:            p.integer("GREEN_HUE_MAX", 86),
			SatMin:            p.integer("GREEN_SAT_MIN", 25),
			ValMin:            p.integer("GREEN_VAL_MIN", 25),
			ROITablePath:      os.Getenv("ROI_TABLE_PATH"),
			PlantsSeedPath:    os.Getenv("PLANTS_SEED_PATH"),
		},
		Archive: ArchiveConfig{
			Driver:       getenvWithDefault("ARCHIVE_DRIVER", "none"),
			Dir:          getenvWithDefault("ARCHIVE_DIR", "./data/images"),
			Bucket:       os.Getenv("ARCHIVE_S3_BUCKET"),
			Prefix:       getenvWithDefault("ARCHIVE_S3_PREFIX", "crops"),
			Region:       getenvWithDefault("ARCHIVE_S3_REGION", "us-east-1"),
			Endpoint:     os.Getenv("ARCHIVE_S3_ENDPOINT"),
			UsePathStyle: p.boolean("ARCHIVE_S3_PATH_STYLE", false),
			URL:          os.Getenv("ARCHIVE_HTTP_URL"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			Recipient:     os.Getenv("WHATSAPP_RECIPIENT"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
			ReadingsRange:   getenvWithDefault("GOOGLE_SHEET_READINGS_RANGE", "Readings!A:M"),
		},
		Reporting: ReportingConfig{
			CronSchedule: getenvWithDefault("REPORT_CRON_SCHEDULE", "0 20 * * 5"),
			Timezone:     getenvWithDefault("TIMEZONE", "UTC"),
		},
	}

	if err := p.err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}
	if c.Server.StreamFrameInterval <= 0 {
		return errors.New("STREAM_FRAME_INTERVAL must be positive")
	}

	switch c.Database.Driver {
	case "mongodb":
		if c.Database.URI == "" || c.Database.DBName == "" {
			return errors.New("MONGODB_URI and MONGODB_DB_NAME must be provided")
		}
	case "memory":
	case "postgres", "sqlite":
		if c.Database.DSN == "" {
			return fmt.Errorf("DB_DSN must be provided for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	switch c.Camera.Driver {
	case "opencv", "synthetic":
	default:
		return fmt.Errorf("unsupported CAMERA_DRIVER %q", c.Camera.Driver)
	}
	if c.Camera.Index < 0 {
		return errors.New("CAMERA_INDEX must not be negative")
	}
	if c.Camera.RetryDelay <= 0 {
		return errors.New("CAMERA_RETRY_DELAY must be positive")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return errors.New("CAMERA_WIDTH and CAMERA_HEIGHT must be positive")
	}

	m := c.Monitoring
	switch {
	case m.ImagePeriod <= 0:
		return errors.New("IMAGE_LOG_PERIOD must be positive")
	case m.DataPeriod <= 0:
		return errors.New("DATA_LOG_PERIOD must be positive")
	case m.FramePollInterval <= 0:
		return errors.New("FRAME_POLL_INTERVAL must be positive")
	case m.PersistAttempts < 1:
		return errors.New("PERSIST_ATTEMPTS must be at least 1")
	}
	for key, v := range map[string]int{
		"GREEN_HUE_MIN": m.HueMin,
		"GREEN_HUE_MAX": m.HueMax,
		"GREEN_SAT_MIN": m.SatMin,
		"GREEN_VAL_MIN": m.ValMin,
	} {
		if v < 0 || v > 255 {
			return fmt.Errorf("%s must be within 0-255", key)
		}
	}
	if m.HueMax > 179 || m.HueMin > m.HueMax {
		return errors.New("GREEN_HUE_MIN..GREEN_HUE_MAX must be a range within 0-179")
	}

	switch c.Archive.Driver {
	case "none", "mongodb":
	case "disk":
		if c.Archive.Dir == "" {
			return errors.New("ARCHIVE_DIR must be provided")
		}
	case "s3":
		if c.Archive.Bucket == "" {
			return errors.New("ARCHIVE_S3_BUCKET must be provided")
		}
	case "http":
		if c.Archive.URL == "" {
			return errors.New("ARCHIVE_HTTP_URL must be provided")
		}
	default:
		return fmt.Errorf("unsupported ARCHIVE_DRIVER %q", c.Archive.Driver)
	}
	if c.Archive.Driver == "mongodb" && c.Database.Driver != "mongodb" {
		return errors.New("ARCHIVE_DRIVER=mongodb requires DB_DRIVER=mongodb")
	}

	if c.WhatsApp.BaseURL == "" {
		return errors.New("WHATSAPP_BASE_URL must not be empty")
	}
	if c.WhatsApp.APIVersion == "" {
		return errors.New("WHATSAPP_API_VERSION must not be empty")
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be provided together")
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}
	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parser collects conversion failures so Load can report them together.
type parser struct {
	errs []error
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (p *parser) integer(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (p *parser) boolean(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

// indexMap parses "cropA=0,cropB=1".
func (p *parser) indexMap(key string) map[string]int {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	out := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		crop, idx, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || crop == "" {
			p.errs = append(p.errs, fmt.Errorf("%s: malformed entry %q", key, pair))
			continue
		}
		n, err := strconv.Atoi(idx)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		out[crop] = n
	}
	return out
}

func (p *parser) err() error {
	return errors.Join(p.errs...)
}
