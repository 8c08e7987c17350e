package sheets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/cropwatch/internal/config"
	"github.com/mamadbah2/cropwatch/internal/domain/models"
)

// Repository defines the persistence operations supported by the Google Sheets adapter.
type Repository interface {
	WriteRows(ctx context.Context, sheetRange string, rows [][]interface{}) error
	ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error)
}

// GoogleSheetRepository implements the Repository interface using the official Google Sheets API.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository builds a Google Sheets backed repository instance.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// WriteRows appends the provided rows to the supplied sheet range in one request.
func (r *GoogleSheetRepository) WriteRows(ctx context.Context, sheetRange string, rows [][]interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}
	if len(rows) == 0 {
		return nil
	}

	payload := &sheetsapi.ValueRange{Values: rows}

	call := r.service.Spreadsheets.Values.Append(r.spreadsheetID, sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append rows into range %s: %w", sheetRange, err)
	}

	r.logger.Debug("rows appended to sheet", zap.String("range", sheetRange), zap.Int("rows", len(rows)))
	return nil
}

// ReadRange fetches a rectangular data range from the spreadsheet.
func (r *GoogleSheetRepository) ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error) {
	if sheetRange == "" {
		return nil, fmt.Errorf("sheetRange must not be empty")
	}

	resp, err := r.service.Spreadsheets.Values.Get(r.spreadsheetID, sheetRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", sheetRange, err)
	}

	return resp.Values, nil
}

const timeLayout = "2006-01-02 15:04:05"

// ReadingsMirror appends plant readings to a spreadsheet tab, one row per reading.
type ReadingsMirror struct {
	repo       Repository
	sheetRange string
}

func NewReadingsMirror(repo Repository, sheetRange string) *ReadingsMirror {
	return &ReadingsMirror{repo: repo, sheetRange: sheetRange}
}

// AppendReadings writes PlantID, Log_Time, ROI, ROI_X, ROI_Y, Greenness and the care columns.
func (m *ReadingsMirror) AppendReadings(ctx context.Context, readings []models.PlantReading) error {
	rows := make([][]interface{}, 0, len(readings))
	for _, r := range readings {
		rows = append(rows, []interface{}{
			r.PlantID,
			r.LoggedAt.UTC().Format(timeLayout),
			r.ROI,
			r.ROIX,
			r.ROIY,
			r.Greenness,
			r.SoilType,
			r.LightType,
			r.LightFrequency,
			r.LightAmount,
			r.WaterType,
			r.WaterFrequency,
			r.WaterAmount,
		})
	}
	return m.repo.WriteRows(ctx, m.sheetRange, rows)
}

// PlantData loads the mirrored rows back, skipping malformed lines.
func (m *ReadingsMirror) PlantData(ctx context.Context) ([]models.PlantDataPoint, error) {
	rows, err := m.repo.ReadRange(ctx, m.sheetRange)
	if err != nil {
		return nil, err
	}

	var out []models.PlantDataPoint
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		logged, err := time.Parse(timeLayout, fmt.Sprint(row[1]))
		if err != nil {
			continue
		}
		var greenness float64
		if _, err := fmt.Sscan(fmt.Sprint(row[5]), &greenness); err != nil {
			continue
		}
		out = append(out, models.PlantDataPoint{PlantID: fmt.Sprint(row[0]), LoggedAt: logged, Greenness: greenness})
	}
	return out, nil
}
