package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/scheduler"
	"github.com/mamadbah2/cropwatch/internal/service/notify"
)

const (
	dateLayout = "2006-01-02"
	reportJob  = "weekly-greenness-report"
	// plants whose greenness dropped more than this get flagged
	declineThreshold = 0.05
)

// DataSource yields the persisted greenness history.
type DataSource interface {
	PlantData(ctx context.Context) ([]models.PlantDataPoint, error)
}

// PlantSummary aggregates one plant's readings over a period.
type PlantSummary struct {
	PlantID  string
	Readings int
	Average  float64
	First    float64
	Last     float64
}

// Change is the greenness difference between the first and last reading.
func (p PlantSummary) Change() float64 {
	return p.Last - p.First
}

// Service builds greenness summaries for operators.
type Service struct {
	source   DataSource
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a new reporting service instance.
func NewService(source DataSource, notifier notify.Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, notifier: notifier, logger: logger, now: time.Now}
}

// Summaries aggregates readings logged in [start, end], sorted by plant id.
func (s *Service) Summaries(ctx context.Context, start, end time.Time) ([]PlantSummary, error) {
	points, err := s.source.PlantData(ctx)
	if err != nil {
		return nil, fmt.Errorf("load plant data: %w", err)
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].LoggedAt.Before(points[j].LoggedAt) })

	byPlant := make(map[string]*PlantSummary)
	for _, p := range points {
		if p.LoggedAt.Before(start) || p.LoggedAt.After(end) {
			continue
		}
		if math.IsNaN(p.Greenness) {
			s.logger.Debug("skip reading with invalid greenness", zap.String("plant_id", p.PlantID))
			continue
		}

		sum, ok := byPlant[p.PlantID]
		if !ok {
			sum = &PlantSummary{PlantID: p.PlantID, First: p.Greenness}
			byPlant[p.PlantID] = sum
		}
		sum.Average += p.Greenness
		sum.Last = p.Greenness
		sum.Readings++
	}

	out := make([]PlantSummary, 0, len(byPlant))
	for _, sum := range byPlant {
		sum.Average /= float64(sum.Readings)
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlantID < out[j].PlantID })
	return out, nil
}

// GreennessSummary formats the period summary as a short text message.
func (s *Service) GreennessSummary(ctx context.Context, start, end time.Time) (string, error) {
	summaries, err := s.Summaries(ctx, start, end)
	if err != nil {
		return "", err
	}

	period := fmt.Sprintf("%s-%s", start.Format(dateLayout), end.Format(dateLayout))
	if len(summaries) == 0 {
		return fmt.Sprintf("Greenness (%s): no readings yet.", period), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Greenness (%s): %d plants.", period, len(summaries))
	var declining []string
	for _, sum := range summaries {
		fmt.Fprintf(&b, "\n- plant %s: avg %.1f%%, last %.1f%% (%+.1f pts, %d readings)",
			sum.PlantID, sum.Average*100, sum.Last*100, sum.Change()*100, sum.Readings)
		if sum.Change() < -declineThreshold {
			declining = append(declining, sum.PlantID)
		}
	}
	if len(declining) > 0 {
		fmt.Fprintf(&b, "\nCheck plants: %s.", strings.Join(declining, ", "))
	}
	return b.String(), nil
}

// SendWeeklyReport summarises the last seven days and notifies the operator.
func (s *Service) SendWeeklyReport(ctx context.Context) error {
	end := s.now()
	start := end.AddDate(0, 0, -7)

	message, err := s.GreennessSummary(ctx, start, end)
	if err != nil {
		return err
	}
	if err := s.notifier.Notify(ctx, message); err != nil {
		return fmt.Errorf("send weekly report: %w", err)
	}
	s.logger.Info("weekly greenness report sent")
	return nil
}

// Schedule registers the weekly report on sched using a standard cron spec.
func (s *Service) Schedule(sched *scheduler.Scheduler, spec string) error {
	return sched.Cron(reportJob, spec, func(ctx context.Context) {
		if err := s.SendWeeklyReport(ctx); err != nil {
			s.logger.Error("failed to send weekly report", zap.Error(err))
		}
	})
}
