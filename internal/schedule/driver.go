// Package schedule fans a timed edition trigger out over every configured
// region and language and keeps a run-level log of the outcome.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jimdaga/newscast/internal/clock"
	"github.com/jimdaga/newscast/internal/coalesce"
	"github.com/jimdaga/newscast/internal/editions"
	"github.com/jimdaga/newscast/internal/models"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrEmptyTrigger is returned for a trigger with no regions or languages.
var ErrEmptyTrigger = errors.New("trigger needs at least one region and one language")

// Producer generates one edition on behalf of the scheduler. Failures are
// expected to be queued for retry by the producer.
type Producer interface {
	Produce(ctx context.Context, key models.EditionKey) (*editions.Result, error)
}

// Trigger is one scheduled run request.
type Trigger struct {
	EditionType   models.EditionType
	Regions       []string
	Languages     []string
	ScheduledTime time.Time
}

// Summary is the outcome of a run.
type Summary struct {
	RunID            string                     `json:"runId"`
	EditionType      models.EditionType         `json:"editionType"`
	Status           string                     `json:"status"`
	SuccessCount     int                        `json:"successCount"`
	ErrorCount       int                        `json:"errorCount"`
	CompletionTimeMs int64                      `json:"completionTimeMs"`
	Results          []models.CombinationResult `json:"results"`
}

// Driver runs scheduled triggers.
type Driver struct {
	db          *gorm.DB
	producer    Producer
	clock       clock.Clock
	logger      *slog.Logger
	loc         *time.Location
	concurrency int
}

// NewDriver creates a Driver. concurrency bounds how many combinations are
// generated at once; values below 1 mean sequential. Edition dates are
// computed in loc.
func NewDriver(db *gorm.DB, producer Producer, clk clock.Clock, loc *time.Location, concurrency int, logger *slog.Logger) *Driver {
	if concurrency < 1 {
		concurrency = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Driver{
		db:          db,
		producer:    producer,
		clock:       clk,
		logger:      logger,
		loc:         loc,
		concurrency: concurrency,
	}
}

// Run generates every region × language combination of the trigger. One
// combination failing does not stop the others. The run log is created as
// running and its terminal status is written once, after every combination
// has been attempted.
func (d *Driver) Run(ctx context.Context, trigger Trigger) (*Summary, error) {
	if len(trigger.Regions) == 0 || len(trigger.Languages) == 0 {
		return nil, ErrEmptyTrigger
	}

	started := d.clock.Now()
	scheduled := trigger.ScheduledTime
	if scheduled.IsZero() {
		scheduled = started
	}

	combos := combinations(trigger.Regions, trigger.Languages)
	run := models.ScheduleRun{
		RunID:             uuid.New().String(),
		EditionType:       trigger.EditionType,
		ScheduledTime:     scheduled.UTC(),
		StartedAt:         started,
		TotalCombinations: len(combos),
		Status:            models.ScheduleRunStatusRunning,
	}
	if err := d.db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, fmt.Errorf("failed to create schedule run: %w", err)
	}

	logger := d.logger.With("run_id", run.RunID, "edition_type", trigger.EditionType)
	logger.Info("Scheduled run started", "combinations", len(combos), "concurrency", d.concurrency)

	date := scheduled.In(d.loc)
	results := make([]models.CombinationResult, len(combos))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, combo := range combos {
		i, combo := i, combo
		g.Go(func() error {
			results[i] = d.generate(ctx, logger, models.NewEditionKey(trigger.EditionType, combo.Region, combo.Language, date))
			return nil
		})
	}
	g.Wait()

	summary := &Summary{
		RunID:       run.RunID,
		EditionType: trigger.EditionType,
		Results:     results,
	}
	for _, r := range results {
		if r.Success {
			summary.SuccessCount++
		} else {
			summary.ErrorCount++
		}
	}
	summary.Status = models.ScheduleRunStatusSuccess
	if summary.ErrorCount > 0 {
		summary.Status = models.ScheduleRunStatusFailed
	}

	completed := d.clock.Now()
	summary.CompletionTimeMs = completed.Sub(started).Milliseconds()

	err := d.db.WithContext(context.WithoutCancel(ctx)).Model(&models.ScheduleRun{}).
		Where("id = ? AND status = ?", run.ID, models.ScheduleRunStatusRunning).
		Updates(map[string]interface{}{
			"completed_at":  completed,
			"success_count": summary.SuccessCount,
			"error_count":   summary.ErrorCount,
			"status":        summary.Status,
			"results":       datatypes.JSONSlice[models.CombinationResult](results),
		}).Error
	if err != nil {
		return summary, fmt.Errorf("failed to finalize schedule run: %w", err)
	}

	logger.Info("Scheduled run completed",
		"status", summary.Status,
		"success", summary.SuccessCount,
		"errors", summary.ErrorCount,
		"duration_ms", summary.CompletionTimeMs,
	)
	return summary, nil
}

// Recent returns the latest runs, newest first.
func (d *Driver) Recent(ctx context.Context, limit int) ([]models.ScheduleRun, error) {
	var runs []models.ScheduleRun
	err := d.db.WithContext(ctx).Order("started_at DESC, id DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule runs: %w", err)
	}
	return runs, nil
}

func (d *Driver) generate(ctx context.Context, logger *slog.Logger, key models.EditionKey) models.CombinationResult {
	result := models.CombinationResult{Region: key.Region, Language: key.Language}
	if err := ctx.Err(); err != nil {
		result.Error = "run cancelled"
		return result
	}

	res, err := d.producer.Produce(ctx, key)
	if err != nil {
		result.Error = describe(err)
		logger.Warn("Scheduled generation failed", "key", key.String(), "error", err)
		return result
	}
	result.Success = true
	result.Cached = res.Cached
	return result
}

// describe reduces an error to the message stored in the run log.
func describe(err error) string {
	var genErr *editions.GenerationError
	switch {
	case errors.As(err, &genErr):
		return genErr.Error()
	case errors.Is(err, coalesce.ErrTimeout):
		return "generation timed out"
	default:
		return "generation failed"
	}
}

type combination struct {
	Region   string
	Language string
}

func combinations(regions, languages []string) []combination {
	out := make([]combination, 0, len(regions)*len(languages))
	for _, r := range regions {
		for _, l := range languages {
			out = append(out, combination{Region: r, Language: l})
		}
	}
	return out
}
