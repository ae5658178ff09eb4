package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/newscast/internal/config"
	"github.com/jimdaga/newscast/internal/models"
	"github.com/jimdaga/newscast/internal/retry"
	"github.com/jimdaga/newscast/internal/schedule"
)

const concurrency = 5

// ScheduleRunner runs a scheduled edition trigger.
type ScheduleRunner interface {
	Run(ctx context.Context, trigger schedule.Trigger) (*schedule.Summary, error)
}

// RetrySweeper drains the retry queue.
type RetrySweeper interface {
	SweepDue(ctx context.Context) (*retry.SweepSummary, error)
}

// Reaper deletes editions that have been stale for longer than retain.
type Reaper interface {
	ReapExpired(ctx context.Context, retain time.Duration) (int64, error)
}

// Deps are the components the worker's task handlers drive.
type Deps struct {
	Runner    ScheduleRunner
	Sweeper   RetrySweeper
	Reaper    Reaper
	Defaults  schedule.Defaults
	Retention time.Duration
}

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

// Implement asynq.Logger interface methods
func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(cfg *config.Config, deps Deps, logger *slog.Logger) error {
	srv, mux, err := newServer(cfg, deps, logger)
	if err != nil {
		return err
	}
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop function.
// Use this for embedded mode so the caller can coordinate shutdown.
func Start(cfg *config.Config, deps Deps, logger *slog.Logger) (stop func(), err error) {
	srv, mux, err := newServer(cfg, deps, logger)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, deps Deps, logger *slog.Logger) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     concurrency,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	logger.Info("Worker starting", "concurrency", concurrency)
	return srv, NewServeMux(deps, logger), nil
}

// NewServeMux routes worker tasks to their handlers.
func NewServeMux(deps Deps, logger *slog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskScheduledEdition, handleScheduledEdition(logger, deps.Runner, deps.Defaults))
	mux.HandleFunc(TaskRetrySweep, handleRetrySweep(logger, deps.Sweeper, deps.Reaper, deps.Retention))
	return mux
}

// handleScheduledEdition runs one scheduled trigger. Per-combination
// failures are already queued for retry, so a run that finishes with errors
// still completes the task.
func handleScheduledEdition(logger *slog.Logger, runner ScheduleRunner, defaults schedule.Defaults) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload ScheduledEditionPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		trigger, err := defaults.Trigger(schedule.TriggerRequest{
			EditionType: string(payload.EditionType),
			Regions:     payload.Regions,
			Languages:   payload.Languages,
		})
		if err != nil {
			logger.Error("Invalid scheduled edition", "edition_type", payload.EditionType, "error", err)
			return fmt.Errorf("invalid edition type: %w", asynq.SkipRetry)
		}

		logger.Info("Processing edition:scheduled task",
			"edition_type", trigger.EditionType,
			"regions", len(trigger.Regions),
			"languages", len(trigger.Languages),
		)

		summary, err := runner.Run(ctx, trigger)
		if errors.Is(err, schedule.ErrEmptyTrigger) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if err != nil && summary == nil {
			return fmt.Errorf("failed to run scheduled edition: %w", err)
		}
		if err != nil {
			logger.Error("Scheduled run log not finalized", "run_id", summary.RunID, "error", err)
		}

		if summary.Status == models.ScheduleRunStatusFailed {
			logger.Warn("Scheduled run finished with errors",
				"run_id", summary.RunID,
				"success", summary.SuccessCount,
				"errors", summary.ErrorCount,
			)
		}
		return nil
	}
}

// handleRetrySweep drains due retry records, then reaps long-stale editions.
func handleRetrySweep(logger *slog.Logger, sweeper RetrySweeper, reaper Reaper, retention time.Duration) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		summary, err := sweeper.SweepDue(ctx)
		if err != nil {
			return fmt.Errorf("retry sweep failed: %w", err)
		}
		if summary.RetryCount > 0 {
			logger.Info("Retry sweep task completed",
				"retried", summary.RetryCount,
				"succeeded", summary.SuccessCount,
				"failed", summary.FailureCount,
			)
		}

		if reaper == nil || retention <= 0 {
			return nil
		}
		reaped, err := reaper.ReapExpired(ctx, retention)
		if err != nil {
			// The next sweep tries again.
			logger.Warn("Failed to reap expired editions", "error", err)
			return nil
		}
		if reaped > 0 {
			logger.Info("Reaped expired editions", "count", reaped, "retention", retention)
		}
		return nil
	}
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		if retried >= maxRetry {
			logger.Error(
				"Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
