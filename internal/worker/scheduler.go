package worker

import (
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/newscast/internal/config"
	"github.com/jimdaga/newscast/internal/models"
)

// Entry is one periodic task registration.
type Entry struct {
	Cronspec string
	Task     *asynq.Task
}

// Entries returns the periodic tasks: one scheduled run per edition type and
// the retry sweep.
func Entries(cfg *config.Config) ([]Entry, error) {
	specs := map[models.EditionType]string{
		models.EditionMorning: cfg.ScheduleMorning,
		models.EditionMidday:  cfg.ScheduleMidday,
		models.EditionEvening: cfg.ScheduleEvening,
	}

	var entries []Entry
	for _, t := range models.EditionTypes {
		spec := specs[t]
		if spec == "" {
			continue
		}
		task, err := NewScheduledEditionTask(ScheduledEditionPayload{EditionType: t})
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Cronspec: spec, Task: task})
	}
	if cfg.SweepSchedule != "" {
		entries = append(entries, Entry{Cronspec: cfg.SweepSchedule, Task: NewRetrySweepTask()})
	}
	return entries, nil
}

// StartScheduler creates and starts an Asynq Scheduler for periodic tasks.
// Returns a stop function for graceful shutdown.
func StartScheduler(cfg *config.Config, logger *slog.Logger) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	location := config.Location(cfg.ScheduleTimezone)

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: location,
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	entries, err := Entries(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build schedule entries: %w", err)
	}
	for _, e := range entries {
		entryID, err := scheduler.Register(e.Cronspec, e.Task)
		if err != nil {
			return nil, fmt.Errorf("failed to register %s schedule %q: %w", e.Task.Type(), e.Cronspec, err)
		}
		logger.Info("Registered periodic task",
			"task_type", e.Task.Type(),
			"payload", string(e.Task.Payload()),
			"schedule", e.Cronspec,
			"entry_id", entryID,
		)
	}

	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info("Scheduler started", "timezone", location.String(), "entries", len(entries))
	return func() { scheduler.Shutdown() }, nil
}
