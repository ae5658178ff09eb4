package retry

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jimdaga/newscast/internal/models"
)

// Regenerator re-runs generation for a key without recording new failures;
// the sweeper owns the record's state.
type Regenerator interface {
	Regenerate(ctx context.Context, key models.EditionKey) error
}

// Outcome is the result of one retry attempt.
type Outcome struct {
	ID      uint   `json:"id"`
	Key     string `json:"key"`
	Attempt int    `json:"attempt"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

// SweepSummary aggregates one sweep.
type SweepSummary struct {
	RetryCount   int       `json:"retryCount"`
	SuccessCount int       `json:"successCount"`
	FailureCount int       `json:"failureCount"`
	Outcomes     []Outcome `json:"outcomes"`
}

// Sweeper drains due records from a Queue.
type Sweeper struct {
	queue     *Queue
	regen     Regenerator
	batchSize int
	logger    *slog.Logger

	// running prevents overlapping sweeps in one process.
	running sync.Mutex
}

// NewSweeper creates a Sweeper. A non-positive batchSize uses DefaultBatchSize.
func NewSweeper(queue *Queue, regen Regenerator, batchSize int, logger *slog.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Sweeper{queue: queue, regen: regen, batchSize: batchSize, logger: logger}
}

// SweepDue retries every due record once, sequentially. A sweep that starts
// while another is still running in this process returns an empty summary.
func (s *Sweeper) SweepDue(ctx context.Context) (*SweepSummary, error) {
	summary := &SweepSummary{Outcomes: []Outcome{}}
	if !s.running.TryLock() {
		s.logger.Warn("Retry sweep already in progress, skipping")
		return summary, nil
	}
	defer s.running.Unlock()

	due, err := s.queue.Due(ctx, s.batchSize)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return summary, nil
	}
	s.logger.Info("Retry sweep started", "due", len(due))

	for i := range due {
		if ctx.Err() != nil {
			break
		}
		rec := &due[i]
		key := rec.Key()
		attempt := rec.RetryCount + 1
		outcome := Outcome{ID: rec.ID, Key: key.String(), Attempt: attempt}

		genErr := s.regen.Regenerate(ctx, key)
		if genErr == nil {
			err = s.queue.MarkResolved(ctx, rec)
			outcome.State = models.RetryStateResolved
		} else {
			outcome.State, err = s.queue.MarkFailed(ctx, rec, genErr)
			outcome.Error = genErr.Error()
		}

		if errors.Is(err, ErrStaleRecord) {
			s.logger.Warn("Retry record changed during sweep, skipping", "key", key.String(), "attempt", attempt)
			continue
		}
		if err != nil {
			s.logger.Error("Failed to update retry record", "key", key.String(), "attempt", attempt, "error", err)
			continue
		}

		summary.RetryCount++
		if genErr == nil {
			summary.SuccessCount++
			s.logger.Info("Retry succeeded", "key", key.String(), "attempt", attempt)
		} else {
			summary.FailureCount++
			s.logger.Warn("Retry failed", "key", key.String(), "attempt", attempt, "state", outcome.State, "error", genErr)
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
	}

	s.logger.Info("Retry sweep completed",
		"retried", summary.RetryCount,
		"succeeded", summary.SuccessCount,
		"failed", summary.FailureCount,
	)
	return summary, nil
}
