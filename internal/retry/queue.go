// Package retry keeps a durable queue of failed edition generations and
// drains it with a bounded, backed-off sweeper.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jimdaga/newscast/internal/clock"
	"github.com/jimdaga/newscast/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleRecord is returned when a record changed between selection and
// update, typically because another sweeper already handled the attempt.
var ErrStaleRecord = errors.New("failed generation record changed concurrently")

// ErrRecordNotFound is returned for unknown record ids.
var ErrRecordNotFound = errors.New("failed generation record not found")

// Queue is the durable store of FailedGeneration records.
type Queue struct {
	db         *gorm.DB
	clock      clock.Clock
	backoff    Backoff
	maxRetries int
	logger     *slog.Logger
}

// NewQueue creates a Queue. A non-positive maxRetries uses DefaultMaxRetries.
func NewQueue(db *gorm.DB, clk clock.Clock, backoff Backoff, maxRetries int, logger *slog.Logger) *Queue {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Queue{db: db, clock: clk, backoff: backoff, maxRetries: maxRetries, logger: logger}
}

// MaxRetries returns the attempt ceiling.
func (q *Queue) MaxRetries() int { return q.maxRetries }

// RecordFailure registers a failed generation for key. The first failure
// creates a pending record; later failures for a pending key only refresh the
// message, a resolved record is reopened and an exhausted one stays frozen.
func (q *Queue) RecordFailure(ctx context.Context, key models.EditionKey, cause error) (*models.FailedGeneration, error) {
	now := q.clock.Now()
	msg := errorMessage(cause)

	rec := models.FailedGeneration{
		EditionType:    key.Type,
		Region:         key.Region,
		Language:       key.Language,
		GenerationDate: key.Date,
		ErrorMessage:   msg,
		NextRetryAt:    now.Add(q.backoff.Delay(1)),
	}
	res := q.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to record failed generation: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		q.logger.Info("Queued failed generation for retry", "key", key.String(), "next_retry_at", rec.NextRetryAt)
		return &rec, nil
	}

	existing, err := q.find(ctx, key)
	if err != nil {
		return nil, err
	}

	var updates map[string]interface{}
	switch existing.State(q.maxRetries) {
	case models.RetryStatePending:
		updates = map[string]interface{}{"error_message": msg}
	case models.RetryStateResolved:
		updates = map[string]interface{}{
			"error_message": msg,
			"retry_count":   0,
			"is_resolved":   false,
			"resolved_at":   nil,
			"next_retry_at": now.Add(q.backoff.Delay(1)),
		}
		q.logger.Info("Reopened resolved failed generation", "key", key.String())
	default:
		q.logger.Warn("Failed generation already exhausted, not requeueing", "key", key.String())
		return existing, nil
	}

	if err := q.db.WithContext(ctx).Model(existing).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update failed generation: %w", err)
	}
	return q.find(ctx, key)
}

// Due returns pending records whose next retry time has passed, fewest
// attempts first, at most limit of them.
func (q *Queue) Due(ctx context.Context, limit int) ([]models.FailedGeneration, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	var recs []models.FailedGeneration
	err := q.db.WithContext(ctx).
		Where("is_resolved = ? AND retry_count < ? AND next_retry_at <= ?", false, q.maxRetries, q.clock.Now()).
		Order("retry_count ASC").
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select due retries: %w", err)
	}
	return recs, nil
}

// MarkResolved records a successful retry attempt for rec.
func (q *Queue) MarkResolved(ctx context.Context, rec *models.FailedGeneration) error {
	now := q.clock.Now()
	res := q.db.WithContext(ctx).Model(&models.FailedGeneration{}).
		Where("id = ? AND retry_count = ? AND is_resolved = ?", rec.ID, rec.RetryCount, false).
		Updates(map[string]interface{}{
			"is_resolved":   true,
			"resolved_at":   now,
			"last_retry_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to resolve failed generation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleRecord
	}
	rec.IsResolved = true
	rec.ResolvedAt = &now
	rec.LastRetryAt = &now
	return nil
}

// MarkFailed records a failed retry attempt for rec and returns the record's
// new state. When the attempt ceiling is reached the record is exhausted and
// next_retry_at is left untouched.
func (q *Queue) MarkFailed(ctx context.Context, rec *models.FailedGeneration, cause error) (string, error) {
	now := q.clock.Now()
	attempt := rec.RetryCount + 1
	updates := map[string]interface{}{
		"retry_count":   attempt,
		"last_retry_at": now,
		"error_message": errorMessage(cause),
	}
	next := rec.NextRetryAt
	if attempt < q.maxRetries {
		next = now.Add(q.backoff.Delay(attempt + 1))
		updates["next_retry_at"] = next
	}

	res := q.db.WithContext(ctx).Model(&models.FailedGeneration{}).
		Where("id = ? AND retry_count = ? AND is_resolved = ?", rec.ID, rec.RetryCount, false).
		Updates(updates)
	if res.Error != nil {
		return "", fmt.Errorf("failed to update failed generation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", ErrStaleRecord
	}

	rec.RetryCount = attempt
	rec.LastRetryAt = &now
	rec.NextRetryAt = next
	rec.ErrorMessage = errorMessage(cause)
	return rec.State(q.maxRetries), nil
}

// ResolveKey resolves the open record for key, if any. Called whenever a
// generation for key succeeds outside the sweeper.
func (q *Queue) ResolveKey(ctx context.Context, key models.EditionKey) error {
	now := q.clock.Now()
	err := q.db.WithContext(ctx).Model(&models.FailedGeneration{}).
		Where("edition_type = ? AND region = ? AND language = ? AND generation_date = ? AND is_resolved = ? AND retry_count < ?",
			key.Type, key.Region, key.Language, key.Date, false, q.maxRetries).
		Updates(map[string]interface{}{"is_resolved": true, "resolved_at": now}).Error
	if err != nil {
		return fmt.Errorf("failed to resolve failed generation: %w", err)
	}
	return nil
}

// Resolve is the administrative resolution of a record in any state.
func (q *Queue) Resolve(ctx context.Context, id uint) (*models.FailedGeneration, error) {
	now := q.clock.Now()
	res := q.db.WithContext(ctx).Model(&models.FailedGeneration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_resolved": true, "resolved_at": now})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to resolve failed generation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	var rec models.FailedGeneration
	if err := q.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load failed generation: %w", err)
	}
	return &rec, nil
}

// List returns records in state (pending, resolved or exhausted), newest
// first. An empty state lists everything.
func (q *Queue) List(ctx context.Context, state string, limit int) ([]models.FailedGeneration, error) {
	tx := q.db.WithContext(ctx).Model(&models.FailedGeneration{})
	switch state {
	case "":
	case models.RetryStatePending:
		tx = tx.Where("is_resolved = ? AND retry_count < ?", false, q.maxRetries)
	case models.RetryStateExhausted:
		tx = tx.Where("is_resolved = ? AND retry_count >= ?", false, q.maxRetries)
	case models.RetryStateResolved:
		tx = tx.Where("is_resolved = ?", true)
	default:
		return nil, fmt.Errorf("unknown retry state %q", state)
	}
	if limit <= 0 {
		limit = 100
	}
	var recs []models.FailedGeneration
	if err := tx.Order("updated_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list failed generations: %w", err)
	}
	return recs, nil
}

// Get returns the record for key.
func (q *Queue) Get(ctx context.Context, key models.EditionKey) (*models.FailedGeneration, error) {
	return q.find(ctx, key)
}

func (q *Queue) find(ctx context.Context, key models.EditionKey) (*models.FailedGeneration, error) {
	var rec models.FailedGeneration
	err := q.db.WithContext(ctx).
		Where("edition_type = ? AND region = ? AND language = ? AND generation_date = ?", key.Type, key.Region, key.Language, key.Date).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load failed generation: %w", err)
	}
	return &rec, nil
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
