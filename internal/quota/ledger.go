// Package quota enforces per-user daily limits on chargeable actions.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jimdaga/newscast/internal/clock"
	"github.com/jimdaga/newscast/internal/models"
	"gorm.io/gorm"
)

// Action is a chargeable action category.
type Action string

// Action constants
const (
	ActionEditions Action = "editions"
	ActionResearch Action = "research"
	ActionVoices   Action = "voices"
)

func (a Action) column() (string, error) {
	switch a {
	case ActionEditions:
		return "editions_count", nil
	case ActionResearch:
		return "research_count", nil
	case ActionVoices:
		return "voice_count", nil
	default:
		return "", fmt.Errorf("unknown quota action %q", string(a))
	}
}

// LimitExceededError is returned when a user has used up a daily allowance.
type LimitExceededError struct {
	Action Action
	Used   int
	Limit  int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("daily %s limit reached (%d/%d)", e.Action, e.Used, e.Limit)
}

// Decision is the outcome of CheckAndReserve.
type Decision struct {
	Action  Action
	Allowed bool
	Used    int
	Limit   int
}

// Err returns a *LimitExceededError for a refused decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &LimitExceededError{Action: d.Action, Used: d.Used, Limit: d.Limit}
}

// Ledger stores daily counters. It knows nothing about plans; callers resolve
// the numeric limit before asking.
type Ledger struct {
	db    *gorm.DB
	clock clock.Clock
	loc   *time.Location
}

// NewLedger creates a Ledger whose days roll over in loc (UTC when nil).
func NewLedger(db *gorm.DB, clk clock.Clock, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{db: db, clock: clk, loc: loc}
}

// Today returns the ledger date for the current instant.
func (l *Ledger) Today() string {
	return l.clock.Now().In(l.loc).Format(models.DateLayout)
}

// CheckAndReserve increments the user's counter for action if it is below
// limit. The comparison and the increment happen in one conditional upsert,
// so concurrent callers can never push the counter past limit.
func (l *Ledger) CheckAndReserve(ctx context.Context, userID uint, action Action, limit int) (Decision, error) {
	col, err := action.column()
	if err != nil {
		return Decision{}, err
	}
	decision := Decision{Action: action, Limit: limit}
	day := l.Today()

	if limit > 0 {
		now := l.clock.Now()
		res := l.db.WithContext(ctx).Exec(
			`INSERT INTO daily_usages (user_id, usage_date, `+col+`, created_at, updated_at)
			VALUES (?, ?, 1, ?, ?)
			ON CONFLICT (user_id, usage_date) DO UPDATE
			SET `+col+` = daily_usages.`+col+` + 1, updated_at = excluded.updated_at
			WHERE daily_usages.`+col+` < ?`,
			userID, day, now, now, limit,
		)
		if res.Error != nil {
			return Decision{}, fmt.Errorf("failed to reserve %s quota: %w", action, res.Error)
		}
		decision.Allowed = res.RowsAffected == 1
	}

	used, err := l.used(ctx, userID, day, col)
	if err != nil {
		return Decision{}, err
	}
	decision.Used = used
	return decision, nil
}

// Release returns one previously reserved unit. Used when a reservation did
// not end up triggering chargeable work.
func (l *Ledger) Release(ctx context.Context, userID uint, action Action) error {
	col, err := action.column()
	if err != nil {
		return err
	}
	err = l.db.WithContext(ctx).Model(&models.DailyUsage{}).
		Where("user_id = ? AND usage_date = ? AND "+col+" > 0", userID, l.Today()).
		Updates(map[string]interface{}{
			col:          gorm.Expr(col + " - 1"),
			"updated_at": l.clock.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to release %s quota: %w", action, err)
	}
	return nil
}

// Usage returns today's counters for the user; a user with no activity gets
// a zero row.
func (l *Ledger) Usage(ctx context.Context, userID uint) (models.DailyUsage, error) {
	day := l.Today()
	var usage models.DailyUsage
	err := l.db.WithContext(ctx).Where("user_id = ? AND usage_date = ?", userID, day).First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DailyUsage{UserID: userID, UsageDate: day}, nil
	}
	if err != nil {
		return models.DailyUsage{}, fmt.Errorf("failed to load usage: %w", err)
	}
	return usage, nil
}

func (l *Ledger) used(ctx context.Context, userID uint, day, col string) (int, error) {
	var counts []int
	err := l.db.WithContext(ctx).Model(&models.DailyUsage{}).
		Where("user_id = ? AND usage_date = ?", userID, day).
		Pluck(col, &counts).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %w", err)
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0], nil
}
