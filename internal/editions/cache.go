// Package editions caches generated news editions and orchestrates their
// generation behind a coalescing gate, the quota ledger and the retry queue.
package editions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jimdaga/newscast/internal/clock"
	"github.com/jimdaga/newscast/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultTTL is how long a generated edition stays fresh.
const DefaultTTL = 6 * time.Hour

var (
	// ErrNotFound is returned when no fresh edition exists for a key.
	ErrNotFound = errors.New("edition not found")
	// ErrStoreUnavailable wraps backing store failures.
	ErrStoreUnavailable = errors.New("edition store unavailable")
)

// Payload is the content of a generation run, ready to be cached.
type Payload struct {
	Content      string
	Script       string
	AudioURL     *string
	ImageURL     *string
	FlashSummary *string
	Links        []models.GroundingLink
	ScriptStatus string
	AudioStatus  string
	ImageStatus  string
}

func (p Payload) edition(key models.EditionKey, now time.Time, ttl time.Duration) models.Edition {
	return models.Edition{
		EditionType:    key.Type,
		Region:         key.Region,
		Language:       key.Language,
		EditionDate:    key.Date,
		Content:        p.Content,
		Script:         p.Script,
		AudioURL:       p.AudioURL,
		ImageURL:       p.ImageURL,
		GroundingLinks: p.Links,
		FlashSummary:   p.FlashSummary,
		ScriptStatus:   statusOrOK(p.ScriptStatus),
		AudioStatus:    statusOrOK(p.AudioStatus),
		ImageStatus:    statusOrOK(p.ImageStatus),
		GeneratedAt:    now,
		ExpiresAt:      now.Add(ttl),
	}
}

func statusOrOK(s string) string {
	if s == "" {
		return models.StageStatusOK
	}
	return s
}

// Cache is a freshness cache of editions keyed by (type, region, language,
// date). Entries expire a fixed TTL after generation regardless of access.
type Cache struct {
	db    *gorm.DB
	clock clock.Clock
	ttl   time.Duration
}

// NewCache creates a Cache. A non-positive ttl uses DefaultTTL.
func NewCache(db *gorm.DB, clk clock.Clock, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{db: db, clock: clk, ttl: ttl}
}

// TTL returns the configured freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Lookup returns the fresh edition for key. Absent and expired entries both
// yield ErrNotFound; store failures yield ErrStoreUnavailable.
func (c *Cache) Lookup(ctx context.Context, key models.EditionKey) (*models.Edition, error) {
	var edition models.Edition
	err := c.db.WithContext(ctx).
		Where("edition_type = ? AND region = ? AND language = ? AND edition_date = ?", key.Type, key.Region, key.Language, key.Date).
		First(&edition).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if edition.IsExpired(c.clock.Now()) {
		return nil, ErrNotFound
	}
	return &edition, nil
}

// Upsert writes payload at key with expiresAt = now + ttl, replacing any
// existing row in a single INSERT ... ON CONFLICT statement. Concurrent
// upserts for one key are last-write-wins and never produce a second row.
func (c *Cache) Upsert(ctx context.Context, key models.EditionKey, payload Payload, ttl time.Duration) (*models.Edition, error) {
	edition := payload.edition(key, c.clock.Now(), ttl)

	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "edition_type"}, {Name: "region"}, {Name: "language"}, {Name: "edition_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"content", "script", "audio_url", "image_url", "grounding_links", "flash_summary",
			"script_status", "audio_status", "image_status", "generated_at", "expires_at", "updated_at",
		}),
	}).Create(&edition).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Re-read so the returned row (and its id) is the persisted one even when
	// the insert resolved to an update.
	var stored models.Edition
	err = c.db.WithContext(ctx).
		Where("edition_type = ? AND region = ? AND language = ? AND edition_date = ?", key.Type, key.Region, key.Language, key.Date).
		First(&stored).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &stored, nil
}

// Get returns an edition by id regardless of freshness. Shared links and
// voice variants keep working after an edition goes stale.
func (c *Cache) Get(ctx context.Context, id uint) (*models.Edition, error) {
	var edition models.Edition
	err := c.db.WithContext(ctx).First(&edition, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &edition, nil
}

// ReapExpired deletes editions that expired more than retain ago and are not
// referenced by a share link or voice variant. It returns the number of rows
// removed.
func (c *Cache) ReapExpired(ctx context.Context, retain time.Duration) (int64, error) {
	cutoff := c.clock.Now().Add(-retain)
	res := c.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Where("id NOT IN (?)", c.db.Model(&models.ShareLink{}).Select("edition_id")).
		Where("id NOT IN (?)", c.db.Model(&models.VoiceVariant{}).Select("edition_id")).
		Delete(&models.Edition{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reap expired editions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
