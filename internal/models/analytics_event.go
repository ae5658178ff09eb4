package models

import (
	"time"

	"gorm.io/datatypes"
)

// Analytics event types
const (
	EventEditionCacheHit       = "edition_cache_hit"
	EventEditionGenerated      = "edition_generated"
	EventVoiceVariantGenerated = "voice_variant_generated"
	EventShareAccess           = "share_access"
)

// AnalyticsEvent is a persisted product analytics event.
type AnalyticsEvent struct {
	ID         uint           `gorm:"primaryKey"`
	EventType  string         `gorm:"type:varchar(32);not null;index"`
	UserID     *uint          `gorm:"index"`
	EditionKey string         `gorm:"type:varchar(255)"`
	Detail     datatypes.JSON `gorm:"type:jsonb"`
	OccurredAt time.Time      `gorm:"not null;index"`
}
