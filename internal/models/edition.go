package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// EditionType identifies one of the three daily news editions.
type EditionType string

// Edition type constants
const (
	EditionMorning EditionType = "morning"
	EditionMidday  EditionType = "midday"
	EditionEvening EditionType = "evening"
)

// EditionTypes lists every edition type in publication order.
var EditionTypes = []EditionType{EditionMorning, EditionMidday, EditionEvening}

// ParseEditionType accepts an edition type name in any letter case.
func ParseEditionType(s string) (EditionType, error) {
	switch t := EditionType(strings.ToLower(strings.TrimSpace(s))); t {
	case EditionMorning, EditionMidday, EditionEvening:
		return t, nil
	default:
		return "", fmt.Errorf("unknown edition type %q", s)
	}
}

// DateLayout is the layout of the date component of an EditionKey.
const DateLayout = "2006-01-02"

// EditionKey is the composite identity of a cacheable edition.
type EditionKey struct {
	Type     EditionType `json:"edition_type"`
	Region   string      `json:"region"`
	Language string      `json:"language"`
	Date     string      `json:"date"`
}

// NewEditionKey builds a key for the calendar date of at.
func NewEditionKey(t EditionType, region, language string, at time.Time) EditionKey {
	return EditionKey{Type: t, Region: region, Language: language, Date: at.Format(DateLayout)}
}

// String renders the key as a stable, human readable identifier.
func (k EditionKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Type, k.Region, k.Language, k.Date)
}

// Stage status values persisted on an edition
const (
	StageStatusOK      = "ok"
	StageStatusFailed  = "failed"
	StageStatusSkipped = "skipped"
)

// GroundingLink is a source reference returned by the news search stage.
type GroundingLink struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Edition is the materialized output of one generation run. Exactly one row
// exists per (edition_type, region, language, edition_date); regeneration
// replaces it in place.
type Edition struct {
	ID             uint                               `gorm:"primaryKey"`
	EditionType    EditionType                        `gorm:"type:varchar(16);not null;uniqueIndex:idx_editions_key"`
	Region         string                             `gorm:"type:varchar(64);not null;uniqueIndex:idx_editions_key"`
	Language       string                             `gorm:"type:varchar(64);not null;uniqueIndex:idx_editions_key"`
	EditionDate    string                             `gorm:"type:varchar(10);not null;uniqueIndex:idx_editions_key"`
	Content        string                             `gorm:"type:text;not null"`
	Script         string                             `gorm:"type:text"`
	AudioURL       *string                            `gorm:"column:audio_url;type:text"`
	ImageURL       *string                            `gorm:"column:image_url;type:text"`
	GroundingLinks datatypes.JSONSlice[GroundingLink] `gorm:"column:grounding_links"`
	FlashSummary   *string                            `gorm:"type:text"`
	ScriptStatus   string                             `gorm:"type:varchar(16);not null;default:'ok'"`
	AudioStatus    string                             `gorm:"type:varchar(16);not null;default:'ok'"`
	ImageStatus    string                             `gorm:"type:varchar(16);not null;default:'ok'"`
	GeneratedAt    time.Time                          `gorm:"not null"`
	ExpiresAt      time.Time                          `gorm:"not null;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Key returns the composite key of the edition.
func (e *Edition) Key() EditionKey {
	return EditionKey{Type: e.EditionType, Region: e.Region, Language: e.Language, Date: e.EditionDate}
}

// IsExpired reports whether the edition is stale at now. An edition is stale
// from expiresAt onward, so a zero TTL is never served.
func (e *Edition) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Degraded reports whether any optional stage failed or was skipped.
func (e *Edition) Degraded() bool {
	return e.ScriptStatus != StageStatusOK || e.AudioStatus != StageStatusOK || e.ImageStatus != StageStatusOK
}
