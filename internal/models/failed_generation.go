package models

import "time"

// Retry states derived from a FailedGeneration record
const (
	RetryStatePending   = "pending"
	RetryStateResolved  = "resolved"
	RetryStateExhausted = "exhausted"
)

// FailedGeneration tracks a generation that failed and is awaiting retry.
// Records are never deleted automatically; exhausted ones stay for operators.
type FailedGeneration struct {
	ID             uint        `gorm:"primaryKey"`
	EditionType    EditionType `gorm:"type:varchar(16);not null;uniqueIndex:idx_failed_generations_key"`
	Region         string      `gorm:"type:varchar(64);not null;uniqueIndex:idx_failed_generations_key"`
	Language       string      `gorm:"type:varchar(64);not null;uniqueIndex:idx_failed_generations_key"`
	GenerationDate string      `gorm:"type:varchar(10);not null;uniqueIndex:idx_failed_generations_key"`
	ErrorMessage   string      `gorm:"column:error_message;type:text"`
	RetryCount     int         `gorm:"not null;default:0;index:idx_failed_generations_due,priority:2"`
	NextRetryAt    time.Time   `gorm:"not null;index:idx_failed_generations_due,priority:3"`
	IsResolved     bool        `gorm:"not null;default:false;index:idx_failed_generations_due,priority:1"`
	LastRetryAt    *time.Time
	ResolvedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Key returns the edition key the record refers to.
func (f *FailedGeneration) Key() EditionKey {
	return EditionKey{Type: f.EditionType, Region: f.Region, Language: f.Language, Date: f.GenerationDate}
}

// State classifies the record against the configured retry ceiling.
func (f *FailedGeneration) State(maxRetries int) string {
	switch {
	case f.IsResolved:
		return RetryStateResolved
	case f.RetryCount >= maxRetries:
		return RetryStateExhausted
	default:
		return RetryStatePending
	}
}
