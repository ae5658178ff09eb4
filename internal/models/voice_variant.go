package models

import "time"

// VoiceVariant is an edition's script rendered with a specific voice profile.
type VoiceVariant struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	EditionID        uint      `gorm:"not null;uniqueIndex:idx_voice_variants_edition_profile" json:"edition_id"`
	VoiceProfileID   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_voice_variants_edition_profile" json:"voice_profile_id"`
	AudioURL         string    `gorm:"column:audio_url;type:text;not null" json:"audio_url"`
	GenerationTimeMs int64     `gorm:"not null;default:0" json:"generation_time_ms"`
	CostEstimate     float64   `gorm:"not null;default:0" json:"cost_estimate"`
	CreatedAt        time.Time `json:"created_at"`
}
