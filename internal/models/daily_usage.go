package models

import "time"

// DailyUsage counts chargeable actions per user per calendar day.
type DailyUsage struct {
	ID            uint   `gorm:"primaryKey"`
	UserID        uint   `gorm:"not null;uniqueIndex:idx_daily_usages_user_date"`
	UsageDate     string `gorm:"type:varchar(10);not null;uniqueIndex:idx_daily_usages_user_date"`
	EditionsCount int    `gorm:"not null;default:0"`
	ResearchCount int    `gorm:"not null;default:0"`
	VoiceCount    int    `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
