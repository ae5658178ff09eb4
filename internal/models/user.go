package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an application user and the subscription plan billing assigned
type User struct {
	gorm.Model
	Email       string `gorm:"uniqueIndex:idx_users_email_not_deleted,where:deleted_at IS NULL;not null"`
	Name        string `gorm:"not null;default:''"`
	Timezone    string `gorm:"not null;default:'UTC'"`
	Plan        string `gorm:"not null;default:'free'"`
	Role        string `gorm:"not null;default:'user'"` // enum: 'user' or 'admin'
	LastLoginAt *time.Time
}

// All returns every persisted model in dependency order, for AutoMigrate in tests.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Edition{},
		&FailedGeneration{},
		&DailyUsage{},
		&VoiceVariant{},
		&ShareLink{},
		&ShareAccessLog{},
		&ScheduleRun{},
		&AnalyticsEvent{},
	}
}
