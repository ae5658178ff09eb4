package models

import (
	"time"

	"gorm.io/datatypes"
)

// ScheduleRun status constants
const (
	ScheduleRunStatusRunning = "running"
	ScheduleRunStatusSuccess = "success"
	ScheduleRunStatusFailed  = "failed"
)

// CombinationResult is the outcome of one region/language pair in a run.
type CombinationResult struct {
	Region   string `json:"region"`
	Language string `json:"language"`
	Success  bool   `json:"success"`
	Cached   bool   `json:"cached"`
	Error    string `json:"error,omitempty"`
}

// ScheduleRun is the run-level log of one scheduled edition trigger.
type ScheduleRun struct {
	ID                uint        `gorm:"primaryKey"`
	RunID             string      `gorm:"type:varchar(36);uniqueIndex;not null"`
	EditionType       EditionType `gorm:"type:varchar(16);not null;index"`
	ScheduledTime     time.Time   `gorm:"not null"`
	StartedAt         time.Time   `gorm:"not null"`
	CompletedAt       *time.Time
	TotalCombinations int                                    `gorm:"not null;default:0"`
	SuccessCount      int                                    `gorm:"not null;default:0"`
	ErrorCount        int                                    `gorm:"not null;default:0"`
	Status            string                                 `gorm:"type:varchar(16);not null;default:'running';index"`
	Results           datatypes.JSONSlice[CombinationResult] `gorm:"column:results"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
