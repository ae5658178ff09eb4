package database

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jimdaga/newscast/internal/models"
	"github.com/jimdaga/newscast/internal/plans"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DevUserEmail is the address of the seeded development user.
const DevUserEmail = "dev@newscast.local"

// SeedDevData populates the database with development test data.
// Idempotent: skips if data already exists.
func SeedDevData(db *gorm.DB, logger *slog.Logger) error {
	var existing models.User
	err := db.Where("email = ?", DevUserEmail).First(&existing).Error
	if err == nil {
		logger.Info("Seed data already exists, skipping")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check seed data: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		user := models.User{
			Email:    DevUserEmail,
			Name:     "Dev User",
			Timezone: "America/Chicago",
			Plan:     string(plans.Pro),
			Role:     "admin",
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create dev user: %w", err)
		}

		now := time.Now().UTC()
		summary := "Markets steady ahead of central bank decision."
		edition := models.Edition{
			EditionType: models.EditionMorning,
			Region:      "Global",
			Language:    "English",
			EditionDate: now.Format(models.DateLayout),
			Content:     "Markets opened steady as investors awaited the central bank decision. In technology, a major chipmaker announced a new fabrication plant.",
			Script:      "Alex: Good morning and welcome to the morning edition.\nSam: Markets are steady today as everyone waits on the central bank.",
			GroundingLinks: []models.GroundingLink{
				{URI: "https://example.com/markets", Title: "Markets await decision"},
			},
			FlashSummary: &summary,
			ScriptStatus: models.StageStatusOK,
			AudioStatus:  models.StageStatusSkipped,
			ImageStatus:  models.StageStatusSkipped,
			GeneratedAt:  now,
			ExpiresAt:    now.Add(6 * time.Hour),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edition).Error; err != nil {
			return fmt.Errorf("failed to create sample edition: %w", err)
		}

		logger.Info("Seeded dev data", "user", user.Email, "plan", user.Plan, "edition", edition.Key().String())
		return nil
	})
}
