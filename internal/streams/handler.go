package streams

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jimdaga/newscast/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HandleEvent returns a handler that persists consumed events.
func HandleEvent(db *gorm.DB) func(context.Context, Event) error {
	return func(ctx context.Context, event Event) error {
		return persist(ctx, db, event)
	}
}

// DBSink writes events straight to the database. It is the fallback when no
// Redis stream is configured.
type DBSink struct {
	db *gorm.DB
}

// NewDBSink creates a DBSink.
func NewDBSink(db *gorm.DB) *DBSink {
	return &DBSink{db: db}
}

// Emit implements Sink.
func (s *DBSink) Emit(ctx context.Context, event Event) error {
	return persist(ctx, s.db, event)
}

func persist(ctx context.Context, db *gorm.DB, event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}

	var detail datatypes.JSON
	if len(event.Detail) > 0 {
		b, err := json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal event detail: %w", err)
		}
		detail = datatypes.JSON(b)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.AnalyticsEvent{
			EventType:  event.Type,
			UserID:     event.UserID,
			EditionKey: event.EditionKey,
			Detail:     detail,
			OccurredAt: event.OccurredAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to store analytics event: %w", err)
		}

		if event.Type != models.EventShareAccess {
			return nil
		}
		if event.ShareLinkID == 0 {
			return fmt.Errorf("share access event without share link id")
		}
		access := models.ShareAccessLog{
			ShareLinkID: event.ShareLinkID,
			AddressHash: event.AddressHash,
			UserAgent:   event.UserAgent,
			AccessedAt:  event.OccurredAt,
		}
		if err := tx.Create(&access).Error; err != nil {
			return fmt.Errorf("failed to store share access: %w", err)
		}
		return nil
	})
}
