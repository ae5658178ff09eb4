package models

import "time"

// ShareLink grants unauthenticated, time-boxed read access to one edition.
type ShareLink struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ShareToken  string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"share_token"`
	EditionID   uint      `gorm:"not null;index" json:"edition_id"`
	CreatedBy   uint      `gorm:"not null;index" json:"created_by"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	ExpiresAt   time.Time `gorm:"not null" json:"expires_at"`
	AccessCount int64     `gorm:"not null;default:0" json:"access_count"`
}

// IsExpired reports whether the link can no longer be resolved at now.
func (s *ShareLink) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ShareAccessLog records one resolution of a share link. Only a keyed hash of
// the requester address is stored.
type ShareAccessLog struct {
	ID          uint      `gorm:"primaryKey"`
	ShareLinkID uint      `gorm:"not null;index"`
	AddressHash string    `gorm:"type:varchar(64);not null"`
	UserAgent   string    `gorm:"type:text"`
	AccessedAt  time.Time `gorm:"not null"`
}
