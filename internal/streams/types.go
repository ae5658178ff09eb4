// Package streams carries analytics events over Redis Streams and persists
// them on the consuming side.
package streams

import (
	"context"
	"time"
)

// Stream name constants
const (
	StreamAnalyticsEvents = "analytics:events"
)

// Consumer group constants
const (
	GroupRecorders = "event-recorders"
)

// Schema version constant
const (
	SchemaVersionV1 = "v1"
)

// Event is one analytics event. Share access events carry the share link id
// and a keyed hash of the requester address, never the raw address.
type Event struct {
	Type        string                 `json:"type"`
	UserID      *uint                  `json:"user_id,omitempty"`
	EditionKey  string                 `json:"edition_key,omitempty"`
	ShareLinkID uint                   `json:"share_link_id,omitempty"`
	AddressHash string                 `json:"address_hash,omitempty"`
	UserAgent   string                 `json:"user_agent,omitempty"`
	Detail      map[string]interface{} `json:"detail,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// Sink accepts analytics events.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// Discard is a Sink that drops every event.
type Discard struct{}

// Emit implements Sink.
func (Discard) Emit(context.Context, Event) error { return nil }
