// Package share issues time-boxed public links to editions and resolves them
// for unauthenticated listeners.
package share

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jimdaga/newscast/internal/clock"
	"github.com/jimdaga/newscast/internal/editions"
	"github.com/jimdaga/newscast/internal/models"
	"github.com/jimdaga/newscast/internal/plans"
	"github.com/jimdaga/newscast/internal/streams"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Share link errors
var (
	ErrNotFound        = errors.New("share link not found")
	ErrExpired         = errors.New("share link expired")
	ErrAccessDenied    = errors.New("share link belongs to another user")
	ErrEditionNotFound = errors.New("edition not found")
	ErrPlanRestricted  = errors.New("share links are not included in your plan")
)

// DefaultTTL is how long a share link resolves after creation.
const DefaultTTL = 30 * 24 * time.Hour

// TokenLength is the length of issued share tokens.
const TokenLength = 16

const (
	maxTokenAttempts = 5
	eventTimeout     = 5 * time.Second
)

// TokenSource issues unguessable tokens.
type TokenSource interface {
	NewToken() (string, error)
}

// AddressHasher hashes requester addresses for access logs.
type AddressHasher interface {
	Hash(addr string) string
}

// EditionSource looks up editions by id regardless of freshness.
type EditionSource interface {
	Get(ctx context.Context, id uint) (*models.Edition, error)
}

// VariantLister lists the rendered voice variants of an edition.
type VariantLister interface {
	List(ctx context.Context, editionID uint) ([]models.VoiceVariant, error)
}

// Access describes who is resolving a link.
type Access struct {
	Address   string
	UserAgent string
}

// Resolution is a resolved share link with everything a public player needs.
type Resolution struct {
	Link    models.ShareLink
	Edition *models.Edition
	Voices  []models.VoiceVariant
}

// Config bundles the collaborators of a Registry.
type Config struct {
	DB       *gorm.DB
	Tokens   TokenSource
	Hasher   AddressHasher
	Editions EditionSource
	Variants VariantLister
	Events   streams.Sink
	Clock    clock.Clock
	Logger   *slog.Logger
	TTL      time.Duration
}

// Registry creates, resolves and revokes share links.
type Registry struct {
	db       *gorm.DB
	tokens   TokenSource
	hasher   AddressHasher
	editions EditionSource
	variants VariantLister
	events   streams.Sink
	clock    clock.Clock
	logger   *slog.Logger
	ttl      time.Duration
}

// NewRegistry creates a Registry.
func NewRegistry(cfg Config) *Registry {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	events := cfg.Events
	if events == nil {
		events = streams.Discard{}
	}
	return &Registry{
		db:       cfg.DB,
		tokens:   cfg.Tokens,
		hasher:   cfg.Hasher,
		editions: cfg.Editions,
		variants: cfg.Variants,
		events:   events,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		ttl:      ttl,
	}
}

// Create issues a new link to editionID owned by ownerID.
func (r *Registry) Create(ctx context.Context, editionID, ownerID uint) (*models.ShareLink, error) {
	if _, err := r.edition(ctx, editionID); err != nil {
		return nil, err
	}

	now := r.clock.Now()
	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := r.tokens.NewToken()
		if err != nil {
			return nil, fmt.Errorf("failed to issue share token: %w", err)
		}
		link := models.ShareLink{
			ShareToken: token,
			EditionID:  editionID,
			CreatedBy:  ownerID,
			CreatedAt:  now,
			ExpiresAt:  now.Add(r.ttl),
		}
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "share_token"}}, DoNothing: true}).
			Create(&link)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to create share link: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return &link, nil
		}
		r.logger.Warn("Share token collision, retrying", "attempt", attempt)
	}
	return nil, fmt.Errorf("failed to issue a unique share token after %d attempts", maxTokenAttempts)
}

// CreateFor is Create on behalf of a user whose plan must include share links.
func (r *Registry) CreateFor(ctx context.Context, userID uint, plan plans.Plan, editionID uint) (*models.ShareLink, error) {
	limits, err := plans.LimitsFor(plan)
	if err != nil {
		return nil, err
	}
	if !limits.ShareLinks {
		return nil, ErrPlanRestricted
	}
	return r.Create(ctx, editionID, userID)
}

// Resolve looks up token and counts the access. A link resolves through
// its expiry instant and fails with ErrExpired after it.
func (r *Registry) Resolve(ctx context.Context, token string, access Access) (*Resolution, error) {
	var link models.ShareLink
	err := r.db.WithContext(ctx).Where("share_token = ?", token).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup share link: %w", err)
	}
	if link.IsExpired(r.clock.Now()) {
		return nil, ErrExpired
	}

	edition, err := r.edition(ctx, link.EditionID)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).Model(&models.ShareLink{}).
		Where("id = ?", link.ID).
		UpdateColumn("access_count", gorm.Expr("access_count + 1")).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count share access: %w", err)
	}
	link.AccessCount++

	voices, err := r.variants.List(ctx, link.EditionID)
	if err != nil {
		r.logger.Warn("Failed to list voice variants for share", "share_id", link.ID, "error", err)
		voices = nil
	}

	r.recordAccess(link, edition.Key(), access)
	return &Resolution{Link: link, Edition: edition, Voices: voices}, nil
}

// Revoke deletes shareID. Only its creator may revoke it.
func (r *Registry) Revoke(ctx context.Context, shareID, callerID uint) error {
	var link models.ShareLink
	err := r.db.WithContext(ctx).First(&link, shareID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lookup share link: %w", err)
	}
	if link.CreatedBy != callerID {
		return ErrAccessDenied
	}

	res := r.db.WithContext(ctx).
		Where("id = ? AND created_by = ?", shareID, callerID).
		Delete(&models.ShareLink{})
	if res.Error != nil {
		return fmt.Errorf("failed to revoke share link: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForEdition returns ownerID's links to editionID, newest first.
func (r *Registry) ListForEdition(ctx context.Context, editionID, ownerID uint) ([]models.ShareLink, error) {
	var links []models.ShareLink
	err := r.db.WithContext(ctx).
		Where("edition_id = ? AND created_by = ?", editionID, ownerID).
		Order("created_at DESC, id DESC").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list share links: %w", err)
	}
	return links, nil
}

func (r *Registry) edition(ctx context.Context, id uint) (*models.Edition, error) {
	edition, err := r.editions.Get(ctx, id)
	if errors.Is(err, editions.ErrNotFound) {
		return nil, ErrEditionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load edition: %w", err)
	}
	return edition, nil
}

// recordAccess logs the access off the request path. Failures are logged
// and dropped; a listener is never turned away because analytics is down.
func (r *Registry) recordAccess(link models.ShareLink, key models.EditionKey, access Access) {
	event := streams.Event{
		Type:        models.EventShareAccess,
		EditionKey:  key.String(),
		ShareLinkID: link.ID,
		AddressHash: r.hasher.Hash(access.Address),
		UserAgent:   access.UserAgent,
		OccurredAt:  r.clock.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := r.events.Emit(ctx, event); err != nil {
			r.logger.Warn("Failed to record share access", "share_id", link.ID, "error", err)
		}
	}()
}
