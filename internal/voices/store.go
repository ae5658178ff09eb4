package voices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jimdaga/newscast/internal/clock"
	"github.com/jimdaga/newscast/internal/coalesce"
	"github.com/jimdaga/newscast/internal/editions"
	"github.com/jimdaga/newscast/internal/generator"
	"github.com/jimdaga/newscast/internal/models"
	"github.com/jimdaga/newscast/internal/plans"
	"github.com/jimdaga/newscast/internal/quota"
	"github.com/jimdaga/newscast/internal/streams"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Voice variant errors
var (
	ErrEditionNotFound = errors.New("edition not found")
	ErrScriptNotReady  = errors.New("edition script is not ready")
	ErrUnknownProfile  = errors.New("unknown voice profile")
	ErrPlanRestricted  = errors.New("voice variants are not included in your plan")
	ErrSynthesisFailed = errors.New("voice synthesis failed")
)

const eventTimeout = 5 * time.Second

// EditionSource looks up editions by id regardless of freshness.
type EditionSource interface {
	Get(ctx context.Context, id uint) (*models.Edition, error)
}

// Synthesizer runs the audio stage of the generation pipeline.
type Synthesizer interface {
	SynthesizeAudio(ctx context.Context, script, voice string) (*generator.Audio, error)
}

// Config bundles the collaborators of a Store.
type Config struct {
	DB          *gorm.DB
	Editions    EditionSource
	Synthesizer Synthesizer
	Registry    *Registry
	Ledger      *quota.Ledger
	Events      streams.Sink
	Clock       clock.Clock
	Logger      *slog.Logger
	Timeout     time.Duration
	// ScriptHosts are the speaker labels primary scripts are written with.
	ScriptHosts []string
}

type rendering struct {
	variant *models.VoiceVariant
	created bool
}

// Store is the per-(edition, profile) cache of narrations.
type Store struct {
	db       *gorm.DB
	editions EditionSource
	synth    Synthesizer
	registry *Registry
	ledger   *quota.Ledger
	events   streams.Sink
	gate     *coalesce.Gate[*rendering]
	clock    clock.Clock
	logger   *slog.Logger
	hosts    []string
}

// NewStore creates a Store.
func NewStore(cfg Config) *Store {
	events := cfg.Events
	if events == nil {
		events = streams.Discard{}
	}
	hosts := cfg.ScriptHosts
	if len(hosts) == 0 {
		hosts = generator.DefaultHosts
	}
	return &Store{
		db:       cfg.DB,
		editions: cfg.Editions,
		synth:    cfg.Synthesizer,
		registry: cfg.Registry,
		ledger:   cfg.Ledger,
		events:   events,
		gate:     coalesce.New[*rendering](cfg.Timeout),
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		hosts:    hosts,
	}
}

// Profiles returns the configured voice profiles.
func (s *Store) Profiles() []Profile { return s.registry.List() }

// GetOrCreate returns the variant of editionID narrated with profileID,
// rendering it if it does not exist yet. created is true only for the
// caller whose request produced the rendering.
func (s *Store) GetOrCreate(ctx context.Context, editionID uint, profileID string) (*models.VoiceVariant, bool, error) {
	variant, err := s.find(ctx, editionID, profileID)
	if err == nil {
		return variant, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to lookup voice variant: %w", err)
	}

	profile, ok := s.registry.Get(profileID)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownProfile, profileID)
	}

	key := strconv.FormatUint(uint64(editionID), 10) + ":" + profileID
	r, shared, err := s.gate.Do(ctx, key, func(ctx context.Context) (*rendering, error) {
		return s.render(ctx, editionID, profile)
	})
	if err != nil {
		return nil, false, err
	}
	return r.variant, r.created && !shared, nil
}

// Request is GetOrCreate on behalf of a user: the plan must include voice
// variants and a new rendering is charged to the voices quota. Returning an
// existing variant is free.
func (s *Store) Request(ctx context.Context, userID uint, plan plans.Plan, editionID uint, profileID string) (*models.VoiceVariant, bool, error) {
	limits, err := plans.LimitsFor(plan)
	if err != nil {
		return nil, false, err
	}
	if !limits.VoiceVariants {
		return nil, false, ErrPlanRestricted
	}

	if variant, err := s.find(ctx, editionID, profileID); err == nil {
		return variant, false, nil
	}

	decision, err := s.ledger.CheckAndReserve(ctx, userID, quota.ActionVoices, limits.DailyVoices)
	if err != nil {
		return nil, false, err
	}
	if !decision.Allowed {
		return nil, false, decision.Err()
	}

	variant, created, err := s.GetOrCreate(ctx, editionID, profileID)
	if !created {
		if relErr := s.ledger.Release(context.WithoutCancel(ctx), userID, quota.ActionVoices); relErr != nil {
			s.logger.Warn("Failed to release voice quota", "user_id", userID, "edition_id", editionID, "error", relErr)
		}
	}
	return variant, created, err
}

// List returns every variant of editionID ordered by profile id.
func (s *Store) List(ctx context.Context, editionID uint) ([]models.VoiceVariant, error) {
	var variants []models.VoiceVariant
	err := s.db.WithContext(ctx).
		Where("edition_id = ?", editionID).
		Order("voice_profile_id ASC").
		Find(&variants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list voice variants: %w", err)
	}
	return variants, nil
}

func (s *Store) find(ctx context.Context, editionID uint, profileID string) (*models.VoiceVariant, error) {
	var variant models.VoiceVariant
	err := s.db.WithContext(ctx).
		Where("edition_id = ? AND voice_profile_id = ?", editionID, profileID).
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// render synthesizes and stores one variant. It runs inside the gate, once
// per (edition, profile) per process.
func (s *Store) render(ctx context.Context, editionID uint, profile Profile) (*rendering, error) {
	// Another process may have finished while this call waited for the gate.
	if variant, err := s.find(ctx, editionID, profile.ID); err == nil {
		return &rendering{variant: variant}, nil
	}

	edition, err := s.editions.Get(ctx, editionID)
	if errors.Is(err, editions.ErrNotFound) {
		return nil, ErrEditionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load edition: %w", err)
	}
	if edition.Script == "" {
		return nil, ErrScriptNotReady
	}

	script := Relabel(edition.Script, s.hosts, profile.Hosts)
	start := s.clock.Now()
	audio, err := s.synth.SynthesizeAudio(ctx, script, profile.Voice)
	if err != nil {
		s.logger.Error("Voice synthesis failed", "edition_id", editionID, "profile", profile.ID, "stage", generator.StageAudio, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	cost := audio.CostEstimate
	if cost == 0 && audio.DurationMs > 0 {
		cost = profile.CostPerMinute * float64(audio.DurationMs) / float64(time.Minute/time.Millisecond)
	}
	variant := models.VoiceVariant{
		EditionID:        editionID,
		VoiceProfileID:   profile.ID,
		AudioURL:         audio.URL,
		GenerationTimeMs: s.clock.Now().Sub(start).Milliseconds(),
		CostEstimate:     cost,
		CreatedAt:        s.clock.Now(),
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&variant)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to store voice variant: %w", res.Error)
	}
	created := res.RowsAffected == 1

	stored, err := s.find(ctx, editionID, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reread voice variant: %w", err)
	}

	if created {
		s.logger.Info("Voice variant generated", "edition_id", editionID, "profile", profile.ID, "duration_ms", audio.DurationMs)
		s.emit(edition.Key(), map[string]interface{}{"edition_id": editionID, "profile": profile.ID})
	}
	return &rendering{variant: stored, created: created}, nil
}

func (s *Store) emit(key models.EditionKey, detail map[string]interface{}) {
	event := streams.Event{
		Type:       models.EventVoiceVariantGenerated,
		EditionKey: key.String(),
		Detail:     detail,
		OccurredAt: s.clock.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := s.events.Emit(ctx, event); err != nil {
			s.logger.Warn("Failed to emit analytics event", "event_type", event.Type, "key", event.EditionKey, "error", err)
		}
	}()
}
