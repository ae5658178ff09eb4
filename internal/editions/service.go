package editions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jimdaga/newscast/internal/clock"
	"github.com/jimdaga/newscast/internal/coalesce"
	"github.com/jimdaga/newscast/internal/generator"
	"github.com/jimdaga/newscast/internal/models"
	"github.com/jimdaga/newscast/internal/plans"
	"github.com/jimdaga/newscast/internal/quota"
	"github.com/jimdaga/newscast/internal/retry"
	"github.com/jimdaga/newscast/internal/streams"
)

const eventTimeout = 5 * time.Second

// ContentGenerator is the external generation pipeline.
type ContentGenerator interface {
	Search(ctx context.Context, key models.EditionKey) (*generator.SearchResult, error)
	WriteScript(ctx context.Context, key models.EditionKey, content string, hosts []string) (string, error)
	SynthesizeAudio(ctx context.Context, script, voice string) (*generator.Audio, error)
	RenderCover(ctx context.Context, key models.EditionKey, content string) (string, error)
}

// Requester identifies the authenticated caller.
type Requester struct {
	UserID uint
	Plan   plans.Plan
}

// Request is an inbound generation request.
type Request struct {
	EditionType string `json:"editionType" binding:"required"`
	Region      string `json:"region" binding:"required"`
	Language    string `json:"language" binding:"required"`
}

// Result is what a generation call hands back.
type Result struct {
	// Cached is true when the edition was served from the cache without
	// running the pipeline.
	Cached bool
	// Shared is true when the caller coalesced onto another caller's run.
	Shared bool
	// Persisted is false when generation succeeded but the cache write did
	// not; the edition has no id in that case.
	Persisted bool
	Edition   *models.Edition
}

// Stages reports the per-stage outcome of the edition.
func (r *Result) Stages() []StageResult {
	return StagesOf(r.Edition)
}

type generation struct {
	edition   *models.Edition
	fromCache bool
	persisted bool
}

// Config bundles the collaborators of a Service.
type Config struct {
	Cache     *Cache
	Ledger    *quota.Ledger
	Queue     *retry.Queue
	Generator ContentGenerator
	Events    streams.Sink
	Clock     clock.Clock
	Logger    *slog.Logger
	// Timeout bounds one generation run for every coalesced waiter.
	Timeout time.Duration
	// Location decides the calendar date of new edition keys.
	Location *time.Location
	// Voice is the narration voice of primary editions.
	Voice string
	// Hosts are the speaker labels scripts are written with.
	Hosts []string
}

// Service is the orchestration boundary in front of the generation pipeline.
type Service struct {
	cache  *Cache
	gate   *coalesce.Gate[*generation]
	ledger *quota.Ledger
	queue  *retry.Queue
	gen    ContentGenerator
	events streams.Sink
	clock  clock.Clock
	logger *slog.Logger
	loc    *time.Location
	voice  string
	hosts  []string
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	events := cfg.Events
	if events == nil {
		events = streams.Discard{}
	}
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = generator.DefaultHosts
	}
	voice := cfg.Voice
	if voice == "" {
		voice = "default"
	}
	return &Service{
		cache:  cfg.Cache,
		gate:   coalesce.New[*generation](cfg.Timeout),
		ledger: cfg.Ledger,
		queue:  cfg.Queue,
		gen:    cfg.Generator,
		events: events,
		clock:  cfg.Clock,
		logger: cfg.Logger,
		loc:    loc,
		voice:  voice,
		hosts:  hosts,
	}
}

// Hosts returns the speaker labels primary scripts are written with.
func (s *Service) Hosts() []string { return s.hosts }

// Edition returns a stored edition by id regardless of freshness.
func (s *Service) Edition(ctx context.Context, id uint) (*models.Edition, error) {
	return s.cache.Get(ctx, id)
}

// KeyFor returns the key of today's edition for a request.
func (s *Service) KeyFor(t models.EditionType, region, language string) models.EditionKey {
	return models.NewEditionKey(t, region, language, s.clock.Now().In(s.loc))
}

// Generate serves today's edition for req to who. Cache hits are free; a
// miss reserves one edition from the caller's daily quota, which is returned
// if the caller's request did not itself run the pipeline.
func (s *Service) Generate(ctx context.Context, who Requester, req Request) (*Result, error) {
	editionType, err := models.ParseEditionType(req.EditionType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	region := strings.TrimSpace(req.Region)
	language := strings.TrimSpace(req.Language)
	if region == "" || language == "" {
		return nil, fmt.Errorf("%w: region and language are required", ErrInvalidRequest)
	}

	limits, err := plans.LimitsFor(who.Plan)
	if err != nil {
		return nil, err
	}
	if !limits.AllowsRegion(region) {
		return nil, &PlanRestrictionError{Field: "region", Value: region}
	}
	if !limits.AllowsLanguage(language) {
		return nil, &PlanRestrictionError{Field: "language", Value: language}
	}

	key := s.KeyFor(editionType, region, language)
	userID := who.UserID

	if edition, ok := s.lookup(ctx, key); ok {
		s.emit(models.EventEditionCacheHit, &userID, key, nil)
		return &Result{Cached: true, Persisted: true, Edition: edition}, nil
	}

	decision, err := s.ledger.CheckAndReserve(ctx, userID, quota.ActionEditions, limits.DailyEditions)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.logger.Info("Edition quota exceeded", "user_id", userID, "used", decision.Used, "limit", decision.Limit)
		return nil, decision.Err()
	}

	gen, shared, err := s.run(ctx, key, true)
	if err != nil || shared || gen.fromCache {
		if relErr := s.ledger.Release(context.WithoutCancel(ctx), userID, quota.ActionEditions); relErr != nil {
			s.logger.Warn("Failed to release edition quota", "user_id", userID, "key", key.String(), "error", relErr)
		}
	}
	if err != nil {
		return nil, err
	}

	switch {
	case gen.fromCache:
		s.emit(models.EventEditionCacheHit, &userID, key, nil)
	case !shared:
		s.emit(models.EventEditionGenerated, &userID, key, map[string]interface{}{"degraded": gen.edition.Degraded()})
	}
	return &Result{Cached: gen.fromCache, Shared: shared, Persisted: gen.persisted, Edition: gen.edition}, nil
}

// Produce generates the edition for key on behalf of the scheduler. Failures
// are queued for retry.
func (s *Service) Produce(ctx context.Context, key models.EditionKey) (*Result, error) {
	gen, shared, err := s.run(ctx, key, true)
	if err != nil {
		return nil, err
	}
	if !gen.fromCache && !shared {
		s.emit(models.EventEditionGenerated, nil, key, map[string]interface{}{"scheduled": true})
	}
	return &Result{Cached: gen.fromCache, Shared: shared, Persisted: gen.persisted, Edition: gen.edition}, nil
}

// Regenerate re-runs generation for key on behalf of the retry sweeper,
// which owns the failure record: failures are not queued again and a success
// leaves the record for the sweeper to resolve. A fresh cache entry counts as
// success.
func (s *Service) Regenerate(ctx context.Context, key models.EditionKey) error {
	_, _, err := s.run(ctx, key, false)
	return err
}

// run generates key through the gate. track is false on the sweeper path,
// where the retry record belongs to the caller.
func (s *Service) run(ctx context.Context, key models.EditionKey, track bool) (*generation, bool, error) {
	gen, shared, err := s.gate.Do(ctx, key.String(), func(ctx context.Context) (*generation, error) {
		return s.produce(ctx, key, track)
	})
	if errors.Is(err, coalesce.ErrTimeout) {
		genErr := &GenerationError{Key: key, Stage: "pipeline", Message: "edition generation timed out", cause: err}
		if track && !shared {
			genErr.RetryScheduled = s.recordFailure(ctx, key, genErr)
		}
		err = genErr
	}
	return gen, shared, err
}

// produce runs inside the gate, once per coalesced group.
func (s *Service) produce(ctx context.Context, key models.EditionKey, track bool) (*generation, error) {
	// Another process, or a run that settled just before this one started,
	// may already have filled the cache.
	if edition, ok := s.lookup(ctx, key); ok {
		return &generation{edition: edition, fromCache: true, persisted: true}, nil
	}

	started := s.clock.Now()
	payload, err := s.pipeline(ctx, key)
	if err != nil {
		if track {
			scheduled := s.recordFailure(ctx, key, err)
			var genErr *GenerationError
			if errors.As(err, &genErr) {
				genErr.RetryScheduled = scheduled
			}
		}
		return nil, err
	}

	edition, err := s.cache.Upsert(ctx, key, payload, s.cache.TTL())
	persisted := err == nil
	if err != nil {
		// Serve the content anyway; the next request regenerates.
		s.logger.Warn("Failed to cache generated edition", "key", key.String(), "error", err)
		now := s.clock.Now()
		e := payload.edition(key, now, s.cache.TTL())
		edition = &e
	}

	if track {
		if err := s.queue.ResolveKey(ctx, key); err != nil {
			s.logger.Warn("Failed to resolve retry record", "key", key.String(), "error", err)
		}
	}

	s.logger.Info("Edition generated",
		"key", key.String(),
		"degraded", edition.Degraded(),
		"duration_ms", s.clock.Now().Sub(started).Milliseconds(),
	)
	return &generation{edition: edition, persisted: persisted}, nil
}

func (s *Service) lookup(ctx context.Context, key models.EditionKey) (*models.Edition, bool) {
	edition, err := s.cache.Lookup(ctx, key)
	switch {
	case err == nil:
		return edition, true
	case errors.Is(err, ErrNotFound):
		return nil, false
	default:
		// Fail open: a cache outage costs a regeneration, not an error.
		s.logger.Warn("Edition cache unavailable, treating as miss", "key", key.String(), "error", err)
		return nil, false
	}
}

// recordFailure queues key for retry and reports whether a retry is pending.
func (s *Service) recordFailure(ctx context.Context, key models.EditionKey, cause error) bool {
	rec, err := s.queue.RecordFailure(context.WithoutCancel(ctx), key, cause)
	if err != nil {
		s.logger.Error("Failed to queue generation for retry", "key", key.String(), "error", err)
		return false
	}
	return rec.State(s.queue.MaxRetries()) == models.RetryStatePending
}

// emit sends an analytics event without blocking the request path.
func (s *Service) emit(eventType string, userID *uint, key models.EditionKey, detail map[string]interface{}) {
	event := streams.Event{
		Type:       eventType,
		UserID:     userID,
		EditionKey: key.String(),
		Detail:     detail,
		OccurredAt: s.clock.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := s.events.Emit(ctx, event); err != nil {
			s.logger.Warn("Failed to emit analytics event", "event_type", eventType, "key", event.EditionKey, "error", err)
		}
	}()
}
