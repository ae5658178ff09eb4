package share

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jimdaga/newscast/internal/clock"
	"github.com/jimdaga/newscast/internal/crypto"
	"github.com/jimdaga/newscast/internal/dbtest"
	"github.com/jimdaga/newscast/internal/editions"
	"github.com/jimdaga/newscast/internal/models"
	"github.com/jimdaga/newscast/internal/plans"
	"github.com/jimdaga/newscast/internal/streams"
	"gorm.io/gorm"
)

var start = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fixedTokens struct {
	tokens []string
	i      int
}

func (f *fixedTokens) NewToken() (string, error) {
	t := f.tokens[f.i%len(f.tokens)]
	f.i++
	return t, nil
}

type variantsFunc func(ctx context.Context, editionID uint) ([]models.VoiceVariant, error)

func (f variantsFunc) List(ctx context.Context, editionID uint) ([]models.VoiceVariant, error) {
	return f(ctx, editionID)
}

type fixture struct {
	db    *gorm.DB
	clock *clock.Fake
	reg   *Registry
}

func newFixture(t *testing.T, tokens TokenSource) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	clk := clock.NewFake(start)
	if tokens == nil {
		gen, err := crypto.NewTokenGenerator(TokenLength)
		if err != nil {
			t.Fatal(err)
		}
		tokens = gen
	}
	hasher, err := crypto.NewAddressHasher("test-key")
	if err != nil {
		t.Fatal(err)
	}
	reg := NewRegistry(Config{
		DB:       db,
		Tokens:   tokens,
		Hasher:   hasher,
		Editions: editions.NewCache(db, clk, time.Hour),
		Variants: variantsFunc(func(ctx context.Context, editionID uint) ([]models.VoiceVariant, error) {
			var vs []models.VoiceVariant
			err := db.WithContext(ctx).Where("edition_id = ?", editionID).Order("voice_profile_id").Find(&vs).Error
			return vs, err
		}),
		Events: streams.NewDBSink(db),
		Clock:  clk,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &fixture{db: db, clock: clk, reg: reg}
}

func (f *fixture) edition(t *testing.T) *models.Edition {
	t.Helper()
	audio := "https://cdn.example.com/morning.mp3"
	e := &models.Edition{
		EditionType:  models.EditionMorning,
		Region:       "Global",
		Language:     "English",
		EditionDate:  "2026-03-14",
		Content:      "news",
		Script:       "Alex: Hello.",
		AudioURL:     &audio,
		ScriptStatus: models.StageStatusOK,
		AudioStatus:  models.StageStatusOK,
		ImageStatus:  models.StageStatusOK,
		GeneratedAt:  start,
		// Already stale in the cache; shares keep working.
		ExpiresAt: start.Add(-time.Minute),
	}
	if err := f.db.Create(e).Error; err != nil {
		t.Fatal(err)
	}
	return e
}

func TestCreate(t *testing.T) {
	f := newFixture(t, nil)
	e := f.edition(t)

	link, err := f.reg.Create(context.Background(), e.ID, 7)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(link.ShareToken) != TokenLength {
		t.Errorf("token length = %d, want %d", len(link.ShareToken), TokenLength)
	}
	if !link.ExpiresAt.Equal(start.Add(DefaultTTL)) {
		t.Errorf("ExpiresAt = %v, want %v", link.ExpiresAt, start.Add(DefaultTTL))
	}
	if link.CreatedBy != 7 || link.AccessCount != 0 {
		t.Errorf("unexpected link %+v", link)
	}

	if _, err := f.reg.Create(context.Background(), 999, 7); !errors.Is(err, ErrEditionNotFound) {
		t.Errorf("expected ErrEditionNotFound, got %v", err)
	}
}

func TestCreateRetriesTokenCollision(t *testing.T) {
	tokens := &fixedTokens{tokens: []string{"AAAAAAAAAAAAAAAA", "AAAAAAAAAAAAAAAA", "BBBBBBBBBBBBBBBB"}}
	f := newFixture(t, tokens)
	e := f.edition(t)
	ctx := context.Background()

	first, err := f.reg.Create(ctx, e.ID, 7)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.reg.Create(ctx, e.ID, 7)
	if err != nil {
		t.Fatalf("Create() after collision error = %v", err)
	}
	if first.ShareToken == second.ShareToken {
		t.Fatal("collision produced a duplicate token")
	}
	if second.ShareToken != "BBBBBBBBBBBBBBBB" {
		t.Errorf("expected retry to use next token, got %s", second.ShareToken)
	}
}

func TestCreateGivesUpOnPersistentCollision(t *testing.T) {
	f := newFixture(t, &fixedTokens{tokens: []string{"CCCCCCCCCCCCCCCC"}})
	e := f.edition(t)
	ctx := context.Background()

	if _, err := f.reg.Create(ctx, e.ID, 7); err != nil {
		t.Fatal(err)
	}
	if _, err := f.reg.Create(ctx, e.ID, 7); err == nil {
		t.Fatal("expected error when every token collides")
	}
}

func TestCreateForChecksPlan(t *testing.T) {
	f := newFixture(t, nil)
	e := f.edition(t)

	if _, err := f.reg.CreateFor(context.Background(), 7, plans.Free, e.ID); !errors.Is(err, ErrPlanRestricted) {
		t.Errorf("expected ErrPlanRestricted, got %v", err)
	}
	if _, err := f.reg.CreateFor(context.Background(), 7, plans.Pro, e.ID); err != nil {
		t.Errorf("CreateFor(pro) error = %v", err)
	}
}

func TestResolveExpiryBoundary(t *testing.T) {
	f := newFixture(t, nil)
	e := f.edition(t)
	link, err := f.reg.Create(context.Background(), e.ID, 7)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{"one second before expiry", link.ExpiresAt.Add(-time.Second), nil},
		{"at expiry", link.ExpiresAt, nil},
		{"one second after expiry", link.ExpiresAt.Add(time.Second), ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clock.Set(tt.at)
			_, err := f.reg.Resolve(context.Background(), link.ShareToken, Access{Address: "203.0.113.9"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Resolve() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveCountsAccessAndLogsHashedAddress(t *testing.T) {
	f := newFixture(t, nil)
	e := f.edition(t)
	ctx := context.Background()
	link, err := f.reg.Create(ctx, e.ID, 7)
	if err != nil {
		t.Fatal(err)
	}
	f.db.Create(&models.VoiceVariant{EditionID: e.ID, VoiceProfileID: "warm", AudioURL: "https://cdn.example.com/warm.mp3"})

	var res *Resolution
	for i := 0; i < 3; i++ {
		res, err = f.reg.Resolve(ctx, link.ShareToken, Access{Address: "203.0.113.9", UserAgent: "test-agent"})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}
	if res.Link.AccessCount != 3 {
		t.Errorf("AccessCount = %d, want 3", res.Link.AccessCount)
	}
	if res.Edition.ID != e.ID || len(res.Voices) != 1 {
		t.Errorf("unexpected resolution %+v", res)
	}

	var stored models.ShareLink
	f.db.First(&stored, link.ID)
	if stored.AccessCount != 3 {
		t.Errorf("stored AccessCount = %d, want 3", stored.AccessCount)
	}

	var logs []models.ShareAccessLog
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.db.Find(&logs)
		if len(logs) == 3 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 access logs, got %d", len(logs))
	}
	for _, l := range logs {
		if l.AddressHash == "203.0.113.9" || len(l.AddressHash) != 64 {
			t.Errorf("address must be stored as a hash, got %q", l.AddressHash)
		}
	}
}

func TestResolveUnknownToken(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.reg.Resolve(context.Background(), "nope", Access{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	f := newFixture(t, nil)
	e := f.edition(t)
	ctx := context.Background()
	link, err := f.reg.Create(ctx, e.ID, 7)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.reg.Revoke(ctx, link.ID, 8); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
	if err := f.reg.Revoke(ctx, link.ID, 7); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := f.reg.Resolve(ctx, link.ShareToken, Access{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoked link should not resolve, got %v", err)
	}
	if err := f.reg.Revoke(ctx, link.ID, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second revoke, got %v", err)
	}
}

func TestListForEdition(t *testing.T) {
	f := newFixture(t, nil)
	e := f.edition(t)
	ctx := context.Background()

	first, _ := f.reg.Create(ctx, e.ID, 7)
	f.clock.Advance(time.Minute)
	second, _ := f.reg.Create(ctx, e.ID, 7)
	f.reg.Create(ctx, e.ID, 8)

	links, err := f.reg.ListForEdition(ctx, e.ID, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 2 || links[0].ID != second.ID || links[1].ID != first.ID {
		t.Errorf("unexpected links %+v", links)
	}
}
