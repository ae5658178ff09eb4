package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/newscast/internal/config"
	"github.com/jimdaga/newscast/internal/models"
	"github.com/jimdaga/newscast/internal/retry"
	"github.com/jimdaga/newscast/internal/schedule"
)

type fakeRunner struct {
	triggers []schedule.Trigger
	summary  *schedule.Summary
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, trigger schedule.Trigger) (*schedule.Summary, error) {
	f.triggers = append(f.triggers, trigger)
	return f.summary, f.err
}

type fakeSweeper struct {
	calls int
	err   error
}

func (f *fakeSweeper) SweepDue(ctx context.Context) (*retry.SweepSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &retry.SweepSummary{}, nil
}

type fakeReaper struct {
	retain time.Duration
	err    error
}

func (f *fakeReaper) ReapExpired(ctx context.Context, retain time.Duration) (int64, error) {
	f.retain = retain
	return 2, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduledEditionTaskUsesDefaults(t *testing.T) {
	runner := &fakeRunner{summary: &schedule.Summary{RunID: "r1", Status: models.ScheduleRunStatusFailed, ErrorCount: 1}}
	mux := NewServeMux(Deps{
		Runner:   runner,
		Sweeper:  &fakeSweeper{},
		Defaults: schedule.Defaults{Regions: []string{"Global"}, Languages: []string{"English"}},
	}, discardLogger())

	task, err := NewScheduledEditionTask(ScheduledEditionPayload{EditionType: models.EditionMidday})
	if err != nil {
		t.Fatal(err)
	}
	// A run with failed combinations still completes the task.
	if err := mux.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask() error = %v", err)
	}
	if len(runner.triggers) != 1 {
		t.Fatalf("expected one run, got %d", len(runner.triggers))
	}
	got := runner.triggers[0]
	if got.EditionType != models.EditionMidday || got.Regions[0] != "Global" || got.Languages[0] != "English" {
		t.Errorf("unexpected trigger %+v", got)
	}
}

func TestScheduledEditionTaskErrors(t *testing.T) {
	tests := []struct {
		name      string
		payload   []byte
		runErr    error
		summary   *schedule.Summary
		skipRetry bool
	}{
		{"malformed payload", []byte("{"), nil, nil, true},
		{"unknown edition type", []byte(`{"edition_type":"brunch"}`), nil, nil, true},
		{"run could not start", []byte(`{"edition_type":"morning"}`), errors.New("db down"), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{summary: tt.summary, err: tt.runErr}
			mux := NewServeMux(Deps{
				Runner:   runner,
				Sweeper:  &fakeSweeper{},
				Defaults: schedule.Defaults{Regions: []string{"Global"}, Languages: []string{"English"}},
			}, discardLogger())

			err := mux.ProcessTask(context.Background(), asynq.NewTask(TaskScheduledEdition, tt.payload))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, asynq.SkipRetry); got != tt.skipRetry {
				t.Errorf("SkipRetry = %v, want %v (err %v)", got, tt.skipRetry, err)
			}
		})
	}
}

func TestRetrySweepTaskReaps(t *testing.T) {
	sweeper := &fakeSweeper{}
	reaper := &fakeReaper{}
	mux := NewServeMux(Deps{Runner: &fakeRunner{}, Sweeper: sweeper, Reaper: reaper, Retention: 72 * time.Hour}, discardLogger())

	if err := mux.ProcessTask(context.Background(), NewRetrySweepTask()); err != nil {
		t.Fatal(err)
	}
	if sweeper.calls != 1 || reaper.retain != 72*time.Hour {
		t.Errorf("sweeper calls = %d, reaper retain = %v", sweeper.calls, reaper.retain)
	}

	// A reaping failure does not fail the sweep.
	reaper.err = errors.New("locked")
	if err := mux.ProcessTask(context.Background(), NewRetrySweepTask()); err != nil {
		t.Errorf("expected reap error to be swallowed, got %v", err)
	}

	sweeper.err = errors.New("db down")
	if err := mux.ProcessTask(context.Background(), NewRetrySweepTask()); err == nil {
		t.Error("expected sweep error")
	}
}

func TestEntries(t *testing.T) {
	cfg := &config.Config{
		ScheduleMorning: "0 6 * * *",
		ScheduleMidday:  "",
		ScheduleEvening: "0 18 * * *",
		SweepSchedule:   "*/5 * * * *",
	}
	entries, err := Entries(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	var first ScheduledEditionPayload
	if err := json.Unmarshal(entries[0].Task.Payload(), &first); err != nil {
		t.Fatal(err)
	}
	if first.EditionType != models.EditionMorning || entries[0].Cronspec != "0 6 * * *" {
		t.Errorf("unexpected first entry %s %+v", entries[0].Cronspec, first)
	}
	if entries[2].Task.Type() != TaskRetrySweep || entries[2].Cronspec != "*/5 * * * *" {
		t.Errorf("unexpected sweep entry %s %s", entries[2].Task.Type(), entries[2].Cronspec)
	}
}

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "key", "morning:Global:English:2026-03-14")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"key":"morning:Global:English:2026-03-14"`) {
		t.Errorf("expected JSON output with key attribute, got %s", out)
	}
	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Error("unknown level should default to info")
	}
}
