package plans

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Plan
		wantErr bool
	}{
		{"", Free, false},
		{"free", Free, false},
		{" Pro ", Pro, false},
		{"TEAM", Team, false},
		{"enterprise", "", true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownPlan) {
				t.Errorf("Parse(%q): expected ErrUnknownPlan, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Parse(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestLimitsForIsExhaustive(t *testing.T) {
	for _, p := range []Plan{Free, Pro, Team} {
		if _, err := LimitsFor(p); err != nil {
			t.Errorf("LimitsFor(%q): %v", p, err)
		}
	}
	if _, err := LimitsFor(Plan("gold")); !errors.Is(err, ErrUnknownPlan) {
		t.Errorf("expected ErrUnknownPlan for unknown plan, got %v", err)
	}
}

func TestFreePlanEntitlements(t *testing.T) {
	l, _ := LimitsFor(Free)
	if !l.AllowsRegion("global") {
		t.Error("free plan should allow Global region")
	}
	if l.AllowsRegion("Europe") {
		t.Error("free plan should not allow Europe region")
	}
	if l.AllowsLanguage("German") {
		t.Error("free plan should not allow German")
	}
	if l.VoiceVariants || l.ShareLinks {
		t.Error("free plan should not include voice variants or share links")
	}

	pro, _ := LimitsFor(Pro)
	if !pro.AllowsRegion("Europe") || !pro.AllowsLanguage("German") {
		t.Error("pro plan should allow every region and language")
	}
}
