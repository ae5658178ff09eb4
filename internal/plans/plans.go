// Package plans defines subscription plans and the limits each one grants.
package plans

import (
	"errors"
	"fmt"
	"strings"
)

// Plan is a subscription tier.
type Plan string

// Plan constants
const (
	Free Plan = "free"
	Pro  Plan = "pro"
	Team Plan = "team"
)

// ErrUnknownPlan is returned for plan names outside the closed set.
var ErrUnknownPlan = errors.New("unknown plan")

// Limits are the entitlements of a plan. Nil region or language sets allow
// every value.
type Limits struct {
	DailyEditions int
	DailyResearch int
	DailyVoices   int
	Regions       []string
	Languages     []string
	VoiceVariants bool
	ShareLinks    bool
}

// Parse resolves a stored plan name. An empty name is a user without a
// subscription and resolves to Free; anything else must be a known plan.
func Parse(name string) (Plan, error) {
	switch p := Plan(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return Free, nil
	case Free, Pro, Team:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, name)
	}
}

// LimitsFor returns the limits of p.
func LimitsFor(p Plan) (Limits, error) {
	switch p {
	case Free:
		return Limits{
			DailyEditions: 3,
			DailyResearch: 1,
			Regions:       []string{"Global"},
			Languages:     []string{"English"},
		}, nil
	case Pro:
		return Limits{
			DailyEditions: 20,
			DailyResearch: 10,
			DailyVoices:   10,
			VoiceVariants: true,
			ShareLinks:    true,
		}, nil
	case Team:
		return Limits{
			DailyEditions: 100,
			DailyResearch: 50,
			DailyVoices:   50,
			VoiceVariants: true,
			ShareLinks:    true,
		}, nil
	default:
		return Limits{}, fmt.Errorf("%w: %q", ErrUnknownPlan, string(p))
	}
}

// AllowsRegion reports whether region is within the plan's entitlement.
func (l Limits) AllowsRegion(region string) bool {
	return allows(l.Regions, region)
}

// AllowsLanguage reports whether language is within the plan's entitlement.
func (l Limits) AllowsLanguage(language string) bool {
	return allows(l.Languages, language)
}

func allows(set []string, v string) bool {
	if set == nil {
		return true
	}
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
