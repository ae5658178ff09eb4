// Package voices renders an edition's script with alternate voice profiles
// and caches each rendering per (edition, profile).
package voices

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Profile is a named narration style. Hosts are the speaker labels the
// profile expects in the script it narrates.
type Profile struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	Description   string   `yaml:"description" json:"description,omitempty"`
	Voice         string   `yaml:"voice" json:"-"`
	Hosts         []string `yaml:"hosts" json:"hosts"`
	CostPerMinute float64  `yaml:"cost_per_minute" json:"-"`
}

// catalog is the on-disk layout of a voice profile file.
type catalog struct {
	Profiles []Profile `yaml:"profiles"`
}

// DefaultProfiles is the built-in catalog used when no file is configured.
func DefaultProfiles() []Profile {
	return []Profile{
		{ID: "default", Name: "Morning Desk", Voice: "default", Hosts: []string{"Alex", "Sam"}, CostPerMinute: 0.015},
		{ID: "warm", Name: "Warm Duo", Voice: "warm", Hosts: []string{"Maya", "Leo"}, CostPerMinute: 0.015},
		{ID: "crisp", Name: "Crisp Briefing", Voice: "crisp", Hosts: []string{"Jordan", "Riley"}, CostPerMinute: 0.02},
	}
}

// LoadProfiles reads a voice profile file. Unknown keys are rejected so a
// typo fails startup instead of silently dropping a setting.
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read voice profiles: %w", err)
	}

	var cat catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cat); err != nil {
		return nil, fmt.Errorf("failed to parse voice profiles: %w", err)
	}

	for i, p := range cat.Profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("voice profile %d missing required field: id", i)
		}
		if p.Voice == "" {
			return nil, fmt.Errorf("voice profile %s missing required field: voice", p.ID)
		}
		if p.Name == "" {
			cat.Profiles[i].Name = p.ID
		}
	}
	return cat.Profiles, nil
}

// Registry holds the voice profiles in memory, indexed by id.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry builds a registry. Duplicate ids are an error.
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if _, exists := r.profiles[p.ID]; exists {
			return nil, fmt.Errorf("voice profile already registered: %s", p.ID)
		}
		r.profiles[p.ID] = p
	}
	return r, nil
}

// LoadRegistry loads profiles from path, or the built-in catalog when path
// is empty.
func LoadRegistry(path string, logger *slog.Logger) (*Registry, error) {
	if path == "" {
		logger.Info("No voice profile file configured, using built-in profiles")
		return NewRegistry(DefaultProfiles()...)
	}

	profiles, err := LoadProfiles(path)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("voice profile file %s defines no profiles", path)
	}
	logger.Info("Loaded voice profiles", "count", len(profiles), "path", path)
	return NewRegistry(profiles...)
}

// Get retrieves a profile by id.
func (r *Registry) Get(id string) (Profile, bool) {
	p, ok := r.profiles[id]
	return p, ok
}

// List returns all profiles sorted by id.
func (r *Registry) List() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
