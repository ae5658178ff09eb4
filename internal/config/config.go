package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	Env         string
	Mode        string
	Port        string
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	LogFormat   string

	SessionSecret  string
	InternalSecret string
	AddressHashKey string
	RunMigrations  bool
	SeedDevData    bool

	GeneratorURL       string
	GeneratorSecret    string
	GeneratorStub      bool
	GeneratorStubDelay time.Duration
	GeneratorTimeout   time.Duration

	EditionTTL        time.Duration
	EditionRetention  time.Duration
	GenerationTimeout time.Duration
	EditionTimezone   string
	DefaultVoice      string
	ScriptHosts       []string

	QuotaTimezone string

	RetryBackoff     string
	RetryMaxAttempts int
	RetryBatchSize   int

	ScheduleTimezone    string
	ScheduleMorning     string
	ScheduleMidday      string
	ScheduleEvening     string
	SweepSchedule       string
	ScheduleRegions     []string
	ScheduleLanguages   []string
	ScheduleConcurrency int

	VoiceProfilesPath string
	ShareTTL          time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment
// variables win.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg := &Config{
		Env:         getEnvWithDefault("ENV", "development"),
		Mode:        getEnvWithDefault("MODE", "embedded"),
		Port:        getEnvWithDefault("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat:   getEnvWithDefault("LOG_FORMAT", "text"),

		SessionSecret:  os.Getenv("SESSION_SECRET"),
		InternalSecret: os.Getenv("INTERNAL_TRIGGER_SECRET"),
		AddressHashKey: os.Getenv("ADDRESS_HASH_KEY"),
		RunMigrations:  getBool("RUN_MIGRATIONS", true),
		SeedDevData:    getBool("SEED_DEV_DATA", false),

		GeneratorURL:       os.Getenv("GENERATOR_URL"),
		GeneratorSecret:    os.Getenv("GENERATOR_SECRET"),
		GeneratorStub:      getBool("GENERATOR_STUB", false),
		GeneratorStubDelay: getDuration("GENERATOR_STUB_DELAY", 2*time.Second),
		GeneratorTimeout:   getDuration("GENERATOR_TIMEOUT", 2*time.Minute),

		EditionTTL:        getDuration("EDITION_TTL", 6*time.Hour),
		EditionRetention:  getDuration("EDITION_RETENTION", 30*24*time.Hour),
		GenerationTimeout: getDuration("GENERATION_TIMEOUT", 5*time.Minute),
		EditionTimezone:   getEnvWithDefault("EDITION_TIMEZONE", "UTC"),
		DefaultVoice:      getEnvWithDefault("DEFAULT_VOICE", "default"),
		ScriptHosts:       getList("SCRIPT_HOSTS", []string{"Alex", "Sam"}),

		QuotaTimezone: getEnvWithDefault("QUOTA_TIMEZONE", "UTC"),

		RetryBackoff:     getEnvWithDefault("RETRY_BACKOFF", "2m,5m,10m"),
		RetryMaxAttempts: getInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBatchSize:   getInt("RETRY_BATCH_SIZE", 50),

		ScheduleTimezone:    getEnvWithDefault("SCHEDULE_TIMEZONE", "UTC"),
		ScheduleMorning:     getEnvWithDefault("SCHEDULE_MORNING", "0 6 * * *"),
		ScheduleMidday:      getEnvWithDefault("SCHEDULE_MIDDAY", "0 12 * * *"),
		ScheduleEvening:     getEnvWithDefault("SCHEDULE_EVENING", "0 18 * * *"),
		SweepSchedule:       getEnvWithDefault("SWEEP_SCHEDULE", "*/5 * * * *"),
		ScheduleRegions:     getList("SCHEDULE_REGIONS", []string{"Global"}),
		ScheduleLanguages:   getList("SCHEDULE_LANGUAGES", []string{"English"}),
		ScheduleConcurrency: getInt("SCHEDULE_CONCURRENCY", 1),

		VoiceProfilesPath: os.Getenv("VOICE_PROFILES_PATH"),
		ShareTTL:          getDuration("SHARE_TTL", 30*24*time.Hour),
	}

	// Warn if using default secrets (insecure for production)
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "dev-secret-change-in-production-use-openssl-rand-hex-32"
		slog.Warn("Using default SESSION_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}
	if cfg.AddressHashKey == "" {
		cfg.AddressHashKey = "dev-address-hash-key"
		slog.Warn("Using default ADDRESS_HASH_KEY. Share access hashes are only as private as this key")
	}
	if cfg.GeneratorURL == "" && !cfg.GeneratorStub {
		slog.Warn("GENERATOR_URL not set, using stub generator")
		cfg.GeneratorStub = true
	}

	return cfg
}

// Validate reports configuration that would make the service unusable.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.Mode {
	case "embedded", "server", "worker":
	default:
		return fmt.Errorf("MODE must be embedded, server or worker, got %q", c.Mode)
	}
	if c.Mode != "server" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required in %s mode", c.Mode)
	}
	if c.Env == "production" && c.InternalSecret == "" {
		return fmt.Errorf("INTERNAL_TRIGGER_SECRET is required in production")
	}
	for name, tz := range map[string]string{
		"EDITION_TIMEZONE":  c.EditionTimezone,
		"QUOTA_TIMEZONE":    c.QuotaTimezone,
		"SCHEDULE_TIMEZONE": c.ScheduleTimezone,
	} {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, tz, err)
		}
	}
	if len(c.ScheduleRegions) == 0 || len(c.ScheduleLanguages) == 0 {
		return fmt.Errorf("SCHEDULE_REGIONS and SCHEDULE_LANGUAGES must not be empty")
	}
	return nil
}

// Location loads a time zone validated by Validate, falling back to UTC.
func Location(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("Invalid timezone, using UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("Invalid boolean, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return b
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return d
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
