package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Providers ProvidersConfig `yaml:"providers"`
	Cache     CacheConfig     `yaml:"cache"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Quality   QualityConfig   `yaml:"quality"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	FilePath       string `yaml:"file_path"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxFiles   int    `yaml:"file_max_files"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

// ProviderConfig holds settings for one upstream provider.
type ProviderConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Priority          int     `yaml:"priority"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BaseURL           string  `yaml:"base_url"`
}

// ProvidersConfig holds per-provider settings plus shared health thresholds.
type ProvidersConfig struct {
	Jikan   ProviderConfig `yaml:"jikan"`
	AniList ProviderConfig `yaml:"anilist"`
	Kitsu   ProviderConfig `yaml:"kitsu"`

	// A provider enters cool-down after this many consecutive failures,
	// or when its failure rate exceeds FailureRateThreshold.
	ConsecutiveFailureLimit int           `yaml:"consecutive_failure_limit"`
	FailureRateThreshold    float64       `yaml:"failure_rate_threshold"`
	CooldownPeriod          time.Duration `yaml:"cooldown_period"`
}

// CacheConfig holds provider cache settings.
type CacheConfig struct {
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	NotFoundTTL   time.Duration `yaml:"not_found_ttl"`
	MaxEntries    int           `yaml:"max_entries"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// JobsConfig holds background job queue settings.
type JobsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// QualityConfig holds quality-scoring thresholds.
type QualityConfig struct {
	// Records below MinSearchScore are dropped from reconciled search output.
	MinSearchScore float64 `yaml:"min_search_score"`
	// Records below EnrichmentThreshold get a background enrichment job.
	EnrichmentThreshold float64 `yaml:"enrichment_threshold"`
	// Fields scoring below GapThreshold count as gaps during enhancement.
	GapThreshold float64 `yaml:"gap_threshold"`
}

// ReconcileConfig holds merge and ranking preferences.
type ReconcileConfig struct {
	// Provider preferred for the age-restriction field.
	PreferredRatingProvider string `yaml:"preferred_rating_provider"`
	// Provider preferred for the cover-image field.
	PreferredImageProvider string `yaml:"preferred_image_provider"`
	// auto, english, romaji, or japanese.
	LanguagePreference string `yaml:"language_preference"`
	// Franchise keywords used to collapse long title variants into one
	// dedup group.
	FranchiseKeywords []string `yaml:"franchise_keywords"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8480,
		},
		Database: DatabaseConfig{
			Path: "/data/torii.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Providers: ProvidersConfig{
			Jikan:                   ProviderConfig{Enabled: true, Priority: 1, RequestsPerSecond: 1},
			AniList:                 ProviderConfig{Enabled: true, Priority: 2, RequestsPerSecond: 2},
			Kitsu:                   ProviderConfig{Enabled: true, Priority: 3, RequestsPerSecond: 3},
			ConsecutiveFailureLimit: 3,
			FailureRateThreshold:    0.5,
			CooldownPeriod:          2 * time.Minute,
		},
		Cache: CacheConfig{
			DefaultTTL:    30 * time.Minute,
			NotFoundTTL:   5 * time.Minute,
			MaxEntries:    1000,
			SweepInterval: 10 * time.Minute,
		},
		Jobs: JobsConfig{
			PollInterval: 5 * time.Second,
			MaxAttempts:  3,
		},
		Quality: QualityConfig{
			MinSearchScore:      0.3,
			EnrichmentThreshold: 0.8,
			GapThreshold:        0.5,
		},
		Reconcile: ReconcileConfig{
			PreferredRatingProvider: "jikan",
			PreferredImageProvider:  "anilist",
			LanguagePreference:      "auto",
			FranchiseKeywords: []string{
				"naruto", "gintama", "monogatari", "gundam", "precure",
				"danmachi", "fate", "jojo", "pokemon", "dragon ball",
			},
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("TORII_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("TORII_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("TORII_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TORII_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("TORII_JOB_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Jobs.PollInterval = d
		}
	}
	if v := os.Getenv("TORII_JOB_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Jobs.MaxAttempts = n
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	if c.Jobs.MaxAttempts < 1 {
		return fmt.Errorf("jobs max_attempts must be positive, got %d", c.Jobs.MaxAttempts)
	}
	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("jobs poll_interval must be positive")
	}
	for _, p := range []struct {
		name string
		cfg  ProviderConfig
	}{
		{"jikan", c.Providers.Jikan},
		{"anilist", c.Providers.AniList},
		{"kitsu", c.Providers.Kitsu},
	} {
		if p.cfg.Enabled && p.cfg.RequestsPerSecond <= 0 {
			return fmt.Errorf("provider %s: requests_per_second must be positive", p.name)
		}
	}
	switch strings.ToLower(c.Reconcile.LanguagePreference) {
	case "", "auto", "english", "romaji", "japanese":
	default:
		return fmt.Errorf("invalid language_preference: %s", c.Reconcile.LanguagePreference)
	}
	return nil
}
