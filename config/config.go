package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

var conf = mustLoad()

type Config struct {
	Configuration struct {
		Port string `envconfig:"PORT" default:"8080"`

		// AI provider selection and credentials
		AIProvider          string `envconfig:"AI_PROVIDER" default:"gemini"`
		GeminiAPIKey        string `envconfig:"GEMINI_API_KEY" default:""`
		GeminiBaseURL       string `envconfig:"GEMINI_BASE_URL" default:""`
		GeminiSearchModel   string `envconfig:"GEMINI_SEARCH_MODEL" default:"gemini-2.5-flash"`
		GeminiAnalyzeModel  string `envconfig:"GEMINI_ANALYZE_MODEL" default:"gemini-3-flash-preview"`
		GeminiRefineModel   string `envconfig:"GEMINI_REFINE_MODEL" default:"gemini-3-flash-preview"`
		OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY" default:""`
		OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL" default:""`
		OpenAIModel         string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		UpstreamTimeoutSecs int    `envconfig:"UPSTREAM_TIMEOUT_SECS" default:"120"`

		// Per-origin fixed window in front of the AI backend
		AIRateLimitMaxCalls      int `envconfig:"AI_RATE_LIMIT_MAX_CALLS" default:"10"`
		AIRateLimitWindowSeconds int `envconfig:"AI_RATE_LIMIT_WINDOW_SECONDS" default:"60"`

		// Token bucket in front of the usage endpoints
		UsageRateLimitPerSecond int `envconfig:"USAGE_RATE_LIMIT_PER_SECOND" default:"5"`
		UsageRateLimitBurst     int `envconfig:"USAGE_RATE_LIMIT_BURST" default:"20"`

		UsageQuota int `envconfig:"USAGE_QUOTA" default:"100"`

		DatabasePath          string `envconfig:"DATABASE_PATH" default:"./data/musicseed.db"`
		BackupPath            string `envconfig:"BACKUP_PATH" default:"./data/backups"`
		AdminToken            string `envconfig:"ADMIN_TOKEN" default:""`
		StatsSaveIntervalSecs int    `envconfig:"STATS_SAVE_INTERVAL_SECS" default:"300"`

		CircuitBreakerThreshold    int `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`     // Consecutive failures before circuit opens
		CircuitBreakerCooldownSecs int `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"60"` // Seconds to wait before a test request
	}

	FeatureFlags struct {
		GroundedSearch     bool `envconfig:"FF_GROUNDED_SEARCH" default:"true"`
		RequireAdminAPIKey bool `envconfig:"FF_REQUIRE_ADMIN_API_KEY" default:"true"`
	}
}

// RateLimitWindow returns the AI rate limit window as a duration
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.Configuration.AIRateLimitWindowSeconds) * time.Second
}

// UpstreamTimeout returns the transport timeout used for AI backend calls
func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Configuration.UpstreamTimeoutSecs) * time.Second
}

// Provider returns the normalized AI provider name
func (c Config) Provider() string {
	return strings.ToLower(strings.TrimSpace(c.Configuration.AIProvider))
}

// ProviderAPIKey returns the credential of the selected provider
func (c Config) ProviderAPIKey() string {
	switch c.Provider() {
	case "openai":
		return c.Configuration.OpenAIAPIKey
	default:
		return c.Configuration.GeminiAPIKey
	}
}

// Validate checks the settings the server cannot start without
func (c Config) Validate() error {
	switch c.Provider() {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q (expected gemini or openai)", c.Configuration.AIProvider)
	}
	if c.ProviderAPIKey() == "" {
		return fmt.Errorf("no API key configured for provider %s", c.Provider())
	}
	if c.Configuration.AIRateLimitMaxCalls <= 0 || c.Configuration.AIRateLimitWindowSeconds <= 0 {
		return fmt.Errorf("AI rate limit must be positive")
	}
	if c.Configuration.UsageQuota <= 0 {
		return fmt.Errorf("USAGE_QUOTA must be positive")
	}
	return nil
}

// StatsSaveInterval returns how often stats are flushed to disk
func (c Config) StatsSaveInterval() time.Duration {
	return time.Duration(c.Configuration.StatsSaveIntervalSecs) * time.Second
}

// CircuitBreakerCooldown returns the open-state cooldown
func (c Config) CircuitBreakerCooldown() time.Duration {
	return time.Duration(c.Configuration.CircuitBreakerCooldownSecs) * time.Second
}

// load loads the configuration from the environment.
func load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Warnf("Error loading env config: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}

func mustLoad() Config {
	c, err := load()
	if err != nil {
		log.WithError(err).Warnf("Unable to load configuration")
	}

	return c
}

func Get() Config {
	return conf
}
