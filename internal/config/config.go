// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port              string
	FrontendURL       string
	DBPath            string
	LockSweepInterval time.Duration
	LockStaleTimeout  time.Duration
	LLMHTTPTimeout    time.Duration
	AgentSeedPath     string // empty = built-in defaults
	SeedDefaultAgents bool
	EventReplaySize   int
	MetricsEnabled    bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8787"),
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		DBPath:            getEnv("DB_PATH", "./data/orcascore.db"),
		LockSweepInterval: getEnvDuration("LOCK_SWEEP_INTERVAL", 60*time.Second),
		LockStaleTimeout:  getEnvDuration("LOCK_STALE_TIMEOUT", 5*time.Minute),
		LLMHTTPTimeout:    getEnvDuration("LLM_HTTP_TIMEOUT", 180*time.Second),
		AgentSeedPath:     getEnv("AGENT_SEED_PATH", ""),
		SeedDefaultAgents: getEnvBool("SEED_DEFAULT_AGENTS", true),
		EventReplaySize:   getEnvInt("EVENT_REPLAY_SIZE", 100),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.LockSweepInterval <= 0 {
		return fmt.Errorf("LOCK_SWEEP_INTERVAL must be > 0")
	}
	if c.LockStaleTimeout < 0 {
		return fmt.Errorf("LOCK_STALE_TIMEOUT cannot be negative")
	}
	if c.LLMHTTPTimeout <= 0 {
		return fmt.Errorf("LLM_HTTP_TIMEOUT must be > 0")
	}
	if c.EventReplaySize < 0 {
		return fmt.Errorf("EVENT_REPLAY_SIZE cannot be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the origins allowed for CORS and WebSocket upgrades.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// WebSocketOriginPatterns returns the host patterns the WebSocket handshake
// matches the Origin header against.
func (c *Config) WebSocketOriginPatterns() []string {
	var patterns []string
	for _, o := range c.AllowedOrigins() {
		if o == "*" {
			patterns = append(patterns, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
