// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	LLM  LLMConfig
	Chat ChatConfig
	Gate GateConfig
}

// LLMConfig selects and credentials the model backends.
type LLMConfig struct {
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	DefaultProvider string
}

// ChatConfig bounds websocket admission and session context saving.
type ChatConfig struct {
	MaxConnectionsPerUser int
	MaxAttempts           int
	AttemptWindow         time.Duration
	ContextSaveThreshold  int
}

// GateConfig sets the meeting access window boundaries.
type GateConfig struct {
	WindowBefore    time.Duration
	WindowAfter     time.Duration
	DefaultDuration time.Duration
	LookAhead       time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/goalgetter.db"),
		LLM: LLMConfig{
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", ""),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("OPENAI_MODEL", ""),
			DefaultProvider: getEnv("DEFAULT_LLM_PROVIDER", "anthropic"),
		},
		Chat: ChatConfig{
			MaxConnectionsPerUser: getEnvInt("CHAT_MAX_CONNECTIONS_PER_USER", 5),
			MaxAttempts:           getEnvInt("CHAT_MAX_CONNECTION_ATTEMPTS", 10),
			AttemptWindow:         getEnvDuration("CHAT_ATTEMPT_WINDOW", time.Minute),
			ContextSaveThreshold:  getEnvInt("CHAT_CONTEXT_SAVE_THRESHOLD", 1000),
		},
		Gate: GateConfig{
			WindowBefore:    getEnvDuration("MEETING_WINDOW_BEFORE", 30*time.Minute),
			WindowAfter:     getEnvDuration("MEETING_WINDOW_AFTER", 60*time.Minute),
			DefaultDuration: getEnvDuration("MEETING_DEFAULT_DURATION", 30*time.Minute),
			LookAhead:       getEnvDuration("MEETING_LOOK_AHEAD", 2*time.Hour),
		},
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
	switch c.LLM.DefaultProvider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("DEFAULT_LLM_PROVIDER must be anthropic or openai, got %q", c.LLM.DefaultProvider)
	}
	if c.Chat.MaxConnectionsPerUser <= 0 {
		return fmt.Errorf("CHAT_MAX_CONNECTIONS_PER_USER must be > 0")
	}
	if c.Chat.MaxAttempts <= 0 {
		return fmt.Errorf("CHAT_MAX_CONNECTION_ATTEMPTS must be > 0")
	}
	if c.Chat.AttemptWindow <= 0 {
		return fmt.Errorf("CHAT_ATTEMPT_WINDOW must be > 0")
	}
	if c.Chat.ContextSaveThreshold <= 0 {
		return fmt.Errorf("CHAT_CONTEXT_SAVE_THRESHOLD must be > 0")
	}
	if c.Gate.WindowBefore < 0 || c.Gate.WindowAfter < 0 || c.Gate.DefaultDuration <= 0 || c.Gate.LookAhead <= 0 {
		return fmt.Errorf("meeting window durations must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
