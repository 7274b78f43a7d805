// Package config loads runtime configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/rosebeck482/hapa-chat/internal/genai"
	"github.com/rosebeck482/hapa-chat/internal/store"
)

// Config holds every setting of the service.
type Config struct {
	// StateDir holds the flat-file conversation logs and the state lock.
	StateDir string `env:"HAPA_STATE_DIR" envDefault:"./conversation_logs"`
	// StoreDSN selects the document store; empty means flat files in StateDir.
	StoreDSN string `env:"HAPA_STORE_DSN"`
	APIAddr  string `env:"HAPA_API_ADDR" envDefault:":5055"`

	LLMHost    string        `env:"OLLAMA_API_HOST" envDefault:"http://localhost:11434"`
	LLMModel   string        `env:"OLLAMA_MODEL" envDefault:"phi4"`
	LLMAPIKey  string        `env:"HAPA_LLM_API_KEY" envDefault:"ollama"`
	LLMEnabled bool          `env:"HAPA_LLM_ENABLED" envDefault:"true"`
	LLMTimeout time.Duration `env:"HAPA_LLM_TIMEOUT" envDefault:"30s"`

	LogLevel  string `env:"HAPA_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"HAPA_LOG_FORMAT" envDefault:"text"`

	AssistantID string `env:"HAPA_ASSISTANT_ID" envDefault:"dating_profile_assistant"`
	SlotWindow  int    `env:"HAPA_SLOT_WINDOW" envDefault:"20"`
}

// Load reads the given .env files (default ".env"; a missing file is not an
// error) and parses the process environment.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load .env file: %w", err)
		}
		slog.Debug("config.Load: no .env file loaded", "error", err)
	} else {
		slog.Debug("config.Load: loaded .env file")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromMap parses configuration from an explicit environment map instead of
// the process environment.
func FromMap(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.SlotWindow <= 0 {
		return fmt.Errorf("HAPA_SLOT_WINDOW must be positive, got %d", c.SlotWindow)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("HAPA_LLM_TIMEOUT must be positive, got %s", c.LLMTimeout)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("HAPA_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.StoreDSN == "" && c.StateDir == "" {
		return errors.New("HAPA_STATE_DIR is required when HAPA_STORE_DSN is empty")
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// GenAI returns the language model configuration.
func (c Config) GenAI() genai.Config {
	return genai.Config{
		Endpoint:  c.LLMHost,
		Model:     c.LLMModel,
		APIKey:    c.LLMAPIKey,
		Available: c.LLMEnabled,
		Timeout:   c.LLMTimeout,
	}
}

// StoreOptions returns the document store options.
func (c Config) StoreOptions(readOnly bool) []store.Option {
	return []store.Option{
		store.WithDSN(c.StoreDSN),
		store.WithDir(c.StateDir),
		store.WithReadOnly(readOnly),
	}
}
