// Package config loads application configuration from the environment,
// with optional .env autoloading for local development.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything tunable from the environment. The narrator
// endpoint is a proxy: it holds the provider credentials, this process
// never does.
type Config struct {
	NarratorURL string  `env:"NIGHTLOOP_NARRATOR_URL" envDefault:"http://localhost:8787/v1/chat/completions"`
	Model       string  `env:"NIGHTLOOP_MODEL" envDefault:"deepseek-r1"`
	Temperature float64 `env:"NIGHTLOOP_TEMPERATURE" envDefault:"0.8"`
	MaxTokens   int     `env:"NIGHTLOOP_MAX_TOKENS" envDefault:"700"`

	// ScenesSource is an http(s) URL or a local path; empty means the
	// embedded default story.
	ScenesSource string `env:"NIGHTLOOP_SCENES"`
	SavePath     string `env:"NIGHTLOOP_SAVE" envDefault:".nightloop/save.yaml"`

	Cooldown    time.Duration `env:"NIGHTLOOP_COOLDOWN" envDefault:"1500ms"`
	StallWindow time.Duration `env:"NIGHTLOOP_STALL_WINDOW" envDefault:"15s"`
	HardTimeout time.Duration `env:"NIGHTLOOP_HARD_TIMEOUT" envDefault:"45s"`
	Grace       time.Duration `env:"NIGHTLOOP_GRACE" envDefault:"1500ms"`
	TurnBudget  int           `env:"NIGHTLOOP_TURN_BUDGET" envDefault:"12"`

	LogLevel string `env:"NIGHTLOOP_LOG_LEVEL" envDefault:"info"`
	LogPath  string `env:"NIGHTLOOP_LOG" envDefault:".nightloop/engine.log"`
}

// Load reads .env if present, then parses the environment.
func Load() (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// SlogLevel maps the configured level string to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
