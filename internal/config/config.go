// Package config defines the process configuration and how it is loaded.
//
// Values are layered: defaults from New, then an optional YAML file, then
// INTENT_ prefixed environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/okian/intentrank/internal/domain/scoring"
	"github.com/okian/intentrank/internal/domain/session"
	"github.com/okian/intentrank/internal/domain/validation"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" json:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFormat is json or console.
	LogFormat string `koanf:"log_format" json:"log_format" validate:"oneof=json console text"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" json:"addr" validate:"required"`

	// EventsPath is the events file scored at startup. Empty serves nothing
	// until a run is triggered.
	EventsPath string `koanf:"events_path" json:"events_path"`

	// WorkerCount sets the number of pipeline workers. Zero means one per CPU.
	WorkerCount int `koanf:"worker_count" json:"worker_count" validate:"gte=0"`

	// QueueSize bounds the pipeline job queue.
	QueueSize int `koanf:"queue_size" json:"queue_size" validate:"gt=0"`

	// TopN is how many users a run keeps in its shortlist.
	TopN int `koanf:"top_n" json:"top_n" validate:"gte=1"`

	// MaxLeaderboardLimit caps GET /api/v1/leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit" json:"max_leaderboard_limit" validate:"gte=1"`

	// SessionGapMinutes is the inactivity gap that closes a session.
	SessionGapMinutes float64 `koanf:"session_gap_minutes" json:"session_gap_minutes" validate:"gt=0"`

	// SpamMaxEventsPerMinute flags sessions above this event rate.
	SpamMaxEventsPerMinute float64 `koanf:"spam_max_events_per_minute" json:"spam_max_events_per_minute" validate:"gt=0"`

	// Scorer selects the scoring strategy: rules or model.
	Scorer string `koanf:"scorer" json:"scorer" validate:"oneof=rules model"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" validate:"gt=0"`

	Scoring scoring.Config      `koanf:"scoring" json:"scoring" validate:"-"`
	Model   scoring.ModelParams `koanf:"model" json:"model" validate:"-"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "json",
		Addr:                   ":9080",
		WorkerCount:            0,
		QueueSize:              1024,
		TopN:                   50,
		MaxLeaderboardLimit:    1000,
		SessionGapMinutes:      session.DefaultGap.Minutes(),
		SpamMaxEventsPerMinute: session.DefaultSpamMaxEventsPerMinute,
		Scorer:                 scoring.NameRules,
		ShutdownTimeout:        10 * time.Second,
		Scoring:                scoring.DefaultConfig(),
		Model:                  scoring.DefaultModelParams(),
	}
}

// Sessions returns the session aggregation parameters.
func (c *Config) Sessions() session.Config {
	return session.Config{
		Gap:                    time.Duration(c.SessionGapMinutes * float64(time.Minute)),
		SpamMaxEventsPerMinute: c.SpamMaxEventsPerMinute,
	}
}

// NewScorer builds the configured scorer.
func (c *Config) NewScorer() (scoring.Scorer, error) {
	s, err := scoring.New(c.Scorer, c.Scoring, c.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return s, nil
}

// Validate checks process, session and scoring settings. Errors match both
// ErrInvalidConfig and model.ErrConfig.
func (c *Config) Validate() error {
	if err := validation.Struct("config", c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Sessions().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.NewScorer(); err != nil {
		return err
	}
	return nil
}
