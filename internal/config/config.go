package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	Profile   string `env:"PARTYSYNC_PROFILE" envDefault:"configs/profile.yaml"`
	Roster    string `env:"PARTYSYNC_ROSTER" envDefault:"data/roster.json"`
	DataDir   string `env:"PARTYSYNC_DATA_DIR" envDefault:"data"`
	VisionURL string `env:"PARTYSYNC_VISION_URL" envDefault:"http://127.0.0.1:8765"`

	TickInterval        time.Duration `env:"PARTYSYNC_TICK_INTERVAL" envDefault:"100ms"`
	ProbeTimeout        time.Duration `env:"PARTYSYNC_PROBE_TIMEOUT" envDefault:"2s"`
	ActionTimeout       time.Duration `env:"PARTYSYNC_ACTION_TIMEOUT" envDefault:"5s"`
	SessionBackend      string        `env:"PARTYSYNC_SESSION_BACKEND" envDefault:"file"`
	LeaderConfirmations int           `env:"PARTYSYNC_LEADER_CONFIRMATIONS" envDefault:"1"`
	Parallelism         int           `env:"PARTYSYNC_PARALLELISM" envDefault:"0"`

	LogLevel  string `env:"PARTYSYNC_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PARTYSYNC_LOG_FORMAT" envDefault:"text"`
}

// Load reads the process configuration from the environment. Unset or empty
// variables take their defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.SessionBackend {
	case BackendFile:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("session backend postgres needs DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.SessionBackend))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval %v must be positive", c.TickInterval))
	}
	if c.ProbeTimeout <= 0 || c.ActionTimeout <= 0 {
		errs = append(errs, errors.New("probe and action timeouts must be positive"))
	}
	if c.LeaderConfirmations < 1 {
		errs = append(errs, fmt.Errorf("leader confirmations %d must be at least 1", c.LeaderConfirmations))
	}
	return errors.Join(errs...)
}

func (c Config) SessionPath() string  { return filepath.Join(c.DataDir, "session.json") }
func (c Config) ProgressPath() string { return filepath.Join(c.DataDir, "progress.json") }
