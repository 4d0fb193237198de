// Package config loads the process configuration from YAML, fills
// defaults, and validates the result before anything starts.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/convergence"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/hyperliquid"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/ingest"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/microstructure"
	"github.com/Alex-TheLuchador/emerald-sub000/internal/signals"
)

// Server holds the HTTP listener settings.
type Server struct {
	Addr string `yaml:"addr" default:":8087"`
}

// Logging controls the zerolog global setup.
type Logging struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

// Store bounds the in-memory retention horizons.
type Store struct {
	// SeriesHorizon must cover the 7d comparison window plus slack.
	SeriesHorizon time.Duration `yaml:"series_horizon" default:"192h"`
	CandleHorizon time.Duration `yaml:"candle_horizon" default:"24h"`
	TradeHorizon  time.Duration `yaml:"trade_horizon" default:"1h"`
}

// Config aggregates every tunable in the process. Instruments is set once
// here and fanned out to the components that need it.
type Config struct {
	Instruments    []string              `yaml:"instruments" validate:"min=1,dive,required"`
	Server         Server                `yaml:"server"`
	Logging        Logging               `yaml:"logging"`
	Hyperliquid    hyperliquid.Config    `yaml:"hyperliquid"`
	StreamURL      string                `yaml:"stream_url"`
	Ingest         ingest.Config         `yaml:"ingest"`
	Store          Store                 `yaml:"store"`
	Thresholds     signals.Thresholds    `yaml:"thresholds"`
	Microstructure microstructure.Config `yaml:"microstructure"`
	Convergence    convergence.Config    `yaml:"convergence"`
}

var validate = validator.New()

// Load reads path, applies defaults for anything unset, and validates.
// An empty path returns the pure defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := defaults.Set(&cfg); err != nil {
		return cfg, fmt.Errorf("apply config defaults: %w", err)
	}
	if len(cfg.Instruments) == 0 {
		cfg.Instruments = []string{"BTC"}
	}
	cfg.Ingest.Instruments = cfg.Instruments
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
