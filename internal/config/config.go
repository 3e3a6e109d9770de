package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full environment surface of the server. Intervals default
// to the values the deployed frontend expects.
type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	AssetRoot string `env:"ASSET_ROOT" envDefault:"public/assets"`

	DedupWindow       time.Duration `env:"DEDUP_WINDOW" envDefault:"60s"`
	DedupSweep        time.Duration `env:"DEDUP_SWEEP" envDefault:"30s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`

	// GateSecret is the shared password the UI compares against before
	// showing the planner. The backend never checks it; it is configuration
	// pass-through only and not a security boundary.
	GateSecret string `env:"GATE_SECRET"`

	Dev bool `env:"DEV" envDefault:"false"`
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
