package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if PANELGAUGE_CONFIG is set
//  3. env (prefix PANELGAUGE_)
func Load(ctx context.Context) (*Config, error) {
	_ = ctx

	base := New()

	k := koanf.New(".")

	if path := os.Getenv("PANELGAUGE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: PANELGAUGE_ADDR, PANELGAUGE_QUEUE_SIZE, ...
	// Keys keep their underscores to match the koanf tags on the struct.
	envProvider := env.Provider("PANELGAUGE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "panelgauge_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.EpochIntervalMinutes <= 0:
		return fmt.Errorf("%w: epoch_interval_minutes must be positive", ErrInvalidConfig)
	case c.TargetUniverse <= 0:
		return fmt.Errorf("%w: target_universe must be positive", ErrInvalidConfig)
	case c.DAUMAURatio <= 0 || c.DAUMAURatio > 1:
		return fmt.Errorf("%w: dau_mau_ratio must be in (0, 1]", ErrInvalidConfig)
	}

	switch c.StoreDriver {
	case "memory":
	case "badger":
		if c.BadgerPath == "" {
			return fmt.Errorf("%w: badger_path required for badger store", ErrInvalidConfig)
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn required for postgres store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}
