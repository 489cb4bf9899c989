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
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if EPIQ_CONFIG is set
//  3. env (prefix EPIQ_)
func Load(ctx context.Context) (*Config, error) {
	_ = ctx

	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("EPIQ_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: EPIQ_ADDR, EPIQ_DRAWS, EPIQ_TMDB_API_KEY, ...
	// Map env keys like EPIQ_FIT_QUEUE_SIZE -> fit_queue_size (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("EPIQ_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "epiq_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate performs basic sanity checks on loaded values.
func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.Draws <= 0 {
		return fmt.Errorf("%w: draws must be positive, got %d", ErrInvalidConfig, c.Draws)
	}
	if c.Tune < 0 {
		return fmt.Errorf("%w: tune must not be negative, got %d", ErrInvalidConfig, c.Tune)
	}
	if c.Chains <= 0 {
		return fmt.Errorf("%w: chains must be positive, got %d", ErrInvalidConfig, c.Chains)
	}
	if c.TargetAccept <= 0 || c.TargetAccept >= 1 {
		return fmt.Errorf("%w: target_accept must be in (0, 1), got %g", ErrInvalidConfig, c.TargetAccept)
	}
	if c.MaxTreeDepth <= 0 {
		return fmt.Errorf("%w: max_tree_depth must be positive, got %d", ErrInvalidConfig, c.MaxTreeDepth)
	}
	if c.RatingUpper <= c.RatingLower {
		return fmt.Errorf("%w: rating bounds inverted: [%g, %g]", ErrInvalidConfig, c.RatingLower, c.RatingUpper)
	}
	if c.FitQueueSize <= 0 {
		return fmt.Errorf("%w: fit_queue_size must be positive, got %d", ErrInvalidConfig, c.FitQueueSize)
	}
	return nil
}
