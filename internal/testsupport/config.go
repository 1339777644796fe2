package testsupport

import (
	"path/filepath"
	"testing"

	"citetrack/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.LLM.APIKey = "test"

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithLookupRate overrides the lookup rate contract on the test config.
func WithLookupRate(ratePerSecond float64, burst int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Lookup.RatePerSecond = ratePerSecond
		cfg.Lookup.Burst = burst
	}
}
