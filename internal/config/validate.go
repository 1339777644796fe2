package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the config for values that would break at runtime.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Zotero.BaseURL) == "" {
		problems = append(problems, "zotero.base_url must be set")
	}
	if strings.TrimSpace(c.Lookup.BaseURL) == "" {
		problems = append(problems, "lookup.base_url must be set")
	}
	if c.Lookup.RatePerSecond <= 0 {
		problems = append(problems, "lookup.rate_per_second must be positive")
	}
	if c.Lookup.MaxAttempts < 1 {
		problems = append(problems, "lookup.max_attempts must be at least 1")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q not recognized", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q not recognized", c.Logging.Level))
	}
	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
