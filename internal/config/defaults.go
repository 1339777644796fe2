package config

import (
	"os"
	"path/filepath"
)

// Default returns a config populated with working defaults for a local,
// single-user setup.
func Default() *Config {
	base := defaultBaseDir()
	return &Config{
		Paths: Paths{
			DataDir: filepath.Join(base, "citetrack"),
			LogDir:  filepath.Join(base, "citetrack", "logs"),
		},
		Zotero: Zotero{
			BaseURL:        "http://127.0.0.1:23119/api",
			TimeoutSeconds: 15,
		},
		Lookup: Lookup{
			BaseURL:        "https://api.crossref.org",
			RatePerSecond:  1.0,
			Burst:          2,
			MaxAttempts:    5,
			BaseDelayMS:    1000,
			MaxDelayMS:     30000,
			TimeoutSeconds: 20,
		},
		Discovery: Discovery{
			UserAgent:      "citetrack/1.0",
			TimeoutSeconds: 20,
			MaxCandidates:  10,
		},
		LLM: LLM{
			BaseURL:        "https://openrouter.ai/api/v1",
			Model:          "openai/gpt-4o-mini",
			TimeoutSeconds: 60,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

func defaultBaseDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".local", "share")
	}
	return "."
}
