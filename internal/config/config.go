package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Zotero contains configuration for the external reference manager.
type Zotero struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Lookup contains configuration for the metadata-lookup service and its
// rate/backoff contract.
type Lookup struct {
	BaseURL        string  `toml:"base_url"`
	Mailto         string  `toml:"mailto"`
	RatePerSecond  float64 `toml:"rate_per_second"`
	Burst          int     `toml:"burst"`
	MaxAttempts    int     `toml:"max_attempts"`
	BaseDelayMS    int     `toml:"base_delay_ms"`
	MaxDelayMS     int     `toml:"max_delay_ms"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Discovery contains configuration for identifier discovery fetches.
type Discovery struct {
	UserAgent      string `toml:"user_agent"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxCandidates  int    `toml:"max_candidates"`
}

// LLM contains connection settings for metadata extraction.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the root configuration document.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Zotero    Zotero    `toml:"zotero"`
	Lookup    Lookup    `toml:"lookup"`
	Discovery Discovery `toml:"discovery"`
	LLM       LLM       `toml:"llm"`
	Logging   Logging   `toml:"logging"`
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "citetrack.toml")
	}
	return filepath.Join(home, ".config", "citetrack", "config.toml")
}

// Load reads and decodes the config file at path, applying defaults for
// unset fields. A missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteSample writes the embedded sample config to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.Paths.DataDir = expandHome(strings.TrimSpace(c.Paths.DataDir))
	c.Paths.LogDir = expandHome(strings.TrimSpace(c.Paths.LogDir))
	c.Zotero.BaseURL = strings.TrimRight(strings.TrimSpace(c.Zotero.BaseURL), "/")
	c.Lookup.BaseURL = strings.TrimRight(strings.TrimSpace(c.Lookup.BaseURL), "/")
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
