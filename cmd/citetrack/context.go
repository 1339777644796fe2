package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"citetrack/internal/batch"
	"citetrack/internal/config"
	"citetrack/internal/logging"
	"citetrack/internal/services/discovery"
	"citetrack/internal/services/extract"
	"citetrack/internal/services/lookup"
	"citetrack/internal/services/zotero"
	"citetrack/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			path = config.DefaultPath()
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() *slog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return logging.NewNop()
	}
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
}

// openStore takes the data-dir lock and opens the database. The lock keeps
// two processes from interleaving compare-and-set transitions with stale
// reads of each other's writes.
func (c *commandContext) openStore() (*store.Store, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "citetrack.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, nil, fmt.Errorf("another citetrack process holds %s", lockPath)
	}

	st, err := store.Open(cfg)
	if err != nil {
		_ = lock.Unlock()
		return nil, nil, err
	}
	cleanup := func() {
		_ = st.Close()
		_ = lock.Unlock()
	}
	return st, cleanup, nil
}

// runner wires the external service clients around an open store. The LLM
// extractor is optional; without an API key the extract command reports a
// configuration error when invoked.
func (c *commandContext) runner(st *store.Store) (*batch.Runner, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	manager, err := zotero.New(cfg.Zotero)
	if err != nil {
		return nil, err
	}
	lookupClient, err := lookup.New(cfg.Lookup)
	if err != nil {
		return nil, err
	}
	discoverer := discovery.New(cfg.Discovery)

	var extractor batch.MetadataExtractor
	if strings.TrimSpace(cfg.LLM.APIKey) != "" {
		ex, err := extract.New(cfg.LLM)
		if err != nil {
			return nil, err
		}
		extractor = ex
	}

	return batch.NewRunner(st, manager, discoverer, lookupClient, extractor, c.logger()), nil
}

// withStore opens the store, runs fn, and releases everything.
func (c *commandContext) withStore(fn func(st *store.Store) error) error {
	st, cleanup, err := c.openStore()
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(st)
}

// withRunner opens the store, wires the runner, runs fn, and releases
// everything.
func (c *commandContext) withRunner(fn func(st *store.Store, r *batch.Runner) error) error {
	return c.withStore(func(st *store.Store) error {
		r, err := c.runner(st)
		if err != nil {
			return err
		}
		return fn(st, r)
	})
}
