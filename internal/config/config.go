// Package config loads fetch profiles from a directory of YAML files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/altafino/attachment-fetcher/internal/types"
	"github.com/altafino/attachment-fetcher/internal/validation"
	yaml "gopkg.in/yaml.v3"
)

const profileSuffix = ".config.yaml"

// Store holds the profiles of one config directory
type Store struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	configs map[string]*types.Config // map[id]*Config
}

// Load reads every <id>.config.yaml of dir
func Load(dir string, logger *slog.Logger) (*Store, error) {
	s := &Store{dir: dir, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the config directory.
func (s *Store) Dir() string { return s.dir }

// Reload re-reads the directory. On error the previous profiles stay in
// place.
func (s *Store) Reload() error {
	templates, err := LoadTemplates(filepath.Join(s.dir, "templates"))
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read config directory: %w", err)
	}

	configs := make(map[string]*types.Config)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), profileSuffix) {
			continue
		}

		configPath := filepath.Join(s.dir, entry.Name())
		cfg, err := loadSingleConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config %s: %w", entry.Name(), err)
		}

		if cfg.Meta.ID == "" {
			return fmt.Errorf("config %s missing required meta.id field", entry.Name())
		}
		if _, exists := configs[cfg.Meta.ID]; exists {
			return fmt.Errorf("duplicate config ID %s in %s", cfg.Meta.ID, entry.Name())
		}

		if cfg.Meta.Template != "" {
			if err := templates.Apply(cfg, cfg.Meta.Template); err != nil {
				return fmt.Errorf("failed to apply template to config %s: %w", entry.Name(), err)
			}
		}

		ApplyDefaults(cfg, s.dir)
		if err := validation.ValidateConfig(cfg); err != nil {
			return fmt.Errorf("invalid config %s: %w", entry.Name(), err)
		}

		configs[cfg.Meta.ID] = cfg
		s.logger.Debug("loaded configuration",
			"id", cfg.Meta.ID,
			"provider", cfg.Account.Provider,
			"username", cfg.Account.Username,
			"enabled", cfg.Meta.Enabled)
	}

	s.mu.Lock()
	s.configs = configs
	s.mu.Unlock()
	return nil
}

func loadSingleConfig(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	cfg := &types.Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrNotFound is returned by Get for an unknown profile id.
var ErrNotFound = errors.New("config not found")

// Get retrieves a configuration by ID. The returned value is a copy.
func (s *Store) Get(id string) (*types.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, exists := s.configs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := *cfg
	return &c, nil
}

// List returns all configurations ordered by id
func (s *Store) List() []*types.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configs := make([]*types.Config, 0, len(s.configs))
	for _, cfg := range s.configs {
		c := *cfg
		configs = append(configs, &c)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Meta.ID < configs[j].Meta.ID })
	return configs
}

// Enabled returns only enabled configurations
func (s *Store) Enabled() []*types.Config {
	var enabled []*types.Config
	for _, cfg := range s.List() {
		if cfg.Meta.Enabled {
			enabled = append(enabled, cfg)
		}
	}
	return enabled
}
