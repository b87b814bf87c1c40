package store

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/streamproc/internal/helpers"
)

// DefaultPath is used when NewTOML is given an empty path.
const DefaultPath = "helpers.toml"

// config represents the complete helpers file for TOML marshaling.
type config struct {
	Version int                     `toml:"version"`
	Helpers map[string]helpers.Spec `toml:"helpers"`
}

// tomlStore implements helpers.Store using TOML file storage.
type tomlStore struct {
	path   string
	mu     sync.RWMutex
	config *config
}

// NewTOML creates a new TOML-based store.
func NewTOML(path string) helpers.Store {
	if path == "" {
		path = DefaultPath
	}
	return &tomlStore{
		path:   path,
		config: emptyConfig(),
	}
}

// Read parses a helpers file without keeping it. A missing file yields no
// helpers. Used as the loader for the config watcher.
func Read(path string) (map[string]helpers.Spec, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return cfg.Helpers, nil
}

func emptyConfig() *config {
	return &config{Version: 1, Helpers: make(map[string]helpers.Spec)}
}

func readFile(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return emptyConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read helpers config: %w", err)
	}

	cfg := emptyConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse helpers config: %w", err)
	}
	if cfg.Helpers == nil {
		cfg.Helpers = make(map[string]helpers.Spec)
	}
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	for name, spec := range cfg.Helpers {
		if len(spec.Commands) == 0 {
			return nil, fmt.Errorf("helper %q declares no commands", name)
		}
	}
	return cfg, nil
}

// Load loads the helpers file.
func (s *tomlStore) Load() error {
	cfg, err := readFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	return nil
}

// Save writes the helpers file atomically.
func (s *tomlStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *tomlStore) saveLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(s.config)
	if err != nil {
		return fmt.Errorf("failed to marshal helpers config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write helpers config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write helpers config: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write helpers config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write helpers config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace helpers config: %w", err)
	}
	return nil
}

// Put adds or replaces a helper definition.
func (s *tomlStore) Put(name string, spec helpers.Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec.Commands = slices.Clone(spec.Commands)
	s.config.Helpers[name] = spec
	return s.saveLocked()
}

// Remove removes a helper definition.
func (s *tomlStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.config.Helpers, name)
	return s.saveLocked()
}

// Get retrieves a helper definition by name.
func (s *tomlStore) Get(name string) (helpers.Spec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, exists := s.config.Helpers[name]
	return spec, exists
}

// All returns a copy of all helper definitions.
func (s *tomlStore) All() map[string]helpers.Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.config.Helpers)
}
