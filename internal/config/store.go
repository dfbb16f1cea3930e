package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// MaskedSecret is the placeholder returned for sensitive values when a
// snapshot is taken without show-sensitive. A [Store.Update] that carries the
// placeholder keeps the stored value, so clients can round-trip masked
// snapshots safely.
const MaskedSecret = "********"

// Store holds the live configuration with a version counter and an exclusive
// writer. Reads return copies; writers serialize on the store's lock.
type Store struct {
	mu       sync.Mutex
	current  *Config
	version  uint64
	path     string
	onChange func(old, new *Config, diff ConfigDiff)
}

// StoreOption configures a [Store].
type StoreOption func(*Store)

// WithPersistPath makes every accepted update rewrite the YAML file at path.
func WithPersistPath(path string) StoreOption {
	return func(s *Store) { s.path = path }
}

// WithOnChange registers a callback invoked after every accepted update, with
// the store's lock released.
func WithOnChange(fn func(old, new *Config, diff ConfigDiff)) StoreOption {
	return func(s *Store) { s.onChange = fn }
}

// NewStore wraps an already validated config.
func NewStore(cfg *Config, opts ...StoreOption) *Store {
	s := &Store{current: cfg, version: 1}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetOnChange installs the change hook after construction, for callers whose
// hook needs the store itself.
func (s *Store) SetOnChange(fn func(old, new *Config, diff ConfigDiff)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Version returns the current snapshot version. It increments on every
// accepted update.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Current returns the live config without masking. The returned value is a
// copy; mutating it does not affect the store.
func (s *Store) Current() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneConfig(s.current)
}

// Snapshot returns a copy of the live config for serving over the API. With
// showSensitive false every API key is replaced by [MaskedSecret].
func (s *Store) Snapshot(showSensitive bool) *Config {
	cfg := s.Current()
	if !showSensitive {
		maskEntry(&cfg.Providers.LLM)
		maskEntry(&cfg.Providers.Refiner)
		maskEntry(&cfg.Providers.Embeddings)
	}
	return cfg
}

// Update validates next, resolves masked secrets against the stored values,
// persists it when a path is configured, and publishes it as the new current
// config. The whole operation holds the writer lock, so concurrent updates
// serialize.
func (s *Store) Update(next *Config) (ConfigDiff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming := cloneConfig(next)
	unmaskEntry(&incoming.Providers.LLM, s.current.Providers.LLM)
	unmaskEntry(&incoming.Providers.Refiner, s.current.Providers.Refiner)
	unmaskEntry(&incoming.Providers.Embeddings, s.current.Providers.Embeddings)

	if err := Validate(incoming); err != nil {
		return ConfigDiff{}, fmt.Errorf("config: rejected update: %w", err)
	}

	if s.path != "" {
		if err := writeFile(s.path, incoming); err != nil {
			return ConfigDiff{}, err
		}
	}

	old := s.current
	diff := Diff(old, incoming)
	s.current = incoming
	s.version++
	slog.Info("configuration updated", "version", s.version)

	if s.onChange != nil {
		// Release the lock for the callback; it may call back into the store.
		s.mu.Unlock()
		s.onChange(old, incoming, diff)
		s.mu.Lock()
	}
	return diff, nil
}

// Replace publishes a config that is already trusted, such as one loaded by
// the file watcher. No masking resolution and no persistence happen.
func (s *Store) Replace(next *Config) ConfigDiff {
	s.mu.Lock()
	defer s.mu.Unlock()
	diff := Diff(s.current, next)
	s.current = cloneConfig(next)
	s.version++
	return diff
}

// writeFile persists cfg as YAML via a temp file and rename.
func writeFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".orakle-config-*")
	if err != nil {
		return fmt.Errorf("config: persist: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: persist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: persist: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("config: persist: %w", err)
	}
	return nil
}

// maskEntry hides the API key of one provider entry.
func maskEntry(e *ProviderEntry) {
	if e.APIKey != "" {
		e.APIKey = MaskedSecret
	}
}

// unmaskEntry restores the stored API key when the incoming entry carries the
// mask placeholder.
func unmaskEntry(incoming *ProviderEntry, stored ProviderEntry) {
	if incoming.APIKey == MaskedSecret {
		incoming.APIKey = stored.APIKey
	}
}

// cloneConfig deep-copies cfg. Options maps are copied shallowly per entry;
// nested values are treated as immutable.
func cloneConfig(cfg *Config) *Config {
	out := *cfg
	out.Providers.LLM = cloneEntry(cfg.Providers.LLM)
	out.Providers.Refiner = cloneEntry(cfg.Providers.Refiner)
	out.Providers.Embeddings = cloneEntry(cfg.Providers.Embeddings)
	out.Services.SkillsHost.Command = append([]string(nil), cfg.Services.SkillsHost.Command...)
	out.Services.PythonBridge.Command = append([]string(nil), cfg.Services.PythonBridge.Command...)
	return &out
}

func cloneEntry(e ProviderEntry) ProviderEntry {
	out := e
	if e.Options != nil {
		out.Options = make(map[string]any, len(e.Options))
		for k, v := range e.Options {
			out.Options[k] = v
		}
	}
	return out
}
