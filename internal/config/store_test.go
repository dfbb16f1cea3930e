package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/orakle-ai/orakle/internal/config"
)

func newStoreConfig() *config.Config {
	cfg := config.Default()
	cfg.Providers.LLM.APIKey = "sk-live"
	return cfg
}

func TestStore_SnapshotMasksSecrets(t *testing.T) {
	t.Parallel()

	s := config.NewStore(newStoreConfig())

	masked := s.Snapshot(false)
	if masked.Providers.LLM.APIKey != config.MaskedSecret {
		t.Errorf("masked api_key: got %q, want %q", masked.Providers.LLM.APIKey, config.MaskedSecret)
	}

	full := s.Snapshot(true)
	if full.Providers.LLM.APIKey != "sk-live" {
		t.Errorf("unmasked api_key: got %q", full.Providers.LLM.APIKey)
	}

	// Empty keys stay empty rather than becoming the placeholder.
	if masked.Providers.Embeddings.APIKey != "" {
		t.Errorf("empty api_key should stay empty, got %q", masked.Providers.Embeddings.APIKey)
	}
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	s := config.NewStore(newStoreConfig())
	snap := s.Snapshot(true)
	snap.Server.ListenAddr = ":9999"

	if s.Current().Server.ListenAddr == ":9999" {
		t.Error("mutating a snapshot must not affect the store")
	}
}

func TestStore_UpdateResolvesMaskedSecret(t *testing.T) {
	t.Parallel()

	s := config.NewStore(newStoreConfig())

	next := s.Snapshot(false)
	next.Server.LogLevel = config.LogDebug

	if _, err := s.Update(next); err != nil {
		t.Fatalf("update: %v", err)
	}

	cur := s.Current()
	if cur.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level not applied: %q", cur.Server.LogLevel)
	}
	if cur.Providers.LLM.APIKey != "sk-live" {
		t.Errorf("masked secret was not resolved, got %q", cur.Providers.LLM.APIKey)
	}
}

func TestStore_UpdateRejectsInvalid(t *testing.T) {
	t.Parallel()

	s := config.NewStore(newStoreConfig())
	before := s.Version()

	next := s.Snapshot(true)
	next.Matcher.TopK = -1

	if _, err := s.Update(next); err == nil {
		t.Fatal("expected a validation error")
	}
	if s.Version() != before {
		t.Error("rejected update must not bump the version")
	}
	if s.Current().Matcher.TopK == -1 {
		t.Error("rejected update must not be applied")
	}
}

func TestStore_UpdateBumpsVersionAndReportsDiff(t *testing.T) {
	t.Parallel()

	s := config.NewStore(newStoreConfig())
	before := s.Version()

	next := s.Snapshot(true)
	next.Matcher.TopK = 5

	diff, err := s.Update(next)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !diff.MatcherChanged {
		t.Errorf("diff = %+v, want MatcherChanged", diff)
	}
	if s.Version() != before+1 {
		t.Errorf("version: got %d, want %d", s.Version(), before+1)
	}
}

func TestStore_UpdatePersistsToFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "orakle.yaml")
	s := config.NewStore(newStoreConfig(), config.WithPersistPath(path))

	next := s.Snapshot(true)
	next.Server.ListenAddr = ":6000"
	if _, err := s.Update(next); err != nil {
		t.Fatalf("update: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read persisted file: %v", err)
	}
	if !strings.Contains(string(data), ":6000") {
		t.Errorf("persisted file missing new listen_addr:\n%s", data)
	}
	// The real key must be persisted, never the mask placeholder.
	if strings.Contains(string(data), config.MaskedSecret) {
		t.Error("persisted file contains the mask placeholder")
	}
}

func TestStore_OnChangeCallback(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var gotDiff config.ConfigDiff
	calls := 0

	var s *config.Store
	s = config.NewStore(newStoreConfig(), config.WithOnChange(func(old, new *config.Config, diff config.ConfigDiff) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		gotDiff = diff
		// Reading back from inside the callback must not deadlock.
		_ = s.Version()
	}))

	next := s.Snapshot(true)
	next.Server.LogLevel = config.LogWarn
	if _, err := s.Update(next); err != nil {
		t.Fatalf("update: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("callback calls = %d, want 1", calls)
	}
	if !gotDiff.LogLevelChanged {
		t.Errorf("callback diff = %+v, want LogLevelChanged", gotDiff)
	}
}

func TestStore_ReplaceSkipsPersistence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "orakle.yaml")
	s := config.NewStore(newStoreConfig(), config.WithPersistPath(path))

	next := config.Default()
	next.Server.LogLevel = config.LogError
	diff := s.Replace(next)

	if !diff.LogLevelChanged {
		t.Errorf("diff = %+v, want LogLevelChanged", diff)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Replace must not write the config file")
	}
}
