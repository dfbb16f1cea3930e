package config_test

import (
	"testing"

	"github.com/orakle-ai/orakle/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()

	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want %q", d.NewLogLevel, config.LogDebug)
	}
}

func TestDiff_MatcherChanged(t *testing.T) {
	t.Parallel()

	old := config.Default()
	new := config.Default()
	new.Matcher.TopK = 5

	d := config.Diff(old, new)
	if !d.MatcherChanged {
		t.Error("expected MatcherChanged=true")
	}
	if d.LogLevelChanged || d.ServicesChanged || d.MemoryChanged {
		t.Errorf("unrelated flags set: %+v", d)
	}
}

func TestDiff_ProviderRoles(t *testing.T) {
	t.Parallel()

	old := config.Default()
	new := config.Default()
	new.Providers.LLM.Model = "gpt-4o-mini"
	new.Providers.Embeddings.APIKey = "sk-new"

	d := config.Diff(old, new)
	want := []string{"llm", "embeddings"}
	if len(d.ProvidersChanged) != len(want) {
		t.Fatalf("ProvidersChanged = %v, want %v", d.ProvidersChanged, want)
	}
	for i := range want {
		if d.ProvidersChanged[i] != want[i] {
			t.Errorf("ProvidersChanged[%d] = %q, want %q", i, d.ProvidersChanged[i], want[i])
		}
	}
}

func TestDiff_ServicesAndMemory(t *testing.T) {
	t.Parallel()

	old := config.Default()
	new := config.Default()
	new.Services.SkillsHost.Port = 6011
	new.Memory.PostgresDSN = "postgres://localhost:5432/other"

	d := config.Diff(old, new)
	if !d.ServicesChanged {
		t.Error("expected ServicesChanged=true")
	}
	if !d.MemoryChanged {
		t.Error("expected MemoryChanged=true")
	}
}
