package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/orakle-ai/orakle/internal/config"
	bridgemock "github.com/orakle-ai/orakle/pkg/bridge/mock"
	"github.com/orakle-ai/orakle/pkg/provider/embeddings"
	embmock "github.com/orakle-ai/orakle/pkg/provider/embeddings/mock"
	"github.com/orakle-ai/orakle/pkg/provider/llm"
	llmmock "github.com/orakle-ai/orakle/pkg/provider/llm/mock"
	skillsmock "github.com/orakle-ai/orakle/pkg/skills/mock"
)

// mockRegistry returns a factory registry producing mocks under the names the
// default config validator accepts.
func mockRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
	reg.RegisterEmbeddings("openai", func(config.ProviderEntry) (embeddings.Provider, error) {
		return &embmock.Provider{VectorFor: func(string) []float32 { return []float32{1, 0} }}, nil
	})
	return reg
}

func unconfigured() *config.Config {
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Providers.LLM.Name = ""
	cfg.Providers.Embeddings.Name = ""
	return cfg
}

func TestOnConfigChange_BuildsRunnerWhenProvidersAppear(t *testing.T) {
	cfg := unconfigured()
	store := config.NewStore(cfg)

	a, err := New(context.Background(), store, mockRegistry(), Providers{},
		WithSkillsHost(&skillsmock.Host{}),
		WithBridge(&bridgemock.Bridge{}),
		WithoutTelemetry(),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if a.runner.Load() != nil {
		t.Fatal("runner should be unset while no providers are configured")
	}

	next := config.Default()
	next.Server.ListenAddr = cfg.Server.ListenAddr
	a.OnConfigChange(cfg, next, config.Diff(cfg, next))

	if a.runner.Load() == nil {
		t.Fatal("runner should be built once providers are configured")
	}
	if a.currentRunner() == nil {
		t.Fatal("currentRunner() should expose the new runner")
	}
}

func TestOnConfigChange_ClearsRunnerWhenProvidersVanish(t *testing.T) {
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	store := config.NewStore(cfg)

	a, err := New(context.Background(), store, mockRegistry(),
		Providers{LLM: &llmmock.Provider{}, Embeddings: &embmock.Provider{}},
		WithSkillsHost(&skillsmock.Host{}),
		WithBridge(&bridgemock.Bridge{}),
		WithoutTelemetry(),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if a.runner.Load() == nil {
		t.Fatal("runner should be built at startup with providers present")
	}

	next := unconfigured()
	a.OnConfigChange(cfg, next, config.Diff(cfg, next))

	if a.runner.Load() != nil {
		t.Fatal("runner should be cleared when providers are removed")
	}
	if a.currentRunner() != nil {
		t.Fatal("currentRunner() must return a nil interface for a nil runner")
	}
}

func TestOnConfigChange_AdjustsLogLevel(t *testing.T) {
	cfg := unconfigured()
	store := config.NewStore(cfg)

	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	a, err := New(context.Background(), store, mockRegistry(), Providers{},
		WithSkillsHost(&skillsmock.Host{}),
		WithBridge(&bridgemock.Bridge{}),
		WithLogLevelVar(level),
		WithoutTelemetry(),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	next := unconfigured()
	next.Server.LogLevel = config.LogDebug
	a.OnConfigChange(cfg, next, config.Diff(cfg, next))

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
}
