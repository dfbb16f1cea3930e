package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/orakle-ai/orakle/internal/config"
	"github.com/orakle-ai/orakle/pkg/provider/embeddings"
	embmock "github.com/orakle-ai/orakle/pkg/provider/embeddings/mock"
	"github.com/orakle-ai/orakle/pkg/provider/llm"
	llmmock "github.com/orakle-ai/orakle/pkg/provider/llm/mock"
)

func TestValidate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "verbose" },
			wantErr: "server.log_level",
		},
		{
			name:    "negative top_k",
			mutate:  func(c *config.Config) { c.Matcher.TopK = -1 },
			wantErr: "matcher.top_k",
		},
		{
			name:    "similarity floor above one",
			mutate:  func(c *config.Config) { c.Matcher.SimilarityFloor = 1.2 },
			wantErr: "matcher.similarity_floor",
		},
		{
			name:    "confidence floor below zero",
			mutate:  func(c *config.Config) { c.Matcher.ConfidenceFloor = -0.1 },
			wantErr: "matcher.confidence_floor",
		},
		{
			name: "command without port",
			mutate: func(c *config.Config) {
				c.Services.SkillsHost = config.ServiceConfig{Command: []string{"./skills-host"}}
			},
			wantErr: "services.skills_host.port is required",
		},
		{
			name: "duplicate service port",
			mutate: func(c *config.Config) {
				c.Services.PythonBridge.Port = c.Services.SkillsHost.Port
			},
			wantErr: "share port",
		},
		{
			name:    "port out of range",
			mutate:  func(c *config.Config) { c.Services.PythonBridge.Port = 70000 },
			wantErr: "services.python_bridge.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected a validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_DefaultIsValid(t *testing.T) {
	t.Parallel()

	if err := config.Validate(config.Default()); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.LogLevel = "loud"
	cfg.Matcher.TopK = -3
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, want := range []string{"server.log_level", "matcher.top_k"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestRegistry_CreateLLM(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterLLM("mock", func(e config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected a provider instance")
	}
}

func TestRegistry_UnregisteredName(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("error = %v, want ErrProviderNotRegistered", err)
	}
	_, err = reg.CreateEmbeddings(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("embeddings error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_CreateEmbeddings(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterEmbeddings("mock", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return &embmock.Provider{DimensionsValue: 3}, nil
	})

	p, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Dimensions() != 3 {
		t.Errorf("dimensions: got %d, want 3", p.Dimensions())
	}
}
