package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider role.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.Refiner.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; chat turns will be rejected until it is set")
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("providers.embeddings is not configured; skill matching will be unavailable")
	}

	// Embeddings ↔ memory dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but memory.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; long-term memory will not be available")
	}

	// Matcher thresholds
	if cfg.Matcher.TopK < 0 {
		errs = append(errs, fmt.Errorf("matcher.top_k %d must not be negative", cfg.Matcher.TopK))
	}
	if cfg.Matcher.SimilarityFloor < 0 || cfg.Matcher.SimilarityFloor > 1 {
		errs = append(errs, fmt.Errorf("matcher.similarity_floor %.2f is out of range [0, 1]", cfg.Matcher.SimilarityFloor))
	}
	if cfg.Matcher.ConfidenceFloor < 0 || cfg.Matcher.ConfidenceFloor > 1 {
		errs = append(errs, fmt.Errorf("matcher.confidence_floor %.2f is out of range [0, 1]", cfg.Matcher.ConfidenceFloor))
	}

	// Services
	errs = append(errs, validateService("services.skills_host", cfg.Services.SkillsHost)...)
	errs = append(errs, validateService("services.python_bridge", cfg.Services.PythonBridge)...)
	if cfg.Services.SkillsHost.Port != 0 && cfg.Services.SkillsHost.Port == cfg.Services.PythonBridge.Port {
		errs = append(errs, fmt.Errorf("services.skills_host and services.python_bridge share port %d", cfg.Services.SkillsHost.Port))
	}

	return errors.Join(errs...)
}

// validateService checks one managed-service block.
func validateService(prefix string, svc ServiceConfig) []error {
	var errs []error
	if svc.Port < 0 || svc.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s.port %d is out of range [0, 65535]", prefix, svc.Port))
	}
	if len(svc.Command) > 0 && svc.Port == 0 {
		errs = append(errs, fmt.Errorf("%s.port is required when a command is configured", prefix))
	}
	if svc.StartupTimeout < 0 {
		errs = append(errs, fmt.Errorf("%s.startup_timeout must not be negative", prefix))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
