// Package app assembles the Orakle runtime: provider stack, skill catalog,
// subprocess supervisor, dispatch pipeline, and the HTTP façade. It owns the
// lifecycle of every subsystem and tears them down in reverse init order.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orakle-ai/orakle/internal/config"
	"github.com/orakle-ai/orakle/internal/dispatch"
	"github.com/orakle-ai/orakle/internal/health"
	"github.com/orakle-ai/orakle/internal/httpapi"
	"github.com/orakle-ai/orakle/internal/matcher"
	"github.com/orakle-ai/orakle/internal/observe"
	"github.com/orakle-ai/orakle/internal/registry"
	"github.com/orakle-ai/orakle/internal/resilience"
	"github.com/orakle-ai/orakle/internal/supervise"
	"github.com/orakle-ai/orakle/internal/turn"
	"github.com/orakle-ai/orakle/pkg/bridge"
	"github.com/orakle-ai/orakle/pkg/memory"
	"github.com/orakle-ai/orakle/pkg/memory/postgres"
	"github.com/orakle-ai/orakle/pkg/provider/embeddings"
	"github.com/orakle-ai/orakle/pkg/provider/llm"
	"github.com/orakle-ai/orakle/pkg/skills"
)

// healthLoopInterval is how often running services are re-probed.
const healthLoopInterval = 15 * time.Second

// Providers bundles the model backends the pipeline runs on. LLM and
// Embeddings may be nil while the instance is unconfigured; chat then answers
// 503 and the catalog stays empty. Refiner falls back to LLM when nil.
type Providers struct {
	LLM        llm.Provider
	Refiner    llm.Provider
	Embeddings embeddings.Provider
}

// App is the assembled application.
type App struct {
	store   *config.Store
	provReg *config.Registry
	metrics *observe.Metrics

	host     skills.Host
	bridge   bridge.Bridge
	breaker  *resilience.CircuitBreaker
	catalog  *registry.Registry
	memory   memory.Store
	sup      *supervise.Supervisor
	logLevel *slog.LevelVar

	provMu    sync.Mutex
	providers Providers

	runner atomic.Pointer[turn.Runner]

	httpSrv *http.Server

	closers  []func() error
	stopOnce sync.Once

	noTelemetry bool
}

// Option overrides a subsystem, mainly so tests can inject doubles.
type Option func(*App)

// WithSkillsHost replaces the HTTP skills-host client.
func WithSkillsHost(h skills.Host) Option {
	return func(a *App) { a.host = h }
}

// WithBridge replaces the python-bridge client.
func WithBridge(b bridge.Bridge) Option {
	return func(a *App) { a.bridge = b }
}

// WithMemory replaces the long-term memory store.
func WithMemory(m memory.Store) Option {
	return func(a *App) { a.memory = m }
}

// WithLogLevelVar lets configuration changes retune the process log level.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithoutTelemetry skips the OTel SDK setup. The Prometheus exporter
// registration is process-global, so tests building multiple apps need this.
func WithoutTelemetry() Option {
	return func(a *App) { a.noTelemetry = true }
}

// New wires the application from the stored configuration. store must already
// hold a validated config; provReg supplies the provider factories used both
// at startup and when the configuration changes at runtime.
func New(ctx context.Context, store *config.Store, provReg *config.Registry, providers Providers, opts ...Option) (*App, error) {
	a := &App{
		store:     store,
		provReg:   provReg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	cfg := store.Current()

	// 1. Telemetry. The Prometheus exporter feeds /metrics; traces stay
	// in-process until an exporter is configured.
	if !a.noTelemetry {
		otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName: "orakle",
		})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.closers = append(a.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return otelShutdown(shutdownCtx)
		})
	}
	a.metrics = observe.DefaultMetrics()

	// 2. Long-term memory (optional).
	if a.memory == nil && cfg.Memory.PostgresDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.Memory.PostgresDSN, cfg.Memory.EmbeddingDimensions)
		if err != nil {
			return nil, fmt.Errorf("app: init memory store: %w", err)
		}
		a.memory = pg
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
	}

	// 3. Skills host client behind a circuit breaker.
	if a.host == nil {
		client, err := skills.NewClient(serviceBaseURL(cfg.Services.SkillsHost))
		if err != nil {
			return nil, fmt.Errorf("app: init skills client: %w", err)
		}
		a.host = client
	}
	a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "skills-host",
	})

	// 4. Python bridge client.
	if a.bridge == nil {
		client, err := bridge.NewClient(serviceBaseURL(cfg.Services.PythonBridge))
		if err != nil {
			return nil, fmt.Errorf("app: init bridge client: %w", err)
		}
		a.bridge = client
	}

	// 5. Skill catalog. Populated once the skills host is reachable.
	a.catalog = registry.New(a.host, a.providers.Embeddings)

	// 6. Subprocess supervisor, for services that carry a launch command.
	var serviceConfigs []supervise.ServiceConfig
	if sc, ok := superviseConfig("skills-host", cfg.Services.SkillsHost); ok {
		serviceConfigs = append(serviceConfigs, sc)
	}
	if sc, ok := superviseConfig("python-bridge", cfg.Services.PythonBridge); ok {
		serviceConfigs = append(serviceConfigs, sc)
	}
	if len(serviceConfigs) > 0 {
		sup, err := supervise.New(serviceConfigs)
		if err != nil {
			return nil, fmt.Errorf("app: init supervisor: %w", err)
		}
		a.sup = sup
	}

	// 7. Dispatch pipeline. Absent providers leave the runner unset.
	a.rebuildRunner(cfg)

	// 8. HTTP façade.
	checkers := []health.Checker{
		{Name: "skills-host", Check: a.host.Health},
		{Name: "python-bridge", Check: a.bridge.Health},
	}
	api := httpapi.New(httpapi.Options{
		Store:             store,
		Runner:            a.currentRunner,
		Registry:          a.catalog,
		Bridge:            a.bridge,
		Supervisor:        a.sup,
		Health:            health.New(checkers...),
		Metrics:           a.metrics,
		BuildLLM:          provReg.CreateLLM,
		OnServicesRestart: a.onServicesRestarted,
	})
	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// OnConfigChange is the hook to install via [config.WithOnChange]. It applies
// whatever can change without a restart and logs the rest.
func (a *App) OnConfigChange(_, next *config.Config, diff config.ConfigDiff) {
	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(next.Server.LogLevel.SlogLevel())
		slog.Info("log level changed", "level", next.Server.LogLevel)
	}

	if len(diff.ProvidersChanged) > 0 {
		if err := a.rebuildProviders(next); err != nil {
			slog.Error("provider rebuild failed, keeping previous stack", "error", err)
		} else {
			slog.Info("provider stack rebuilt", "roles", diff.ProvidersChanged)
		}
	} else if diff.MatcherChanged {
		a.rebuildRunner(next)
		slog.Info("matcher settings applied")
	}

	if diff.ServicesChanged {
		slog.Warn("service configuration changed; restart the services to apply it")
	}
	if diff.MemoryChanged {
		slog.Warn("memory configuration changed; restart the server to apply it")
	}
}

// rebuildProviders constructs a fresh provider stack from cfg and swaps the
// pipeline onto it. The old providers stay live for in-flight turns.
func (a *App) rebuildProviders(cfg *config.Config) error {
	next, err := BuildProviders(cfg, a.provReg)
	if err != nil {
		return err
	}

	a.provMu.Lock()
	a.providers = next
	a.provMu.Unlock()

	a.catalog.SetEmbedder(next.Embeddings)
	a.rebuildRunner(cfg)
	go a.reloadCatalog()
	return nil
}

// rebuildRunner assembles matcher, dispatcher, and runner from the current
// providers and publishes the result atomically. With no LLM or embedder the
// runner is cleared and chat answers 503.
func (a *App) rebuildRunner(cfg *config.Config) {
	a.provMu.Lock()
	p := a.providers
	a.provMu.Unlock()

	if p.LLM == nil || p.Embeddings == nil {
		a.runner.Store(nil)
		return
	}

	refiner := p.Refiner
	if refiner == nil {
		refiner = p.LLM
	}

	m := matcher.New(a.catalog, refiner, matcher.Config{
		TopK:            cfg.Matcher.TopK,
		SimilarityFloor: cfg.Matcher.SimilarityFloor,
		ConfidenceFloor: cfg.Matcher.ConfidenceFloor,
	})
	d := dispatch.New(dispatch.Options{
		Matcher:     m,
		Registry:    a.catalog,
		Host:        a.host,
		Interpreter: p.LLM,
		Memory:      a.memory,
		Embedder:    p.Embeddings,
		Breaker:     a.breaker,
		Metrics:     a.metrics,
	})
	a.runner.Store(turn.NewRunner(p.LLM, d, a.catalog, turn.WithMetrics(a.metrics)))
}

// currentRunner adapts the atomic runner pointer for the HTTP façade. A nil
// pointer must come back as a nil interface.
func (a *App) currentRunner() httpapi.ChatRunner {
	if r := a.runner.Load(); r != nil {
		return r
	}
	return nil
}

// onServicesRestarted runs after a successful /services/restart: the skills
// host is fresh, so the breaker resets and the catalog reloads.
func (a *App) onServicesRestarted() {
	a.breaker.Reset()
	go a.reloadCatalog()
}

// reloadCatalog refreshes the skill catalog, tolerating an unreachable host.
func (a *App) reloadCatalog() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := a.catalog.Reload(ctx); err != nil {
		slog.Warn("skill catalog reload failed", "error", err)
	}
}

// Run starts the supervised services and the HTTP server and blocks until
// ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a.sup != nil {
		go func() {
			if err := a.sup.StartAll(ctx); err != nil {
				slog.Error("service startup failed", "error", err)
				return
			}
			a.reloadCatalog()
		}()
		go a.sup.RunHealthLoop(ctx, healthLoopInterval)
	} else {
		// No supervised processes; the services may still be running
		// externally.
		go a.reloadCatalog()
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: http server: %w", err)
	}
}

// Shutdown stops the HTTP server, the supervised services, and every
// registered closer, in that order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		if a.sup != nil {
			if err := a.sup.StopAll(ctx, false); err != nil {
				errs = append(errs, fmt.Errorf("supervisor: %w", err))
			}
		}
		for _, closer := range a.closers {
			if err := closer(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// BuildProviders instantiates the configured model backends through the
// factory registry. A missing or unregistered name leaves that slot nil; a
// factory failure aborts, because a mistyped key should be loud.
func BuildProviders(cfg *config.Config, reg *config.Registry) (Providers, error) {
	var p Providers

	if name := cfg.Providers.LLM.Name; name != "" {
		prov, err := reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown llm provider, skipping", "name", name)
		} else if err != nil {
			return Providers{}, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			p.LLM = prov
			slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)
		}
	}

	if name := cfg.Providers.Refiner.Name; name != "" && p.LLM != nil {
		prov, err := reg.CreateLLM(cfg.Providers.Refiner)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown refiner provider, skipping", "name", name)
		} else if err != nil {
			return Providers{}, fmt.Errorf("create refiner provider %q: %w", name, err)
		} else {
			// The refiner is an optimization; fall back to the primary model
			// when it misbehaves rather than failing the whole match.
			fb := resilience.NewLLMFallback(prov, name, resilience.FallbackConfig{})
			fb.AddFallback(cfg.Providers.LLM.Name, p.LLM)
			p.Refiner = fb
			slog.Info("provider created", "kind", "refiner", "name", name, "model", cfg.Providers.Refiner.Model)
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		prov, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown embeddings provider, skipping", "name", name)
		} else if err != nil {
			return Providers{}, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			p.Embeddings = prov
			slog.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.Providers.Embeddings.Model)
		}
	}

	return p, nil
}

// serviceBaseURL resolves a service's HTTP endpoint, deriving it from the
// loopback port when no explicit base URL is configured.
func serviceBaseURL(sc config.ServiceConfig) string {
	if sc.BaseURL != "" {
		return sc.BaseURL
	}
	return fmt.Sprintf("http://127.0.0.1:%d", sc.Port)
}

// superviseConfig converts a configured service into a supervisor entry.
// Services without a command are managed externally and not supervised.
func superviseConfig(name string, sc config.ServiceConfig) (supervise.ServiceConfig, bool) {
	if len(sc.Command) == 0 {
		return supervise.ServiceConfig{}, false
	}
	return supervise.ServiceConfig{
		Name:           name,
		Command:        sc.Command,
		Port:           sc.Port,
		HealthURL:      serviceBaseURL(sc) + "/health",
		StartupTimeout: sc.StartupTimeout,
	}, true
}
