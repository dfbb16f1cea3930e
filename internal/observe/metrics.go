// Package observe provides application-wide observability primitives for
// Orakle: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Orakle metrics.
const meterName = "github.com/orakle-ai/orakle"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TurnDuration tracks full chat-turn latency, from request to the last
	// event.
	TurnDuration metric.Float64Histogram

	// DispatchDuration tracks per-directive dispatch latency, matching
	// through interpretation.
	DispatchDuration metric.Float64Histogram

	// SkillInvocationDuration tracks skills-host call latency.
	SkillInvocationDuration metric.Float64Histogram

	// RefinementDuration tracks the matcher's LLM refinement latency.
	RefinementDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts chat turns. Use with attribute:
	//   attribute.String("status", ...)
	Turns metric.Int64Counter

	// Dispatches counts directive dispatches. Use with attribute:
	//   attribute.String("status", ...)
	Dispatches metric.Int64Counter

	// MatcherDecisions counts matcher outcomes. Use with attributes:
	//   attribute.String("phase", ...), attribute.String("outcome", ...)
	MatcherDecisions metric.Int64Counter

	// SkillInvocations counts skills-host calls. Use with attributes:
	//   attribute.String("skill", ...), attribute.String("status", ...)
	SkillInvocations metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts LLM and embeddings provider errors. Use with
	// attributes:
	//   attribute.String("provider", ...), attribute.String("role", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveTurns tracks the number of chat turns currently in flight.
	ActiveTurns metric.Int64UpDownCounter

	// CatalogSkills tracks the number of skills in the published catalog.
	CatalogSkills metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM-bound operations.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("orakle.turn.duration",
		metric.WithDescription("Latency of a full chat turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("orakle.dispatch.duration",
		metric.WithDescription("Latency of one directive dispatch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SkillInvocationDuration, err = m.Float64Histogram("orakle.skill.duration",
		metric.WithDescription("Latency of skills-host invocations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RefinementDuration, err = m.Float64Histogram("orakle.matcher.refinement.duration",
		metric.WithDescription("Latency of the matcher's LLM refinement call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("orakle.turns",
		metric.WithDescription("Total chat turns by status."),
	); err != nil {
		return nil, err
	}
	if met.Dispatches, err = m.Int64Counter("orakle.dispatches",
		metric.WithDescription("Total directive dispatches by status."),
	); err != nil {
		return nil, err
	}
	if met.MatcherDecisions, err = m.Int64Counter("orakle.matcher.decisions",
		metric.WithDescription("Total matcher decisions by phase and outcome."),
	); err != nil {
		return nil, err
	}
	if met.SkillInvocations, err = m.Int64Counter("orakle.skill.invocations",
		metric.WithDescription("Total skills-host invocations by skill and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("orakle.provider.errors",
		metric.WithDescription("Total provider errors by provider and role."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTurns, err = m.Int64UpDownCounter("orakle.active_turns",
		metric.WithDescription("Number of chat turns currently in flight."),
	); err != nil {
		return nil, err
	}
	if met.CatalogSkills, err = m.Int64UpDownCounter("orakle.catalog.skills",
		metric.WithDescription("Number of skills in the published catalog."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("orakle.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurn records a finished chat turn.
func (m *Metrics) RecordTurn(ctx context.Context, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, seconds, attrs)
}

// RecordDispatch records a finished directive dispatch.
func (m *Metrics) RecordDispatch(ctx context.Context, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.Dispatches.Add(ctx, 1, attrs)
	m.DispatchDuration.Record(ctx, seconds, attrs)
}

// RecordMatcherDecision records one matcher outcome.
func (m *Metrics) RecordMatcherDecision(ctx context.Context, phase, outcome string) {
	m.MatcherDecisions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("phase", phase),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordSkillInvocation records one skills-host call.
func (m *Metrics) RecordSkillInvocation(ctx context.Context, skill, status string, seconds float64) {
	m.SkillInvocations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("skill", skill),
			attribute.String("status", status),
		),
	)
	m.SkillInvocationDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("skill", skill)),
	)
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, role string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("role", role),
		),
	)
}
