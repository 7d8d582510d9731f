// Package observe provides application-wide observability primitives for
// earshot: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware for the side server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus via [InitProvider]. Tests should build their own [Metrics] with
// [NewMetrics] and a manual reader instead of using [DefaultMetrics].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all earshot metrics.
const meterName = "github.com/MrWong99/earshot"

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	// --- Latency histograms ---

	// LLMDuration tracks reply generation latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// CommandDuration tracks whitelisted action latency. Attribute: action.
	CommandDuration metric.Float64Histogram

	// --- Counters ---

	// TranscriptEvents counts recognizer events. Attribute: kind.
	TranscriptEvents metric.Int64Counter

	// StateTransitions counts wake/sleep transitions. Attribute: to.
	StateTransitions metric.Int64Counter

	// LanguageSwitches counts locale changes. Attributes: to, source.
	LanguageSwitches metric.Int64Counter

	// Commands counts dispatched commands. Attributes: action, status.
	Commands metric.Int64Counter

	// PlaybackDelivered counts playback deliveries. Attribute: outcome.
	PlaybackDelivered metric.Int64Counter

	// PlaybackCoalesced counts items replaced before delivery.
	PlaybackCoalesced metric.Int64Counter

	// ProviderRequests counts provider calls. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks connected devices.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks side-server latency. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds for network round trips
// to speech and language services.
var latencyBuckets = []float64{
	0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string, buckets bool) (metric.Float64Histogram, error) {
		opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
		if buckets {
			opts = append(opts, metric.WithExplicitBucketBoundaries(latencyBuckets...))
		}
		return m.Float64Histogram(name, opts...)
	}

	if met.LLMDuration, err = histogram("earshot.llm.duration", "Latency of reply generation.", true); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = histogram("earshot.tts.duration", "Latency of speech synthesis.", true); err != nil {
		return nil, err
	}
	if met.CommandDuration, err = histogram("earshot.command.duration", "Latency of whitelisted actions.", true); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = histogram("earshot.http.request.duration", "HTTP request latency by method and path.", false); err != nil {
		return nil, err
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.TranscriptEvents, "earshot.transcript.events", "Recognizer events by kind."},
		{&met.StateTransitions, "earshot.state.transitions", "Wake and sleep transitions by target state."},
		{&met.LanguageSwitches, "earshot.language.switches", "Locale changes by target and source."},
		{&met.Commands, "earshot.commands", "Dispatched commands by action and status."},
		{&met.PlaybackDelivered, "earshot.playback.delivered", "Playback deliveries by outcome."},
		{&met.PlaybackCoalesced, "earshot.playback.coalesced", "Playback items replaced before delivery."},
		{&met.ProviderRequests, "earshot.provider.requests", "Provider requests by provider, kind, and status."},
		{&met.ProviderErrors, "earshot.provider.errors", "Provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("earshot.sessions.active",
		metric.WithDescription("Number of connected devices."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// RecordProviderRequest records one provider call with its outcome.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTranscript counts one recognizer event.
func (m *Metrics) RecordTranscript(ctx context.Context, kind string) {
	m.TranscriptEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordTransition counts one wake or sleep transition.
func (m *Metrics) RecordTransition(ctx context.Context, to string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
}

// RecordLanguageSwitch counts one locale change. source is "marker" or "voice".
func (m *Metrics) RecordLanguageSwitch(ctx context.Context, to, source string) {
	m.LanguageSwitches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("to", to),
			attribute.String("source", source),
		),
	)
}

// RecordCommand counts one dispatched command and its latency.
func (m *Metrics) RecordCommand(ctx context.Context, action, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("action", action))
	m.CommandDuration.Record(ctx, seconds, attrs)
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		),
	)
}

// RecordDelivery counts one playback delivery by outcome.
func (m *Metrics) RecordDelivery(ctx context.Context, outcome string) {
	m.PlaybackDelivered.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
