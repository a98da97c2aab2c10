// Package obs wires C10's retrieval pipeline and C9's decay pass into
// OpenTelemetry: one span per pipeline stage plus counters/histograms for
// candidates returned, dedup hits, decay pass duration, and tier counts.
// Grounded on this codebase's internal/agent.OTELTracer (span-per-stage
// start/end wrapper) and internal/rag/obs.OtelMetrics (cached counter/
// histogram instruments over the global meter).
package obs

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans for named pipeline stages against the global
// TracerProvider (installed by observability.InitOTel, or the SDK's no-op
// default when OTel isn't configured).
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer constructs a Tracer scoped to the given instrumentation name
// (e.g. "hsg.retrieval", "hsg.decay").
func NewTracer(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// Start begins a span named stage with the given string attributes. The
// returned func ends the span, recording err on it first when non-nil. A
// nil *Tracer is a safe no-op, so callers need not special-case tests that
// construct an Engine/Scheduler without telemetry wired.
func (t *Tracer) Start(ctx context.Context, stage string, attrs map[string]string) (context.Context, func(err error)) {
	if t == nil {
		return ctx, func(error) {}
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	ctx, span := t.tracer.Start(ctx, stage, trace.WithAttributes(kvs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

// Metrics is a thin adapter over OTel counters/histograms, instruments
// cached by name against the global MeterProvider.
type Metrics struct {
	meter      metric.Meter
	mu         sync.RWMutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewMetrics constructs a Metrics scoped to the given instrumentation name.
func NewMetrics(name string) *Metrics {
	return &Metrics{
		meter:      otel.Meter(name),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// IncCounter adds n to the named counter. A nil *Metrics is a safe no-op.
func (m *Metrics) IncCounter(name string, n int64, labels map[string]string) {
	if m == nil {
		return
	}
	c, ok := m.getCounter(name)
	if !ok {
		return
	}
	c.Add(context.Background(), n, metric.WithAttributes(toAttrs(labels)...))
}

// ObserveHistogram records value against the named histogram. A nil
// *Metrics is a safe no-op.
func (m *Metrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	if m == nil {
		return
	}
	h, ok := m.getHistogram(name)
	if !ok {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(toAttrs(labels)...))
}

func (m *Metrics) getCounter(name string) (metric.Int64Counter, bool) {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return c, true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[name]; ok {
		return c, true
	}
	ctr, err := m.meter.Int64Counter(name)
	if err != nil {
		return ctr, false
	}
	m.counters[name] = ctr
	return ctr, true
}

func (m *Metrics) getHistogram(name string) (metric.Float64Histogram, bool) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()
	if ok {
		return h, true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok = m.histograms[name]; ok {
		return h, true
	}
	hist, err := m.meter.Float64Histogram(name)
	if err != nil {
		return hist, false
	}
	m.histograms[name] = hist
	return hist, true
}

func toAttrs(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		out = append(out, attribute.String(k, v))
	}
	return out
}
