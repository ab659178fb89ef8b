package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mindburn-Labs/triad/pkg/gate"
)

// GateMetrics is a gate.Observer that records decisions as OpenTelemetry
// metrics and, when the request context carries a span, as span events.
type GateMetrics struct {
	decisions    metric.Int64Counter
	ledgerErrors metric.Int64Counter
	duration     metric.Float64Histogram
}

// NewGateMetrics creates the gate instruments on meter.
func NewGateMetrics(meter metric.Meter) (*GateMetrics, error) {
	m := &GateMetrics{}
	var err error

	m.decisions, err = meter.Int64Counter("triad.gate.decisions",
		metric.WithDescription("Requests classified by the gate"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("decisions counter: %w", err)
	}

	m.ledgerErrors, err = meter.Int64Counter("triad.gate.ledger_errors",
		metric.WithDescription("Requests diverted because a ledger backend failed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger error counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram("triad.gate.duration",
		metric.WithDescription("Time spent classifying a request"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1),
	)
	if err != nil {
		return nil, fmt.Errorf("duration histogram: %w", err)
	}
	return m, nil
}

// Observe implements gate.Observer.
func (m *GateMetrics) Observe(ctx context.Context, d gate.Decision) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", d.Outcome.String()),
		attribute.String("check", string(d.Check)),
	)
	m.decisions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Duration.Seconds(), attrs)
	if d.Check == gate.CheckLedger {
		m.ledgerErrors.Add(ctx, 1)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("triad.gate.decision", trace.WithAttributes(
			attribute.String("outcome", d.Outcome.String()),
			attribute.String("check", string(d.Check)),
			attribute.String("fingerprint", d.Fingerprint),
		))
	}
}

var _ gate.Observer = (*GateMetrics)(nil)
