package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the agent's protocol and dispatch counters.
type Metrics struct {
	heartbeats metric.Int64Counter
	reassigns  metric.Int64Counter
	dispatches metric.Int64Counter
	docUploads metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// GetMetrics returns the process-wide metrics instance, creating it on
// first use. Instrument creation errors are ignored; a nil instrument is
// a no-op through the noop meter.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		meter := otel.Meter("fiddle-chat/agent")
		m := &Metrics{}
		m.heartbeats, _ = meter.Int64Counter("agent_heartbeat_writes_total",
			metric.WithDescription("Presence heartbeat writes, by outcome"))
		m.reassigns, _ = meter.Int64Counter("agent_failover_reassignments_total",
			metric.WithDescription("Character ownership reassignments taken by this session"))
		m.dispatches, _ = meter.Int64Counter("agent_provider_requests_total",
			metric.WithDescription("Provider dispatch attempts, by provider and outcome"))
		m.docUploads, _ = meter.Int64Counter("agent_document_uploads_total",
			metric.WithDescription("Reference document uploads, by outcome"))
		metricsInst = m
	})
	return metricsInst
}

func (m *Metrics) HeartbeatWrite(ctx context.Context, ok bool) {
	if m == nil || m.heartbeats == nil {
		return
	}
	m.heartbeats.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}

func (m *Metrics) Reassignment(ctx context.Context, reason string) {
	if m == nil || m.reassigns == nil {
		return
	}
	m.reassigns.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) Dispatch(ctx context.Context, provider, outcome string) {
	if m == nil || m.dispatches == nil {
		return
	}
	m.dispatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) DocumentUpload(ctx context.Context, ok bool) {
	if m == nil || m.docUploads == nil {
		return
	}
	m.docUploads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}
