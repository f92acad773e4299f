package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stewardlabs/steward/graph"
	"github.com/stewardlabs/steward/id"
)

// meterName is the instrumentation scope name for steward metrics.
const meterName = "github.com/stewardlabs/steward"

// Compile-time interface check.
var _ graph.StatusListener = (*MetricsListener)(nil)

// MetricsListener records job lifecycle metrics through OpenTelemetry.
//
// Instruments:
//   - steward.job.transitions (Int64Counter): status changes, with
//     attributes: status
//   - steward.job.suspensions (Int64Counter): forced suspensions
//   - steward.job.time_to_terminal (Float64Histogram): seconds from the
//     first observed transition to a globally terminal status, with
//     attributes: status
type MetricsListener struct {
	transitions    metric.Int64Counter
	suspensions    metric.Int64Counter
	timeToTerminal metric.Float64Histogram

	mu      sync.Mutex
	started map[id.JobID]time.Time
}

// NewMetricsListener creates a listener using the global OTel
// MeterProvider. If none is configured the OTel API returns noop
// instruments and the listener becomes a pass-through.
func NewMetricsListener() *MetricsListener {
	return NewMetricsListenerWithMeter(otel.Meter(meterName))
}

// NewMetricsListenerWithMeter creates a listener using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func NewMetricsListenerWithMeter(meter metric.Meter) *MetricsListener {
	// Create instruments once at construction time. OTel instruments are
	// safe for concurrent use. On error, the API returns noop instruments
	// so the listener degrades gracefully.
	transitions, tErr := meter.Int64Counter(
		"steward.job.transitions",
		metric.WithDescription("Total number of job status transitions"),
		metric.WithUnit("{transition}"),
	)
	_ = tErr // noop fallback guaranteed by OTel API contract

	suspensions, sErr := meter.Int64Counter(
		"steward.job.suspensions",
		metric.WithDescription("Total number of forced job suspensions"),
		metric.WithUnit("{suspension}"),
	)
	_ = sErr // noop fallback guaranteed by OTel API contract

	timeToTerminal, hErr := meter.Float64Histogram(
		"steward.job.time_to_terminal",
		metric.WithDescription("Seconds from first transition to a terminal status"),
		metric.WithUnit("s"),
	)
	_ = hErr // noop fallback guaranteed by OTel API contract

	return &MetricsListener{
		transitions:    transitions,
		suspensions:    suspensions,
		timeToTerminal: timeToTerminal,
		started:        make(map[id.JobID]time.Time),
	}
}

// OnStatusChange implements graph.StatusListener.
func (m *MetricsListener) OnStatusChange(jobID id.JobID, status graph.Status, at time.Time, cause error) {
	ctx := context.Background()
	statusAttr := metric.WithAttributes(attribute.String("status", string(status)))

	m.transitions.Add(ctx, 1, statusAttr)

	if status == graph.StatusSuspended {
		m.suspensions.Add(ctx, 1)
	}

	m.mu.Lock()
	start, seen := m.started[jobID]
	if !seen {
		m.started[jobID] = at
		start = at
	}
	if status.GloballyTerminal() || status == graph.StatusSuspended {
		delete(m.started, jobID)
	}
	m.mu.Unlock()

	if status.GloballyTerminal() {
		m.timeToTerminal.Record(ctx, at.Sub(start).Seconds(), statusAttr)
	}
}
