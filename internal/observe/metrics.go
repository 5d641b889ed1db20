// Package observe holds the OpenTelemetry instruments for the planner and
// the designation ledger.
//
// A nil *Metrics is valid and records nothing, so library code and tests can
// run without a provider. Production wiring installs a Prometheus-backed
// provider through [InitProvider] and builds instruments with [NewMetrics].
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Blecki/dwarfcorp-sub032"

// Metrics groups every instrument. The OTel types synchronise themselves.
type Metrics struct {
	// PlanRequests counts finished plan requests. Attribute: status.
	PlanRequests metric.Int64Counter

	// PlanExpansions records nodes expanded per search.
	PlanExpansions metric.Int64Histogram

	// PlanDuration records wall time per search, in seconds.
	PlanDuration metric.Float64Histogram

	// QueueDepth tracks requests submitted but not yet picked up.
	QueueDepth metric.Int64UpDownCounter

	// ActiveDesignations tracks live designations. Attribute: kind.
	ActiveDesignations metric.Int64UpDownCounter

	// DesignationsSwept counts entity designations removed by cleanup.
	DesignationsSwept metric.Int64Counter
}

var durationBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5,
}

var expansionBuckets = []float64{
	1, 10, 50, 100, 500, 1000, 5000, 10000, 50000,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PlanRequests, err = m.Int64Counter("planner.requests",
		metric.WithDescription("Finished plan requests by status."),
	); err != nil {
		return nil, err
	}
	if met.PlanExpansions, err = m.Int64Histogram("planner.expansions",
		metric.WithDescription("Search nodes expanded per plan request."),
		metric.WithExplicitBucketBoundaries(expansionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlanDuration, err = m.Float64Histogram("planner.duration",
		metric.WithDescription("Wall time of one search."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("planner.queue_depth",
		metric.WithDescription("Plan requests waiting for a worker."),
	); err != nil {
		return nil, err
	}
	if met.ActiveDesignations, err = m.Int64UpDownCounter("designations.active",
		metric.WithDescription("Live designations by kind."),
	); err != nil {
		return nil, err
	}
	if met.DesignationsSwept, err = m.Int64Counter("designations.swept",
		metric.WithDescription("Entity designations removed because their entity died."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// RecordPlan records one finished request.
func (m *Metrics) RecordPlan(ctx context.Context, status string, expansions int, d time.Duration) {
	if m == nil {
		return
	}
	m.PlanRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.PlanExpansions.Record(ctx, int64(expansions))
	m.PlanDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) AddQueueDepth(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.QueueDepth.Add(ctx, delta)
}

func (m *Metrics) AddDesignations(ctx context.Context, kind string, delta int64) {
	if m == nil || delta == 0 {
		return
	}
	m.ActiveDesignations.Add(ctx, delta, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordSwept(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DesignationsSwept.Add(ctx, int64(n))
}
