// Package telemetry holds the OpenTelemetry instruments the coordinator
// reports through. Without a configured provider every instrument is a no-op.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/cxd309/citysim-engine/internal/engine"

// Meter returns the global meter when enabled, otherwise a no-op meter.
func Meter(enabled bool) metric.Meter {
	if !enabled {
		return noop.Meter{}
	}
	return otel.Meter(instrumentationName)
}

// Metrics are the simulation counters.
type Metrics struct {
	spawned   metric.Int64Counter
	despawned metric.Int64Counter
	rerouted  metric.Int64Counter
	skipped   metric.Int64Counter
	edits     metric.Int64Counter
	active    metric.Int64Gauge
}

// New creates the counters on m.
func New(m metric.Meter) (*Metrics, error) {
	var (
		mt  Metrics
		err error
	)
	if mt.spawned, err = m.Int64Counter("citysim.vehicles.spawned",
		metric.WithDescription("Vehicles placed on the road")); err != nil {
		return nil, fmt.Errorf("creating spawned counter: %w", err)
	}
	if mt.despawned, err = m.Int64Counter("citysim.vehicles.despawned",
		metric.WithDescription("Vehicles removed, by reason")); err != nil {
		return nil, fmt.Errorf("creating despawned counter: %w", err)
	}
	if mt.rerouted, err = m.Int64Counter("citysim.vehicles.rerouted",
		metric.WithDescription("Successful re-routes after road edits")); err != nil {
		return nil, fmt.Errorf("creating rerouted counter: %w", err)
	}
	if mt.skipped, err = m.Int64Counter("citysim.spawns.skipped",
		metric.WithDescription("Spawn attempts abandoned, by reason")); err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}
	if mt.edits, err = m.Int64Counter("citysim.graph.edits",
		metric.WithDescription("Queued road edits applied, by outcome")); err != nil {
		return nil, fmt.Errorf("creating edits counter: %w", err)
	}
	if mt.active, err = m.Int64Gauge("citysim.vehicles.active",
		metric.WithDescription("Vehicles on the road after the last tick")); err != nil {
		return nil, fmt.Errorf("creating active gauge: %w", err)
	}
	return &mt, nil
}

// Nop returns metrics backed by the no-op meter.
func Nop() *Metrics {
	m, _ := New(noop.Meter{})
	return m
}

func reason(r string) metric.AddOption {
	return metric.WithAttributes(attribute.String("reason", r))
}

func (m *Metrics) Spawned(ctx context.Context) { m.spawned.Add(ctx, 1) }

func (m *Metrics) Despawned(ctx context.Context, why string) { m.despawned.Add(ctx, 1, reason(why)) }

func (m *Metrics) Rerouted(ctx context.Context) { m.rerouted.Add(ctx, 1) }

func (m *Metrics) SpawnSkipped(ctx context.Context, why string) { m.skipped.Add(ctx, 1, reason(why)) }

func (m *Metrics) Edit(ctx context.Context, ok bool) {
	outcome := "applied"
	if !ok {
		outcome = "rejected"
	}
	m.edits.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) Active(ctx context.Context, n int) { m.active.Record(ctx, int64(n)) }
