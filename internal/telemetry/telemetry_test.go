package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestMeter_DisabledIsNoop(t *testing.T) {
	assert.IsType(t, noop.Meter{}, Meter(false))
	assert.NotNil(t, Meter(true))
}

func TestMetrics_RecordWithoutProvider(t *testing.T) {
	m, err := New(Meter(true))
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.Spawned(ctx)
		m.Despawned(ctx, "arrived")
		m.Rerouted(ctx)
		m.SpawnSkipped(ctx, "not_reachable")
		m.Edit(ctx, false)
		m.Active(ctx, 4)
	})
	assert.NotNil(t, Nop())
}
