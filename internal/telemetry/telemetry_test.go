package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func TestRecorderCounts(t *testing.T) {
	ctx := context.Background()
	r, err := New(prometheus.NewRegistry(), nil, nil)
	require.NoError(t, err)

	r.BitmapCreated(ctx, "anonymous", 64)
	r.BitmapCreated(ctx, "foreign", 0)
	r.BitmapReleased(ctx, "anonymous", 64)
	r.Volatile("volatile")
	r.Purged(ctx)
	r.SegmentMapped(ctx, 2)
	r.SegmentMapped(ctx, -1)

	assert.Equal(t, float64(1), counterValue(t, r.created.WithLabelValues("anonymous")))
	assert.Equal(t, float64(1), counterValue(t, r.created.WithLabelValues("foreign")))
	assert.Equal(t, float64(1), counterValue(t, r.released.WithLabelValues("anonymous")))
	assert.Equal(t, float64(0), gaugeValue(t, r.mapped))
	assert.Equal(t, float64(1), counterValue(t, r.volatile.WithLabelValues("volatile")))
	assert.Equal(t, float64(1), counterValue(t, r.purged))
	assert.Equal(t, float64(1), gaugeValue(t, r.segments))
}

func TestRecorderSharesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg, nil, nil)
	require.NoError(t, err)
	b, err := New(reg, nil, nil)
	require.NoError(t, err)

	a.Purged(context.Background())
	b.Purged(context.Background())
	assert.Equal(t, float64(2), counterValue(t, a.purged))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	ctx := context.Background()
	r.BitmapCreated(ctx, "shared", 1)
	r.BitmapReleased(ctx, "shared", 1)
	r.Volatile("nonvolatile")
	r.Purged(ctx)
	r.SegmentMapped(ctx, 1)
	ctx2, span := r.Start(ctx, "noop")
	span.End()
	assert.Equal(t, ctx, ctx2)
}
