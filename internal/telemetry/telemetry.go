// Package telemetry records bitmap and segment lifecycle events to Prometheus
// and OpenTelemetry.
package telemetry

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/plugin-bitmap"

// Recorder fans lifecycle events out to both metric backends. A nil
// *Recorder records nothing.
type Recorder struct {
	created  *prometheus.CounterVec
	released *prometheus.CounterVec
	mapped   prometheus.Gauge
	volatile *prometheus.CounterVec
	purged   prometheus.Counter
	segments prometheus.Gauge

	otelCreated  metric.Int64Counter
	otelMapped   metric.Int64UpDownCounter
	otelPurged   metric.Int64Counter
	otelSegments metric.Int64UpDownCounter

	tracer trace.Tracer
}

// New builds a Recorder. reg, meter and tracer may each be nil.
func New(reg prometheus.Registerer, meter metric.Meter, tracer trace.Tracer) (*Recorder, error) {
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	r := &Recorder{tracer: tracer}

	r.created = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bitmap_created_total",
		Help: "Total number of bitmaps created, by backing.",
	}, []string{"backing"})
	r.released = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bitmap_released_total",
		Help: "Total number of bitmaps whose last reference was closed, by backing.",
	}, []string{"backing"})
	r.mapped = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bitmap_mapped_bytes",
		Help: "Bytes of pixel memory currently mapped by owned bitmaps.",
	})
	r.volatile = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bitmap_volatile_transitions_total",
		Help: "Volatility transitions of purgeable bitmaps, by direction.",
	}, []string{"direction"})
	r.purged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bitmap_purged_total",
		Help: "Purgeable bitmaps whose content was discarded while volatile.",
	})
	r.segments = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shm_segments_live",
		Help: "Shared memory segments currently mapped.",
	})

	if reg != nil {
		var err error
		if r.created, err = register(reg, r.created); err != nil {
			return nil, err
		}
		if r.released, err = register(reg, r.released); err != nil {
			return nil, err
		}
		if r.mapped, err = register(reg, r.mapped); err != nil {
			return nil, err
		}
		if r.volatile, err = register(reg, r.volatile); err != nil {
			return nil, err
		}
		if r.purged, err = register(reg, r.purged); err != nil {
			return nil, err
		}
		if r.segments, err = register(reg, r.segments); err != nil {
			return nil, err
		}
	}

	var err error
	if r.otelCreated, err = meter.Int64Counter("bitmap.created",
		metric.WithDescription("Bitmaps created, by backing.")); err != nil {
		return nil, err
	}
	if r.otelMapped, err = meter.Int64UpDownCounter("bitmap.mapped_bytes",
		metric.WithDescription("Bytes of pixel memory currently mapped."),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if r.otelPurged, err = meter.Int64Counter("bitmap.purged",
		metric.WithDescription("Purgeable bitmaps discarded while volatile.")); err != nil {
		return nil, err
	}
	if r.otelSegments, err = meter.Int64UpDownCounter("shm.segments",
		metric.WithDescription("Shared memory segments currently mapped.")); err != nil {
		return nil, err
	}
	return r, nil
}

// register adds c to reg, reusing an identical collector that is already
// registered so several allocators can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// BitmapCreated records a new bitmap; bytes counts memory it owns.
func (r *Recorder) BitmapCreated(ctx context.Context, backing string, bytes int64) {
	if r == nil {
		return
	}
	r.created.WithLabelValues(backing).Inc()
	r.otelCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("backing", backing)))
	if bytes > 0 {
		r.mapped.Add(float64(bytes))
		r.otelMapped.Add(ctx, bytes)
	}
}

// BitmapReleased records the release of a bitmap's backing.
func (r *Recorder) BitmapReleased(ctx context.Context, backing string, bytes int64) {
	if r == nil {
		return
	}
	r.released.WithLabelValues(backing).Inc()
	if bytes > 0 {
		r.mapped.Sub(float64(bytes))
		r.otelMapped.Add(ctx, -bytes)
	}
}

// Volatile records a volatility transition; direction is "volatile" or
// "nonvolatile".
func (r *Recorder) Volatile(direction string) {
	if r == nil {
		return
	}
	r.volatile.WithLabelValues(direction).Inc()
}

// Purged records content discarded while volatile.
func (r *Recorder) Purged(ctx context.Context) {
	if r == nil {
		return
	}
	r.purged.Inc()
	r.otelPurged.Add(ctx, 1)
}

// SegmentMapped adjusts the live segment count by delta.
func (r *Recorder) SegmentMapped(ctx context.Context, delta int64) {
	if r == nil {
		return
	}
	r.segments.Add(float64(delta))
	r.otelSegments.Add(ctx, delta)
}

// Start opens a span. A nil Recorder returns a non-recording span.
func (r *Recorder) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if r == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
