package bitmap

import (
	"errors"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	internalshm "github.com/srediag/plugin-bitmap/internal/shm"
	"github.com/srediag/plugin-bitmap/pkg/shm"
)

// VolatilityAdvisor tells the OS whether the content of one purgeable
// mapping may be discarded. Each purgeable bitmap gets its own advisor.
type VolatilityAdvisor interface {
	SetVolatile(data []byte) error
	SetNonVolatile(data []byte) (intact bool, err error)
}

// Config controls an Allocator.
type Config struct {
	// NameMappings tags anonymous mappings as "bitmap [WxH]" in /proc/self/maps.
	NameMappings bool
	// ParallelFillThreshold is the pixel count from which Fill splits the
	// rows across the worker pool. Zero disables parallel fill.
	ParallelFillThreshold int
	// FillWorkers is the size of the fill worker pool.
	FillWorkers int
	// Shm configures the segments created by ToShareable.
	Shm *shm.Config

	Registerer prometheus.Registerer
	Meter      metric.Meter
	Tracer     trace.Tracer

	// NewAdvisor returns the advisor of a new purgeable bitmap.
	NewAdvisor func() VolatilityAdvisor
}

const defaultParallelFillThreshold = 1 << 20

// DefaultConfig returns a Config with mapping names on, metrics unregistered
// and the platform volatility advisor.
func DefaultConfig() *Config {
	return &Config{
		NameMappings:          true,
		ParallelFillThreshold: defaultParallelFillThreshold,
		FillWorkers:           runtime.GOMAXPROCS(0),
		Shm:                   shm.DefaultConfig(),
		NewAdvisor:            defaultAdvisor,
	}
}

func defaultAdvisor() VolatilityAdvisor {
	return internalshm.NewAdvisor()
}

// VerifyConfig checks c for values NewAllocator cannot work with.
func VerifyConfig(c *Config) error {
	if c == nil {
		return errors.New("bitmap: nil config")
	}
	if c.ParallelFillThreshold < 0 {
		return errors.New("bitmap: ParallelFillThreshold must not be negative")
	}
	if c.ParallelFillThreshold > 0 && c.FillWorkers <= 0 {
		return errors.New("bitmap: FillWorkers must be positive when parallel fill is enabled")
	}
	if c.Shm != nil {
		if err := shm.VerifyConfig(c.Shm); err != nil {
			return err
		}
	}
	return nil
}
