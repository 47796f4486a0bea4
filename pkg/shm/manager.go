package shm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/srediag/plugin-bitmap/internal/logging"
	internalshm "github.com/srediag/plugin-bitmap/internal/shm"
	"github.com/srediag/plugin-bitmap/internal/telemetry"
)

var logger = logging.New("shm", nil)

// Manager creates, imports and tracks live segments.
type Manager struct {
	config   *Config
	segments cmap.ConcurrentMap[string, *Segment]
	seq      atomic.Uint64
	mapped   atomic.Int64
	recorder *telemetry.Recorder
}

// NewManager validates config and returns a Manager. A nil config uses
// DefaultConfig; a nil recorder records nothing.
func NewManager(config *Config, recorder *telemetry.Recorder) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	return &Manager{
		config:   config,
		segments: cmap.New[*Segment](),
		recorder: recorder,
	}, nil
}

// Config returns the manager's configuration.
func (m *Manager) Config() *Config {
	return m.config
}

func (m *Manager) nextName() string {
	return m.config.Prefix + strconv.Itoa(os.Getpid()) + "-" + strconv.FormatUint(m.seq.Add(1), 10)
}

// Create allocates a new zeroed segment of size bytes holding one reference.
func (m *Manager) Create(ctx context.Context, size int) (*Segment, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	var (
		region *internalshm.MappedRegion
		err    error
	)
	switch m.config.MemMapType {
	case MemMapTypeMemFd:
		region, err = internalshm.MemfdRegion(m.nextName(), size)
	default:
		region, err = m.createDevShm(ctx, size)
	}
	if err != nil {
		return nil, fmt.Errorf("create %d byte segment: %w", size, err)
	}
	return m.track(ctx, region, false), nil
}

func (m *Manager) createDevShm(ctx context.Context, size int) (*internalshm.MappedRegion, error) {
	var region *internalshm.MappedRegion
	op := func() error {
		name := m.nextName()
		path := filepath.Join(m.config.Dir, name)
		if !internalshm.CanCreateOnDevShm(uint64(size), path) {
			return backoff.Permanent(fmt.Errorf("%w: path %s size %d", ErrShareMemoryHadNotLeftSpace, path, size))
		}
		r, err := internalshm.DevShmRegion(ctx, path, size)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				logger.Warnf("segment path %s already exists, retrying", path)
				return err
			}
			return backoff.Permanent(err)
		}
		r.Name = name
		region = r
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.config.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, m.config.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return region, nil
}

// Import maps a segment received from another process. The segment takes
// ownership of fd and starts with one reference.
func (m *Manager) Import(ctx context.Context, fd int) (*Segment, error) {
	region, err := internalshm.MapFd(fd)
	if err != nil {
		return nil, fmt.Errorf("import segment fd %d: %w", fd, err)
	}
	return m.track(ctx, region, true), nil
}

func (m *Manager) track(ctx context.Context, region *internalshm.MappedRegion, imported bool) *Segment {
	s := &Segment{
		id:       strconv.FormatUint(m.seq.Add(1), 10),
		region:   region,
		manager:  m,
		imported: imported,
	}
	s.refs.Store(1)
	m.segments.Set(s.id, s)
	m.mapped.Add(int64(len(region.Addr)))
	m.recorder.SegmentMapped(ctx, 1)
	logger.Debugf("map segment %s name=%q fd=%d size=%d imported=%v",
		s.id, region.Name, region.Fd, len(region.Addr), imported)
	return s
}

func (m *Manager) forget(s *Segment, size int) {
	m.segments.Remove(s.id)
	m.mapped.Add(-int64(size))
	m.recorder.SegmentMapped(context.Background(), -1)
}

// Lookup returns the live segment with id holding a new reference for the
// caller.
func (m *Manager) Lookup(id string) (*Segment, bool) {
	s, ok := m.segments.Get(id)
	if !ok || !s.tryRef() {
		return nil, false
	}
	return s, true
}

// Len returns the number of live segments.
func (m *Manager) Len() int {
	return m.segments.Count()
}

// MappedBytes returns the total size of live segments.
func (m *Manager) MappedBytes() int64 {
	return m.mapped.Load()
}
