package bitmap

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/srediag/plugin-bitmap/internal/logging"
	internalshm "github.com/srediag/plugin-bitmap/internal/shm"
	"github.com/srediag/plugin-bitmap/internal/telemetry"
	"github.com/srediag/plugin-bitmap/pkg/decode"
	"github.com/srediag/plugin-bitmap/pkg/shm"
)

// Allocator creates bitmaps and owns what they share: the segment manager
// used by ToShareable, the fill worker pool and the telemetry recorder.
type Allocator struct {
	config   *Config
	recorder *telemetry.Recorder
	pool     *ants.Pool

	shmOnce sync.Once
	shm     atomic.Pointer[shm.Manager]
	shmErr  error

	mapped atomic.Int64
	live   atomic.Int64
}

// NewAllocator validates config and returns an Allocator. A nil config uses
// DefaultConfig.
func NewAllocator(config *Config) (*Allocator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	recorder, err := telemetry.New(config.Registerer, config.Meter, config.Tracer)
	if err != nil {
		return nil, fmt.Errorf("bitmap: telemetry: %w", err)
	}
	a := &Allocator{config: config, recorder: recorder}
	if config.ParallelFillThreshold > 0 {
		a.pool, err = ants.NewPool(config.FillWorkers, ants.WithPreAlloc(true))
		if err != nil {
			return nil, fmt.Errorf("bitmap: fill pool: %w", err)
		}
	}
	return a, nil
}

var (
	defaultOnce      sync.Once
	defaultAllocator *Allocator
)

// Default returns the allocator behind the package-level constructors.
func Default() *Allocator {
	defaultOnce.Do(func() {
		a, err := NewAllocator(DefaultConfig())
		if err != nil {
			logging.Internal.Warnf("bitmap: default config rejected (%v), sharing through %s", err, os.TempDir())
			config := DefaultConfig()
			config.Shm.MemMapType = shm.MemMapTypeDevShmFile
			config.Shm.Dir = os.TempDir()
			if a, err = NewAllocator(config); err != nil {
				panic(fmt.Sprintf("bitmap: default allocator: %v", err))
			}
		}
		defaultAllocator = a
	})
	return defaultAllocator
}

// Config returns the allocator's configuration.
func (a *Allocator) Config() *Config {
	return a.config
}

// Segments returns the manager of the segments created by ToShareable.
func (a *Allocator) Segments() (*shm.Manager, error) {
	a.shmOnce.Do(func() {
		m, err := shm.NewManager(a.config.Shm, a.recorder)
		if err != nil {
			a.shmErr = err
			return
		}
		a.shm.Store(m)
	})
	return a.shm.Load(), a.shmErr
}

// MappedBytes returns the bytes currently mapped by bitmaps from this
// allocator plus its live segments.
func (a *Allocator) MappedBytes() int64 {
	n := a.mapped.Load()
	if m := a.shm.Load(); m != nil {
		n += m.MappedBytes()
	}
	return n
}

// Live returns the number of bitmaps that still hold a reference.
func (a *Allocator) Live() int64 {
	return a.live.Load()
}

// Close stops the fill pool. Bitmaps stay valid; parallel fills fall back
// to the calling goroutine.
func (a *Allocator) Close() {
	if a.pool != nil {
		a.pool.Release()
	}
}

func (a *Allocator) track(ctx context.Context, b *Bitmap) {
	owned := b.backing.owned()
	a.mapped.Add(owned)
	a.live.Add(1)
	a.recorder.BitmapCreated(ctx, b.backing.kind().String(), owned)
	logging.Internal.Tracef("bitmap: created %s %s bitmap, stride %d, %s backing",
		b.size, b.format, b.stride, b.backing.kind())
}

func (a *Allocator) untrack(kind BackingKind, owned int64) {
	a.mapped.Add(-owned)
	a.live.Add(-1)
	a.recorder.BitmapReleased(context.Background(), kind.String(), owned)
}

func checkShape(format Format, size Size) error {
	if !format.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidFormat, format)
	}
	if size.IsEmpty() {
		return fmt.Errorf("%w: %s", ErrEmptySize, size)
	}
	return nil
}

func (a *Allocator) mapAnonymous(format Format, size Size) (int, []byte, error) {
	if err := checkShape(format, size); err != nil {
		return 0, nil, err
	}
	stride := MinimumStride(format, size.Width)
	data, err := internalshm.MapAnonymous(stride * size.Height)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", ErrAllocationFailed, size, format, err)
	}
	if a.config.NameMappings {
		if err := internalshm.NameRegion(data, "bitmap ["+size.String()+"]"); err != nil {
			logging.Internal.Debugf("bitmap: name mapping: %v", err)
		}
	}
	return stride, data, nil
}

// Create returns a zeroed bitmap in a private anonymous mapping.
func (a *Allocator) Create(ctx context.Context, format Format, size Size) (*Bitmap, error) {
	stride, data, err := a.mapAnonymous(format, size)
	if err != nil {
		return nil, err
	}
	return newBitmap(ctx, a, format, size, stride, data, &anonymousBacking{data: data}), nil
}

// CreatePurgeable is Create for a bitmap whose content the OS may discard
// while it is volatile.
func (a *Allocator) CreatePurgeable(ctx context.Context, format Format, size Size) (*PurgeableBitmap, error) {
	stride, data, err := a.mapAnonymous(format, size)
	if err != nil {
		return nil, err
	}
	newAdvisor := a.config.NewAdvisor
	if newAdvisor == nil {
		newAdvisor = defaultAdvisor
	}
	return &PurgeableBitmap{
		Bitmap:  newBitmap(ctx, a, format, size, stride, data, &anonymousBacking{data: data}),
		advisor: newAdvisor(),
	}, nil
}

// CreateWrapper returns a bitmap over caller-owned memory. data must stay
// valid until the bitmap is released; nothing is freed on release.
func (a *Allocator) CreateWrapper(format Format, size Size, stride int, data []byte) (*Bitmap, error) {
	if err := checkShape(format, size); err != nil {
		return nil, err
	}
	if stride < size.Width*format.BytesPerPixel() {
		return nil, fmt.Errorf("%w: %d for %s %s", ErrInvalidStride, stride, size, format)
	}
	if len(data) < stride*size.Height {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(data), stride*size.Height)
	}
	return newBitmap(context.Background(), a, format, size, stride, data, foreignBacking{}), nil
}

// LoadRawFile maps the raw pixels stored in the file at path read-only.
// The file must hold at least MinimumStride(format, width)*height bytes.
func (a *Allocator) LoadRawFile(ctx context.Context, path string, format Format, size Size) (*Bitmap, error) {
	if err := checkShape(format, size); err != nil {
		return nil, err
	}
	if format.HasPalette() {
		return nil, fmt.Errorf("%w: %s file", ErrPaletteForbidden, format)
	}
	f, err := internalshm.MapFile(path)
	if err != nil {
		return nil, fmt.Errorf("bitmap: map %s: %w", path, err)
	}
	stride := MinimumStride(format, size.Width)
	if f.Size() < stride*size.Height {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s has %d bytes, need %d", ErrShortBuffer, path, f.Size(), stride*size.Height)
	}
	return newBitmap(ctx, a, format, size, stride, f.Data(), &fileBacking{file: f}), nil
}

// LoadFromFile decodes the image at path into a new anonymous bitmap.
// Paletted images become Indexed8, images with transparency RGBA32 and
// everything else RGB32.
func (a *Allocator) LoadFromFile(ctx context.Context, path string) (*Bitmap, error) {
	img, err := decode.File(path)
	if err != nil {
		return nil, fmt.Errorf("bitmap: load %s: %w", path, err)
	}
	format := RGB32
	switch {
	case img.Indexed:
		format = Indexed8
	case img.HasAlpha:
		format = RGBA32
	}
	b, err := a.Create(ctx, format, Sz(img.Width, img.Height))
	if err != nil {
		return nil, err
	}
	row := img.Width * format.BytesPerPixel()
	for y := 0; y < img.Height; y++ {
		off := y * img.Stride
		copy(b.Scanline(y), img.Pix[off:off+row])
	}
	for i, c := range img.Palette {
		if i >= len(b.palette) {
			break
		}
		b.palette[i] = Color(c)
	}
	return b, nil
}

// CreateWithSharedBuffer returns a bitmap over segment. The bitmap takes
// its own reference on segment; the caller keeps theirs.
func (a *Allocator) CreateWithSharedBuffer(format Format, segment *shm.Segment, size Size) (*Bitmap, error) {
	if segment == nil {
		return nil, ErrNilSegment
	}
	if err := checkShape(format, size); err != nil {
		return nil, err
	}
	if format.HasPalette() {
		return nil, fmt.Errorf("%w: %s segment", ErrPaletteForbidden, format)
	}
	stride := MinimumStride(format, size.Width)
	if segment.Size() < stride*size.Height {
		return nil, fmt.Errorf("%w: segment has %d bytes, need %d", ErrShortBuffer, segment.Size(), stride*size.Height)
	}
	segment = segment.Ref()
	return newBitmap(context.Background(), a, format, size, stride, segment.Data(), &sharedBacking{segment: segment}), nil
}

// Create calls Default().Create.
func Create(ctx context.Context, format Format, size Size) (*Bitmap, error) {
	return Default().Create(ctx, format, size)
}

// CreatePurgeable calls Default().CreatePurgeable.
func CreatePurgeable(ctx context.Context, format Format, size Size) (*PurgeableBitmap, error) {
	return Default().CreatePurgeable(ctx, format, size)
}

// CreateWrapper calls Default().CreateWrapper.
func CreateWrapper(format Format, size Size, stride int, data []byte) (*Bitmap, error) {
	return Default().CreateWrapper(format, size, stride, data)
}

// LoadRawFile calls Default().LoadRawFile.
func LoadRawFile(ctx context.Context, path string, format Format, size Size) (*Bitmap, error) {
	return Default().LoadRawFile(ctx, path, format, size)
}

// LoadFromFile calls Default().LoadFromFile.
func LoadFromFile(ctx context.Context, path string) (*Bitmap, error) {
	return Default().LoadFromFile(ctx, path)
}

// CreateWithSharedBuffer calls Default().CreateWithSharedBuffer.
func CreateWithSharedBuffer(format Format, segment *shm.Segment, size Size) (*Bitmap, error) {
	return Default().CreateWithSharedBuffer(format, segment, size)
}
