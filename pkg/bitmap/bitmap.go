package bitmap

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
	"unsafe"

	"github.com/srediag/plugin-bitmap/internal/logging"
	internalshm "github.com/srediag/plugin-bitmap/internal/shm"
	"github.com/srediag/plugin-bitmap/pkg/shm"
)

// Bitmap is a pixel buffer over one of four backings. Its format, size and
// stride never change; pixels and palette entries are mutable unless the
// backing is read-only.
//
// A Bitmap starts with one reference. Retain adds one, Close drops one; the
// palette and backing are released with the last reference. Pixel memory is
// not synchronized: concurrent writers must coordinate themselves.
type Bitmap struct {
	format  Format
	size    Size
	stride  int
	data    []byte
	palette []Color
	backing backing
	refs    atomic.Int32
	alloc   *Allocator
}

func newBitmap(ctx context.Context, a *Allocator, format Format, size Size, stride int, data []byte, b backing) *Bitmap {
	bm := &Bitmap{
		format:  format,
		size:    size,
		stride:  stride,
		data:    data[:stride*size.Height],
		backing: b,
		alloc:   a,
	}
	if format.HasPalette() {
		bm.palette = make([]Color, PaletteSize)
	}
	bm.refs.Store(1)
	a.track(ctx, bm)
	return bm
}

// Format returns the pixel format.
func (b *Bitmap) Format() Format { return b.format }

// Size returns the dimensions.
func (b *Bitmap) Size() Size { return b.size }

// Width returns the width in pixels.
func (b *Bitmap) Width() int { return b.size.Width }

// Height returns the height in pixels.
func (b *Bitmap) Height() int { return b.size.Height }

// Stride returns the number of bytes between the starts of two rows.
func (b *Bitmap) Stride() int { return b.stride }

// SizeInBytes returns Stride()*Height().
func (b *Bitmap) SizeInBytes() int { return b.stride * b.size.Height }

// Backing reports where the pixels live.
func (b *Bitmap) Backing() BackingKind { return b.backing.kind() }

// Bytes returns the whole pixel region, SizeInBytes() long.
func (b *Bitmap) Bytes() []byte { return b.data }

// Segment returns the shared segment behind a shared bitmap, or nil. The
// caller does not get a reference; use Ref to keep it.
func (b *Bitmap) Segment() *shm.Segment {
	if sb, ok := b.backing.(*sharedBacking); ok {
		return sb.segment
	}
	return nil
}

// Scanline returns row y. y must be in [0, Height()).
func (b *Bitmap) Scanline(y int) []byte {
	off := y * b.stride
	return b.data[off : off+b.stride : off+b.stride]
}

// Scanline32 returns the Width() pixels of row y of a 32-bit bitmap.
func (b *Bitmap) Scanline32(y int) []uint32 {
	row := b.Scanline(y)
	return unsafe.Slice((*uint32)(unsafe.Pointer(&row[0])), b.size.Width)
}

// Palette returns the palette of an Indexed8 bitmap and nil otherwise.
// Entries may be modified in place.
func (b *Bitmap) Palette() []Color { return b.palette }

// PaletteColor returns palette entry i, or 0 without a palette.
func (b *Bitmap) PaletteColor(i uint8) Color {
	if b.palette == nil {
		return 0
	}
	return b.palette[i]
}

// SetPaletteColor sets palette entry i.
func (b *Bitmap) SetPaletteColor(i int, c Color) error {
	if b.palette == nil {
		return ErrUnsupportedFormat
	}
	if i < 0 || i >= len(b.palette) {
		return ErrPaletteIndex
	}
	b.palette[i] = c
	return nil
}

// Pixel returns the color at (x, y). Indexed8 pixels are resolved through
// the palette; RGB32 pixels are reported opaque.
func (b *Bitmap) Pixel(x, y int) Color {
	switch b.format {
	case Indexed8:
		return b.palette[b.Scanline(y)[x]]
	case RGB32:
		return Color(b.Scanline32(y)[x]).Opaque()
	default:
		return Color(b.Scanline32(y)[x])
	}
}

// SetPixel stores c at (x, y) of a 32-bit bitmap.
func (b *Bitmap) SetPixel(x, y int, c Color) error {
	if b.format.HasPalette() {
		return ErrUnsupportedFormat
	}
	if b.backing.kind() == BackingFile {
		return ErrReadOnly
	}
	b.Scanline32(y)[x] = uint32(c)
	return nil
}

// Index returns the palette index at (x, y) of an Indexed8 bitmap.
func (b *Bitmap) Index(x, y int) uint8 {
	return b.Scanline(y)[x]
}

// SetIndex stores palette index i at (x, y) of an Indexed8 bitmap.
func (b *Bitmap) SetIndex(x, y int, i uint8) error {
	if !b.format.HasPalette() {
		return ErrUnsupportedFormat
	}
	b.Scanline(y)[x] = i
	return nil
}

// Bounds implements image.Image.
func (b *Bitmap) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.size.Width, b.size.Height)
}

// ColorModel implements image.Image.
func (b *Bitmap) ColorModel() color.Model {
	return ColorModel
}

// At implements image.Image.
func (b *Bitmap) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(b.Bounds()) {
		return Color(0)
	}
	return b.Pixel(x, y)
}

// SetMmapName renames the mapping behind an anonymous bitmap in
// /proc/self/maps. It has no effect on behavior.
func (b *Bitmap) SetMmapName(name string) error {
	if b.backing.kind() != BackingAnonymous {
		return ErrNotAnonymous
	}
	return internalshm.NameRegion(b.data, name)
}

// Retain takes another reference and returns b, or nil once b has been
// released.
func (b *Bitmap) Retain() *Bitmap {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return nil
		}
		if b.refs.CompareAndSwap(n, n+1) {
			return b
		}
	}
}

// RefCount returns the number of live references.
func (b *Bitmap) RefCount() int32 {
	return b.refs.Load()
}

// Close drops one reference. The last one frees the palette and releases the
// backing: anonymous memory is unmapped, files are unmapped, shared segments
// lose this bitmap's reference and foreign memory is left alone. Closing a
// released bitmap is a no-op.
func (b *Bitmap) Close() error {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return nil
		}
		if b.refs.CompareAndSwap(n, n-1) {
			if n > 1 {
				return nil
			}
			break
		}
	}
	kind := b.backing.kind()
	owned := b.backing.owned()
	err := b.backing.release()
	b.data = nil
	b.palette = nil
	if b.alloc != nil {
		b.alloc.untrack(kind, owned)
	}
	if err != nil {
		logging.Internal.Errorf("bitmap: release %s %s backing: %v", b.size, kind, err)
		return err
	}
	logging.Internal.Tracef("bitmap: released %s %s backing", b.size, kind)
	return nil
}
