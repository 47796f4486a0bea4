package bitmap

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ToShareable returns a bitmap backed by a shared memory segment with the
// same pixels as b. A bitmap that is already shared is returned itself with
// an extra reference. Otherwise the pixels are copied into a new segment,
// and an Indexed8 bitmap is flattened to RGBA32 through its palette.
//
// The caller must Close the result in both cases.
func (b *Bitmap) ToShareable(ctx context.Context) (*Bitmap, error) {
	if b.backing.kind() == BackingShared {
		if b.Retain() == nil {
			return nil, ErrReleased
		}
		return b, nil
	}
	if b.RefCount() <= 0 {
		return nil, ErrReleased
	}
	a := b.alloc
	if a == nil {
		a = Default()
	}
	ctx, span := a.recorder.Start(ctx, "bitmap.ToShareable",
		attribute.String("bitmap.format", b.format.String()),
		attribute.String("bitmap.size", b.size.String()),
		attribute.String("bitmap.backing", b.backing.kind().String()))
	defer span.End()

	out, err := b.copyToSegment(ctx, a)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("shm.segment", out.Segment().ID()))
	return out, nil
}

func (b *Bitmap) copyToSegment(ctx context.Context, a *Allocator) (*Bitmap, error) {
	manager, err := a.Segments()
	if err != nil {
		return nil, fmt.Errorf("bitmap: shared memory: %w", err)
	}
	format := b.format
	if format.HasPalette() {
		format = RGBA32
	}
	// peers rebuild the bitmap with CreateWithSharedBuffer, which assumes
	// the minimum stride
	stride := MinimumStride(format, b.size.Width)
	segment, err := manager.Create(ctx, stride*b.size.Height)
	if err != nil {
		return nil, fmt.Errorf("bitmap: shared memory: %w", err)
	}
	// the new bitmap takes over the creation reference
	out := newBitmap(ctx, a, format, b.size, stride, segment.Data(), &sharedBacking{segment: segment})
	if !b.format.HasPalette() {
		row := b.size.Width * format.BytesPerPixel()
		for y := 0; y < b.size.Height; y++ {
			copy(out.Scanline(y), b.Scanline(y)[:row])
		}
		return out, nil
	}
	for y := 0; y < b.size.Height; y++ {
		src, dst := b.Scanline(y), out.Scanline32(y)
		for x := range dst {
			dst[x] = uint32(b.palette[src[x]])
		}
	}
	return out, nil
}
