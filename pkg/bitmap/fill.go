package bitmap

import (
	"sync"

	"github.com/srediag/plugin-bitmap/internal/logging"
)

// Fill sets every pixel of a 32-bit bitmap to c. Bitmaps of at least
// Config.ParallelFillThreshold pixels are filled in bands on the allocator's
// worker pool.
func (b *Bitmap) Fill(c Color) error {
	if b.format.HasPalette() {
		return ErrUnsupportedFormat
	}
	if b.backing.kind() == BackingFile {
		return ErrReadOnly
	}
	h := b.size.Height
	if a := b.alloc; a != nil && a.pool != nil && b.size.Width*h >= a.config.ParallelFillThreshold {
		b.fillParallel(c)
		return nil
	}
	b.fillRows(c, 0, h)
	return nil
}

// fillRows fills rows [y0, y1) by doubling the first row in place and
// copying it down.
func (b *Bitmap) fillRows(c Color, y0, y1 int) {
	if y0 >= y1 {
		return
	}
	first := b.Scanline32(y0)
	first[0] = uint32(c)
	for n := 1; n < len(first); n *= 2 {
		copy(first[n:], first[:n])
	}
	pattern := b.Scanline(y0)[:b.size.Width*4]
	for y := y0 + 1; y < y1; y++ {
		copy(b.Scanline(y), pattern)
	}
}

func (b *Bitmap) fillParallel(c Color) {
	pool := b.alloc.pool
	h := b.size.Height
	workers := pool.Cap()
	if workers > h {
		workers = h
	}
	band := (h + workers - 1) / workers

	var wg sync.WaitGroup
	for y := 0; y < h; y += band {
		y0, y1 := y, min(y+band, h)
		wg.Add(1)
		task := func() {
			defer wg.Done()
			b.fillRows(c, y0, y1)
		}
		if err := pool.Submit(task); err != nil {
			logging.Internal.Debugf("bitmap: fill pool: %v, filling rows %d-%d inline", err, y0, y1)
			task()
		}
	}
	wg.Wait()
}
