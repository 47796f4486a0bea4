// Package decode turns self-describing image files (PNG, GIF, JPEG, BMP,
// TIFF and WebP) into raw pixel rows ready to be copied into a bitmap.
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/valyala/bytebufferpool"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// PaletteSize is the length of a decoded palette. Shorter source palettes
// are padded with opaque black.
const PaletteSize = 256

// ErrUnsupported is returned for data no registered decoder recognizes.
var ErrUnsupported = errors.New("decode: unsupported image format")

// Image is a decoded image.
//
// Indexed images hold one palette index per pixel. All others hold one
// native-endian 0xAARRGGBB word per pixel, non-premultiplied.
type Image struct {
	Width  int
	Height int
	// Indexed is set for paletted sources; Palette then has PaletteSize entries.
	Indexed bool
	// HasAlpha is set when some pixel is not fully opaque.
	HasAlpha bool
	Pix      []byte
	Stride   int
	Palette  []uint32
	// Kind is the name of the container format, "png" for example.
	Kind string
}

// File decodes the image stored at path.
func File(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("decode: read %s: %w", path, err)
	}
	return Decode(bytes.NewReader(buf.B))
}

// Decode decodes an image from r, inferring the format from its header.
func Decode(r io.Reader) (*Image, error) {
	src, kind, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupported
		}
		return nil, fmt.Errorf("decode: %w", err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("decode: empty %s image", kind)
	}
	if p, ok := src.(*image.Paletted); ok {
		return fromPaletted(p, kind), nil
	}
	return fromImage(src, kind), nil
}

func fromPaletted(p *image.Paletted, kind string) *Image {
	b := p.Bounds()
	w, h := b.Dx(), b.Dy()
	img := &Image{
		Width:   w,
		Height:  h,
		Indexed: true,
		Pix:     make([]byte, w*h),
		Stride:  w,
		Palette: make([]uint32, PaletteSize),
		Kind:    kind,
	}
	for y := 0; y < h; y++ {
		off := p.PixOffset(b.Min.X, b.Min.Y+y)
		copy(img.Pix[y*w:(y+1)*w], p.Pix[off:off+w])
	}
	for i := range img.Palette {
		img.Palette[i] = 0xff000000
	}
	for i, c := range p.Palette {
		if i >= PaletteSize {
			break
		}
		img.Palette[i] = pack(c)
		if img.Palette[i]>>24 != 0xff {
			img.HasAlpha = true
		}
	}
	return img
}

func fromImage(src image.Image, kind string) *Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	nrgba, ok := src.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), src, b.Min, draw.Src)
	}
	img := &Image{
		Width:  w,
		Height: h,
		Pix:    make([]byte, w*h*4),
		Stride: w * 4,
		Kind:   kind,
	}
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			s := row[x*4 : x*4+4]
			if s[3] != 0xff {
				img.HasAlpha = true
			}
			binary.NativeEndian.PutUint32(dst[x*4:], uint32(s[3])<<24|uint32(s[0])<<16|uint32(s[1])<<8|uint32(s[2]))
		}
	}
	return img
}

func pack(c color.Color) uint32 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return uint32(n.A)<<24 | uint32(n.R)<<16 | uint32(n.G)<<8 | uint32(n.B)
}
