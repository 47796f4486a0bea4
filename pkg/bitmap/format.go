package bitmap

import (
	"fmt"
	"image/color"
	"strings"
)

// Format describes how pixels are laid out in a row.
type Format uint8

const (
	// Invalid is the zero Format and is rejected by every constructor.
	Invalid Format = iota
	// Indexed8 stores one palette index per pixel.
	Indexed8
	// RGB32 stores 0xXXRRGGBB words; the top byte is ignored.
	RGB32
	// RGBA32 stores non-premultiplied 0xAARRGGBB words.
	RGBA32
)

// PaletteSize is the number of entries of an Indexed8 palette.
const PaletteSize = 256

// StrideAlignment is the byte alignment of every row.
const StrideAlignment = 16

func (f Format) String() string {
	switch f {
	case Indexed8:
		return "Indexed8"
	case RGB32:
		return "RGB32"
	case RGBA32:
		return "RGBA32"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// ParseFormat parses a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "indexed8", "indexed":
		return Indexed8, nil
	case "rgb32", "rgb":
		return RGB32, nil
	case "rgba32", "rgba":
		return RGBA32, nil
	}
	return Invalid, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f == Indexed8 || f == RGB32 || f == RGBA32
}

// BytesPerPixel returns the size of one pixel, or 0 for an invalid format.
func (f Format) BytesPerPixel() int {
	switch f {
	case Indexed8:
		return 1
	case RGB32, RGBA32:
		return 4
	default:
		return 0
	}
}

// HasPalette reports whether the format indexes a palette.
func (f Format) HasPalette() bool {
	return f == Indexed8
}

// Size is a width×height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// Sz is shorthand for Size{w, h}.
func Sz(w, h int) Size {
	return Size{Width: w, Height: h}
}

// IsEmpty reports whether either dimension is not strictly positive.
func (s Size) IsEmpty() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// MinimumStride returns width*BytesPerPixel rounded up to StrideAlignment.
func MinimumStride(f Format, width int) int {
	return roundUp(width*f.BytesPerPixel(), StrideAlignment)
}

func roundUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// Color is a packed non-premultiplied 0xAARRGGBB value.
type Color uint32

// NewColor packs r, g, b and a.
func NewColor(r, g, b, a uint8) Color {
	return Color(uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

func (c Color) Red() uint8   { return uint8(c >> 16) }
func (c Color) Green() uint8 { return uint8(c >> 8) }
func (c Color) Blue() uint8  { return uint8(c) }
func (c Color) Alpha() uint8 { return uint8(c >> 24) }

// Opaque returns c with a full alpha channel.
func (c Color) Opaque() Color {
	return c | 0xff000000
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	return color.NRGBA{R: c.Red(), G: c.Green(), B: c.Blue(), A: c.Alpha()}.RGBA()
}

// ColorModel converts any color.Color to a Color.
var ColorModel = color.ModelFunc(func(c color.Color) color.Color {
	return ColorFrom(c)
})

// ColorFrom converts c to a packed Color.
func ColorFrom(c color.Color) Color {
	if v, ok := c.(Color); ok {
		return v
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return NewColor(n.R, n.G, n.B, n.A)
}
