package bitmap

import "errors"

var (
	// ErrAllocationFailed is returned when the OS refuses to map pixel memory.
	ErrAllocationFailed = errors.New("bitmap: allocation failed")
	ErrEmptySize        = errors.New("bitmap: width and height must be positive")
	ErrInvalidFormat    = errors.New("bitmap: invalid pixel format")
	// ErrPaletteForbidden is returned when an Indexed8 bitmap is requested
	// on a file or shared backing.
	ErrPaletteForbidden  = errors.New("bitmap: backing cannot carry a palette")
	ErrUnsupportedFormat = errors.New("bitmap: operation not supported for this format")
	ErrInvalidStride     = errors.New("bitmap: stride smaller than a row")
	ErrShortBuffer       = errors.New("bitmap: backing memory smaller than stride*height")
	ErrNotAnonymous      = errors.New("bitmap: operation requires an anonymous backing")
	ErrReadOnly          = errors.New("bitmap: backing is read-only")
	ErrPaletteIndex      = errors.New("bitmap: palette index out of range")
	ErrNilSegment        = errors.New("bitmap: nil shared segment")
	ErrReleased          = errors.New("bitmap: bitmap already released")
)
