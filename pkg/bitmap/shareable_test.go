//go:build unix

package bitmap

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/srediag/plugin-bitmap/pkg/shm"
)

func (s *BitmapTestSuite) TestCreateWithSharedBuffer() {
	manager, err := s.alloc.Segments()
	s.Require().NoError(err)
	segment, err := manager.Create(s.ctx, 64)
	s.Require().NoError(err)

	b, err := s.alloc.CreateWithSharedBuffer(RGBA32, segment, Sz(4, 4))
	s.Require().NoError(err)
	s.Equal(BackingShared, b.Backing())
	s.Same(segment, b.Segment())
	s.Equal(int32(2), segment.RefCount())

	s.Require().NoError(b.SetPixel(1, 0, 0xCAFEBABE))
	s.Equal(b.Bytes()[4:8], segment.Data()[4:8])

	s.Require().NoError(b.Close())
	s.Equal(int32(1), segment.RefCount())
	s.Require().NoError(segment.Release())
	s.Equal(0, manager.Len())

	_, err = s.alloc.CreateWithSharedBuffer(RGBA32, nil, Sz(4, 4))
	s.ErrorIs(err, ErrNilSegment)
}

func (s *BitmapTestSuite) TestCreateWithSharedBufferRejects() {
	manager, err := s.alloc.Segments()
	s.Require().NoError(err)
	segment, err := manager.Create(s.ctx, 32)
	s.Require().NoError(err)
	defer segment.Release()

	_, err = s.alloc.CreateWithSharedBuffer(Indexed8, segment, Sz(2, 2))
	s.ErrorIs(err, ErrPaletteForbidden)
	_, err = s.alloc.CreateWithSharedBuffer(RGB32, segment, Sz(4, 4))
	s.ErrorIs(err, ErrShortBuffer)
	s.Equal(int32(1), segment.RefCount())
}

func (s *BitmapTestSuite) TestToShareableCopies() {
	b := s.create(RGBA32, Sz(5, 3))
	defer b.Close()
	s.Require().NoError(b.Fill(0x7F010203))

	shared, err := b.ToShareable(s.ctx)
	s.Require().NoError(err)
	defer shared.Close()

	s.Equal(BackingShared, shared.Backing())
	s.Equal(b.Format(), shared.Format())
	s.Equal(b.Size(), shared.Size())
	s.Equal(b.Stride(), shared.Stride())
	s.Equal(b.Bytes(), shared.Bytes())
	s.Equal(int32(1), shared.Segment().RefCount())

	s.Require().NoError(shared.SetPixel(0, 0, 0))
	s.Equal(Color(0x7F010203), b.Pixel(0, 0))
	s.Equal(float64(1), s.metric("shm_segments_live", ""))
}

// peer rebuilds shared the way another process would: from its segment and
// size alone.
func (s *BitmapTestSuite) peer(shared *Bitmap) *Bitmap {
	b, err := s.alloc.CreateWithSharedBuffer(shared.Format(), shared.Segment(), shared.Size())
	s.Require().NoError(err)
	return b
}

func (s *BitmapTestSuite) TestToShareableRepacksForeignStride() {
	for _, stride := range []int{12, 64} {
		mem := make([]byte, stride*2)
		b, err := s.alloc.CreateWrapper(RGBA32, Sz(3, 2), stride, mem)
		s.Require().NoError(err)
		s.Require().NoError(b.SetPixel(0, 1, 0xAABBCCDD))
		s.Require().NoError(b.SetPixel(2, 1, 0x11223344))
		s.Require().NoError(b.SetPixel(1, 0, 0x55667788))

		shared, err := b.ToShareable(s.ctx)
		s.Require().NoError(err)
		s.Require().NoError(b.Close())
		s.Equal(MinimumStride(RGBA32, 3), shared.Stride(), "stride %d", stride)
		s.Zero(shared.Stride() % 16)

		peer := s.peer(shared)
		s.Equal(Color(0xAABBCCDD), peer.Pixel(0, 1), "stride %d", stride)
		s.Equal(Color(0x11223344), peer.Pixel(2, 1), "stride %d", stride)
		s.Equal(Color(0x55667788), peer.Pixel(1, 0), "stride %d", stride)
		s.Equal(Color(0), peer.Pixel(0, 0))
		s.Require().NoError(peer.Close())
		s.Require().NoError(shared.Close())
	}
	manager, err := s.alloc.Segments()
	s.Require().NoError(err)
	s.Equal(0, manager.Len())
}

func (s *BitmapTestSuite) TestToShareableFromRawFile() {
	src := s.create(RGB32, Sz(3, 2))
	s.Require().NoError(src.SetPixel(2, 1, 0xFF0A0B0C))
	path := filepath.Join(s.T().TempDir(), "pixels.raw")
	s.Require().NoError(os.WriteFile(path, src.Bytes(), 0o600))
	s.Require().NoError(src.Close())

	b, err := s.alloc.LoadRawFile(s.ctx, path, RGB32, Sz(3, 2))
	s.Require().NoError(err)
	shared, err := b.ToShareable(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(b.Close())
	defer shared.Close()

	s.Equal(BackingShared, shared.Backing())
	s.Zero(shared.Stride() % 16)
	s.Require().NoError(shared.SetPixel(0, 0, 0xFF010101))

	peer := s.peer(shared)
	defer peer.Close()
	s.Equal(Color(0xFF0A0B0C), peer.Pixel(2, 1))
	s.Equal(Color(0xFF010101), peer.Pixel(0, 0))
}

func (s *BitmapTestSuite) TestToShareableOfReleased() {
	b := s.create(RGBA32, Sz(2, 2))
	s.Require().NoError(b.Close())
	_, err := b.ToShareable(s.ctx)
	s.ErrorIs(err, ErrReleased)

	b = s.create(RGBA32, Sz(2, 2))
	shared, err := b.ToShareable(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(b.Close())
	s.Require().NoError(shared.Close())
	_, err = shared.ToShareable(s.ctx)
	s.ErrorIs(err, ErrReleased)
	s.Equal(int32(0), shared.RefCount())
}

func (s *BitmapTestSuite) TestToShareableOfSharedRetains() {
	b := s.create(RGB32, Sz(2, 2))
	shared, err := b.ToShareable(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(b.Close())

	again, err := shared.ToShareable(s.ctx)
	s.Require().NoError(err)
	s.Same(shared, again)
	s.Equal(int32(2), shared.RefCount())
	s.Require().NoError(again.Close())
	s.Require().NoError(shared.Close())

	manager, err := s.alloc.Segments()
	s.Require().NoError(err)
	s.Equal(0, manager.Len())
	s.Equal(int64(0), s.alloc.MappedBytes())
}

func (s *BitmapTestSuite) TestToShareableFlattensPalette() {
	b := s.create(Indexed8, Sz(3, 2))
	defer b.Close()
	s.Require().NoError(b.SetPaletteColor(1, 0x80FF0000))
	s.Require().NoError(b.SetIndex(2, 1, 1))

	shared, err := b.ToShareable(s.ctx)
	s.Require().NoError(err)
	defer shared.Close()

	s.Equal(RGBA32, shared.Format())
	s.Equal(16, shared.Stride())
	s.Nil(shared.Palette())
	s.Equal(Color(0x80FF0000), shared.Pixel(2, 1))
	s.Equal(Color(0), shared.Pixel(0, 0))
}

func (s *BitmapTestSuite) TestShareableThroughLookup() {
	b := s.create(RGBA32, Sz(4, 4))
	defer b.Close()
	shared, err := b.ToShareable(s.ctx)
	s.Require().NoError(err)
	defer shared.Close()

	manager, err := s.alloc.Segments()
	s.Require().NoError(err)
	segment, ok := manager.Lookup(shared.Segment().ID())
	s.Require().True(ok)
	peer, err := s.alloc.CreateWithSharedBuffer(RGBA32, segment, shared.Size())
	s.Require().NoError(err)
	s.Require().NoError(segment.Release())
	defer peer.Close()

	s.Require().NoError(shared.SetPixel(3, 3, 0x01020304))
	s.Equal(Color(0x01020304), peer.Pixel(3, 3))
}

func (s *BitmapTestSuite) TestLoadFromFile() {
	p := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{
		color.NRGBA{A: 0xff},
		color.NRGBA{R: 0x11, G: 0x22, B: 0x33, A: 0xff},
	})
	p.SetColorIndex(1, 1, 1)
	var buf bytes.Buffer
	s.Require().NoError(png.Encode(&buf, p))
	path := filepath.Join(s.T().TempDir(), "p.png")
	s.Require().NoError(os.WriteFile(path, buf.Bytes(), 0o600))

	b, err := s.alloc.LoadFromFile(s.ctx, path)
	s.Require().NoError(err)
	defer b.Close()
	s.Equal(Indexed8, b.Format())
	s.Equal(BackingAnonymous, b.Backing())
	s.Len(b.Palette(), PaletteSize)
	s.Equal(uint8(1), b.Index(1, 1))
	s.Equal(Color(0xFF112233), b.Pixel(1, 1))

	s.Require().NoError(os.WriteFile(path, []byte("nope"), 0o600))
	_, err = s.alloc.LoadFromFile(s.ctx, path)
	s.Error(err)
}

func (s *BitmapTestSuite) TestSegmentConfigIsUsed() {
	manager, err := s.alloc.Segments()
	s.Require().NoError(err)
	s.Equal(shm.MemMapTypeDevShmFile, manager.Config().MemMapType)
}
