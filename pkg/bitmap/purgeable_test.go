//go:build unix

package bitmap

import (
	"errors"
)

// fakeAdvisor discards the content on SetVolatile when purge is set.
type fakeAdvisor struct {
	purge    bool
	volatile int
	restored int
	err      error
}

func (f *fakeAdvisor) SetVolatile(data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.volatile++
	if f.purge {
		clear(data)
	}
	return nil
}

func (f *fakeAdvisor) SetNonVolatile([]byte) (bool, error) {
	f.restored++
	return !f.purge, nil
}

func (s *BitmapTestSuite) purgeable(advisor *fakeAdvisor) *PurgeableBitmap {
	if advisor != nil {
		s.alloc.config.NewAdvisor = func() VolatilityAdvisor { return advisor }
	}
	p, err := s.alloc.CreatePurgeable(s.ctx, RGBA32, Sz(64, 64))
	s.Require().NoError(err)
	return p
}

func (s *BitmapTestSuite) TestPurgeableRoundTrip() {
	p := s.purgeable(nil)
	defer p.Close()
	s.Equal(BackingAnonymous, p.Backing())
	s.False(p.IsVolatile())

	s.Require().NoError(p.Fill(0xFF112233))
	s.Require().NoError(p.SetVolatile())
	s.True(p.IsVolatile())
	s.Require().NoError(p.SetVolatile())

	intact, err := p.SetNonVolatile()
	s.Require().NoError(err)
	s.False(p.IsVolatile())
	if intact {
		s.Equal(Color(0xFF112233), p.Pixel(63, 63))
	}
	// reclaimed pages come back zeroed and stay writable
	s.Require().NoError(p.Fill(0xFF445566))
	s.Equal(Color(0xFF445566), p.Pixel(0, 0))
}

func (s *BitmapTestSuite) TestPurgeableNonVolatileIsIdempotent() {
	advisor := &fakeAdvisor{}
	p := s.purgeable(advisor)
	defer p.Close()

	intact, err := p.SetNonVolatile()
	s.Require().NoError(err)
	s.True(intact)
	s.Zero(advisor.restored)
}

func (s *BitmapTestSuite) TestPurgeableSimulatedReclaim() {
	advisor := &fakeAdvisor{purge: true}
	p := s.purgeable(advisor)
	defer p.Close()

	s.Require().NoError(p.Fill(0xFFFFFFFF))
	s.Require().NoError(p.SetVolatile())
	s.Require().NoError(p.SetVolatile())
	s.Equal(1, advisor.volatile)

	intact, err := p.SetNonVolatile()
	s.Require().NoError(err)
	s.False(intact)
	s.Equal(1, advisor.restored)
	s.Equal(Color(0), p.Pixel(5, 5))
	s.Equal(float64(1), s.metric("bitmap_purged_total", ""))
	s.Equal(float64(1), s.metric("bitmap_volatile_transitions_total", "nonvolatile"))
}

func (s *BitmapTestSuite) TestPurgeableAdvisorError() {
	advisor := &fakeAdvisor{err: errors.New("no")}
	p := s.purgeable(advisor)
	defer p.Close()

	s.Error(p.SetVolatile())
	s.False(p.IsVolatile())
}

func (s *BitmapTestSuite) TestPurgeableSmallPatternSurvives() {
	p, err := s.alloc.CreatePurgeable(s.ctx, RGBA32, Sz(2, 2))
	s.Require().NoError(err)
	defer p.Close()

	pattern := []Color{0xFF000001, 0x80000002, 0x00000003, 0xFFFFFFFF}
	for i, c := range pattern {
		s.Require().NoError(p.SetPixel(i%2, i/2, c))
	}
	s.Require().NoError(p.SetVolatile())
	intact, err := p.SetNonVolatile()
	s.Require().NoError(err)
	s.True(intact)
	for i, c := range pattern {
		s.Equal(c, p.Pixel(i%2, i/2))
	}
	s.Equal(float64(1), s.metric("bitmap_volatile_transitions_total", "volatile"))
	s.Equal(float64(0), s.metric("bitmap_purged_total", ""))
}
