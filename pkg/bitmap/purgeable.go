package bitmap

import (
	"context"
	"fmt"

	"github.com/srediag/plugin-bitmap/internal/logging"
)

// PurgeableBitmap is an anonymous bitmap whose content the OS may discard
// while it is volatile. It starts non-volatile.
type PurgeableBitmap struct {
	*Bitmap
	advisor  VolatilityAdvisor
	volatile bool
}

// SetVolatile allows the OS to reclaim the pixel memory. The bitmap stays
// valid but its content must not be relied on until SetNonVolatile reports
// it intact. Calling it on a volatile bitmap does nothing.
func (p *PurgeableBitmap) SetVolatile() error {
	if p.volatile {
		return nil
	}
	if err := p.advisor.SetVolatile(p.data); err != nil {
		return fmt.Errorf("bitmap: set volatile: %w", err)
	}
	p.volatile = true
	p.alloc.recorder.Volatile("volatile")
	return nil
}

// SetNonVolatile pins the pixel memory again and reports whether the
// content survived. A false result means some pixels were reset to zero.
func (p *PurgeableBitmap) SetNonVolatile() (bool, error) {
	if !p.volatile {
		return true, nil
	}
	intact, err := p.advisor.SetNonVolatile(p.data)
	if err != nil {
		return false, fmt.Errorf("bitmap: set non-volatile: %w", err)
	}
	p.volatile = false
	p.alloc.recorder.Volatile("nonvolatile")
	if !intact {
		p.alloc.recorder.Purged(context.Background())
		logging.Internal.Infof("bitmap: %s %s purgeable bitmap was purged while volatile", p.size, p.format)
	}
	return intact, nil
}

// IsVolatile reports whether the content may currently be discarded.
func (p *PurgeableBitmap) IsVolatile() bool {
	return p.volatile
}
