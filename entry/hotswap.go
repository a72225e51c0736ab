package entry

import (
	"fmt"
	"sync/atomic"

	"github.com/meigma/sqpack/internal/sizing"
	"github.com/meigma/sqpack/pathspec"
)

// HotSwappable occupies a fixed reservation and forwards reads to a
// replaceable provider. Bytes past the current provider's size read as zero.
//
// Swap is the only mutation. Callers serialize it against reads of the same
// entry; reads never observe a torn provider.
type HotSwappable struct {
	spec     pathspec.PathSpec
	reserved int64
	current  atomic.Pointer[slot]
	// next is the larger reservation that replaced this one, if any.
	next atomic.Pointer[HotSwappable]
}

type slot struct{ p Provider }

// NewHotSwappable reserves at least reserved bytes, rounded up to 128, and
// at least the size of initial. A nil initial provider uses DefaultEmpty.
func NewHotSwappable(spec pathspec.PathSpec, reserved int64, initial Provider) *HotSwappable {
	if initial == nil {
		initial = DefaultEmpty()
	}
	h := &HotSwappable{
		spec:     spec,
		reserved: sizing.Align128(max(reserved, initial.Size())),
	}
	h.current.Store(&slot{p: initial})
	return h
}

// PathSpec returns the reserved path.
func (h *HotSwappable) PathSpec() pathspec.PathSpec { return h.spec }

// Size returns the reservation.
func (h *HotSwappable) Size() int64 { return h.reserved }

// Kind returns the current provider's kind.
func (h *HotSwappable) Kind() Kind { return h.Current().Kind() }

// Current returns the provider being served.
func (h *HotSwappable) Current() Provider { return h.current.Load().p }

// Grow returns a reservation of at least size bytes serving h's current
// provider, or h itself when it is already large enough. Once grown, Swap
// on h is forwarded to the new reservation.
func (h *HotSwappable) Grow(size int64) *HotSwappable {
	if size <= h.reserved {
		return h
	}
	g := NewHotSwappable(h.spec, size, h.Current())
	h.next.Store(g)
	return g
}

// Swap replaces the served provider. A nil provider restores DefaultEmpty.
// Providers larger than the reservation are rejected and the previous
// provider stays in place.
func (h *HotSwappable) Swap(p Provider) error {
	if g := h.next.Load(); g != nil {
		return g.Swap(p)
	}
	if p == nil {
		p = DefaultEmpty()
	}
	if r, ok := p.(Resolver); ok {
		if err := r.Resolve(); err != nil {
			return fmt.Errorf("swap %s: %w", h.spec, err)
		}
	}
	if p.Size() > h.reserved {
		return fmt.Errorf("swap %s: %d bytes into %d: %w", h.spec, p.Size(), h.reserved, ErrReservationExceeded)
	}
	h.current.Store(&slot{p: p})
	return nil
}

// ReadAt reads from the current provider and zero-fills the rest of the reservation.
func (h *HotSwappable) ReadAt(p []byte, off int64) (int, error) {
	cur := h.Current()
	return readWindow(h.reserved, p, off, func(p []byte, off int64) error {
		inner := cur.Size() - off
		if inner <= 0 {
			clear(p)
			return nil
		}
		head := p[:min(int64(len(p)), inner)]
		if err := readFull(cur, head, off); err != nil {
			return err
		}
		clear(p[len(head):])
		return nil
	})
}
