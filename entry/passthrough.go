package entry

import (
	"fmt"
	"io"
	"sync"

	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/pathspec"
)

// PassThrough is a window over packed bytes that already exist, such as an
// entry in a data file. Reads are forwarded without transformation.
type PassThrough struct {
	spec pathspec.PathSpec
	r    io.ReaderAt
	off  int64
	size int64

	kindOnce sync.Once
	kind     Kind
}

// NewPassThrough returns a provider over size bytes of r starting at off.
func NewPassThrough(spec pathspec.PathSpec, r io.ReaderAt, off, size int64) *PassThrough {
	return &PassThrough{spec: spec, r: r, off: off, size: size}
}

// PathSpec returns the entry's path.
func (p *PassThrough) PathSpec() pathspec.PathSpec { return p.spec }

// Size returns the window length.
func (p *PassThrough) Size() int64 { return p.size }

// Offset returns the window start within the underlying stream.
func (p *PassThrough) Offset() int64 { return p.off }

// Kind reads the payload kind from the entry header on first use.
// Unreadable headers report KindNone.
func (p *PassThrough) Kind() Kind {
	p.kindOnce.Do(func() {
		h, err := ReadHeader(p)
		if err != nil {
			p.kind = KindNone
			return
		}
		p.kind = h.Type
	})
	return p.kind
}

// ReadAt reads packed bytes relative to the window start.
func (p *PassThrough) ReadAt(b []byte, off int64) (int, error) {
	return readWindow(p.size, b, off, func(b []byte, off int64) error {
		n, err := p.r.ReadAt(b, p.off+off)
		if n == len(b) {
			return nil
		}
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("%w: %s at %d: %w", format.ErrIO, p.spec, p.off+off, err)
	})
}
