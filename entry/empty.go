package entry

import (
	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/internal/sizing"
	"github.com/meigma/sqpack/pathspec"
)

// Empty is a placeholder entry of kind EmptyOrObfuscated.
//
// Its optional payload is stored raw after the entry header. A lookup that
// finds an Empty entry succeeds; it is not the same as a missing entry.
type Empty struct {
	spec   pathspec.PathSpec
	packed []byte
}

var defaultEmpty = NewEmpty(pathspec.Empty, nil)

// DefaultEmpty returns the shared zero-length placeholder.
func DefaultEmpty() *Empty { return defaultEmpty }

// NewEmpty returns a placeholder carrying payload verbatim.
func NewEmpty(spec pathspec.PathSpec, payload []byte) *Empty {
	hdr := format.EntryHeader{
		HeaderSize:       format.EntryAlignment,
		Type:             format.EntryTypeEmptyOrObfuscated,
		DecompressedSize: uint32(len(payload)), //nolint:gosec // placeholders are small
	}
	total := sizing.Align128(format.EntryAlignment + int64(len(payload)))
	hdr.SetSize(uint64(total))

	packed := make([]byte, total)
	hdr.Put(packed)
	copy(packed[format.EntryAlignment:], payload)
	return &Empty{spec: spec, packed: packed}
}

// WithPathSpec returns a copy of e registered under spec.
func (e *Empty) WithPathSpec(spec pathspec.PathSpec) *Empty {
	return &Empty{spec: spec, packed: e.packed}
}

// PathSpec returns the entry's path.
func (e *Empty) PathSpec() pathspec.PathSpec { return e.spec }

// Size returns the packed size.
func (e *Empty) Size() int64 { return int64(len(e.packed)) }

// Kind returns KindEmptyOrObfuscated.
func (e *Empty) Kind() Kind { return KindEmptyOrObfuscated }

// ReadAt reads packed bytes.
func (e *Empty) ReadAt(p []byte, off int64) (int, error) {
	return readWindow(e.Size(), p, off, func(p []byte, off int64) error {
		copy(p, e.packed[off:])
		return nil
	})
}
