// Package entry provides the packed forms of SqPack entries.
//
// A Provider exposes the bytes of one entry exactly as they are laid out in a
// data file: an entry header, kind-specific block tables and 128-byte aligned
// deflate blocks. Providers either window existing packed bytes
// (PassThrough), compress a raw source on demand (Lazy), compress it up front
// (Memory), stand in for an absent payload (Empty) or wrap another provider in
// a fixed reservation (HotSwappable).
package entry

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/pathspec"
)

// Kind is the payload kind of an entry.
type Kind = format.EntryType

const (
	KindNone              = format.EntryTypeNone
	KindEmptyOrObfuscated = format.EntryTypeEmptyOrObfuscated
	KindBinary            = format.EntryTypeBinary
	KindModel             = format.EntryTypeModel
	KindTexture           = format.EntryTypeTexture
)

// Source is a random-access stream of raw, uncompressed file bytes.
type Source interface {
	io.ReaderAt
	Size() int64
}

// Provider is a packed entry.
//
// ReadAt follows io.ReaderAt and returns a short read only at the end of the
// entry. Size is a multiple of 128.
type Provider interface {
	io.ReaderAt
	Size() int64
	Kind() Kind
	PathSpec() pathspec.PathSpec
}

// Resolver is implemented by providers that defer work until first use.
// Resolve performs that work and reports whether the provider is usable.
type Resolver interface {
	Resolve() error
}

var (
	// ErrReservationExceeded is returned when a payload does not fit a reservation.
	ErrReservationExceeded = fmt.Errorf("%w: reservation exceeded", format.ErrInvalidArgument)

	// ErrUnknownKind is returned for payload kinds a constructor cannot build.
	ErrUnknownKind = fmt.Errorf("%w: unknown entry kind", format.ErrInvalidArgument)

	// ErrEntryTooLarge is returned when a payload exceeds what an entry header can describe.
	ErrEntryTooLarge = fmt.Errorf("%w: entry too large", format.ErrInvalidArgument)
)

// KindForPath picks the packed form for a file name by extension.
func KindForPath(name string) Kind {
	switch strings.ToLower(path.Ext(strings.ReplaceAll(name, "\\", "/"))) {
	case ".tex", ".atex":
		return KindTexture
	case ".mdl":
		return KindModel
	default:
		return KindBinary
	}
}

// ReadHeader reads and validates the entry header of a packed entry.
func ReadHeader(r io.ReaderAt) (format.EntryHeader, error) {
	var b [format.EntryHeaderSize]byte
	if err := readFull(r, b[:], 0); err != nil {
		return format.EntryHeader{}, err
	}
	return format.ParseEntryHeader(b[:])
}

func readFull(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: read %d bytes at %d: %w", format.ErrIO, len(p), off, err)
}

// readWindow serves ReadAt for a provider of the given size.
func readWindow(size int64, p []byte, off int64, fill func(p []byte, off int64) error) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", format.ErrInvalidArgument, off)
	}
	if off >= size {
		return 0, io.EOF
	}
	n := len(p)
	if rem := size - off; int64(n) > rem {
		n = int(rem)
	}
	if err := fill(p[:n], off); err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
