package format

import (
	"fmt"
	"strings"
)

// Locator addresses an entry inside a data file, or flags a synonym.
//
// Bit 0 is the synonym flag, bits 1-3 hold the data file index and the
// remaining bits hold the offset divided by 8 (the offset is 128-aligned).
type Locator uint32

// Synonym marks a hash shared by more than one path.
const Synonym Locator = 1

// NewLocator encodes a data file index and a 128-aligned offset.
func NewLocator(index uint32, offset uint64) (Locator, error) {
	if index >= MaxDataFiles {
		return 0, fmt.Errorf("%w: data file index %d", ErrInvalidArgument, index)
	}
	if offset%EntryAlignment != 0 {
		return 0, fmt.Errorf("%w: offset %d is not %d-aligned", ErrInvalidArgument, offset, EntryAlignment)
	}
	if offset>>3 > 0xFFFFFFF0 {
		return 0, fmt.Errorf("%w: offset %d out of range", ErrInvalidArgument, offset)
	}
	return Locator(uint32(offset>>3) | index<<1), nil
}

// IsSynonym reports whether the conflict list must be consulted.
func (l Locator) IsSynonym() bool { return l&1 != 0 }

// Index returns the data file index.
func (l Locator) Index() uint32 { return uint32(l>>1) & 0x7 }

// Offset returns the byte offset within the data file.
func (l Locator) Offset() uint64 { return uint64(l&^0xF) << 3 }

func (l Locator) String() string {
	if l.IsSynonym() {
		return "synonym"
	}
	return fmt.Sprintf("dat%d:%#x", l.Index(), l.Offset())
}

// Record sizes.
const (
	PairHashLocatorSize = 16
	FullHashLocatorSize = 8
	TextLocatorSize     = 256
	PathHashLocatorSize = 16

	// MaxPathLength is the longest path storable in a text locator, excluding the terminator.
	MaxPathLength = 0xF0 - 1
)

// PairHashLocator is an .index hash-table record.
type PairHashLocator struct {
	NameHash uint32
	PathHash uint32
	Locator  Locator
}

// Key returns the sort key: path hash, then name hash.
func (p PairHashLocator) Key() uint64 { return uint64(p.PathHash)<<32 | uint64(p.NameHash) }

// FullHashLocator is an .index2 hash-table record.
type FullHashLocator struct {
	FullPathHash uint32
	Locator      Locator
}

// TextLocator is a conflict-list record.
//
// For .index, Hash1 and Hash2 are the name and path hashes; for .index2,
// Hash1 is the full-path hash and Hash2 is zero.
type TextLocator struct {
	Hash1         uint32
	Hash2         uint32
	Locator       Locator
	ConflictIndex uint32
	Path          string
}

// Key returns the sort key matching the owning hash table's order.
func (t TextLocator) Key() uint64 { return uint64(t.Hash2)<<32 | uint64(t.Hash1) }

// sentinelConflictIndex terminates a conflict list.
const sentinelConflictIndex = 0xFFFFFFFF

// PathHashLocator groups the .index records sharing a path hash.
type PathHashLocator struct {
	PathHash   uint32
	PairOffset uint32
	PairSize   uint32
}

// AppendPairHashLocator appends the encoded record to b.
func AppendPairHashLocator(b []byte, p PairHashLocator) []byte {
	b = le.AppendUint32(b, p.NameHash)
	b = le.AppendUint32(b, p.PathHash)
	b = le.AppendUint32(b, uint32(p.Locator))
	return le.AppendUint32(b, 0)
}

// AppendFullHashLocator appends the encoded record to b.
func AppendFullHashLocator(b []byte, f FullHashLocator) []byte {
	b = le.AppendUint32(b, f.FullPathHash)
	return le.AppendUint32(b, uint32(f.Locator))
}

// AppendTextLocator appends the encoded record to b.
func AppendTextLocator(b []byte, t TextLocator) ([]byte, error) {
	if len(t.Path) > MaxPathLength {
		return b, fmt.Errorf("%w: path %q longer than %d bytes", ErrInvalidArgument, t.Path, MaxPathLength)
	}
	b = le.AppendUint32(b, t.Hash1)
	b = le.AppendUint32(b, t.Hash2)
	b = le.AppendUint32(b, uint32(t.Locator))
	b = le.AppendUint32(b, t.ConflictIndex)
	var path [TextLocatorSize - 16]byte
	copy(path[:], t.Path)
	return append(b, path[:]...), nil
}

// AppendTextSentinel appends the record terminating a conflict list.
func AppendTextSentinel(b []byte) []byte {
	for range 4 {
		b = le.AppendUint32(b, 0xFFFFFFFF)
	}
	var path [TextLocatorSize - 16]byte
	return append(b, path[:]...)
}

// AppendPathHashLocator appends the encoded record to b.
func AppendPathHashLocator(b []byte, p PathHashLocator) []byte {
	b = le.AppendUint32(b, p.PathHash)
	b = le.AppendUint32(b, p.PairOffset)
	b = le.AppendUint32(b, p.PairSize)
	return le.AppendUint32(b, 0)
}

// ParsePairHashLocators decodes an .index hash-locator segment.
func ParsePairHashLocators(b []byte) ([]PairHashLocator, error) {
	if len(b)%PairHashLocatorSize != 0 {
		return nil, fmt.Errorf("%w: hash segment size %d", ErrCorruptData, len(b))
	}
	out := make([]PairHashLocator, 0, len(b)/PairHashLocatorSize)
	for p := 0; p < len(b); p += PairHashLocatorSize {
		out = append(out, PairHashLocator{
			NameHash: le.Uint32(b[p:]),
			PathHash: le.Uint32(b[p+4:]),
			Locator:  Locator(le.Uint32(b[p+8:])),
		})
	}
	return out, nil
}

// ParseFullHashLocators decodes an .index2 hash-locator segment.
func ParseFullHashLocators(b []byte) ([]FullHashLocator, error) {
	if len(b)%FullHashLocatorSize != 0 {
		return nil, fmt.Errorf("%w: hash segment size %d", ErrCorruptData, len(b))
	}
	out := make([]FullHashLocator, 0, len(b)/FullHashLocatorSize)
	for p := 0; p < len(b); p += FullHashLocatorSize {
		out = append(out, FullHashLocator{
			FullPathHash: le.Uint32(b[p:]),
			Locator:      Locator(le.Uint32(b[p+4:])),
		})
	}
	return out, nil
}

// ParseTextLocators decodes a conflict-list segment, dropping the sentinel.
func ParseTextLocators(b []byte) ([]TextLocator, error) {
	if len(b)%TextLocatorSize != 0 {
		return nil, fmt.Errorf("%w: text segment size %d", ErrCorruptData, len(b))
	}
	var out []TextLocator
	for p := 0; p < len(b); p += TextLocatorSize {
		conflict := le.Uint32(b[p+12:])
		if conflict == sentinelConflictIndex {
			break
		}
		path := b[p+16 : p+TextLocatorSize]
		if i := indexByte(path, 0); i >= 0 {
			path = path[:i]
		}
		out = append(out, TextLocator{
			Hash1:         le.Uint32(b[p:]),
			Hash2:         le.Uint32(b[p+4:]),
			Locator:       Locator(le.Uint32(b[p+8:])),
			ConflictIndex: conflict,
			Path:          string(path),
		})
	}
	return out, nil
}

// ParsePathHashLocators decodes an .index path-hash segment.
func ParsePathHashLocators(b []byte) ([]PathHashLocator, error) {
	if len(b)%PathHashLocatorSize != 0 {
		return nil, fmt.Errorf("%w: path hash segment size %d", ErrCorruptData, len(b))
	}
	out := make([]PathHashLocator, 0, len(b)/PathHashLocatorSize)
	for p := 0; p < len(b); p += PathHashLocatorSize {
		out = append(out, PathHashLocator{
			PathHash:   le.Uint32(b[p:]),
			PairOffset: le.Uint32(b[p+4:]),
			PairSize:   le.Uint32(b[p+8:]),
		})
	}
	return out, nil
}

// EqualPath compares conflict-list paths the way the format does: case-insensitively.
func EqualPath(a, b string) bool {
	return strings.EqualFold(a, b)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
