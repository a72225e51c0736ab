package format

import "fmt"

// EntryType is the payload kind recorded in an entry header.
type EntryType uint32

const (
	EntryTypeNone              EntryType = 0
	EntryTypeEmptyOrObfuscated EntryType = 1
	EntryTypeBinary            EntryType = 2
	EntryTypeModel             EntryType = 3
	EntryTypeTexture           EntryType = 4
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeNone:
		return "none"
	case EntryTypeEmptyOrObfuscated:
		return "empty"
	case EntryTypeBinary:
		return "binary"
	case EntryTypeModel:
		return "model"
	case EntryTypeTexture:
		return "texture"
	default:
		return fmt.Sprintf("EntryType(%d)", uint32(t))
	}
}

// Valid reports whether t is a known payload kind.
func (t EntryType) Valid() bool { return t <= EntryTypeTexture }

// EntryHeaderSize is the encoded size of EntryHeader.
const EntryHeaderSize = 24

// EntryHeader starts every entry in a data file.
type EntryHeader struct {
	// HeaderSize covers this header and the kind-specific locator tables,
	// padded to EntryAlignment.
	HeaderSize       uint32
	Type             EntryType
	DecompressedSize uint32
	// AllocatedUnits and OccupiedUnits count EntryAlignment units of the whole entry.
	AllocatedUnits uint32
	OccupiedUnits  uint32
	// BlockCountOrVersion holds the block or mip-group count, or the model version.
	BlockCountOrVersion uint32
}

// SetSize records the padded entry size in both unit counters.
func (h *EntryHeader) SetSize(size uint64) {
	units := uint32((size + EntryAlignment - 1) / EntryAlignment) //nolint:gosec // entries are bounded by segment size
	h.AllocatedUnits = units
	h.OccupiedUnits = units
}

// Put encodes h into b, which must hold EntryHeaderSize bytes.
func (h EntryHeader) Put(b []byte) {
	le.PutUint32(b[0:], h.HeaderSize)
	le.PutUint32(b[4:], uint32(h.Type))
	le.PutUint32(b[8:], h.DecompressedSize)
	le.PutUint32(b[12:], h.AllocatedUnits)
	le.PutUint32(b[16:], h.OccupiedUnits)
	le.PutUint32(b[20:], h.BlockCountOrVersion)
}

// ParseEntryHeader decodes an entry header and checks its alignment invariants.
func ParseEntryHeader(b []byte) (EntryHeader, error) {
	if len(b) < EntryHeaderSize {
		return EntryHeader{}, fmt.Errorf("%w: entry header truncated (%d bytes)", ErrCorruptData, len(b))
	}
	h := EntryHeader{
		HeaderSize:          le.Uint32(b[0:]),
		Type:                EntryType(le.Uint32(b[4:])),
		DecompressedSize:    le.Uint32(b[8:]),
		AllocatedUnits:      le.Uint32(b[12:]),
		OccupiedUnits:       le.Uint32(b[16:]),
		BlockCountOrVersion: le.Uint32(b[20:]),
	}
	if !h.Type.Valid() {
		return h, fmt.Errorf("%w: entry type %d", ErrInvalidArgument, uint32(h.Type))
	}
	if h.HeaderSize < EntryHeaderSize || h.HeaderSize%EntryAlignment != 0 {
		return h, fmt.Errorf("%w: entry header size %d", ErrCorruptData, h.HeaderSize)
	}
	return h, nil
}

// BlockHeaderSize is the encoded size of BlockHeader.
const BlockHeaderSize = 16

// BlockHeader precedes every compressed or stored block.
type BlockHeader struct {
	Version          uint32
	CompressedSize   uint32
	DecompressedSize uint32
}

// Stored reports whether the block payload is raw.
func (h BlockHeader) Stored() bool { return h.CompressedSize == CompressedSizeNotCompressed }

// PayloadSize returns the number of payload bytes following the header.
func (h BlockHeader) PayloadSize() uint32 {
	if h.Stored() {
		return h.DecompressedSize
	}
	return h.CompressedSize
}

// Put encodes h into b, which must hold BlockHeaderSize bytes.
func (h BlockHeader) Put(b []byte) {
	le.PutUint32(b[0:], BlockHeaderSize)
	le.PutUint32(b[4:], h.Version)
	le.PutUint32(b[8:], h.CompressedSize)
	le.PutUint32(b[12:], h.DecompressedSize)
}

// ParseBlockHeader decodes a block header.
func ParseBlockHeader(b []byte) (BlockHeader, error) {
	if len(b) < BlockHeaderSize {
		return BlockHeader{}, fmt.Errorf("%w: block header truncated", ErrCorruptData)
	}
	if size := le.Uint32(b[0:]); size != BlockHeaderSize {
		return BlockHeader{}, fmt.Errorf("%w: block header size %d", ErrCorruptData, size)
	}
	h := BlockHeader{
		Version:          le.Uint32(b[4:]),
		CompressedSize:   le.Uint32(b[8:]),
		DecompressedSize: le.Uint32(b[12:]),
	}
	if h.DecompressedSize > BlockDataSize {
		return h, fmt.Errorf("%w: block decompressed size %d", ErrCorruptData, h.DecompressedSize)
	}
	if !h.Stored() && h.CompressedSize > CompressedSizeNotCompressed {
		return h, fmt.Errorf("%w: block compressed size %d", ErrCorruptData, h.CompressedSize)
	}
	return h, nil
}

// BinaryBlockLocatorSize is the encoded size of BinaryBlockLocator.
const BinaryBlockLocatorSize = 8

// BinaryBlockLocator addresses one block of a binary entry.
type BinaryBlockLocator struct {
	// Offset is relative to the end of the entry header.
	Offset           uint32
	PaddedSize       uint16
	DecompressedSize uint16
}

// Put encodes l into b.
func (l BinaryBlockLocator) Put(b []byte) {
	le.PutUint32(b[0:], l.Offset)
	le.PutUint16(b[4:], l.PaddedSize)
	le.PutUint16(b[6:], l.DecompressedSize)
}

// ParseBinaryBlockLocators decodes n locators from b.
func ParseBinaryBlockLocators(b []byte, n int) ([]BinaryBlockLocator, error) {
	if len(b) < n*BinaryBlockLocatorSize {
		return nil, fmt.Errorf("%w: %d block locators do not fit in %d bytes", ErrCorruptData, n, len(b))
	}
	out := make([]BinaryBlockLocator, n)
	for i := range out {
		p := i * BinaryBlockLocatorSize
		out[i] = BinaryBlockLocator{
			Offset:           le.Uint32(b[p:]),
			PaddedSize:       le.Uint16(b[p+4:]),
			DecompressedSize: le.Uint16(b[p+6:]),
		}
	}
	return out, nil
}

// BlockCount returns the number of BlockDataSize blocks needed for n bytes.
func BlockCount(n int64) int {
	return int((n + BlockDataSize - 1) / BlockDataSize)
}

// PutUint16s encodes vs into b.
func PutUint16s(b []byte, vs []uint16) {
	for i, v := range vs {
		le.PutUint16(b[i*2:], v)
	}
}

// ParseUint16s decodes n little-endian uint16 values from b.
func ParseUint16s(b []byte, n int) ([]uint16, error) {
	if len(b) < n*2 {
		return nil, fmt.Errorf("%w: %d sizes do not fit in %d bytes", ErrCorruptData, n, len(b))
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = le.Uint16(b[i*2:])
	}
	return out, nil
}
