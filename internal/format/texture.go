package format

import "fmt"

// TextureHeaderSize is the encoded size of TextureHeader.
const TextureHeaderSize = 80

// MaxMipLevels is the number of entries in the mip offset table.
const MaxMipLevels = 13

// TextureHeader is the fixed header at the start of a .tex file.
//
// Only the fields needed to find mip boundaries are interpreted.
type TextureHeader struct {
	Attribute  uint32
	Format     uint32
	Width      uint16
	Height     uint16
	Depth      uint16
	MipLevels  uint8
	ArraySize  uint8
	LodOffsets [3]uint32
	MipOffsets [MaxMipLevels]uint32
}

// ParseTextureHeader decodes the texture header at the start of b.
func ParseTextureHeader(b []byte) (TextureHeader, error) {
	if len(b) < TextureHeaderSize {
		return TextureHeader{}, fmt.Errorf("%w: texture header truncated (%d bytes)", ErrInvalidArgument, len(b))
	}
	h := TextureHeader{
		Attribute: le.Uint32(b[0:]),
		Format:    le.Uint32(b[4:]),
		Width:     le.Uint16(b[8:]),
		Height:    le.Uint16(b[10:]),
		Depth:     le.Uint16(b[12:]),
		MipLevels: b[14],
		ArraySize: b[15],
	}
	for i := range h.LodOffsets {
		h.LodOffsets[i] = le.Uint32(b[16+i*4:])
	}
	for i := range h.MipOffsets {
		h.MipOffsets[i] = le.Uint32(b[28+i*4:])
	}
	return h, nil
}

// MarshalBinary encodes the texture header.
func (h TextureHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, TextureHeaderSize)
	le.PutUint32(b[0:], h.Attribute)
	le.PutUint32(b[4:], h.Format)
	le.PutUint16(b[8:], h.Width)
	le.PutUint16(b[10:], h.Height)
	le.PutUint16(b[12:], h.Depth)
	b[14] = h.MipLevels
	b[15] = h.ArraySize
	for i, v := range h.LodOffsets {
		le.PutUint32(b[16+i*4:], v)
	}
	for i, v := range h.MipOffsets {
		le.PutUint32(b[28+i*4:], v)
	}
	return b, nil
}

// BitsPerPixel decodes the pixel size from the format code.
func (h TextureHeader) BitsPerPixel() int {
	return 1 << ((h.Format >> 4) & 0xF)
}

// BlockCompressed reports whether pixels are stored in 4x4 blocks.
func (h TextureHeader) BlockCompressed() bool {
	switch h.Format >> 12 {
	case 3, 6:
		return true
	}
	return false
}

// Levels returns the usable number of mip levels.
func (h TextureHeader) Levels() int {
	return min(max(int(h.MipLevels), 1), MaxMipLevels)
}

// MipSize returns the byte size of mip level i of one repeat.
func (h TextureHeader) MipSize(i int) int64 {
	w := max(int64(h.Width)>>i, 1)
	ht := max(int64(h.Height)>>i, 1)
	d := max(int64(h.Depth)>>i, 1)
	if h.BlockCompressed() {
		w = (w + 3) &^ 3
		ht = (ht + 3) &^ 3
	}
	return w * ht * d * int64(h.BitsPerPixel()) / 8
}

// Span is a byte range of a decoded entry.
type Span struct {
	Offset int64
	Size   int64
}

// End returns the exclusive end of the span.
func (s Span) End() int64 { return s.Offset + s.Size }

// MipGroups splits a texture file of fileSize bytes into mip groups.
//
// The first set of mips uses the header's offset table when it is monotonic
// and in range, and cumulative MipSize offsets otherwise. Further repeats
// follow at multiples of the first set's length while they start inside the
// file. The last group always extends to the end of the file, so a truncated
// final repeat is kept.
func (h TextureHeader) MipGroups(fileSize int64) ([]Span, error) {
	levels := h.Levels()
	starts := h.firstSet(levels)
	first := starts[0]
	if first < TextureHeaderSize || first > fileSize {
		return nil, fmt.Errorf("%w: first mip offset %d outside texture of %d bytes", ErrInvalidArgument, first, fileSize)
	}

	unit := starts[levels-1] + h.MipSize(levels-1) - first
	var groups []Span
	for r := int64(0); ; r++ {
		added := false
		for _, s := range starts {
			s += r * unit
			if s >= fileSize {
				break
			}
			if n := len(groups); n > 0 && s <= groups[n-1].Offset {
				break
			}
			groups = append(groups, Span{Offset: s})
			added = true
		}
		if !added || unit <= 0 {
			break
		}
	}
	if len(groups) == 0 {
		return []Span{{Offset: first}}, nil
	}
	for i := range groups {
		if i+1 < len(groups) {
			groups[i].Size = groups[i+1].Offset - groups[i].Offset
		} else {
			groups[i].Size = fileSize - groups[i].Offset
		}
	}
	return groups, nil
}

func (h TextureHeader) firstSet(levels int) []int64 {
	starts := make([]int64, levels)
	table := true
	for i := range levels {
		starts[i] = int64(h.MipOffsets[i])
		if starts[i] < TextureHeaderSize || (i > 0 && starts[i] < starts[i-1]+h.MipSize(i-1)) {
			table = false
		}
	}
	if table {
		return starts
	}
	off := int64(h.MipOffsets[0])
	if off < TextureHeaderSize {
		off = TextureHeaderSize
	}
	for i := range levels {
		starts[i] = off
		off += h.MipSize(i)
	}
	return starts
}

// TextureBlockLocatorSize is the encoded size of TextureBlockLocator.
const TextureBlockLocatorSize = 20

// TextureBlockLocator describes one mip group of a texture entry.
type TextureBlockLocator struct {
	// FirstBlockOffset is relative to the end of the entry header.
	FirstBlockOffset   uint32
	TotalSize          uint32
	DecompressedSize   uint32
	FirstSubBlockIndex uint32
	SubBlockCount      uint32
}

// Put encodes l into b.
func (l TextureBlockLocator) Put(b []byte) {
	le.PutUint32(b[0:], l.FirstBlockOffset)
	le.PutUint32(b[4:], l.TotalSize)
	le.PutUint32(b[8:], l.DecompressedSize)
	le.PutUint32(b[12:], l.FirstSubBlockIndex)
	le.PutUint32(b[16:], l.SubBlockCount)
}

// ParseTextureBlockLocators decodes n locators from b.
func ParseTextureBlockLocators(b []byte, n int) ([]TextureBlockLocator, error) {
	if len(b) < n*TextureBlockLocatorSize {
		return nil, fmt.Errorf("%w: %d mip locators do not fit in %d bytes", ErrCorruptData, n, len(b))
	}
	out := make([]TextureBlockLocator, n)
	for i := range out {
		p := i * TextureBlockLocatorSize
		out[i] = TextureBlockLocator{
			FirstBlockOffset:   le.Uint32(b[p:]),
			TotalSize:          le.Uint32(b[p+4:]),
			DecompressedSize:   le.Uint32(b[p+8:]),
			FirstSubBlockIndex: le.Uint32(b[p+12:]),
			SubBlockCount:      le.Uint32(b[p+16:]),
		}
	}
	return out, nil
}
