// Package stream decodes packed SqPack entries into their original bytes.
//
// A Stream answers reads at any offset by decoding only the blocks the range
// covers. Nothing is kept between calls apart from the block layout computed
// in Open and the optional shared BlockCache, so one Stream can serve any
// number of concurrent readers.
package stream

import (
	"fmt"
	"io"
	"sort"

	"github.com/meigma/sqpack/entry"
	"github.com/meigma/sqpack/internal/codec"
	"github.com/meigma/sqpack/internal/format"
)

// Stream is a decoded entry.
type Stream interface {
	io.ReaderAt
	Size() int64
	Kind() entry.Kind
}

// Open parses the entry header at the start of src and returns a decoder
// for its payload kind.
func Open(src entry.Source, opts ...Option) (Stream, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	eh, err := entry.ReadHeader(src)
	if err != nil {
		return nil, err
	}
	if int64(eh.HeaderSize) > src.Size() {
		return nil, fmt.Errorf("%w: entry header of %d bytes in %d byte entry", format.ErrCorruptData, eh.HeaderSize, src.Size())
	}
	header := make([]byte, eh.HeaderSize)
	if err := readFull(src, header, 0); err != nil {
		return nil, err
	}

	s := &blockStream{
		kind:  eh.Type,
		src:   src,
		size:  int64(eh.DecompressedSize),
		cache: cfg.cache,
		ns:    cfg.namespace,
		base:  cfg.base,
	}
	switch eh.Type {
	case format.EntryTypeNone, format.EntryTypeEmptyOrObfuscated:
		err = s.openEmpty(eh)
	case format.EntryTypeBinary:
		err = s.openBinary(eh, header)
	case format.EntryTypeTexture:
		err = s.openTexture(eh, header)
	case format.EntryTypeModel:
		err = s.openModel(eh, header)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

type decodedBlock struct {
	// requestOffset is the block's first byte in the decoded stream.
	requestOffset int64
	// offset is the block header's position in the packed entry.
	offset           int64
	paddedSize       int
	decompressedSize int
}

func (b decodedBlock) end() int64 { return b.requestOffset + int64(b.decompressedSize) }

type blockStream struct {
	kind   entry.Kind
	src    entry.Source
	size   int64
	prefix []byte
	blocks []decodedBlock
	// raw is set for EmptyOrObfuscated entries whose payload follows the header unencoded.
	raw int64

	cache *BlockCache
	ns    string
	base  int64
}

func (s *blockStream) Size() int64      { return s.size }
func (s *blockStream) Kind() entry.Kind { return s.kind }

func (s *blockStream) openEmpty(eh format.EntryHeader) error {
	s.raw = int64(eh.HeaderSize)
	return nil
}

func (s *blockStream) openBinary(eh format.EntryHeader, header []byte) error {
	locs, err := format.ParseBinaryBlockLocators(header[format.EntryHeaderSize:], int(eh.BlockCountOrVersion))
	if err != nil {
		return err
	}
	s.blocks = make([]decodedBlock, 0, len(locs))
	var out int64
	for _, l := range locs {
		s.blocks = append(s.blocks, decodedBlock{
			requestOffset:    out,
			offset:           int64(eh.HeaderSize) + int64(l.Offset),
			paddedSize:       int(l.PaddedSize),
			decompressedSize: int(l.DecompressedSize),
		})
		out += int64(l.DecompressedSize)
	}
	return nil
}

func (s *blockStream) openTexture(eh format.EntryHeader, header []byte) error {
	tables := header[format.EntryHeaderSize:]
	n := int(eh.BlockCountOrVersion)
	locs, err := format.ParseTextureBlockLocators(tables, n)
	if err != nil {
		return err
	}
	sizeTable := tables[n*format.TextureBlockLocatorSize:]
	var subCount int64
	for _, l := range locs {
		subCount = max(subCount, int64(l.FirstSubBlockIndex)+int64(l.SubBlockCount))
	}
	if subCount > int64(len(sizeTable)/2) {
		return fmt.Errorf("%w: %d texture blocks in a %d byte size table", format.ErrCorruptData, subCount, len(sizeTable))
	}
	sizes, err := format.ParseUint16s(sizeTable, int(subCount))
	if err != nil {
		return err
	}

	prefixLen := s.size
	if len(locs) > 0 {
		prefixLen = int64(locs[0].FirstBlockOffset)
	}
	prefixLen = min(prefixLen, s.src.Size()-int64(eh.HeaderSize))
	s.prefix = make([]byte, prefixLen)
	if err := readFull(s.src, s.prefix, int64(eh.HeaderSize)); err != nil {
		return err
	}

	starts := s.mipStarts()
	out := prefixLen
	for i, l := range locs {
		if i < len(starts) && starts[i] > out {
			out = starts[i]
		}
		packed := int64(eh.HeaderSize) + int64(l.FirstBlockOffset)
		remaining := int64(l.DecompressedSize)
		first := int64(l.FirstSubBlockIndex)
		for k := range int64(l.SubBlockCount) {
			if first+k >= int64(len(sizes)) {
				return fmt.Errorf("%w: texture block %d of %d", format.ErrCorruptData, first+k, len(sizes))
			}
			padded := int(sizes[first+k])
			n := min(remaining, format.BlockDataSize)
			s.blocks = append(s.blocks, decodedBlock{
				requestOffset:    out,
				offset:           packed,
				paddedSize:       padded,
				decompressedSize: int(n),
			})
			out += n
			remaining -= n
			packed += int64(padded)
		}
	}
	return nil
}

// mipStarts returns where each mip group begins in the decoded texture,
// taken from the mip offset table in the texture header. Groups past the
// returned starts follow the previous group directly.
func (s *blockStream) mipStarts() []int64 {
	th, err := format.ParseTextureHeader(s.prefix)
	if err != nil {
		return nil
	}
	groups, err := th.MipGroups(s.size)
	if err != nil {
		return nil
	}
	starts := make([]int64, len(groups))
	for i, g := range groups {
		starts[i] = g.Offset
	}
	return starts
}

func (s *blockStream) openModel(eh format.EntryHeader, header []byte) error {
	tables := header[format.EntryHeaderSize:]
	loc, err := format.ParseModelBlockLocator(tables)
	if err != nil {
		return err
	}
	sizes, err := format.ParseUint16s(tables[format.ModelBlockLocatorSize:], loc.TotalBlocks())
	if err != nil {
		return err
	}
	s.prefix, err = loc.Header(eh.BlockCountOrVersion).MarshalBinary()
	if err != nil {
		return err
	}

	out := int64(len(s.prefix))
	for _, logical := range format.EntryIndexMap {
		packed := int64(eh.HeaderSize) + int64(loc.FirstBlockOffsets[logical])
		remaining := int64(loc.DecompressedSizes[logical])
		first := int(loc.FirstBlockIndices[logical])
		for k := range int(loc.BlockCounts[logical]) {
			if first+k >= len(sizes) {
				return fmt.Errorf("%w: model block %d of %d", format.ErrCorruptData, first+k, len(sizes))
			}
			padded := int(sizes[first+k])
			n := min(remaining, format.BlockDataSize)
			s.blocks = append(s.blocks, decodedBlock{
				requestOffset:    out,
				offset:           packed,
				paddedSize:       padded,
				decompressedSize: int(n),
			})
			out += n
			remaining -= n
			packed += int64(padded)
		}
	}
	return nil
}

// ReadAt decodes the blocks overlapping [off, off+len(p)). Bytes not covered
// by any block read as zero.
func (s *blockStream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", format.ErrInvalidArgument, off)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	want := len(p)
	if rem := s.size - off; int64(want) > rem {
		want = int(rem)
	}
	if err := s.fill(p[:want], off); err != nil {
		return 0, err
	}
	if want < len(p) {
		return want, io.EOF
	}
	return want, nil
}

func (s *blockStream) fill(p []byte, off int64) error {
	if s.raw > 0 {
		return s.fillRaw(p, off)
	}
	for len(p) > 0 {
		var n int
		if off < int64(len(s.prefix)) {
			n = copy(p, s.prefix[off:])
		} else {
			i := sort.Search(len(s.blocks), func(i int) bool { return s.blocks[i].end() > off })
			switch {
			case i == len(s.blocks):
				clear(p)
				return nil
			case s.blocks[i].requestOffset > off:
				n = int(min(int64(len(p)), s.blocks[i].requestOffset-off))
				clear(p[:n])
			default:
				data, err := s.decode(s.blocks[i])
				if err != nil {
					return err
				}
				n = copy(p, data[off-s.blocks[i].requestOffset:])
			}
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

func (s *blockStream) fillRaw(p []byte, off int64) error {
	avail := s.src.Size() - s.raw - off
	head := p[:max(0, min(int64(len(p)), avail))]
	if len(head) > 0 {
		if err := readFull(s.src, head, s.raw+off); err != nil {
			return err
		}
	}
	clear(p[len(head):])
	return nil
}

func (s *blockStream) decode(b decodedBlock) ([]byte, error) {
	if data, ok := s.cache.get(s.ns, s.base+b.offset); ok {
		return data, nil
	}
	data := make([]byte, b.decompressedSize)
	n, err := codec.ReadBlock(s.src, b.offset, b.paddedSize, data)
	if err != nil {
		return nil, fmt.Errorf("block at %d: %w", b.offset, err)
	}
	if n != b.decompressedSize {
		return nil, fmt.Errorf("%w: block at %d decoded to %d bytes, want %d", format.ErrCorruptData, b.offset, n, b.decompressedSize)
	}
	s.cache.add(s.ns, s.base+b.offset, data)
	return data, nil
}

func readFull(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: read %d bytes at %d: %w", format.ErrIO, len(p), off, err)
}
