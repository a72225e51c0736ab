package entry

import (
	"fmt"
	"math"

	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/internal/sizing"
)

// plan describes how a raw file is carved into blocks for one entry kind.
type plan struct {
	kind Kind
	// size is the decompressed size of the whole file.
	size int64
	// prefix is copied verbatim ahead of the blocks (the texture header).
	prefix []byte
	blocks []planBlock
	// groups are mip groups for textures and logical chunks for models.
	groups []planGroup
	model  format.ModelHeader
}

type planBlock struct {
	srcOff int64
	n      int
}

type planGroup struct {
	first, count int
	size         int64
}

func newPlan(kind Kind, src Source) (*plan, error) {
	size := src.Size()
	if size < 0 || size > math.MaxUint32 {
		return nil, fmt.Errorf("%d bytes: %w", size, ErrEntryTooLarge)
	}
	p := &plan{kind: kind, size: size}
	var err error
	switch kind {
	case KindBinary:
		p.addRun(0, size)
	case KindTexture:
		err = p.carveTexture(src)
	case KindModel:
		err = p.carveModel(src)
	default:
		return nil, fmt.Errorf("%s: %w", kind, ErrUnknownKind)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *plan) addRun(off, size int64) planGroup {
	g := planGroup{first: len(p.blocks), size: size}
	for done := int64(0); done < size; done += format.BlockDataSize {
		n := min(size-done, format.BlockDataSize)
		p.blocks = append(p.blocks, planBlock{srcOff: off + done, n: int(n)})
	}
	g.count = len(p.blocks) - g.first
	return g
}

func (p *plan) carveTexture(src Source) error {
	if p.size < format.TextureHeaderSize {
		return fmt.Errorf("%w: texture of %d bytes", format.ErrInvalidArgument, p.size)
	}
	var hb [format.TextureHeaderSize]byte
	if err := readFull(src, hb[:], 0); err != nil {
		return err
	}
	th, err := format.ParseTextureHeader(hb[:])
	if err != nil {
		return err
	}
	spans, err := th.MipGroups(p.size)
	if err != nil {
		return err
	}
	p.prefix = make([]byte, spans[0].Offset)
	if err := readFull(src, p.prefix, 0); err != nil {
		return err
	}
	for _, s := range spans {
		p.groups = append(p.groups, p.addRun(s.Offset, s.Size))
	}
	return nil
}

func (p *plan) carveModel(src Source) error {
	if p.size < format.ModelHeaderSize {
		return fmt.Errorf("%w: model of %d bytes", format.ErrInvalidArgument, p.size)
	}
	var hb [format.ModelHeaderSize]byte
	if err := readFull(src, hb[:], 0); err != nil {
		return err
	}
	mh, err := format.ParseModelHeader(hb[:])
	if err != nil {
		return err
	}
	spans, err := mh.Chunks(p.size)
	if err != nil {
		return err
	}
	p.model = mh
	p.groups = make([]planGroup, format.ModelChunkCount)
	for _, logical := range format.EntryIndexMap {
		p.groups[logical] = p.addRun(spans[logical].Offset, spans[logical].Size)
	}
	if len(p.blocks) > math.MaxUint16 {
		return fmt.Errorf("model with %d blocks: %w", len(p.blocks), ErrEntryTooLarge)
	}
	return nil
}

func (p *plan) headerSize() int64 {
	n := int64(format.EntryHeaderSize)
	switch p.kind {
	case KindBinary:
		n += int64(len(p.blocks)) * format.BinaryBlockLocatorSize
	case KindTexture:
		n += int64(len(p.groups))*format.TextureBlockLocatorSize + int64(len(p.blocks))*2
	case KindModel:
		n += format.ModelBlockLocatorSize + int64(len(p.blocks))*2
	}
	return sizing.Align128(n)
}

// layout builds the entry header for the given padded block sizes and
// returns it with each block's offset from the entry start and the total
// packed size. Sizes the header fields cannot hold fail with ErrEntryTooLarge.
func (p *plan) layout(padded []int64) (header []byte, starts []int64, total int64, err error) {
	hs := p.headerSize()
	header = make([]byte, hs)
	starts = make([]int64, len(p.blocks))
	body := make([]int64, len(p.blocks))
	cursor := int64(len(p.prefix))
	for i, n := range padded {
		body[i] = cursor
		starts[i] = hs + cursor
		cursor += n
	}
	total = sizing.Align128(hs + cursor)

	var nw narrower
	nw.u32(total)
	eh := format.EntryHeader{
		HeaderSize:       nw.u32(hs),
		Type:             p.kind,
		DecompressedSize: nw.u32(p.size),
	}
	eh.SetSize(uint64(total))
	tables := header[format.EntryHeaderSize:]

	switch p.kind {
	case KindBinary:
		eh.BlockCountOrVersion = nw.u32(int64(len(p.blocks)))
		for i, b := range p.blocks {
			format.BinaryBlockLocator{
				Offset:           nw.u32(body[i]),
				PaddedSize:       uint16(padded[i]), //nolint:gosec // at most one padded block
				DecompressedSize: uint16(b.n),       //nolint:gosec // at most BlockDataSize
			}.Put(tables[i*format.BinaryBlockLocatorSize:])
		}

	case KindTexture:
		eh.BlockCountOrVersion = nw.u32(int64(len(p.groups)))
		at := int64(len(p.prefix))
		for gi, g := range p.groups {
			var chunk int64
			for i := g.first; i < g.first+g.count; i++ {
				chunk += padded[i]
			}
			format.TextureBlockLocator{
				FirstBlockOffset:   nw.u32(at),
				TotalSize:          nw.u32(chunk),
				DecompressedSize:   nw.u32(g.size),
				FirstSubBlockIndex: nw.u32(int64(g.first)),
				SubBlockCount:      nw.u32(int64(g.count)),
			}.Put(tables[gi*format.TextureBlockLocatorSize:])
			at += chunk
		}
		putSizes(tables[len(p.groups)*format.TextureBlockLocatorSize:], padded)

	case KindModel:
		eh.BlockCountOrVersion = p.model.Version
		loc := format.ModelBlockLocator{
			VertexDeclarationCount:     p.model.VertexDeclarationCount,
			MaterialCount:              p.model.MaterialCount,
			LodCount:                   p.model.LodCount,
			EnableIndexBufferStreaming: p.model.EnableIndexBufferStreaming,
			EnableEdgeGeometry:         p.model.EnableEdgeGeometry,
			Padding:                    p.model.Padding,
		}
		at := int64(0)
		for _, logical := range format.EntryIndexMap {
			g := p.groups[logical]
			var chunk int64
			for i := g.first; i < g.first+g.count; i++ {
				chunk += padded[i]
			}
			loc.DecompressedSizes[logical] = nw.u32(g.size)
			loc.ChunkSizes[logical] = nw.u32(chunk)
			loc.FirstBlockOffsets[logical] = nw.u32(at)
			loc.FirstBlockIndices[logical] = uint16(g.first)
			loc.BlockCounts[logical] = uint16(g.count)
			at += chunk
		}
		loc.Put(tables)
		putSizes(tables[format.ModelBlockLocatorSize:], padded)
	}

	if nw.err != nil {
		return nil, nil, 0, nw.err
	}
	eh.Put(header)
	return header, starts, total, nil
}

// narrower converts sizes to header fields and keeps the first overflow.
type narrower struct{ err error }

func (n *narrower) u32(v int64) uint32 {
	u, err := sizing.ToUint32(v, ErrEntryTooLarge)
	if err != nil && n.err == nil {
		n.err = fmt.Errorf("%d bytes: %w", v, err)
	}
	return u
}

func putSizes(b []byte, padded []int64) {
	sizes := make([]uint16, len(padded))
	for i, n := range padded {
		sizes[i] = uint16(n) //nolint:gosec // at most one padded block
	}
	format.PutUint16s(b, sizes)
}
