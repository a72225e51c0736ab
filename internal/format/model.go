package format

import "fmt"

// ModelChunkCount is the number of logical chunk kinds in a model entry.
const ModelChunkCount = 11

// Logical model chunk indices.
const (
	ModelChunkStack   = 0
	ModelChunkRuntime = 1
	ModelChunkVertex  = 2 // 2..4, one per LOD
	ModelChunkEdge    = 5 // 5..7
	ModelChunkIndex   = 8 // 8..10
)

// ModelLODs is the number of LODs with vertex, edge and index chunks.
const ModelLODs = 3

// EntryIndexMap maps physical storage position to logical chunk index.
var EntryIndexMap = [ModelChunkCount]int{0, 1, 2, 5, 8, 3, 6, 9, 4, 7, 10}

// ModelHeaderSize is the size of the header leading a decoded .mdl file.
const ModelHeaderSize = 0x44

// ModelHeader is the header of a decoded .mdl file.
type ModelHeader struct {
	Version                    uint32
	StackMemorySize            uint32
	RuntimeMemorySize          uint32
	VertexDeclarationCount     uint16
	MaterialCount              uint16
	VertexOffsets              [ModelLODs]uint32
	IndexOffsets               [ModelLODs]uint32
	VertexBufferSizes          [ModelLODs]uint32
	IndexBufferSizes           [ModelLODs]uint32
	LodCount                   uint8
	EnableIndexBufferStreaming uint8
	EnableEdgeGeometry         uint8
	Padding                    uint8
}

// ParseModelHeader decodes the header at the start of a .mdl file.
func ParseModelHeader(b []byte) (ModelHeader, error) {
	if len(b) < ModelHeaderSize {
		return ModelHeader{}, fmt.Errorf("%w: model header truncated (%d bytes)", ErrInvalidArgument, len(b))
	}
	h := ModelHeader{
		Version:                le.Uint32(b[0x00:]),
		StackMemorySize:        le.Uint32(b[0x04:]),
		RuntimeMemorySize:      le.Uint32(b[0x08:]),
		VertexDeclarationCount: le.Uint16(b[0x0C:]),
		MaterialCount:          le.Uint16(b[0x0E:]),
	}
	for i := range ModelLODs {
		h.VertexOffsets[i] = le.Uint32(b[0x10+i*4:])
		h.IndexOffsets[i] = le.Uint32(b[0x1C+i*4:])
		h.VertexBufferSizes[i] = le.Uint32(b[0x28+i*4:])
		h.IndexBufferSizes[i] = le.Uint32(b[0x34+i*4:])
	}
	h.LodCount = b[0x40]
	h.EnableIndexBufferStreaming = b[0x41]
	h.EnableEdgeGeometry = b[0x42]
	h.Padding = b[0x43]
	return h, nil
}

// MarshalBinary encodes the model header.
func (h ModelHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, ModelHeaderSize)
	le.PutUint32(b[0x00:], h.Version)
	le.PutUint32(b[0x04:], h.StackMemorySize)
	le.PutUint32(b[0x08:], h.RuntimeMemorySize)
	le.PutUint16(b[0x0C:], h.VertexDeclarationCount)
	le.PutUint16(b[0x0E:], h.MaterialCount)
	for i := range ModelLODs {
		le.PutUint32(b[0x10+i*4:], h.VertexOffsets[i])
		le.PutUint32(b[0x1C+i*4:], h.IndexOffsets[i])
		le.PutUint32(b[0x28+i*4:], h.VertexBufferSizes[i])
		le.PutUint32(b[0x34+i*4:], h.IndexBufferSizes[i])
	}
	b[0x40] = h.LodCount
	b[0x41] = h.EnableIndexBufferStreaming
	b[0x42] = h.EnableEdgeGeometry
	b[0x43] = h.Padding
	return b, nil
}

// Chunks splits a .mdl file of fileSize bytes into its logical chunks.
//
// Chunks must follow each other in physical order with no gaps, each LOD's
// edge geometry filling the space between its vertex and index buffers.
// Other layouts are rejected with ErrInvalidArgument.
func (h ModelHeader) Chunks(fileSize int64) ([ModelChunkCount]Span, error) {
	var spans [ModelChunkCount]Span
	cursor := int64(ModelHeaderSize)
	take := func(chunk int, size int64) {
		spans[chunk] = Span{Offset: cursor, Size: size}
		cursor += size
	}
	take(ModelChunkStack, int64(h.StackMemorySize))
	take(ModelChunkRuntime, int64(h.RuntimeMemorySize))
	for i := range ModelLODs {
		if int64(h.VertexOffsets[i]) != cursor {
			return spans, fmt.Errorf("%w: lod %d vertex offset %d, want %d", ErrInvalidArgument, i, h.VertexOffsets[i], cursor)
		}
		take(ModelChunkVertex+i, int64(h.VertexBufferSizes[i]))
		edge := int64(h.IndexOffsets[i]) - cursor
		if edge < 0 {
			return spans, fmt.Errorf("%w: lod %d index offset %d before vertex end %d", ErrInvalidArgument, i, h.IndexOffsets[i], cursor)
		}
		take(ModelChunkEdge+i, edge)
		take(ModelChunkIndex+i, int64(h.IndexBufferSizes[i]))
	}
	if cursor != fileSize {
		return spans, fmt.Errorf("%w: model chunks end at %d, file is %d bytes", ErrInvalidArgument, cursor, fileSize)
	}
	return spans, nil
}

// ModelBlockLocatorSize is the encoded size of ModelBlockLocator.
const ModelBlockLocatorSize = 184

// ModelBlockLocator is the block table of a model entry, indexed by logical chunk.
type ModelBlockLocator struct {
	DecompressedSizes [ModelChunkCount]uint32
	// ChunkSizes are the padded on-disk sizes of each chunk's blocks.
	ChunkSizes [ModelChunkCount]uint32
	// FirstBlockOffsets are relative to the end of the entry header.
	FirstBlockOffsets          [ModelChunkCount]uint32
	FirstBlockIndices          [ModelChunkCount]uint16
	BlockCounts                [ModelChunkCount]uint16
	VertexDeclarationCount     uint16
	MaterialCount              uint16
	LodCount                   uint8
	EnableIndexBufferStreaming uint8
	EnableEdgeGeometry         uint8
	Padding                    uint8
}

// Put encodes l into b.
func (l ModelBlockLocator) Put(b []byte) {
	for i := range ModelChunkCount {
		le.PutUint32(b[i*4:], l.DecompressedSizes[i])
		le.PutUint32(b[44+i*4:], l.ChunkSizes[i])
		le.PutUint32(b[88+i*4:], l.FirstBlockOffsets[i])
		le.PutUint16(b[132+i*2:], l.FirstBlockIndices[i])
		le.PutUint16(b[154+i*2:], l.BlockCounts[i])
	}
	le.PutUint16(b[176:], l.VertexDeclarationCount)
	le.PutUint16(b[178:], l.MaterialCount)
	b[180] = l.LodCount
	b[181] = l.EnableIndexBufferStreaming
	b[182] = l.EnableEdgeGeometry
	b[183] = l.Padding
}

// ParseModelBlockLocator decodes a model block table.
func ParseModelBlockLocator(b []byte) (ModelBlockLocator, error) {
	var l ModelBlockLocator
	if len(b) < ModelBlockLocatorSize {
		return l, fmt.Errorf("%w: model locator truncated (%d bytes)", ErrCorruptData, len(b))
	}
	for i := range ModelChunkCount {
		l.DecompressedSizes[i] = le.Uint32(b[i*4:])
		l.ChunkSizes[i] = le.Uint32(b[44+i*4:])
		l.FirstBlockOffsets[i] = le.Uint32(b[88+i*4:])
		l.FirstBlockIndices[i] = le.Uint16(b[132+i*2:])
		l.BlockCounts[i] = le.Uint16(b[154+i*2:])
	}
	l.VertexDeclarationCount = le.Uint16(b[176:])
	l.MaterialCount = le.Uint16(b[178:])
	l.LodCount = b[180]
	l.EnableIndexBufferStreaming = b[181]
	l.EnableEdgeGeometry = b[182]
	l.Padding = b[183]
	return l, nil
}

// TotalBlocks returns the number of blocks across all chunks.
func (l ModelBlockLocator) TotalBlocks() int {
	n := 0
	for _, c := range l.BlockCounts {
		n += int(c)
	}
	return n
}

// Header synthesizes the decoded model header described by l.
func (l ModelBlockLocator) Header(version uint32) ModelHeader {
	h := ModelHeader{
		Version:                    version,
		StackMemorySize:            l.DecompressedSizes[ModelChunkStack],
		RuntimeMemorySize:          l.DecompressedSizes[ModelChunkRuntime],
		VertexDeclarationCount:     l.VertexDeclarationCount,
		MaterialCount:              l.MaterialCount,
		LodCount:                   l.LodCount,
		EnableIndexBufferStreaming: l.EnableIndexBufferStreaming,
		EnableEdgeGeometry:         l.EnableEdgeGeometry,
		Padding:                    l.Padding,
	}
	cursor := uint32(ModelHeaderSize) + h.StackMemorySize + h.RuntimeMemorySize
	for i := range ModelLODs {
		h.VertexOffsets[i] = cursor
		h.VertexBufferSizes[i] = l.DecompressedSizes[ModelChunkVertex+i]
		cursor += h.VertexBufferSizes[i] + l.DecompressedSizes[ModelChunkEdge+i]
		h.IndexOffsets[i] = cursor
		h.IndexBufferSizes[i] = l.DecompressedSizes[ModelChunkIndex+i]
		cursor += h.IndexBufferSizes[i]
	}
	return h
}
