// Package testutil provides in-memory sources and synthetic SqPack payloads
// for tests.
package testutil

import (
	"bytes"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/sqpack/internal/format"
)

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data     []byte
	sourceID string
	reads    atomic.Int64
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{
		data:     data,
		sourceID: "mock:" + digest.FromBytes(data).Encoded(),
	}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	m.reads.Add(1)
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// SourceID returns a stable identifier for the source data.
func (m *MockByteSource) SourceID() string {
	return m.sourceID
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockByteSource) Bytes() []byte {
	return m.data
}

// Reads returns the number of ReadAt calls served.
func (m *MockByteSource) Reads() int64 {
	return m.reads.Load()
}

// RandomBytes returns n deterministic pseudo-random bytes.
func RandomBytes(seed uint64, n int) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x5eed))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.Uint32())
	}
	return b
}

// MixedBytes returns n bytes alternating between compressible text and
// noise every block, so packed entries mix deflated and stored blocks.
func MixedBytes(seed uint64, n int) []byte {
	noise := RandomBytes(seed, n)
	text := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), n/45+1)
	out := make([]byte, n)
	for off := 0; off < n; off += format.BlockDataSize {
		end := min(off+format.BlockDataSize, n)
		if (off/format.BlockDataSize)%2 == 0 {
			copy(out[off:end], text[off:end])
		} else {
			copy(out[off:end], noise[off:end])
		}
	}
	return out
}

// Texture builds an uncompressed A8R8G8B8 .tex file with the given mip
// count. Repeats beyond the first are appended after the first set, as
// array textures store them; only the first set is recorded in the
// header's offset table.
func Texture(tb testing.TB, width, height uint16, mips, repeats int, seed uint64) []byte {
	tb.Helper()

	h := format.TextureHeader{
		Format:    0x1450,
		Width:     width,
		Height:    height,
		Depth:     1,
		MipLevels: uint8(mips),
		ArraySize: uint8(max(repeats, 1)),
	}
	off := int64(format.TextureHeaderSize)
	for i := range mips {
		h.MipOffsets[i] = uint32(off)
		off += h.MipSize(i)
	}
	set := off - format.TextureHeaderSize

	hb, err := h.MarshalBinary()
	if err != nil {
		tb.Fatalf("marshal texture header: %v", err)
	}
	body := MixedBytes(seed, int(set)*max(repeats, 1))
	return append(hb, body...)
}

// ModelChunkSizes are the logical chunk sizes used by Model when none are given.
var ModelChunkSizes = [format.ModelChunkCount]int{
	format.ModelChunkStack:      300,
	format.ModelChunkRuntime:    20000,
	format.ModelChunkVertex:     40000,
	format.ModelChunkVertex + 1: 9000,
	format.ModelChunkVertex + 2: 100,
	format.ModelChunkEdge:       1000,
	format.ModelChunkIndex:      17000,
	format.ModelChunkIndex + 1:  5000,
	format.ModelChunkIndex + 2:  64,
}

// Model builds a .mdl file whose chunks follow the canonical physical order.
func Model(tb testing.TB, sizes [format.ModelChunkCount]int, seed uint64) []byte {
	tb.Helper()

	var loc format.ModelBlockLocator
	total := format.ModelHeaderSize
	for i, s := range sizes {
		loc.DecompressedSizes[i] = uint32(s)
		total += s
	}
	loc.VertexDeclarationCount = 4
	loc.MaterialCount = 2
	loc.LodCount = 3
	loc.EnableEdgeGeometry = 1

	hb, err := loc.Header(6).MarshalBinary()
	if err != nil {
		tb.Fatalf("marshal model header: %v", err)
	}
	return append(hb, MixedBytes(seed, total-format.ModelHeaderSize)...)
}
