package stream

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/sqpack/entry"
	"github.com/meigma/sqpack/internal/codec"
	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/internal/testutil"
	"github.com/meigma/sqpack/pathspec"
)

type payload struct {
	name string
	kind entry.Kind
	data []byte
}

func payloads(t *testing.T) []payload {
	t.Helper()
	return []payload{
		{"binary", entry.KindBinary, testutil.MixedBytes(1, 40000)},
		{"binary exact block", entry.KindBinary, testutil.MixedBytes(2, format.BlockDataSize*2)},
		{"binary empty", entry.KindBinary, nil},
		{"texture", entry.KindTexture, testutil.Texture(t, 128, 128, 5, 1, 3)},
		{"texture repeats", entry.KindTexture, testutil.Texture(t, 64, 64, 4, 3, 4)},
		{"model", entry.KindModel, testutil.Model(t, testutil.ModelChunkSizes, 5)},
	}
}

func packers() map[string]func(t *testing.T, p payload) entry.Provider {
	return map[string]func(t *testing.T, p payload) entry.Provider{
		"lazy": func(t *testing.T, p payload) entry.Provider {
			l, err := entry.NewLazy(pathspec.Hash("x/"+p.name), p.kind, bytes.NewReader(p.data))
			require.NoError(t, err)
			require.NoError(t, l.Resolve())
			return l
		},
		"memory": func(t *testing.T, p payload) entry.Provider {
			m, err := entry.NewMemoryBytes(pathspec.Hash("x/"+p.name), p.kind, p.data)
			require.NoError(t, err)
			return m
		},
		"stored": func(t *testing.T, p payload) entry.Provider {
			m, err := entry.NewMemoryBytes(pathspec.Hash("x/"+p.name), p.kind, p.data, entry.WithStoreOnly())
			require.NoError(t, err)
			return m
		},
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for packer, pack := range packers() {
		for _, p := range payloads(t) {
			t.Run(packer+"/"+p.name, func(t *testing.T) {
				t.Parallel()
				prov := pack(t, p)
				assert.Zero(t, prov.Size()%format.EntryAlignment)

				s, err := Open(prov)
				require.NoError(t, err)
				assert.Equal(t, p.kind, s.Kind())
				require.Equal(t, int64(len(p.data)), s.Size())

				if len(p.data) == 0 {
					_, err := s.ReadAt(make([]byte, 1), 0)
					assert.ErrorIs(t, err, io.EOF)
					return
				}
				got := make([]byte, s.Size())
				n, err := s.ReadAt(got, 0)
				require.NoError(t, err)
				assert.Equal(t, len(p.data), n)
				assert.True(t, bytes.Equal(p.data, got), "decoded bytes differ")
			})
		}
	}
}

func TestPartialReadEquivalence(t *testing.T) {
	t.Parallel()

	for _, p := range payloads(t) {
		if len(p.data) == 0 {
			continue
		}
		t.Run(p.name, func(t *testing.T) {
			t.Parallel()
			prov, err := entry.NewMemoryBytes(pathspec.Hash("x/"+p.name), p.kind, p.data)
			require.NoError(t, err)
			s, err := Open(prov)
			require.NoError(t, err)

			size := int(s.Size())
			offsets := []int{0, 1, format.BlockDataSize - 1, format.BlockDataSize, format.BlockDataSize + 1, size - 1}
			if p.kind == entry.KindModel {
				offsets = append(offsets, format.ModelHeaderSize-1, format.ModelHeaderSize)
			}
			if p.kind == entry.KindTexture {
				offsets = append(offsets, format.TextureHeaderSize-1, format.TextureHeaderSize)
			}
			r := rand.New(rand.NewPCG(7, 7))
			for range 40 {
				offsets = append(offsets, r.IntN(size))
			}
			for _, off := range offsets {
				if off < 0 || off >= size {
					continue
				}
				got := make([]byte, size-off)
				n, err := s.ReadAt(got, int64(off))
				require.NoError(t, err, "offset %d", off)
				require.Equal(t, size-off, n)
				require.True(t, bytes.Equal(p.data[off:], got), "suffix at %d differs", off)
			}
		})
	}
}

func TestReadInSmallChunks(t *testing.T) {
	t.Parallel()

	data := testutil.Texture(t, 128, 64, 6, 2, 9)
	prov := entry.NewLazyTexture(pathspec.Hash("common/b.tex"), bytes.NewReader(data))
	s, err := Open(prov)
	require.NoError(t, err)

	var got []byte
	buf := make([]byte, 7)
	for off := int64(0); ; off += 7 {
		n, err := s.ReadAt(buf, off)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.True(t, bytes.Equal(data, got))
}

func TestReadPastEnd(t *testing.T) {
	t.Parallel()

	data := []byte("short entry")
	prov, err := entry.NewMemoryBytes(pathspec.Hash("a/b.bin"), entry.KindBinary, data)
	require.NoError(t, err)
	s, err := Open(prov)
	require.NoError(t, err)

	buf := make([]byte, 32)
	n, err := s.ReadAt(buf, 6)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "entry", string(buf[:n]))

	_, err = s.ReadAt(buf, int64(len(data)))
	assert.ErrorIs(t, err, io.EOF)
	_, err = s.ReadAt(buf, -1)
	assert.ErrorIs(t, err, format.ErrInvalidArgument)
}

func TestEmptyEntry(t *testing.T) {
	t.Parallel()

	s, err := Open(entry.DefaultEmpty())
	require.NoError(t, err)
	assert.Equal(t, entry.KindEmptyOrObfuscated, s.Kind())
	assert.Zero(t, s.Size())

	s, err = Open(entry.NewEmpty(pathspec.Hash("a/b"), []byte("obfuscated")))
	require.NoError(t, err)
	got := make([]byte, s.Size())
	_, err = s.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, "obfuscated", string(got))
}

func TestConcurrentReads(t *testing.T) {
	t.Parallel()

	data := testutil.Model(t, testutil.ModelChunkSizes, 11)
	prov := entry.NewLazyModel(pathspec.Hash("chara/c.mdl"), bytes.NewReader(data))
	s, err := Open(prov)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(g), 1))
			for range 50 {
				off := r.IntN(len(data))
				n := min(r.IntN(40000)+1, len(data)-off)
				buf := make([]byte, n)
				_, err := s.ReadAt(buf, int64(off))
				if !assert.NoError(t, err) {
					return
				}
				assert.True(t, bytes.Equal(data[off:off+n], buf))
			}
		}()
	}
	wg.Wait()
}

func TestBlockCache(t *testing.T) {
	t.Parallel()

	data := testutil.MixedBytes(3, 50000)
	prov, err := entry.NewMemoryBytes(pathspec.Hash("a/b.bin"), entry.KindBinary, data)
	require.NoError(t, err)
	src := testutil.NewMockByteSource(prov.Bytes())

	cache, err := NewBlockCache(16)
	require.NoError(t, err)
	s, err := Open(src, WithCache(cache, src.SourceID()))
	require.NoError(t, err)

	got := make([]byte, len(data))
	_, err = s.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, format.BlockCount(int64(len(data))), cache.Len())

	reads := src.Reads()
	_, err = s.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, reads, src.Reads(), "cached blocks must not touch the source")
	assert.Equal(t, data, got)

	cache.Purge()
	assert.Zero(t, cache.Len())
}

func TestOpenRejectsCorruptHeader(t *testing.T) {
	t.Parallel()

	prov, err := entry.NewMemoryBytes(pathspec.Hash("a/b.bin"), entry.KindBinary, []byte("data"))
	require.NoError(t, err)
	packed := bytes.Clone(prov.Bytes())
	packed[0] = 0x30

	_, err = Open(bytes.NewReader(packed))
	assert.ErrorIs(t, err, format.ErrCorruptData)
}

func TestOpenRejectsCorruptTextureLocator(t *testing.T) {
	t.Parallel()

	data := testutil.Texture(t, 64, 64, 5, 1, 12)
	prov, err := entry.NewMemoryBytes(pathspec.Hash("common/c.tex"), entry.KindTexture, data)
	require.NoError(t, err)

	cases := map[string]uint32{
		"wrapping index":   0xFFFFFFFF,
		"index past table": 1000,
	}
	for name, index := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			packed := bytes.Clone(prov.Bytes())
			// FirstSubBlockIndex of the first mip group.
			binary.LittleEndian.PutUint32(packed[format.EntryHeaderSize+12:], index)

			_, err := Open(bytes.NewReader(packed))
			assert.ErrorIs(t, err, format.ErrCorruptData)
		})
	}
}

func TestTextureMipOffsetsWithGaps(t *testing.T) {
	t.Parallel()

	th := format.TextureHeader{Format: 0x1450, Width: 16, Height: 16, Depth: 1, MipLevels: 2, ArraySize: 1}
	mip0, mip1 := th.MipSize(0), th.MipSize(1)
	th.MipOffsets[0] = format.TextureHeaderSize
	th.MipOffsets[1] = format.TextureHeaderSize + uint32(mip0) + 128
	hb, err := th.MarshalBinary()
	require.NoError(t, err)

	data := make([]byte, int64(th.MipOffsets[1])+mip1)
	copy(data, hb)
	copy(data[th.MipOffsets[0]:], testutil.RandomBytes(1, int(mip0)))
	copy(data[th.MipOffsets[1]:], testutil.RandomBytes(2, int(mip1)))

	// Each group holds exactly its mip, leaving the gap between them unstored.
	enc := codec.NewEncoder(codec.DefaultLevel)
	block0, sizes0, err := enc.EncodeBlocks(data[th.MipOffsets[0]:int64(th.MipOffsets[0])+mip0], false)
	require.NoError(t, err)
	block1, sizes1, err := enc.EncodeBlocks(data[th.MipOffsets[1]:], false)
	require.NoError(t, err)

	const headerSize = format.EntryAlignment
	header := make([]byte, headerSize)
	tables := header[format.EntryHeaderSize:]
	format.TextureBlockLocator{
		FirstBlockOffset:   format.TextureHeaderSize,
		TotalSize:          uint32(len(block0)),
		DecompressedSize:   uint32(mip0),
		FirstSubBlockIndex: 0,
		SubBlockCount:      uint32(len(sizes0)),
	}.Put(tables)
	format.TextureBlockLocator{
		FirstBlockOffset:   format.TextureHeaderSize + uint32(len(block0)),
		TotalSize:          uint32(len(block1)),
		DecompressedSize:   uint32(mip1),
		FirstSubBlockIndex: uint32(len(sizes0)),
		SubBlockCount:      uint32(len(sizes1)),
	}.Put(tables[format.TextureBlockLocatorSize:])
	format.PutUint16s(tables[2*format.TextureBlockLocatorSize:], append(sizes0, sizes1...))

	packed := append(header, hb...)
	packed = append(packed, block0...)
	packed = append(packed, block1...)
	for len(packed)%format.EntryAlignment != 0 {
		packed = append(packed, 0)
	}
	eh := format.EntryHeader{
		HeaderSize:          headerSize,
		Type:                format.EntryTypeTexture,
		DecompressedSize:    uint32(len(data)),
		BlockCountOrVersion: 2,
	}
	eh.SetSize(uint64(len(packed)))
	eh.Put(packed)

	s, err := Open(bytes.NewReader(packed))
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), s.Size())

	got := make([]byte, mip1)
	_, err = s.ReadAt(got, int64(th.MipOffsets[1]))
	require.NoError(t, err)
	assert.Equal(t, data[th.MipOffsets[1]:], got)

	all := make([]byte, len(data))
	_, err = s.ReadAt(all, 0)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, all), "decoded texture differs")
}
