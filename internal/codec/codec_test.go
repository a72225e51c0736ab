package codec

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/sqpack/internal/format"
)

func TestAppendBlockCompressible(t *testing.T) {
	t.Parallel()

	src := bytes.Repeat([]byte("sqpack "), 2000)[:format.BlockDataSize]
	b, err := NewEncoder(DefaultLevel).AppendBlock(nil, src, false)
	require.NoError(t, err)
	assert.Zero(t, len(b)%format.EntryAlignment)

	hdr, err := format.ParseBlockHeader(b)
	require.NoError(t, err)
	assert.False(t, hdr.Stored())
	assert.Less(t, int(hdr.CompressedSize), len(src))

	dst := make([]byte, format.BlockDataSize)
	n, err := DecodeBlock(dst, b)
	require.NoError(t, err)
	assert.Equal(t, src, dst[:n])
}

func TestAppendBlockStoresIncompressible(t *testing.T) {
	t.Parallel()

	src := make([]byte, 5000)
	_, err := rand.Read(src)
	require.NoError(t, err)

	b, err := NewEncoder(flate.BestCompression).AppendBlock(nil, src, false)
	require.NoError(t, err)
	hdr, err := format.ParseBlockHeader(b)
	require.NoError(t, err)
	assert.True(t, hdr.Stored())
	assert.Equal(t, int64(len(b)), MaxPaddedBlockSize(len(src)))

	dst := make([]byte, len(src))
	n, err := DecodeBlock(dst, b)
	require.NoError(t, err)
	assert.Equal(t, src, dst[:n])
}

func TestAppendBlockForcedStore(t *testing.T) {
	t.Parallel()

	src := bytes.Repeat([]byte{0}, 1000)
	b, err := NewEncoder(DefaultLevel).AppendBlock(nil, src, true)
	require.NoError(t, err)
	hdr, err := format.ParseBlockHeader(b)
	require.NoError(t, err)
	assert.True(t, hdr.Stored())
}

func TestAppendBlockRejectsOversize(t *testing.T) {
	t.Parallel()

	_, err := NewEncoder(DefaultLevel).AppendBlock(nil, make([]byte, format.BlockDataSize+1), false)
	assert.ErrorIs(t, err, format.ErrInvalidArgument)
}

func TestEncodeBlocksMixed(t *testing.T) {
	t.Parallel()

	noise := make([]byte, format.BlockDataSize)
	_, err := rand.Read(noise)
	require.NoError(t, err)
	src := append(bytes.Repeat([]byte{7}, format.BlockDataSize), noise...)
	src = append(src, []byte("tail")...)

	out, sizes, err := NewEncoder(DefaultLevel).EncodeBlocks(src, false)
	require.NoError(t, err)
	require.Len(t, sizes, 3)

	var got []byte
	off := 0
	stored := 0
	for _, s := range sizes {
		hdr, err := format.ParseBlockHeader(out[off:])
		require.NoError(t, err)
		if hdr.Stored() {
			stored++
		}
		dst := make([]byte, format.BlockDataSize)
		n, err := ReadBlock(bytes.NewReader(out), int64(off), int(s), dst)
		require.NoError(t, err)
		got = append(got, dst[:n]...)
		off += int(s)
	}
	assert.Equal(t, 2, stored, "noise and the short tail are stored raw")
	assert.Equal(t, src, got)
	assert.Equal(t, len(out), off)
}

func TestReadBlockWithoutSize(t *testing.T) {
	t.Parallel()

	src := []byte("hello hello hello hello hello hello")
	b, err := NewEncoder(DefaultLevel).AppendBlock(nil, src, false)
	require.NoError(t, err)

	dst := make([]byte, len(src))
	n, err := ReadBlock(bytes.NewReader(b), 0, 0, dst)
	require.NoError(t, err)
	assert.Equal(t, src, dst[:n])
}

func TestDecodeBlockCorrupt(t *testing.T) {
	t.Parallel()

	src := bytes.Repeat([]byte("abc"), 1000)
	b, err := NewEncoder(DefaultLevel).AppendBlock(nil, src, false)
	require.NoError(t, err)
	for i := format.BlockHeaderSize; i < format.BlockHeaderSize+8; i++ {
		b[i] = 0xFF
	}
	_, err = DecodeBlock(make([]byte, len(src)), b)
	assert.ErrorIs(t, err, format.ErrCorruptData)
}

func TestDefaultSkipCompression(t *testing.T) {
	t.Parallel()

	skip := DefaultSkipCompression(64)
	assert.True(t, skip("sound/a.ogg", 1<<20))
	assert.True(t, skip("chara/a.bin", 10))
	assert.False(t, skip("chara/a.bin", 1<<20))
	assert.True(t, ShouldSkip("x.PNG", 1000, []SkipCompressionFunc{nil, skip}))
	assert.False(t, ShouldSkip("x.bin", 1000, nil))
}
