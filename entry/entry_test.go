package entry_test

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/sqpack/entry"
	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/internal/testutil"
	"github.com/meigma/sqpack/pathspec"
	"github.com/meigma/sqpack/stream"
)

func readAll(t *testing.T, r interface {
	io.ReaderAt
	Size() int64
}) []byte {
	t.Helper()
	buf := make([]byte, r.Size())
	if len(buf) == 0 {
		return buf
	}
	n, err := r.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	return buf
}

func decode(t *testing.T, p entry.Provider) []byte {
	t.Helper()
	s, err := stream.Open(p)
	require.NoError(t, err)
	return readAll(t, s)
}

func TestKindForPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, entry.KindTexture, entry.KindForPath("common/font/font1.tex"))
	assert.Equal(t, entry.KindTexture, entry.KindForPath("vfx\\a.ATEX"))
	assert.Equal(t, entry.KindModel, entry.KindForPath("chara/c.mdl"))
	assert.Equal(t, entry.KindBinary, entry.KindForPath("exd/root.exl"))
	assert.Equal(t, "texture", entry.KindTexture.String())
}

func TestDefaultEmpty(t *testing.T) {
	t.Parallel()

	e := entry.DefaultEmpty()
	assert.Same(t, e, entry.DefaultEmpty())
	assert.Equal(t, int64(format.EntryAlignment), e.Size())
	assert.Equal(t, entry.KindEmptyOrObfuscated, e.Kind())
	assert.True(t, e.PathSpec().IsEmpty())

	named := e.WithPathSpec(pathspec.Hash("a/b"))
	assert.Equal(t, "a/b", named.PathSpec().Text)
	assert.Equal(t, readAll(t, e), readAll(t, named))
}

func TestLazyMatchesMemory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind entry.Kind
		data []byte
	}{
		{"binary", entry.KindBinary, testutil.MixedBytes(1, 70000)},
		{"texture", entry.KindTexture, testutil.Texture(t, 256, 256, 6, 1, 2)},
		{"model", entry.KindModel, testutil.Model(t, testutil.ModelChunkSizes, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			spec := pathspec.Hash("x/" + tt.name)
			lazy, err := entry.NewLazy(spec, tt.kind, bytes.NewReader(tt.data))
			require.NoError(t, err)
			mem, err := entry.NewMemoryBytes(spec, tt.kind, tt.data)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, lazy.Size(), mem.Size())
			assert.Zero(t, lazy.Size()%format.EntryAlignment)
			assert.Equal(t, tt.kind, lazy.Kind())

			assert.Equal(t, tt.data, decode(t, lazy))
			assert.Equal(t, tt.data, decode(t, mem))
		})
	}
}

func TestLazyChunkedReadsMatchFullRead(t *testing.T) {
	t.Parallel()

	data := testutil.MixedBytes(5, 50000)
	lazy := entry.NewLazyBinary(pathspec.Hash("a/b.bin"), bytes.NewReader(data))
	full := readAll(t, lazy)

	var chunked []byte
	buf := make([]byte, 1000)
	for off := int64(0); off < lazy.Size(); off += int64(len(buf)) {
		n, err := lazy.ReadAt(buf, off)
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
		}
		chunked = append(chunked, buf[:n]...)
	}
	assert.Equal(t, full, chunked)
}

func TestLazyConcurrentResolve(t *testing.T) {
	t.Parallel()

	data := testutil.Texture(t, 128, 128, 4, 1, 8)
	src := testutil.NewMockByteSource(data)
	lazy := entry.NewLazyTexture(pathspec.Hash("common/b.tex"), src)

	var wg sync.WaitGroup
	sizes := make([]int64, 16)
	for i := range sizes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sizes[i] = lazy.Size()
		}()
	}
	wg.Wait()
	for _, s := range sizes {
		assert.Equal(t, sizes[0], s)
	}
	assert.Positive(t, sizes[0])
}

func TestLazyRejectsInvalidModel(t *testing.T) {
	t.Parallel()

	data := testutil.Model(t, testutil.ModelChunkSizes, 1)
	data = data[:len(data)-1]
	lazy := entry.NewLazyModel(pathspec.Hash("chara/c.mdl"), bytes.NewReader(data))
	err := lazy.Resolve()
	require.ErrorIs(t, err, format.ErrInvalidArgument)
	assert.Zero(t, lazy.Size())
	_, err = lazy.ReadAt(make([]byte, 8), 0)
	assert.ErrorIs(t, err, format.ErrInvalidArgument)

	_, err = entry.NewMemoryBytes(pathspec.Hash("chara/c.mdl"), entry.KindModel, data)
	assert.ErrorIs(t, err, format.ErrInvalidArgument)
}

// zeroSource reads as n zero bytes without backing storage.
type zeroSource int64

func (z zeroSource) ReadAt(p []byte, off int64) (int, error) {
	clear(p)
	return len(p), nil
}

func (z zeroSource) Size() int64 { return int64(z) }

func TestLazyRejectsOversizePackedEntry(t *testing.T) {
	t.Parallel()

	// Fits the decompressed size field, but the worst-case block slots do not
	// fit the entry's offset fields.
	lazy := entry.NewLazyBinary(pathspec.Hash("bg/huge.bin"), zeroSource(math.MaxUint32))
	err := lazy.Resolve()
	require.ErrorIs(t, err, entry.ErrEntryTooLarge)
	assert.Zero(t, lazy.Size())
}

func TestUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := entry.NewLazy(pathspec.Hash("a/b"), entry.KindEmptyOrObfuscated, bytes.NewReader(nil))
	assert.ErrorIs(t, err, entry.ErrUnknownKind)
	assert.ErrorIs(t, err, format.ErrInvalidArgument)
}

func TestSkipCompressionStoresBlocks(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{1}, 20000)
	spec := pathspec.Hash("sound/a.ogg")
	skipped, err := entry.NewMemoryBytes(spec, entry.KindBinary, data,
		entry.WithSkipCompression(entry.DefaultSkipCompression(0)))
	require.NoError(t, err)
	packed, err := entry.NewMemoryBytes(spec, entry.KindBinary, data)
	require.NoError(t, err)

	assert.Greater(t, skipped.Size(), packed.Size())
	assert.Equal(t, data, decode(t, skipped))
}

func TestPassThrough(t *testing.T) {
	t.Parallel()

	mem, err := entry.NewMemoryBytes(pathspec.Hash("a/b.bin"), entry.KindBinary, []byte("hello"))
	require.NoError(t, err)
	backing := append(make([]byte, 256), mem.Bytes()...)

	pt := entry.NewPassThrough(mem.PathSpec(), bytes.NewReader(backing), 256, mem.Size())
	assert.Equal(t, entry.KindBinary, pt.Kind())
	assert.Equal(t, mem.Bytes(), readAll(t, pt))
	assert.Equal(t, []byte("hello"), decode(t, pt))

	short := entry.NewPassThrough(mem.PathSpec(), bytes.NewReader(backing[:300]), 256, mem.Size())
	_, err = short.ReadAt(make([]byte, mem.Size()), 0)
	assert.ErrorIs(t, err, format.ErrIO)
	assert.Equal(t, entry.KindBinary, short.Kind())
}

func TestHotSwappable(t *testing.T) {
	t.Parallel()

	spec := pathspec.Hash("ui/icon/a.tex")
	big, err := entry.NewMemoryBytes(spec, entry.KindBinary, testutil.RandomBytes(1, 3000))
	require.NoError(t, err)
	small, err := entry.NewMemoryBytes(spec, entry.KindBinary, []byte("small"))
	require.NoError(t, err)

	h := entry.NewHotSwappable(spec, 1000, nil)
	assert.Equal(t, int64(1024), h.Size())
	assert.Equal(t, entry.KindEmptyOrObfuscated, h.Kind())

	t.Run("smaller payload is zero-filled", func(t *testing.T) {
		require.NoError(t, h.Swap(small))
		got := readAll(t, h)
		assert.Equal(t, small.Bytes(), got[:small.Size()])
		assert.Equal(t, make([]byte, h.Size()-small.Size()), got[small.Size():])
		assert.Equal(t, []byte("small"), decode(t, h))
	})

	t.Run("oversized payload is rejected", func(t *testing.T) {
		err := h.Swap(big)
		require.ErrorIs(t, err, entry.ErrReservationExceeded)
		require.ErrorIs(t, err, format.ErrInvalidArgument)
		assert.Same(t, small, h.Current())
		assert.Equal(t, []byte("small"), decode(t, h))
	})

	t.Run("nil restores the placeholder", func(t *testing.T) {
		require.NoError(t, h.Swap(nil))
		assert.Equal(t, entry.KindEmptyOrObfuscated, h.Kind())
		assert.Equal(t, make([]byte, h.Size()-format.EntryAlignment), readAll(t, h)[format.EntryAlignment:])
	})

	t.Run("grow forwards swaps", func(t *testing.T) {
		require.NoError(t, h.Swap(small))
		assert.Same(t, h, h.Grow(h.Size()))

		g := h.Grow(big.Size())
		assert.NotSame(t, h, g)
		assert.GreaterOrEqual(t, g.Size(), big.Size())
		assert.Same(t, small, g.Current())

		require.NoError(t, h.Swap(big))
		assert.Same(t, big, g.Current())
		assert.Equal(t, big.Bytes(), readAll(t, g)[:big.Size()])
	})

	grown := entry.NewHotSwappable(spec, 10, big)
	assert.Equal(t, big.Size(), grown.Size())
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.bin")
	data := testutil.MixedBytes(2, 30000)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	src, err := entry.NewFileSource(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), src.Size())

	lazy := entry.NewLazyBinary(pathspec.Hash("a/a.bin"), src)
	assert.Equal(t, data, decode(t, lazy))
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	_, err = entry.NewFileSource(t.TempDir())
	assert.ErrorIs(t, err, format.ErrInvalidArgument)
	_, err = entry.NewFileSource(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, format.ErrIO)
}
