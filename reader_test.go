package sqpack

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/sqpack/entry"
	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/internal/testutil"
	"github.com/meigma/sqpack/pathspec"
)

const testArchive = "040000"

func sampleFiles(t *testing.T) map[string][]byte {
	t.Helper()
	return map[string][]byte{
		"chara/a.bin":  testutil.MixedBytes(1, 40000),
		"common/b.tex": testutil.Texture(t, 128, 128, 5, 1, 2),
		"chara/c.mdl":  testutil.Model(t, testutil.ModelChunkSizes, 3),
	}
}

func addLazy(t *testing.T, c *Creator, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		p, err := entry.NewLazy(pathspec.Hash(name), entry.KindForPath(name), bytes.NewReader(data))
		require.NoError(t, err)
		res := c.AddEntry(p, false)
		require.NoError(t, res.Err, name)
		require.Equal(t, OutcomeAdded, res.Outcome, name)
	}
}

func writeSample(t *testing.T, opts ...CreatorOption) (string, map[string][]byte) {
	t.Helper()
	files := sampleFiles(t)
	c := NewCreator(opts...)
	addLazy(t, c, files)
	dir := t.TempDir()
	require.NoError(t, c.Write(t.Context(), dir, testArchive))
	require.NoError(t, c.Close())
	return dir, files
}

func mustOpenDir(t *testing.T, dir string, opts ...Option) *Reader {
	t.Helper()
	r, err := OpenDir(dir, testArchive, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// assertReadable reads every file in one call and in 7-byte chunks at
// random offsets.
func assertReadable(t *testing.T, r *Reader, files map[string][]byte) {
	t.Helper()
	rng := rand.New(rand.NewPCG(42, 7))
	for name, want := range files {
		got, err := r.ReadFile(name)
		require.NoError(t, err, name)
		require.True(t, bytes.Equal(want, got), "%s: full read differs", name)

		s, err := r.Open(name)
		require.NoError(t, err, name)
		require.Equal(t, int64(len(want)), s.Size())
		buf := make([]byte, 7)
		for range 200 {
			off := rng.IntN(len(want))
			n, err := s.ReadAt(buf, int64(off))
			if err != nil {
				require.ErrorIs(t, err, io.EOF, name)
			}
			require.Equal(t, min(7, len(want)-off), n)
			require.True(t, bytes.Equal(want[off:off+n], buf[:n]), "%s: chunk at %d differs", name, off)
		}
	}
}

func TestEndToEnd(t *testing.T) {
	t.Parallel()
	dir, files := writeSample(t)

	for _, suffix := range []string{IndexSuffix, Index2Suffix, DataSuffix + "0"} {
		_, err := os.Stat(filepath.Join(dir, testArchive+suffix))
		require.NoError(t, err, suffix)
	}

	t.Run("strict", func(t *testing.T) {
		t.Parallel()
		r := mustOpenDir(t, dir, WithStrict(true))
		assert.Equal(t, 3, r.Len())
		assert.Equal(t, 1, r.DataFiles())
		assertReadable(t, r, files)
	})

	t.Run("mmap with block cache", func(t *testing.T) {
		t.Parallel()
		r := mustOpenDir(t, dir, WithMmap(true), WithBlockCache(64))
		assertReadable(t, r, files)
		assertReadable(t, r, files)
	})

	t.Run("kinds", func(t *testing.T) {
		t.Parallel()
		r := mustOpenDir(t, dir)
		for name := range files {
			p, err := r.EntryProvider(name)
			require.NoError(t, err)
			assert.Equal(t, entry.KindForPath(name), p.Kind(), name)
			assert.Zero(t, p.Offset()%format.EntryAlignment)
			assert.True(t, r.Exists(name))
		}
	})

	t.Run("catalog", func(t *testing.T) {
		t.Parallel()
		r := mustOpenDir(t, dir)
		var total int64
		for e := range r.Entries() {
			assert.Zero(t, e.Allocation%format.EntryAlignment)
			total += e.Allocation
		}
		info, err := os.Stat(DataPath(dir, testArchive, 0))
		require.NoError(t, err)
		assert.Equal(t, info.Size()-format.FirstEntryOffset, total)
	})
}

func TestReaderNotFound(t *testing.T) {
	t.Parallel()
	dir, _ := writeSample(t)
	r := mustOpenDir(t, dir)

	_, err := r.Open("chara/missing.bin")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, fs.ErrNotExist)
	var pathErr *fs.PathError
	require.True(t, errors.As(err, &pathErr))
	assert.Equal(t, "chara/missing.bin", pathErr.Path)

	_, err = r.ReadFile("chara/missing.bin")
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, r.Exists("chara/missing.bin"))
}

func TestReaderStrictDetectsCorruption(t *testing.T) {
	t.Parallel()

	t.Run("data", func(t *testing.T) {
		t.Parallel()
		dir, files := writeSample(t)
		path := DataPath(dir, testArchive, 0)
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0xFF
		require.NoError(t, os.WriteFile(path, raw, 0o600))

		_, err = OpenDir(dir, testArchive, WithStrict(true))
		require.ErrorIs(t, err, ErrCorruptData)

		r := mustOpenDir(t, dir)
		assert.Equal(t, len(files), r.Len())
	})

	t.Run("index segment", func(t *testing.T) {
		t.Parallel()
		dir, _ := writeSample(t)
		path := IndexPath(dir, testArchive)
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		raw[2*format.HeaderSize] ^= 0xFF
		require.NoError(t, os.WriteFile(path, raw, 0o600))

		_, err = OpenDir(dir, testArchive, WithStrict(true))
		require.ErrorIs(t, err, ErrCorruptData)
	})

	t.Run("missing data file", func(t *testing.T) {
		t.Parallel()
		dir, _ := writeSample(t)
		require.NoError(t, os.Remove(DataPath(dir, testArchive, 0)))
		_, err := OpenDir(dir, testArchive)
		require.ErrorIs(t, err, ErrIO)
	})
}

func TestOpenFromMemory(t *testing.T) {
	t.Parallel()
	dir, files := writeSample(t)

	index1, err := os.ReadFile(IndexPath(dir, testArchive))
	require.NoError(t, err)
	index2, err := os.ReadFile(Index2Path(dir, testArchive))
	require.NoError(t, err)
	dat, err := os.ReadFile(DataPath(dir, testArchive, 0))
	require.NoError(t, err)

	r, err := Open(index1, index2, []ByteSource{NewBytesSource(dat)}, WithStrict(true), WithBlockCache(16))
	require.NoError(t, err)
	assertReadable(t, r, files)

	_, err = Open(index1, index2, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Open(index2, index1, []ByteSource{NewBytesSource(dat)})
	require.ErrorIs(t, err, ErrCorruptData)
}

func TestSplitIndexPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		dir  string
		name string
		ok   bool
	}{
		{filepath.Join("game", "sqpack", "040000.win32.index"), filepath.Join("game", "sqpack"), "040000", true},
		{"040000.win32.index2", ".", "040000", true},
		{filepath.Join("a", "0a0000.win32.dat3"), "a", "0a0000", true},
		{filepath.Join("a", "0a0000.win32.datx"), "", "", false},
		{".win32.index", "", "", false},
		{"readme.txt", "", "", false},
	}
	for _, tt := range tests {
		dir, name, ok := SplitIndexPath(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.dir, dir, tt.path)
		assert.Equal(t, tt.name, name, tt.path)
	}
}
