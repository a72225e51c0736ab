package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/pathspec"
)

func mustLocator(t *testing.T, index uint32, offset uint64) format.Locator {
	t.Helper()
	loc, err := format.NewLocator(index, offset)
	require.NoError(t, err)
	return loc
}

// colliding returns a spec with the hashes of path but different text.
func colliding(path, text string) pathspec.PathSpec {
	s := pathspec.Hash(path)
	s.Text = text
	return s
}

type fixture struct {
	a, collide, b, c pathspec.PathSpec
	records          []Record
	index1, index2   *File
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		a:       pathspec.Hash("chara/a.bin"),
		collide: colliding("chara/a.bin", "chara/other.bin"),
		b:       pathspec.Hash("common/b.tex"),
		c:       pathspec.Hash("chara/c.mdl"),
	}
	f.records = []Record{
		{Spec: f.a, Locator: mustLocator(t, 0, 2048)},
		{Spec: f.collide, Locator: mustLocator(t, 0, 2048+1280)},
		{Spec: f.b, Locator: mustLocator(t, 1, 2048)},
		{Spec: f.c, Locator: mustLocator(t, 0, 2048+4096)},
	}
	raw1, raw2, err := Build(f.records, 2)
	require.NoError(t, err)
	f.index1 = mustLoad(t, raw1)
	f.index2 = mustLoad(t, raw2)
	return f
}

func mustLoad(t *testing.T, data []byte) *File {
	t.Helper()
	f, err := Load(data, true)
	require.NoError(t, err)
	return f
}

func TestBuildAndLoad(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.False(t, f.index1.IsIndex2())
	assert.True(t, f.index2.IsIndex2())
	assert.Equal(t, 2, f.index1.DataFiles())
	assert.Equal(t, 4, f.index1.Len())
	assert.Equal(t, 4, f.index2.Len())
	assert.Len(t, f.index1.Texts, 2)
	assert.Len(t, f.index2.Texts, 2)

	for _, idx := range []*File{f.index1, f.index2} {
		for _, rec := range f.records {
			loc, err := idx.Resolve(rec.Spec)
			require.NoError(t, err, rec.Spec.String())
			assert.Equal(t, rec.Locator, loc, rec.Spec.String())
		}
	}
}

func TestPathHashSegment(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.Len(t, f.index1.Pairs, 3)
	require.Len(t, f.index1.Paths, 2)
	var total uint32
	for _, p := range f.index1.Paths {
		total += p.PairSize
		first := (p.PairOffset - f.index1.Header.HashLocatorSegment.Offset) / format.PairHashLocatorSize
		for i := range p.PairSize / format.PairHashLocatorSize {
			assert.Equal(t, p.PathHash, f.index1.Pairs[first+i].PathHash)
		}
	}
	assert.Equal(t, uint32(3*format.PairHashLocatorSize), total)
	assert.Empty(t, f.index2.Paths)
}

func TestResolveSynonyms(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name    string
		spec    pathspec.PathSpec
		want    format.Locator
		wantErr error
	}{
		{"first path", f.a, f.records[0].Locator, nil},
		{"second path", f.collide, f.records[1].Locator, nil},
		{"case insensitive", colliding("chara/a.bin", "CHARA/Other.BIN"), f.records[1].Locator, nil},
		{"hashes only", pathspec.FromHashes(f.a.PathHash, f.a.NameHash, f.a.FullPathHash), 0, ErrSynonymWithoutText},
		{"unknown text", colliding("chara/a.bin", "chara/third.bin"), 0, format.ErrNotFound},
		{"direct hit", f.c, f.records[3].Locator, nil},
		{"absent", pathspec.Hash("exd/root.exl"), 0, format.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for _, idx := range []*File{f.index1, f.index2} {
				loc, err := idx.Resolve(tt.spec)
				if tt.wantErr != nil {
					require.ErrorIs(t, err, tt.wantErr)
					continue
				}
				require.NoError(t, err)
				assert.Equal(t, tt.want, loc)
			}
		})
	}

	hit, ok := f.index1.DirectHit(f.a)
	require.True(t, ok)
	assert.True(t, hit.IsSynonym())
	hit, ok = f.index1.DirectHit(f.c)
	require.True(t, ok)
	assert.False(t, hit.IsSynonym())
}

func TestLoadStrict(t *testing.T) {
	t.Parallel()

	raw1, _, err := Build([]Record{{Spec: pathspec.Hash("a/b"), Locator: mustLocator(t, 0, 2048)}}, 1)
	require.NoError(t, err)

	t.Run("segment digest", func(t *testing.T) {
		t.Parallel()
		bad := append([]byte(nil), raw1...)
		bad[2*format.HeaderSize] ^= 0xFF
		_, err := Load(bad, true)
		require.ErrorIs(t, err, format.ErrCorruptData)

		lax, err := Load(bad, false)
		require.NoError(t, err)
		assert.Equal(t, 1, lax.Len())
	})

	t.Run("signature", func(t *testing.T) {
		t.Parallel()
		bad := append([]byte(nil), raw1...)
		bad[0] = 'X'
		_, err := Load(bad, true)
		require.ErrorIs(t, err, format.ErrCorruptData)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()
		_, err := Load(raw1[:format.HeaderSize+10], false)
		require.ErrorIs(t, err, format.ErrCorruptData)
		_, err = Load(raw1[:len(raw1)-1], false)
		require.ErrorIs(t, err, format.ErrCorruptData)
	})
}

func TestBuildRejectsUnnamedCollisions(t *testing.T) {
	t.Parallel()

	a := pathspec.Hash("chara/a.bin")
	records := []Record{
		{Spec: a, Locator: mustLocator(t, 0, 2048)},
		{Spec: pathspec.FromHashes(a.PathHash, a.NameHash, a.FullPathHash), Locator: mustLocator(t, 0, 4096)},
	}
	_, _, err := Build(records, 1)
	require.ErrorIs(t, err, ErrSynonymWithoutText)

	_, _, err = Build(nil, format.MaxDataFiles+1)
	require.ErrorIs(t, err, format.ErrInvalidArgument)
}

func TestBuildCatalog(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	entries, err := BuildCatalog(f.index1, f.index2, []int64{2048 + 8192, 2048 + 512})
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, f.records[0].Locator, entries[0].Locator)
	assert.Equal(t, int64(1280), entries[0].Allocation)
	assert.Equal(t, "chara/a.bin", entries[0].Spec.Text)

	assert.Equal(t, f.records[1].Locator, entries[1].Locator)
	assert.Equal(t, int64(4096-1280), entries[1].Allocation)
	assert.Equal(t, "chara/other.bin", entries[1].Spec.Text)
	assert.Equal(t, f.a.PairKey(), entries[1].Spec.PairKey())

	assert.Equal(t, f.records[3].Locator, entries[2].Locator)
	assert.Equal(t, int64(8192-4096), entries[2].Allocation)
	assert.False(t, entries[2].Spec.HasText())
	assert.True(t, entries[2].Spec.Equal(f.c))

	assert.Equal(t, f.records[2].Locator, entries[3].Locator)
	assert.Equal(t, int64(512), entries[3].Allocation)

	_, err = BuildCatalog(f.index1, f.index2, []int64{2048 + 8192})
	require.ErrorIs(t, err, format.ErrCorruptData)
	_, err = BuildCatalog(f.index1, f.index2, []int64{2048 + 4096, 2048 + 512})
	require.ErrorIs(t, err, format.ErrCorruptData)
}

func TestCheckConsistent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, CheckConsistent(f.index1, f.index2))

	_, raw2, err := Build(f.records[:3], 2)
	require.NoError(t, err)
	err = CheckConsistent(f.index1, mustLoad(t, raw2))
	require.ErrorIs(t, err, format.ErrCorruptData)

	moved := append([]Record(nil), f.records...)
	moved[3].Locator = mustLocator(t, 0, 2048+6144)
	_, raw2, err = Build(moved, 2)
	require.NoError(t, err)
	err = CheckConsistent(f.index1, mustLoad(t, raw2))
	require.ErrorIs(t, err, format.ErrCorruptData)
}
