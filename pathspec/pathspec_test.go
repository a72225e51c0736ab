package pathspec

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineMatchesDirectCRC(t *testing.T) {
	t.Parallel()

	tests := []struct{ a, b string }{
		{"chara", "equipment"},
		{"", "x"},
		{"a", ""},
		{"bg/ex1/01_roc_r2", "level/planevent.lgb"},
		{string(make([]byte, 1000)), "tail"},
	}
	for _, tt := range tests {
		crcA := crc32.ChecksumIEEE([]byte(tt.a))
		crcB := crc32.ChecksumIEEE([]byte(tt.b))
		want := crc32.ChecksumIEEE([]byte(tt.a + tt.b))
		got := combine(crcA, crcB, int64(len(tt.b)))
		assert.Equal(t, want, got, "%q+%q", tt.a, tt.b)
	}
}

func TestHash(t *testing.T) {
	t.Parallel()

	spec := Hash("chara/equipment/e0001/model/c0101e0001_top.mdl")

	dir := "chara/equipment/e0001/model"
	name := "c0101e0001_top.mdl"
	assert.Equal(t, ^crc32.ChecksumIEEE([]byte(dir)), spec.PathHash)
	assert.Equal(t, ^crc32.ChecksumIEEE([]byte(name)), spec.NameHash)
	assert.Equal(t, ^crc32.ChecksumIEEE([]byte(dir+"/"+name)), spec.FullPathHash)
	assert.Equal(t, CategoryChara, spec.CategoryID)
	assert.Equal(t, "040000", spec.PackName())
	assert.True(t, spec.HasText())
}

func TestHashNormalizes(t *testing.T) {
	t.Parallel()

	want := Hash("chara/a.bin")
	for _, p := range []string{
		"chara\\a.bin",
		"/chara//a.bin",
		"chara/./a.bin",
		"chara/x/../a.bin",
		"CHARA/A.BIN",
	} {
		got := Hash(p)
		assert.True(t, want.Equal(got), p)
		assert.Equal(t, want.FullPathHash, got.FullPathHash, p)
	}
	assert.Equal(t, "CHARA/A.BIN", Hash("CHARA/A.BIN").Text)
}

func TestHashSingleSegment(t *testing.T) {
	t.Parallel()

	spec := Hash("readme.txt")
	assert.Equal(t, EmptyHash, spec.PathHash)
	assert.Equal(t, spec.NameHash, spec.FullPathHash)
	assert.False(t, spec.IsEmpty())
}

func TestHashEmpty(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"", "/", "./.", ".."} {
		assert.True(t, Hash(p).IsEmpty(), "%q", p)
	}
}

func TestPackIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path                  string
		category, expac, part uint8
	}{
		{"common/font/font1.tex", CategoryCommon, 0, 0},
		{"bgcommon/hou/a.mdl", CategoryBgCommon, 0, 0},
		{"bg/ffxiv/sea_s1/a.lgb", CategoryBg, 0, 0},
		{"bg/ex1/01_roc_r2/level/a.lgb", CategoryBg, 1, 1},
		{"bg/ex3/02_nor_n1/level/a.lgb", CategoryBg, 3, 2},
		{"music/ex2/bgm_a.scd", CategoryMusic, 2, 0},
		{"cut/ex4/a.cutb", CategoryCut, 4, 0},
		{"chara/ex1/a.mdl", CategoryChara, 0, 0},
		{"exd/root.exl", CategoryExd, 0, 0},
		{"game_script/a.luab", CategoryGameScript, 0, 0},
		{"unknown/a.bin", CategoryCommon, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			spec := Hash(tt.path)
			assert.Equal(t, tt.category, spec.CategoryID)
			assert.Equal(t, tt.expac, spec.ExpacID)
			assert.Equal(t, tt.part, spec.PartID)
		})
	}
	assert.Equal(t, "020101", Hash("bg/ex1/01_roc_r2/level/a.lgb").PackName())
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a := Hash("chara/a.bin")
	hashOnly := FromHashes(a.PathHash, a.NameHash, a.FullPathHash)
	require.False(t, hashOnly.HasText())

	assert.True(t, a.Equal(hashOnly))
	assert.True(t, hashOnly.Equal(a))
	assert.False(t, a.Equal(Hash("chara/b.bin")))

	collided := a
	collided.Text = "chara/other.bin"
	assert.False(t, a.Equal(collided))
}

func TestCompare(t *testing.T) {
	t.Parallel()

	a := Hash("chara/a.bin")
	assert.Equal(t, 0, Compare(a, a))
	b := a
	b.Text = "chara/zz.bin"
	assert.Negative(t, Compare(a, b))
	assert.Positive(t, Compare(b, a))
}
