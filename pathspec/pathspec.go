// Package pathspec derives the hashes and pack identifiers SqPack uses to
// address an entry.
//
// A PathSpec carries three hashes: the pair hash (directory hash and name hash)
// keyed by .index files, and the full-path hash keyed by .index2 files. All
// hashes are bitwise-inverted IEEE CRC-32 values over the lowercased path.
package pathspec

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// EmptyHash is the hash value used by the empty PathSpec.
const EmptyHash uint32 = 0xFFFFFFFF

// Category identifiers keyed on the first path segment.
const (
	CategoryCommon     uint8 = 0x00
	CategoryBgCommon   uint8 = 0x01
	CategoryBg         uint8 = 0x02
	CategoryCut        uint8 = 0x03
	CategoryChara      uint8 = 0x04
	CategoryShader     uint8 = 0x05
	CategoryUI         uint8 = 0x06
	CategorySound      uint8 = 0x07
	CategoryVfx        uint8 = 0x08
	CategoryUIScript   uint8 = 0x09
	CategoryExd        uint8 = 0x0A
	CategoryGameScript uint8 = 0x0B
	CategoryMusic      uint8 = 0x0C
)

var categories = map[string]uint8{
	"common":      CategoryCommon,
	"bgcommon":    CategoryBgCommon,
	"bg":          CategoryBg,
	"cut":         CategoryCut,
	"chara":       CategoryChara,
	"shader":      CategoryShader,
	"ui":          CategoryUI,
	"sound":       CategorySound,
	"vfx":         CategoryVfx,
	"ui_script":   CategoryUIScript,
	"exd":         CategoryExd,
	"game_script": CategoryGameScript,
	"music":       CategoryMusic,
}

// PathSpec identifies an archive entry.
//
// Text is the normalized path when the source string was known. Entries read
// back from an index without a conflict record only carry hashes.
type PathSpec struct {
	PathHash     uint32
	NameHash     uint32
	FullPathHash uint32
	CategoryID   uint8
	ExpacID      uint8
	PartID       uint8
	Text         string
}

// Empty is the sentinel returned for an empty path.
var Empty = PathSpec{
	PathHash:     EmptyHash,
	NameHash:     EmptyHash,
	FullPathHash: EmptyHash,
}

// Hash derives a PathSpec from a path.
//
// Both '/' and '\' separate segments, "." segments are dropped and ".."
// removes the preceding segment. Hashing is case-insensitive; Text keeps the
// caller's casing.
func Hash(path string) PathSpec {
	parts := normalize(path)
	if len(parts) == 0 {
		return Empty
	}

	var dir segmentHash
	for _, part := range parts[:len(parts)-1] {
		dir.add(strings.ToLower(part))
	}
	var name segmentHash
	name.add(strings.ToLower(parts[len(parts)-1]))
	full := dir.join(name)

	spec := PathSpec{
		PathHash:     ^dir.crc,
		NameHash:     ^name.crc,
		FullPathHash: ^full.crc,
		Text:         strings.Join(parts, "/"),
	}
	spec.CategoryID, spec.ExpacID, spec.PartID = packIDs(parts)
	return spec
}

// FromHashes builds a PathSpec for an entry whose path text is unknown.
func FromHashes(pathHash, nameHash, fullPathHash uint32) PathSpec {
	return PathSpec{
		PathHash:     pathHash,
		NameHash:     nameHash,
		FullPathHash: fullPathHash,
	}
}

func normalize(path string) []string {
	fields := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	parts := fields[:0]
	for _, f := range fields {
		switch f {
		case ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, f)
		}
	}
	return parts
}

func packIDs(parts []string) (category, expac, part uint8) {
	category, ok := categories[strings.ToLower(parts[0])]
	if !ok || len(parts) < 2 {
		return category, 0, 0
	}

	switch category {
	case CategoryBg, CategoryCut, CategoryMusic:
	default:
		return category, 0, 0
	}

	second := strings.ToLower(parts[1])
	if !strings.HasPrefix(second, "ex") {
		return category, 0, 0
	}
	n, err := strconv.ParseUint(second[2:], 10, 8)
	if err != nil {
		return category, 0, 0
	}
	expac = uint8(n)

	if category == CategoryBg && expac > 0 && len(parts) > 3 {
		third := parts[2]
		if len(third) >= 2 {
			if p, err := strconv.ParseUint(third[:2], 10, 8); err == nil {
				part = uint8(p)
			}
		}
	}
	return category, expac, part
}

// IsEmpty reports whether s is the empty sentinel.
func (s PathSpec) IsEmpty() bool {
	return s.Text == "" &&
		s.PathHash == EmptyHash &&
		s.NameHash == EmptyHash &&
		s.FullPathHash == EmptyHash
}

// HasText reports whether the original path text is known.
func (s PathSpec) HasText() bool {
	return s.Text != ""
}

// PairKey packs the index1 key, ordering by path hash then name hash.
func (s PathSpec) PairKey() uint64 {
	return uint64(s.PathHash)<<32 | uint64(s.NameHash)
}

// PackID packs category, expansion and part into the identifier used by file names.
func (s PathSpec) PackID() uint32 {
	return uint32(s.CategoryID)<<16 | uint32(s.ExpacID)<<8 | uint32(s.PartID)
}

// PackName returns the archive base name for the entry, e.g. "040000".
func (s PathSpec) PackName() string {
	return fmt.Sprintf("%02x%02x%02x", s.CategoryID, s.ExpacID, s.PartID)
}

// Equal reports whether a and b name the same entry.
//
// Hashes must match. Texts are compared case-insensitively only when both
// sides know them.
func (s PathSpec) Equal(o PathSpec) bool {
	if s.PathHash != o.PathHash || s.NameHash != o.NameHash || s.FullPathHash != o.FullPathHash {
		return false
	}
	if s.Text == "" || o.Text == "" {
		return true
	}
	return strings.EqualFold(s.Text, o.Text)
}

// Compare orders specs by pair key, then full-path hash, then lowercased text.
func Compare(a, b PathSpec) int {
	if c := cmp.Compare(a.PairKey(), b.PairKey()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.FullPathHash, b.FullPathHash); c != 0 {
		return c
	}
	return strings.Compare(strings.ToLower(a.Text), strings.ToLower(b.Text))
}

// String returns the text when known, otherwise the hashes.
func (s PathSpec) String() string {
	if s.Text != "" {
		return s.Text
	}
	return fmt.Sprintf("~%08x/~%08x (~%08x)", s.PathHash, s.NameHash, s.FullPathHash)
}
