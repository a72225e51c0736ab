package index

import (
	"fmt"
	"iter"
	"slices"
	"sort"

	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/pathspec"
)

// ErrSynonymWithoutText is returned when a key is shared by several paths
// and the caller only knows the hashes.
var ErrSynonymWithoutText = fmt.Errorf("%w: path text required to resolve a shared hash", format.ErrInvalidArgument)

// File is a parsed .index or .index2 file.
type File struct {
	Header format.IndexHeader
	// Pairs is set for .index files.
	Pairs []format.PairHashLocator
	// Fulls is set for .index2 files.
	Fulls []format.FullHashLocator
	// Texts is the conflict list without its sentinel.
	Texts []format.TextLocator
	// Paths groups Pairs by path hash.
	Paths []format.PathHashLocator
}

// Load parses an index file. With strict set, header signatures, segment
// SHA-1s and table ordering are verified.
func Load(data []byte, strict bool) (*File, error) {
	if _, err := format.ParseSqpackHeader(data, format.FileTypeIndex, strict); err != nil {
		return nil, err
	}
	if len(data) < 2*format.HeaderSize {
		return nil, fmt.Errorf("%w: index of %d bytes", format.ErrCorruptData, len(data))
	}
	h, err := format.ParseIndexHeader(data[format.HeaderSize:], strict)
	if err != nil {
		return nil, err
	}
	f := &File{Header: h}

	hashes, err := segment(data, h.HashLocatorSegment, strict)
	if err != nil {
		return nil, fmt.Errorf("hash segment: %w", err)
	}
	switch h.Type {
	case format.IndexTypeIndex:
		f.Pairs, err = format.ParsePairHashLocators(hashes)
	case format.IndexTypeIndex2:
		f.Fulls, err = format.ParseFullHashLocators(hashes)
	default:
		err = fmt.Errorf("%w: index type %d", format.ErrCorruptData, h.Type)
	}
	if err != nil {
		return nil, err
	}

	texts, err := segment(data, h.TextLocatorSegment, strict)
	if err != nil {
		return nil, fmt.Errorf("text segment: %w", err)
	}
	if f.Texts, err = format.ParseTextLocators(texts); err != nil {
		return nil, err
	}

	if h.Type == format.IndexTypeIndex {
		paths, err := segment(data, h.PathHashLocatorSegment, strict)
		if err != nil {
			return nil, fmt.Errorf("path hash segment: %w", err)
		}
		if f.Paths, err = format.ParsePathHashLocators(paths); err != nil {
			return nil, err
		}
	}

	if strict {
		if err := f.checkOrder(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func segment(data []byte, d format.SegmentDescriptor, strict bool) ([]byte, error) {
	end := uint64(d.Offset) + uint64(d.Size)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: segment [%d, %d) outside %d byte file", format.ErrCorruptData, d.Offset, end, len(data))
	}
	b := data[d.Offset:end]
	if strict {
		if got := format.Sum1(b); got != d.SHA1 {
			return nil, fmt.Errorf("%w: segment sha1 %s, stored %s", format.ErrCorruptData, got, d.SHA1)
		}
	}
	return b, nil
}

func (f *File) checkOrder() error {
	sorted := slices.IsSortedFunc(f.Pairs, func(a, b format.PairHashLocator) int {
		return cmpKey(a.Key(), b.Key())
	}) && slices.IsSortedFunc(f.Fulls, func(a, b format.FullHashLocator) int {
		return cmpKey(uint64(a.FullPathHash), uint64(b.FullPathHash))
	}) && slices.IsSortedFunc(f.Texts, compareText)
	if !sorted {
		return fmt.Errorf("%w: index tables out of order", format.ErrCorruptData)
	}
	return nil
}

// IsIndex2 reports whether f keys entries on full-path hashes.
func (f *File) IsIndex2() bool { return f.Header.Type == format.IndexTypeIndex2 }

// DataFiles returns the number of data files the index addresses.
func (f *File) DataFiles() int { return int(f.Header.DataFilesSegmentCount) }

// Resolve finds the locator for spec.
//
// A synonym hit falls back to the conflict list, which is matched on path
// text case-insensitively. Returns format.ErrNotFound when the key is absent
// and ErrSynonymWithoutText when spec has no text to disambiguate.
func (f *File) Resolve(spec pathspec.PathSpec) (format.Locator, error) {
	loc, ok := f.DirectHit(spec)
	if !ok {
		return 0, format.ErrNotFound
	}
	if !loc.IsSynonym() {
		return loc, nil
	}
	if !spec.HasText() {
		return 0, ErrSynonymWithoutText
	}
	return f.resolveConflict(spec)
}

func (f *File) key(spec pathspec.PathSpec) uint64 {
	if f.IsIndex2() {
		return uint64(spec.FullPathHash)
	}
	return spec.PairKey()
}

// DirectHit returns the hash-table record for spec without consulting the
// conflict list. The locator may be a synonym marker.
func (f *File) DirectHit(spec pathspec.PathSpec) (format.Locator, bool) {
	key := f.key(spec)
	if f.IsIndex2() {
		i := sort.Search(len(f.Fulls), func(i int) bool { return uint64(f.Fulls[i].FullPathHash) >= key })
		if i < len(f.Fulls) && uint64(f.Fulls[i].FullPathHash) == key {
			return f.Fulls[i].Locator, true
		}
		return 0, false
	}
	i := sort.Search(len(f.Pairs), func(i int) bool { return f.Pairs[i].Key() >= key })
	if i < len(f.Pairs) && f.Pairs[i].Key() == key {
		return f.Pairs[i].Locator, true
	}
	return 0, false
}

func (f *File) resolveConflict(spec pathspec.PathSpec) (format.Locator, error) {
	key := f.key(spec)
	i := sort.Search(len(f.Texts), func(i int) bool { return f.Texts[i].Key() >= key })
	for ; i < len(f.Texts) && f.Texts[i].Key() == key; i++ {
		if format.EqualPath(f.Texts[i].Path, spec.Text) {
			return f.Texts[i].Locator, nil
		}
	}
	return 0, format.ErrNotFound
}

// Record is one addressable entry of an index.
type Record struct {
	Spec    pathspec.PathSpec
	Locator format.Locator
}

// Records yields every entry: direct hash-table hits first, then conflict
// list entries. Synonym markers are skipped.
func (f *File) Records() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, p := range f.Pairs {
			if p.Locator.IsSynonym() {
				continue
			}
			if !yield(Record{Spec: pathspec.FromHashes(p.PathHash, p.NameHash, 0), Locator: p.Locator}) {
				return
			}
		}
		for _, p := range f.Fulls {
			if p.Locator.IsSynonym() {
				continue
			}
			if !yield(Record{Spec: pathspec.FromHashes(0, 0, p.FullPathHash), Locator: p.Locator}) {
				return
			}
		}
		for _, t := range f.Texts {
			if !yield(Record{Spec: f.textSpec(t), Locator: t.Locator}) {
				return
			}
		}
	}
}

// textSpec keeps the hashes the conflict record was filed under.
func (f *File) textSpec(t format.TextLocator) pathspec.PathSpec {
	spec := pathspec.Hash(t.Path)
	if f.IsIndex2() {
		spec.FullPathHash = t.Hash1
	} else {
		spec.NameHash, spec.PathHash = t.Hash1, t.Hash2
	}
	return spec
}

// Len returns the number of entries, counting each conflict list entry once.
func (f *File) Len() int {
	n := len(f.Texts)
	for _, p := range f.Pairs {
		if !p.Locator.IsSynonym() {
			n++
		}
	}
	for _, p := range f.Fulls {
		if !p.Locator.IsSynonym() {
			n++
		}
	}
	return n
}

func cmpKey(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareText(a, b format.TextLocator) int {
	if c := cmpKey(a.Key(), b.Key()); c != 0 {
		return c
	}
	return cmpKey(uint64(a.ConflictIndex), uint64(b.ConflictIndex))
}
