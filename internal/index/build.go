package index

import (
	"fmt"
	"slices"
	"strings"

	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/pathspec"
)

// Build encodes the .index and .index2 files addressing records.
//
// Records sharing a key in either file are stored as a synonym plus one
// conflict list entry per path, which requires their path text. dataFiles is
// the number of data files the locators span.
func Build(records []Record, dataFiles int) (index1, index2 []byte, err error) {
	if dataFiles < 0 || dataFiles > format.MaxDataFiles {
		return nil, nil, fmt.Errorf("%w: %d data files", format.ErrInvalidArgument, dataFiles)
	}
	index1, err = build(records, dataFiles, false)
	if err != nil {
		return nil, nil, fmt.Errorf("build index: %w", err)
	}
	index2, err = build(records, dataFiles, true)
	if err != nil {
		return nil, nil, fmt.Errorf("build index2: %w", err)
	}
	return index1, index2, nil
}

func build(records []Record, dataFiles int, full bool) ([]byte, error) {
	key := func(s pathspec.PathSpec) uint64 {
		if full {
			return uint64(s.FullPathHash)
		}
		return s.PairKey()
	}
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b Record) int {
		if c := cmpKey(key(a.Spec), key(b.Spec)); c != 0 {
			return c
		}
		return strings.Compare(strings.ToLower(a.Spec.Text), strings.ToLower(b.Spec.Text))
	})

	var hashes, texts, paths []byte
	type run struct {
		pathHash uint32
		first    int
		count    int
	}
	var runs []run
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && key(sorted[j].Spec) == key(sorted[i].Spec) {
			j++
		}
		group := sorted[i:j]
		spec := group[0].Spec
		loc := group[0].Locator
		if len(group) > 1 {
			loc = format.Synonym
			var err error
			if texts, err = appendConflicts(texts, group, full); err != nil {
				return nil, err
			}
		}
		if full {
			hashes = format.AppendFullHashLocator(hashes, format.FullHashLocator{FullPathHash: spec.FullPathHash, Locator: loc})
		} else {
			n := len(hashes) / format.PairHashLocatorSize
			if len(runs) > 0 && runs[len(runs)-1].pathHash == spec.PathHash {
				runs[len(runs)-1].count++
			} else {
				runs = append(runs, run{pathHash: spec.PathHash, first: n, count: 1})
			}
			hashes = format.AppendPairHashLocator(hashes, format.PairHashLocator{
				NameHash: spec.NameHash,
				PathHash: spec.PathHash,
				Locator:  loc,
			})
		}
		i = j
	}
	texts = format.AppendTextSentinel(texts)

	h := format.IndexHeader{
		DataFilesSegmentCount: uint32(dataFiles), //nolint:gosec // bounded by MaxDataFiles
		Type:                  format.IndexTypeIndex,
	}
	if full {
		h.Type = format.IndexTypeIndex2
	}
	off := uint32(2 * format.HeaderSize)
	h.HashLocatorSegment, off = describe(hashes, off)
	h.TextLocatorSegment, off = describe(texts, off)
	h.Segment3 = format.SegmentDescriptor{Offset: off, SHA1: format.Sum1(nil)}
	if !full {
		for _, r := range runs {
			paths = format.AppendPathHashLocator(paths, format.PathHashLocator{
				PathHash:   r.pathHash,
				PairOffset: h.HashLocatorSegment.Offset + uint32(r.first*format.PairHashLocatorSize), //nolint:gosec // index files stay far below 4 GiB
				PairSize:   uint32(r.count * format.PairHashLocatorSize),                            //nolint:gosec // as above
			})
		}
		h.PathHashLocatorSegment, off = describe(paths, off)
	}

	common, err := format.NewSqpackHeader(format.FileTypeIndex).MarshalBinary()
	if err != nil {
		return nil, err
	}
	ih, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, off)
	out = append(out, common...)
	out = append(out, ih...)
	out = append(out, hashes...)
	out = append(out, texts...)
	return append(out, paths...), nil
}

func appendConflicts(texts []byte, group []Record, full bool) ([]byte, error) {
	for i, rec := range group {
		if !rec.Spec.HasText() {
			return nil, fmt.Errorf("%w: %s shares its hash with %d other entries", ErrSynonymWithoutText, rec.Spec, len(group)-1)
		}
		t := format.TextLocator{
			Hash1:         rec.Spec.NameHash,
			Hash2:         rec.Spec.PathHash,
			Locator:       rec.Locator,
			ConflictIndex: uint32(i), //nolint:gosec // group sizes are tiny
			Path:          rec.Spec.Text,
		}
		if full {
			t.Hash1, t.Hash2 = rec.Spec.FullPathHash, 0
		}
		var err error
		if texts, err = format.AppendTextLocator(texts, t); err != nil {
			return nil, err
		}
	}
	return texts, nil
}

func describe(seg []byte, off uint32) (format.SegmentDescriptor, uint32) {
	d := format.SegmentDescriptor{
		Count:  1,
		Offset: off,
		Size:   uint32(len(seg)), //nolint:gosec // index files stay far below 4 GiB
		SHA1:   format.Sum1(seg),
	}
	return d, off + d.Size
}
