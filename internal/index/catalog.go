package index

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/pathspec"
)

// Entry is one merged catalog record.
type Entry struct {
	Spec    pathspec.PathSpec
	Locator format.Locator
	// Allocation is the distance to the next entry in the same data file,
	// or to the end of that file's entry region.
	Allocation int64
}

// BuildCatalog merges the records of both indices into one catalog sorted by
// location. Records of the two files that share a locator describe the same
// entry and are combined. dataEnds holds the end of the entry region of each
// data file.
func BuildCatalog(index1, index2 *File, dataEnds []int64) ([]Entry, error) {
	byLoc := make(map[format.Locator][]pathspec.PathSpec)
	var order []format.Locator
	add := func(f *File, merge bool) {
		if f == nil {
			return
		}
		seen := make(map[format.Locator]int)
		for rec := range f.Records() {
			specs, ok := byLoc[rec.Locator]
			if !ok {
				order = append(order, rec.Locator)
			}
			i := seen[rec.Locator]
			seen[rec.Locator]++
			if merge && i < len(specs) {
				specs[i] = mergeSpec(specs[i], rec.Spec)
				continue
			}
			byLoc[rec.Locator] = append(specs, rec.Spec)
		}
	}
	add(index1, false)
	add(index2, true)

	slices.SortFunc(order, compareLocator)
	var out []Entry
	for i, loc := range order {
		end, err := allocationEnd(order, i, dataEnds)
		if err != nil {
			return nil, err
		}
		alloc := end - int64(loc.Offset()) //nolint:gosec // offsets fit in 35 bits
		for _, spec := range byLoc[loc] {
			out = append(out, Entry{Spec: spec, Locator: loc, Allocation: alloc})
		}
	}
	return out, nil
}

func allocationEnd(order []format.Locator, i int, dataEnds []int64) (int64, error) {
	loc := order[i]
	if i+1 < len(order) && order[i+1].Index() == loc.Index() {
		return int64(order[i+1].Offset()), nil //nolint:gosec // offsets fit in 35 bits
	}
	if int(loc.Index()) >= len(dataEnds) {
		return 0, fmt.Errorf("%w: entry %s references missing data file", format.ErrCorruptData, loc)
	}
	end := dataEnds[loc.Index()]
	if end <= int64(loc.Offset()) { //nolint:gosec // offsets fit in 35 bits
		return 0, fmt.Errorf("%w: entry %s starts past data end %#x", format.ErrCorruptData, loc, end)
	}
	return end, nil
}

// mergeSpec combines what the two indices know about one entry.
// Pair hashes come from a, the full-path hash from b.
func mergeSpec(a, b pathspec.PathSpec) pathspec.PathSpec {
	out := a
	if !a.HasText() && b.HasText() {
		out = b
	}
	out.PathHash, out.NameHash = a.PathHash, a.NameHash
	out.FullPathHash = b.FullPathHash
	return out
}

func compareLocator(a, b format.Locator) int {
	if c := cmp.Compare(a.Index(), b.Index()); c != 0 {
		return c
	}
	return cmp.Compare(a.Offset(), b.Offset())
}

// CheckConsistent reports whether both indices address the same set of entries.
func CheckConsistent(index1, index2 *File) error {
	a := locators(index1)
	b := locators(index2)
	if len(a) != len(b) {
		return fmt.Errorf("%w: index has %d entries, index2 has %d", format.ErrCorruptData, len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			return fmt.Errorf("%w: index entry %s does not match index2 entry %s", format.ErrCorruptData, a[i], b[i])
		}
	}
	return nil
}

func locators(f *File) []format.Locator {
	out := make([]format.Locator, 0, f.Len())
	for rec := range f.Records() {
		out = append(out, rec.Locator)
	}
	slices.SortFunc(out, compareLocator)
	return out
}
