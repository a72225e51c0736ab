package sqpack

import (
	"fmt"
	"slices"

	"github.com/meigma/sqpack/entry"
	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/internal/index"
	"github.com/meigma/sqpack/internal/sizing"
	"github.com/meigma/sqpack/pathspec"
)

type placedEntry struct {
	spec     pathspec.PathSpec
	provider entry.Provider
	// offset is the entry's position in its data file.
	offset int64
	size   int64
}

type segment struct {
	entries []placedEntry
	// size is the number of entry bytes following the headers.
	size int64
}

func (s *segment) end() int64 { return format.FirstEntryOffset + s.size }

type layout struct {
	segments []segment
	index1   []byte
	index2   []byte
}

// layout assigns every entry a data file and offset in path order, starting
// a new data file whenever the next entry would push the current one past
// the segment size limit, and encodes both indices.
func (c *Creator) layout() (*layout, error) {
	if c.closed {
		return nil, ErrClosed
	}
	sorted := slices.Clone(c.entries)
	slices.SortStableFunc(sorted, func(a, b *creatorEntry) int {
		return pathspec.Compare(a.spec, b.spec)
	})

	l := &layout{}
	records := make([]index.Record, 0, len(sorted))
	var total int64
	for _, e := range sorted {
		size := e.provider.Size()
		if err := c.checkSize(size); err != nil {
			return nil, fmt.Errorf("%s: %w", e.spec, err)
		}
		if len(l.segments) == 0 || (l.segments[len(l.segments)-1].size > 0 && l.segments[len(l.segments)-1].end()+size > c.cfg.maxSegmentSize) {
			if len(l.segments) == format.MaxDataFiles {
				return nil, fmt.Errorf("%w: %d entries need more than %d data files", ErrTooManySegments, len(sorted), format.MaxDataFiles)
			}
			if len(l.segments) > 0 {
				c.log().Debug("data file full", "data_file", len(l.segments)-1, "size", l.segments[len(l.segments)-1].end())
			}
			l.segments = append(l.segments, segment{})
		}
		seg := &l.segments[len(l.segments)-1]
		off := seg.end()
		loc, err := format.NewLocator(uint32(len(l.segments)-1), uint64(off)) //nolint:gosec // bounded by MaxDataFiles and the segment limit
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.spec, err)
		}
		seg.entries = append(seg.entries, placedEntry{spec: e.spec, provider: e.provider, offset: off, size: size})
		seg.size += size
		var ok bool
		if total, ok = sizing.AddInt64(total, size); !ok {
			return nil, fmt.Errorf("%w: archive size overflows", ErrEntryTooLarge)
		}
		records = append(records, index.Record{Spec: e.spec, Locator: loc})
	}
	if len(l.segments) == 0 {
		l.segments = append(l.segments, segment{})
	}

	var err error
	if l.index1, l.index2, err = index.Build(records, len(l.segments)); err != nil {
		return nil, err
	}
	c.reportProgress(StageLayout, "", uint64(total), uint64(total), len(sorted), len(sorted)) //nolint:gosec // sizes are non-negative
	c.log().Debug("layout computed", "entries", len(sorted), "data_files", len(l.segments), "data_size", total)
	return l, nil
}

// dataHeaders encodes the two headers preceding the entries of data file i.
func (l *layout) dataHeaders(i int, maxSize int64, sum format.SHA1) ([]byte, error) {
	common, err := format.NewSqpackHeader(format.FileTypeData).MarshalBinary()
	if err != nil {
		return nil, err
	}
	dh, err := format.DataHeader{
		DataSize:    uint64(l.segments[i].size), //nolint:gosec // non-negative
		SpanIndex:   uint32(i),                  //nolint:gosec // bounded by MaxDataFiles
		MaxFileSize: uint64(maxSize),            //nolint:gosec // positive
		DataSHA1:    sum,
	}.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(common, dh...), nil
}
