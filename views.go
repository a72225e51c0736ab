package sqpack

import (
	"crypto/sha1" //nolint:gosec // format-mandated digest
	"fmt"
	"io"
	"sort"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/sqpack/entry"
	"github.com/meigma/sqpack/internal/format"
)

// Views is an archive laid out in memory.
type Views struct {
	Index1 []byte
	Index2 []byte
	Data   []*DataView
}

// Sources returns the data views as ByteSources, in data file order.
func (v *Views) Sources() []ByteSource {
	out := make([]ByteSource, len(v.Data))
	for i, d := range v.Data {
		out[i] = d
	}
	return out
}

// OpenViews mounts v.
func OpenViews(v *Views, opts ...Option) (*Reader, error) {
	return Open(v.Index1, v.Index2, v.Sources(), opts...)
}

// DataView is a virtual data file. Reads are answered by the providers
// placed in it, so hot swaps into reservations show through.
type DataView struct {
	header  []byte
	entries []placedEntry
	size    int64
	id      string
}

// AsViews lays out the registered entries and returns the archive as
// in-memory views without writing or materializing any entry.
//
// Data headers carry no data SHA-1 unless WithStrictViews is set, in which
// case every entry is read once to compute it.
func (c *Creator) AsViews() (*Views, error) {
	l, err := c.layout()
	if err != nil {
		return nil, err
	}
	v := &Views{Index1: l.index1, Index2: l.index2}
	for i, seg := range l.segments {
		var sum format.SHA1
		if c.cfg.strictViews {
			h := sha1.New() //nolint:gosec // format-mandated digest
			for _, e := range seg.entries {
				if _, err := io.Copy(h, io.NewSectionReader(e.provider, 0, e.size)); err != nil {
					return nil, fmt.Errorf("data file %d: %s: %w", i, e.spec, err)
				}
			}
			sum = format.SHA1(h.Sum(nil))
		}
		header, err := l.dataHeaders(i, c.cfg.maxSegmentSize, sum)
		if err != nil {
			return nil, err
		}
		d := &DataView{header: header, entries: seg.entries, size: seg.end()}
		if c.cfg.strictViews && !hasReservations(seg.entries) {
			d.id = digest.FromBytes(header).String()
		}
		v.Data = append(v.Data, d)
	}
	return v, nil
}

func hasReservations(entries []placedEntry) bool {
	for _, e := range entries {
		if _, ok := e.provider.(*entry.HotSwappable); ok {
			return true
		}
	}
	return false
}

// Size returns the size of the data file.
func (d *DataView) Size() int64 { return d.size }

// SourceID identifies the view's content. It is empty, disabling block
// caching, unless the view was built with WithStrictViews and holds no
// reservations.
func (d *DataView) SourceID() string { return d.id }

// ReadAt implements io.ReaderAt.
func (d *DataView) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrInvalidArgument, off)
	}
	if off >= d.size {
		return 0, io.EOF
	}
	want := int(min(int64(len(p)), d.size-off))
	buf := p[:want]
	for len(buf) > 0 {
		var n int
		if off < int64(len(d.header)) {
			n = copy(buf, d.header[off:])
		} else {
			i := sort.Search(len(d.entries), func(i int) bool {
				return d.entries[i].offset+d.entries[i].size > off
			})
			if i == len(d.entries) {
				return want - len(buf), fmt.Errorf("%w: offset %d outside every entry", ErrCorruptData, off)
			}
			e := d.entries[i]
			chunk := buf[:min(int64(len(buf)), e.offset+e.size-off)]
			var err error
			if n, err = e.provider.ReadAt(chunk, off-e.offset); n < len(chunk) {
				if err == nil || err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return want - len(buf) + n, fmt.Errorf("%s: %w", e.spec, err)
			}
		}
		buf = buf[n:]
		off += int64(n)
	}
	if want < len(p) {
		return want, io.EOF
	}
	return want, nil
}
