package sqpack

import (
	"crypto/sha1" //nolint:gosec // format-mandated digest
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"math"
	"os"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/sqpack/entry"
	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/internal/index"
	"github.com/meigma/sqpack/internal/sizing"
	"github.com/meigma/sqpack/pathspec"
	"github.com/meigma/sqpack/stream"
)

// Entry is one record of an archive's merged catalog.
type Entry = index.Entry

// Reader provides random access to the entries of an archive.
//
// A Reader is safe for concurrent use. Providers and streams it returns stay
// valid until Close.
type Reader struct {
	index1  *index.File
	index2  *index.File
	data    []ByteSource
	catalog []Entry
	alloc   map[format.Locator]int64

	strict      bool
	mmap        bool
	cacheBlocks int
	cache       *stream.BlockCache
	openGroup   singleflight.Group
	closers     []io.Closer
	logger      *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Reader) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Open mounts an archive from its index bytes and data sources. data[i]
// backs data file i.
func Open(index1, index2 []byte, data []ByteSource, opts ...Option) (*Reader, error) {
	r := &Reader{data: data}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.load(index1, index2); err != nil {
		return nil, err
	}
	return r, nil
}

// OpenDir opens name.win32.index, name.win32.index2 and every data file the
// index declares from dir.
func OpenDir(dir, name string, opts ...Option) (*Reader, error) {
	r := &Reader{}
	for _, opt := range opts {
		opt(r)
	}
	index1, err := readIndexFile(IndexPath(dir, name))
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	index2, err := readIndexFile(Index2Path(dir, name))
	if err != nil {
		return nil, fmt.Errorf("read index2: %w", err)
	}
	peek, err := index.Load(index1, false)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	for i := range peek.DataFiles() {
		src, err := openDataFile(DataPath(dir, name, i), r.mmap)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.data = append(r.data, src)
		r.closers = append(r.closers, src)
	}
	if err := r.load(index1, index2); err != nil {
		r.Close()
		return nil, err
	}
	r.log().Info("archive opened", "dir", dir, "name", name, "entries", len(r.catalog), "data_files", len(r.data))
	return r, nil
}

// readIndexFile reads an index file. Segment offsets are 32-bit, so larger
// files cannot be valid.
func readIndexFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer f.Close()
	data, err := sizing.ReadAllWithLimit(f, math.MaxUint32, errIndexTooLarge)
	if err != nil && !errors.Is(err, ErrCorruptData) {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return data, err
}

var errIndexTooLarge = fmt.Errorf("%w: index file exceeds 4 GiB", ErrCorruptData)

func (r *Reader) load(raw1, raw2 []byte) error {
	var err error
	if r.index1, err = index.Load(raw1, r.strict); err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	if r.index2, err = index.Load(raw2, r.strict); err != nil {
		return fmt.Errorf("load index2: %w", err)
	}
	if r.index1.IsIndex2() || !r.index2.IsIndex2() {
		return fmt.Errorf("%w: index files swapped or mistyped", ErrCorruptData)
	}
	if r.strict {
		if err := index.CheckConsistent(r.index1, r.index2); err != nil {
			return err
		}
	}
	if want := r.index1.DataFiles(); len(r.data) < want {
		return fmt.Errorf("%w: index declares %d data files, got %d", ErrInvalidArgument, want, len(r.data))
	}

	ends := make([]int64, len(r.data))
	for i, src := range r.data {
		if ends[i], err = r.dataEnd(i, src); err != nil {
			return fmt.Errorf("data file %d: %w", i, err)
		}
	}
	if r.catalog, err = index.BuildCatalog(r.index1, r.index2, ends); err != nil {
		return err
	}
	r.alloc = make(map[format.Locator]int64, len(r.catalog))
	for _, e := range r.catalog {
		r.alloc[e.Locator] = e.Allocation
	}

	if r.cacheBlocks > 0 {
		if r.cache, err = stream.NewBlockCache(r.cacheBlocks); err != nil {
			return err
		}
	}
	r.log().Debug("index loaded",
		"index_entries", r.index1.Len(),
		"index2_entries", r.index2.Len(),
		"synonyms", len(r.index1.Texts)+len(r.index2.Texts),
		"strict", r.strict)
	return nil
}

// dataEnd returns the end of the entry region of a data file. The header's
// DataSize is trusted when it fits the source; otherwise the source size is.
func (r *Reader) dataEnd(i int, src ByteSource) (int64, error) {
	hdr := make([]byte, format.FirstEntryOffset)
	if _, err := src.ReadAt(hdr, 0); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: read header: %w", ErrIO, err)
	}
	if _, err := format.ParseSqpackHeader(hdr, format.FileTypeData, r.strict); err != nil {
		return 0, err
	}
	dh, err := format.ParseDataHeader(hdr[format.HeaderSize:], r.strict)
	if err != nil {
		return 0, err
	}
	end := int64(format.FirstEntryOffset) + int64(dh.DataSize) //nolint:gosec // bounded by the source size below
	if dh.DataSize == 0 || end > src.Size() || end < format.FirstEntryOffset {
		if r.strict && dh.DataSize != 0 {
			return 0, fmt.Errorf("%w: data size %d exceeds file size %d", ErrCorruptData, dh.DataSize, src.Size())
		}
		end = src.Size()
	}
	if r.strict && !dh.DataSHA1.IsZero() {
		h := sha1.New() //nolint:gosec // format-mandated digest
		if _, err := io.Copy(h, io.NewSectionReader(src, format.FirstEntryOffset, end-format.FirstEntryOffset)); err != nil {
			return 0, fmt.Errorf("%w: hash data: %w", ErrIO, err)
		}
		if got := format.SHA1(h.Sum(nil)); got != dh.DataSHA1 {
			return 0, fmt.Errorf("%w: data sha1 %s, stored %s", ErrCorruptData, got, dh.DataSHA1)
		}
	}
	if int(dh.SpanIndex) != i && r.strict {
		return 0, fmt.Errorf("%w: data file %d claims span %d", ErrCorruptData, i, dh.SpanIndex)
	}
	return end, nil
}

// Resolve returns the locator of spec. The .index table is consulted first;
// specs that only carry a full-path hash fall back to .index2, and so do
// hash-only specs whose pair hash is shared in .index.
func (r *Reader) Resolve(spec pathspec.PathSpec) (format.Locator, error) {
	loc, err := r.index1.Resolve(spec)
	switch {
	case errors.Is(err, ErrNotFound):
		loc, err = r.index2.Resolve(spec)
	case errors.Is(err, ErrSynonymWithoutText):
		if full, ferr := r.index2.Resolve(spec); ferr == nil {
			loc, err = full, nil
		}
	}
	if err != nil {
		return 0, err
	}
	if spec.HasText() {
		if hit, ok := r.index1.DirectHit(spec); ok && hit.IsSynonym() {
			r.log().Debug("synonym resolved", "path", spec.Text, "locator", loc.String())
		}
	}
	return loc, nil
}

// EntryProvider returns the packed entry stored under path.
func (r *Reader) EntryProvider(path string) (*entry.PassThrough, error) {
	p, err := r.EntryProviderSpec(pathspec.Hash(path))
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	return p, nil
}

// EntryProviderSpec returns the packed entry addressed by spec.
func (r *Reader) EntryProviderSpec(spec pathspec.PathSpec) (*entry.PassThrough, error) {
	loc, err := r.Resolve(spec)
	if err != nil {
		return nil, err
	}
	return r.provider(spec, loc)
}

func (r *Reader) provider(spec pathspec.PathSpec, loc format.Locator) (*entry.PassThrough, error) {
	if int(loc.Index()) >= len(r.data) {
		return nil, fmt.Errorf("%w: %s references missing data file", ErrCorruptData, loc)
	}
	alloc, ok := r.alloc[loc]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not in the catalog", ErrCorruptData, loc)
	}
	return entry.NewPassThrough(spec, r.data[loc.Index()], int64(loc.Offset()), alloc), nil //nolint:gosec // offsets fit in 35 bits
}

// Open returns a decoded stream of the entry stored under path.
func (r *Reader) Open(path string) (stream.Stream, error) {
	s, err := r.OpenSpec(pathspec.Hash(path))
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	return s, nil
}

// OpenSpec returns a decoded stream of the entry addressed by spec.
//
// Concurrent opens of the same entry share one decoder.
func (r *Reader) OpenSpec(spec pathspec.PathSpec) (stream.Stream, error) {
	loc, err := r.Resolve(spec)
	if err != nil {
		return nil, err
	}
	v, err, _ := r.openGroup.Do(loc.String(), func() (any, error) {
		p, err := r.provider(spec, loc)
		if err != nil {
			return nil, err
		}
		src := r.data[loc.Index()]
		return stream.Open(p, stream.WithCache(r.cache, src.SourceID()), stream.WithBase(p.Offset()))
	})
	if err != nil {
		return nil, err
	}
	return v.(stream.Stream), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

// ReadFile returns the decoded contents of the entry stored under path.
func (r *Reader) ReadFile(path string) ([]byte, error) {
	s, err := r.Open(path)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, s.Size())
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := s.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, &fs.PathError{Op: "read", Path: path, Err: err}
	}
	return buf, nil
}

// Exists reports whether path is stored in the archive.
func (r *Reader) Exists(path string) bool {
	_, err := r.Resolve(pathspec.Hash(path))
	return err == nil
}

// Entries returns an iterator over the merged catalog in data file order.
func (r *Reader) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range r.catalog {
			if !yield(e) {
				return
			}
		}
	}
}

// Len returns the number of catalog entries.
func (r *Reader) Len() int {
	return len(r.catalog)
}

// DataFiles returns the number of data files backing the archive.
func (r *Reader) DataFiles() int {
	return len(r.data)
}

// Close releases the data files opened by OpenDir.
func (r *Reader) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}
