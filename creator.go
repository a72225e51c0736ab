package sqpack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/sqpack/entry"
	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/internal/platform"
	"github.com/meigma/sqpack/internal/sizing"
	"github.com/meigma/sqpack/pathspec"
)

// Outcome is the result of registering one entry with a Creator.
type Outcome uint8

const (
	// OutcomeAdded means the entry was new.
	OutcomeAdded Outcome = iota
	// OutcomeReplaced means the entry replaced an existing one.
	OutcomeReplaced
	// OutcomeSkippedExisting means an entry already existed and was kept.
	OutcomeSkippedExisting
	// OutcomeError means the entry was rejected; AddResult.Err says why.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeReplaced:
		return "replaced"
	case OutcomeSkippedExisting:
		return "skipped"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// AddResult records what happened to one entry.
type AddResult struct {
	Spec    pathspec.PathSpec
	Outcome Outcome
	Err     error
}

type hashKey struct {
	path, name, full uint32
}

func keyOf(s pathspec.PathSpec) hashKey {
	return hashKey{s.PathHash, s.NameHash, s.FullPathHash}
}

type creatorEntry struct {
	spec     pathspec.PathSpec
	provider entry.Provider
}

// Creator assembles a new archive from entry providers.
//
// A Creator is not safe for concurrent use. Entries are collected with the
// Add methods, then laid out by Write or AsViews; both can be called more
// than once and see the entries registered so far.
type Creator struct {
	cfg     creatorConfig
	entries []*creatorEntry
	byText  map[string]int
	byHash  map[hashKey][]int
	results []AddResult
	closers []io.Closer
	closed  bool
}

// NewCreator returns an empty Creator.
func NewCreator(opts ...CreatorOption) *Creator {
	cfg := creatorConfig{
		maxSegmentSize: DefaultMaxSegmentSize,
		level:          entry.DefaultLevel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxSegmentSize <= 0 {
		cfg.maxSegmentSize = DefaultMaxSegmentSize
	}
	return &Creator{
		cfg:    cfg,
		byText: make(map[string]int),
		byHash: make(map[hashKey][]int),
	}
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Creator) log() *slog.Logger {
	if c.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.cfg.logger
}

// reportProgress sends a progress event if a callback is configured.
func (c *Creator) reportProgress(stage ProgressStage, path string, bytesDone, bytesTotal uint64, filesDone, filesTotal int) {
	if c.cfg.progress == nil {
		return
	}
	c.cfg.progress(ProgressEvent{
		Stage:      stage,
		Path:       path,
		BytesDone:  bytesDone,
		BytesTotal: bytesTotal,
		FilesDone:  filesDone,
		FilesTotal: filesTotal,
	})
}

// Len returns the number of registered entries.
func (c *Creator) Len() int {
	return len(c.entries)
}

// Results returns the outcome of every Add call so far, in call order.
func (c *Creator) Results() []AddResult {
	return append([]AddResult(nil), c.results...)
}

// find locates the entry p would replace. Entries with path text are matched
// by text; entries without fall back to their hashes. A text-less entry that
// matches a new entry with text is reported as promotable.
func (c *Creator) find(spec pathspec.PathSpec) (idx int, promote bool) {
	if spec.HasText() {
		if i, ok := c.byText[strings.ToLower(spec.Text)]; ok {
			return i, false
		}
		for _, i := range c.byHash[keyOf(spec)] {
			if !c.entries[i].spec.HasText() {
				return i, true
			}
		}
		return -1, false
	}
	if ids := c.byHash[keyOf(spec)]; len(ids) > 0 {
		return ids[0], false
	}
	return -1, false
}

// AddEntry registers p under its PathSpec.
//
// An existing entry for the same path is replaced only when overwrite is
// set. Existing reservations keep their place: the new provider is swapped
// into them. A malformed provider is recorded as OutcomeError instead of
// failing the batch.
func (c *Creator) AddEntry(p entry.Provider, overwrite bool) AddResult {
	spec := p.PathSpec()
	res := c.addEntry(spec, p, overwrite)
	if res.Err != nil {
		c.log().Debug("entry rejected", "path", spec.String(), "error", res.Err)
	}
	c.results = append(c.results, res)
	return res
}

func (c *Creator) addEntry(spec pathspec.PathSpec, p entry.Provider, overwrite bool) AddResult {
	res := AddResult{Spec: spec, Outcome: OutcomeError}
	if c.closed {
		res.Err = ErrClosed
		return res
	}
	if spec.IsEmpty() {
		res.Err = fmt.Errorf("%w: entry without a path", ErrInvalidArgument)
		return res
	}
	if r, ok := p.(entry.Resolver); ok {
		if err := r.Resolve(); err != nil {
			res.Err = err
			return res
		}
	}
	if err := c.checkSize(p.Size()); err != nil {
		res.Err = err
		return res
	}

	i, promote := c.find(spec)
	if i < 0 {
		c.insert(&creatorEntry{spec: spec, provider: p})
		res.Outcome = OutcomeAdded
		return res
	}
	e := c.entries[i]
	if promote {
		e.spec = spec
		c.byText[strings.ToLower(spec.Text)] = i
	}
	if !overwrite {
		res.Outcome = OutcomeSkippedExisting
		return res
	}
	if h, ok := e.provider.(*entry.HotSwappable); ok {
		if err := h.Swap(p); err != nil {
			res.Err = err
			return res
		}
	} else {
		e.provider = p
	}
	res.Outcome = OutcomeReplaced
	return res
}

func (c *Creator) checkSize(size int64) error {
	if size%format.EntryAlignment != 0 {
		return fmt.Errorf("%w: entry size %d is not %d-aligned", ErrInvalidArgument, size, format.EntryAlignment)
	}
	if size > c.cfg.maxSegmentSize-format.FirstEntryOffset {
		return fmt.Errorf("%w: %d bytes exceed the data file limit", ErrEntryTooLarge, size)
	}
	return nil
}

func (c *Creator) insert(e *creatorEntry) {
	i := len(c.entries)
	c.entries = append(c.entries, e)
	if e.spec.HasText() {
		c.byText[strings.ToLower(e.spec.Text)] = i
	}
	k := keyOf(e.spec)
	c.byHash[k] = append(c.byHash[k], i)
}

// ReserveSpace reserves at least size bytes for spec and returns the
// reservation. Content already registered for spec moves into it; later
// AddEntry calls with overwrite swap into it instead of replacing it, and
// so does calling Swap on the result after the archive is laid out.
// Growing an existing reservation returns a new one; Swap on the older
// handle is forwarded to it, but archives laid out before the growth keep
// serving the older reservation.
func (c *Creator) ReserveSpace(spec pathspec.PathSpec, size int64) (*entry.HotSwappable, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if spec.IsEmpty() {
		return nil, fmt.Errorf("%w: reservation without a path", ErrInvalidArgument)
	}
	i, promote := c.find(spec)
	if i < 0 {
		h := entry.NewHotSwappable(spec, size, nil)
		if err := c.checkSize(h.Size()); err != nil {
			return nil, err
		}
		c.insert(&creatorEntry{spec: spec, provider: h})
		return h, nil
	}

	e := c.entries[i]
	if promote {
		e.spec = spec
		c.byText[strings.ToLower(spec.Text)] = i
	}
	if h, ok := e.provider.(*entry.HotSwappable); ok {
		if h.Size() >= size {
			return h, nil
		}
		if err := c.checkSize(sizing.Align128(size)); err != nil {
			return nil, err
		}
		g := h.Grow(size)
		e.provider = g
		return g, nil
	}
	h := entry.NewHotSwappable(spec, size, e.provider)
	if err := c.checkSize(h.Size()); err != nil {
		return nil, err
	}
	e.provider = h
	return h, nil
}

// AddEntriesFromExistingArchive copies every entry of the archive containing
// path (any file of its triplet) into c without recompressing it. The
// archive stays open until c is closed.
func (c *Creator) AddEntriesFromExistingArchive(path string, overwrite bool) error {
	dir, name, ok := SplitIndexPath(path)
	if !ok {
		return fmt.Errorf("%w: %s is not a sqpack file", ErrInvalidArgument, path)
	}
	r, err := OpenDir(dir, name, WithLogger(c.cfg.logger))
	if err != nil {
		return err
	}
	c.closers = append(c.closers, r)
	c.AddEntriesFromReader(r, overwrite)
	return nil
}

// AddEntriesFromReader copies every catalog entry of r into c and returns
// the number of entries added or replaced.
func (c *Creator) AddEntriesFromReader(r *Reader, overwrite bool) int {
	var n int
	for e := range r.Entries() {
		p, err := r.provider(e.Spec, e.Locator)
		if err != nil {
			c.results = append(c.results, AddResult{Spec: e.Spec, Outcome: OutcomeError, Err: err})
			continue
		}
		switch c.AddEntry(p, overwrite).Outcome {
		case OutcomeAdded, OutcomeReplaced:
			n++
		}
	}
	c.log().Debug("archive entries copied", "entries", r.Len(), "copied", n)
	return n
}

// AddFile registers the file at src under name. Its packed form is chosen
// from name's extension.
func (c *Creator) AddFile(name, src string, overwrite bool) AddResult {
	spec := pathspec.Hash(name)
	fsrc, err := entry.NewFileSource(src)
	if err != nil {
		return c.fail(spec, err)
	}
	p, err := c.pack(spec, fsrc)
	if err != nil {
		fsrc.Close()
		return c.fail(spec, err)
	}
	if c.cfg.memory {
		fsrc.Close()
	} else {
		c.closers = append(c.closers, fsrc)
	}
	return c.AddEntry(p, overwrite)
}

func (c *Creator) fail(spec pathspec.PathSpec, err error) AddResult {
	res := AddResult{Spec: spec, Outcome: OutcomeError, Err: err}
	c.log().Debug("entry rejected", "path", spec.String(), "error", err)
	c.results = append(c.results, res)
	return res
}

func (c *Creator) pack(spec pathspec.PathSpec, src entry.Source) (entry.Provider, error) {
	kind := entry.KindForPath(spec.Text)
	if c.cfg.memory {
		return entry.NewMemory(spec, kind, src, c.cfg.entryOptions()...)
	}
	return entry.NewLazy(spec, kind, src, c.cfg.entryOptions()...)
}

func (c *Creator) workers() int {
	switch {
	case c.cfg.workers < 0:
		return 1
	case c.cfg.workers == 0:
		return runtime.GOMAXPROCS(0)
	default:
		return c.cfg.workers
	}
}

// AddFromDirectory registers every regular file below dir, named by its
// slash-separated path relative to dir. Symbolic links are skipped.
//
// Files are packed in parallel and registered in walk order. Walk and
// cancellation errors abort the call; per-file errors are recorded in
// Results.
func (c *Creator) AddFromDirectory(ctx context.Context, dir string, overwrite bool) error {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer root.Close()

	c.reportProgress(StageEnumerating, "", 0, 0, 0, 0)
	var paths []string
	err = fs.WalkDir(root.FS(), ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			c.log().Debug("skipped symlink", "path", path)
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	packed := make([]entry.Provider, len(paths))
	sources := make([]io.Closer, len(paths))
	errs := make([]error, len(paths))
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			packed[i], sources[i], errs[i] = c.packFromRoot(root, dir, path)
			c.reportProgress(StageCompressing, path, 0, 0, int(done.Add(1)), len(paths))
			return nil
		})
	}
	err = g.Wait()
	for _, src := range sources {
		if src != nil {
			c.closers = append(c.closers, src)
		}
	}
	if err != nil {
		return err
	}

	for i, path := range paths {
		if errs[i] != nil {
			if errors.Is(errs[i], ErrSymlink) {
				c.log().Debug("skipped symlink", "path", path)
				continue
			}
			c.fail(pathspec.Hash(path), errs[i])
			continue
		}
		c.AddEntry(packed[i], overwrite)
	}
	c.log().Debug("directory added", "dir", dir, "files", len(paths))
	return nil
}

// packFromRoot packs one file. Memory compression reads it through a
// no-follow handle; lazy packing keeps a path-based source, returned for
// closing, so no handle is held per pending file.
func (c *Creator) packFromRoot(root *os.Root, dir, path string) (entry.Provider, io.Closer, error) {
	spec := pathspec.Hash(path)
	f, size, err := platform.OpenRegular(root, filepath.FromSlash(path))
	if err != nil {
		return nil, nil, err
	}
	if c.cfg.memory {
		defer f.Close()
		p, err := c.pack(spec, entry.NewOpenFileSource(f, size))
		return p, nil, err
	}
	if err := f.Close(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	src, err := entry.NewFileSource(filepath.Join(dir, filepath.FromSlash(path)))
	if err != nil {
		return nil, nil, err
	}
	p, err := c.pack(spec, src)
	return p, src, err
}

// Close releases archives and source files opened by the Creator. Providers
// built from them, including those in views, stop working.
func (c *Creator) Close() error {
	var errs []error
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	c.closers = nil
	c.closed = true
	return errors.Join(errs...)
}
