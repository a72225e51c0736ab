package sqpack

import (
	"context"
	"crypto/sha1" //nolint:gosec // format-mandated digest
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/sqpack/internal/format"
)

// Write lays out the registered entries and writes name.win32.index,
// name.win32.index2 and name.win32.datN to dir.
//
// Data files are written in parallel. Every file goes through a temp file
// and rename, so a failed Write leaves no partial files behind; files from
// an earlier archive of the same name are only replaced once all data files
// have been written.
func (c *Creator) Write(ctx context.Context, dir, name string) error {
	l, err := c.layout()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: create directory: %w", ErrIO, err)
	}

	var total uint64
	for _, seg := range l.segments {
		total += uint64(seg.size) //nolint:gosec // non-negative
	}
	var done atomic.Uint64
	var files atomic.Int64
	progress := func(path string, n int64) {
		c.reportProgress(StageWritingData, path, done.Add(uint64(n)), total, int(files.Add(1)), c.Len()) //nolint:gosec // non-negative
	}

	temps := make([]string, len(l.segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i := range l.segments {
		g.Go(func() error {
			tmp, err := c.writeDataFile(gctx, dir, l, i, progress)
			temps[i] = tmp
			if err != nil {
				return fmt.Errorf("data file %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		removeAll(temps)
		return err
	}

	for i, tmp := range temps {
		if err := os.Rename(tmp, DataPath(dir, name, i)); err != nil {
			removeAll(temps[i:])
			return fmt.Errorf("%w: rename data file %d: %w", ErrIO, i, err)
		}
		c.log().Debug("data file written", "path", DataPath(dir, name, i), "size", l.segments[i].end())
	}

	for i := len(l.segments); i < format.MaxDataFiles; i++ {
		if err := os.Remove(DataPath(dir, name, i)); err == nil {
			c.log().Debug("stale data file removed", "path", DataPath(dir, name, i))
		}
	}

	c.reportProgress(StageWritingIndex, IndexPath(dir, name), 0, 0, 0, 0)
	if err := writeFileAtomic(IndexPath(dir, name), l.index1); err != nil {
		return fmt.Errorf("%w: write index: %w", ErrIO, err)
	}
	if err := writeFileAtomic(Index2Path(dir, name), l.index2); err != nil {
		return fmt.Errorf("%w: write index2: %w", ErrIO, err)
	}
	c.log().Info("archive written", "dir", dir, "name", name, "entries", c.Len(), "data_files", len(l.segments))
	return nil
}

// writeDataFile streams segment i into a temp file in dir and returns its
// path. The headers are written last, once the data SHA-1 is known.
func (c *Creator) writeDataFile(ctx context.Context, dir string, l *layout, i int, progress func(string, int64)) (string, error) {
	tmp, err := os.CreateTemp(dir, ".sqpack-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) (string, error) {
		tmp.Close()
		return tmpPath, err
	}

	if _, err := tmp.Seek(format.FirstEntryOffset, io.SeekStart); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrIO, err))
	}
	h := sha1.New() //nolint:gosec // format-mandated digest
	w := io.MultiWriter(tmp, h)
	for _, e := range l.segments[i].entries {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if _, err := io.Copy(w, io.NewSectionReader(e.provider, 0, e.size)); err != nil {
			return fail(fmt.Errorf("%s: %w", e.spec, err))
		}
		progress(e.spec.String(), e.size)
	}

	headers, err := l.dataHeaders(i, c.cfg.maxSegmentSize, format.SHA1(h.Sum(nil)))
	if err != nil {
		return fail(err)
	}
	if _, err := tmp.WriteAt(headers, 0); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrIO, err))
	}
	if err := tmp.Close(); err != nil {
		return tmpPath, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return tmpPath, nil
}

func removeAll(paths []string) {
	for _, p := range paths {
		if p != "" {
			os.Remove(p)
		}
	}
}

// writeFileAtomic writes data to a temp file then renames to target,
// ensuring atomic replacement of the target file.
func writeFileAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".sqpack-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
