package sqpack

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"
	"golang.org/x/exp/mmap"

	"github.com/meigma/sqpack/internal/format"
)

// ByteSource provides random access to one data file.
//
// SourceID must return a stable identifier for the underlying content; it
// namespaces the decoded-block cache. An empty SourceID disables caching for
// the source.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// BytesSource is a ByteSource over an in-memory data file.
type BytesSource struct {
	*bytes.Reader
	id string
}

// NewBytesSource wraps b. The SourceID is the digest of b.
func NewBytesSource(b []byte) *BytesSource {
	return &BytesSource{Reader: bytes.NewReader(b), id: digest.FromBytes(b).String()}
}

// SourceID returns the content digest.
func (s *BytesSource) SourceID() string { return s.id }

// fileSource wraps an open data file.
type fileSource struct {
	r        io.ReaderAt
	closer   io.Closer
	size     int64
	sourceID string
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) { return s.r.ReadAt(p, off) }
func (s *fileSource) Size() int64                             { return s.size }
func (s *fileSource) SourceID() string                        { return s.sourceID }
func (s *fileSource) Close() error                            { return s.closer.Close() }

// openDataFile opens path for random access, memory-mapped when useMmap is set.
func openDataFile(path string, useMmap bool) (*fileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrIO, err)
	}
	src := &fileSource{size: info.Size()}
	if useMmap {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: mmap %s: %w", format.ErrIO, path, err)
		}
		src.r, src.closer, src.size = m, m, int64(m.Len())
	} else {
		f, err := os.Open(path) //nolint:gosec // user-provided path is intentional
		if err != nil {
			return nil, fmt.Errorf("%w: %w", format.ErrIO, err)
		}
		src.r, src.closer = f, f
	}
	src.sourceID = dataSourceID(src.r, path, info)
	return src, nil
}

// dataSourceID prefers the data SHA-1 recorded in the header and falls back
// to the file's identity.
func dataSourceID(r io.ReaderAt, path string, info os.FileInfo) string {
	hdr := make([]byte, format.HeaderSize)
	if _, err := r.ReadAt(hdr, format.HeaderSize); err == nil {
		if h, err := format.ParseDataHeader(hdr, false); err == nil && !h.DataSHA1.IsZero() {
			return "sha1:" + h.DataSHA1.String()
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return digest.FromString(fmt.Sprintf("file:%s:%d:%d", abs, info.Size(), info.ModTime().UnixNano())).String()
}

// Platform-qualified file name suffixes.
const (
	IndexSuffix  = ".win32.index"
	Index2Suffix = ".win32.index2"
	DataSuffix   = ".win32.dat"
)

// IndexPath returns the .index path of archive name in dir.
func IndexPath(dir, name string) string { return filepath.Join(dir, name+IndexSuffix) }

// Index2Path returns the .index2 path of archive name in dir.
func Index2Path(dir, name string) string { return filepath.Join(dir, name+Index2Suffix) }

// DataPath returns the path of data file n of archive name in dir.
func DataPath(dir, name string, n int) string {
	return filepath.Join(dir, name+DataSuffix+strconv.Itoa(n))
}

// SplitIndexPath splits the path of any file of an archive triplet into its
// directory and archive name.
func SplitIndexPath(path string) (dir, name string, ok bool) {
	dir, base := filepath.Split(path)
	for _, suffix := range []string{Index2Suffix, IndexSuffix} {
		if n, found := strings.CutSuffix(base, suffix); found && n != "" {
			return filepath.Clean(dir), n, true
		}
	}
	if i := strings.LastIndex(base, DataSuffix); i > 0 {
		if _, err := strconv.Atoi(base[i+len(DataSuffix):]); err == nil {
			return filepath.Clean(dir), base[:i], true
		}
	}
	return "", "", false
}
