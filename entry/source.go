package entry

import (
	"fmt"
	"os"
	"sync"

	"github.com/meigma/sqpack/internal/format"
)

// FileSource is a Source backed by a file on disk. The file is opened on
// the first read so that thousands of pending entries do not hold
// descriptors.
type FileSource struct {
	path string
	size int64

	mu  sync.Mutex
	f   *os.File
	err error
}

// NewFileSource stats path and returns a source for it.
func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrIO, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", format.ErrInvalidArgument, path)
	}
	return &FileSource{path: path, size: info.Size()}, nil
}

// NewOpenFileSource wraps an already open file of the given size.
func NewOpenFileSource(f *os.File, size int64) *FileSource {
	return &FileSource{path: f.Name(), size: size, f: f}
}

// Path returns the file path.
func (s *FileSource) Path() string { return s.path }

// Size returns the file size observed when the source was created.
func (s *FileSource) Size() int64 { return s.size }

// ReadAt reads from the file, opening it on first use.
func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	f, err := s.file()
	if err != nil {
		return 0, err
	}
	return f.ReadAt(p, off)
}

func (s *FileSource) file() (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil && s.err == nil {
		s.f, s.err = os.Open(s.path)
		if s.err != nil {
			s.err = fmt.Errorf("%w: %w", format.ErrIO, s.err)
		}
	}
	return s.f, s.err
}

// Close closes the file if it was opened. The source can be read again afterwards.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
