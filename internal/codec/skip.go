package codec

import (
	"path"
	"strings"
)

// SkipCompressionFunc returns true when an entry's blocks should be stored
// without attempting deflate. It is called once per entry and should be
// inexpensive.
type SkipCompressionFunc = func(name string, size int64) bool

// DefaultSkipCompression returns a SkipCompressionFunc that skips entries
// smaller than minSize and known already-compressed extensions.
func DefaultSkipCompression(minSize int64) SkipCompressionFunc {
	return func(name string, size int64) bool {
		if minSize > 0 && size < minSize {
			return true
		}
		_, ok := skipCompressionExts[strings.ToLower(path.Ext(name))]
		return ok
	}
}

// ShouldSkip checks if any predicate returns true for the entry.
func ShouldSkip(name string, size int64, predicates []SkipCompressionFunc) bool {
	for _, fn := range predicates {
		if fn != nil && fn(name, size) {
			return true
		}
	}
	return false
}

var skipCompressionExts = map[string]struct{}{
	".7z":   {},
	".bz2":  {},
	".flac": {},
	".gif":  {},
	".gz":   {},
	".jpeg": {},
	".jpg":  {},
	".mp3":  {},
	".mp4":  {},
	".ogg":  {},
	".opus": {},
	".png":  {},
	".rar":  {},
	".webm": {},
	".webp": {},
	".xz":   {},
	".zip":  {},
	".zst":  {},
}
