package sqpack

import (
	"log/slog"

	"github.com/meigma/sqpack/entry"
	"github.com/meigma/sqpack/internal/format"
)

// DefaultMaxSegmentSize is the default size limit of one data file.
const DefaultMaxSegmentSize = format.DefaultMaxFileSize

// SkipCompressionFunc returns true when an entry's blocks should be stored
// raw. It is called once per file and should be inexpensive.
type SkipCompressionFunc = entry.SkipCompressionFunc

// DefaultSkipCompression returns a SkipCompressionFunc that skips small files
// and known already-compressed extensions.
var DefaultSkipCompression = entry.DefaultSkipCompression

type creatorConfig struct {
	maxSegmentSize  int64
	workers         int
	strictViews     bool
	memory          bool
	level           int
	skipCompression []SkipCompressionFunc
	progress        ProgressFunc
	logger          *slog.Logger
}

// CreatorOption configures a Creator.
type CreatorOption func(*creatorConfig)

// WithMaxSegmentSize limits the size of each data file, headers included.
// Values <= 0 use DefaultMaxSegmentSize.
func WithMaxSegmentSize(n int64) CreatorOption {
	return func(cfg *creatorConfig) {
		cfg.maxSegmentSize = n
	}
}

// WithWorkers sets how many files are compressed or data files written in
// parallel. Zero uses GOMAXPROCS; negative values force serial processing.
func WithWorkers(n int) CreatorOption {
	return func(cfg *creatorConfig) {
		cfg.workers = n
	}
}

// WithStrictViews makes AsViews hash every entry so the in-memory data
// headers carry real data SHA-1s and the views pass strict verification.
func WithStrictViews(enabled bool) CreatorOption {
	return func(cfg *creatorConfig) {
		cfg.strictViews = enabled
	}
}

// WithMemoryCompression compresses files added through AddFile and
// AddFromDirectory up front instead of on first read.
func WithMemoryCompression(enabled bool) CreatorOption {
	return func(cfg *creatorConfig) {
		cfg.memory = enabled
	}
}

// WithCompressionLevel sets the deflate level of files added through AddFile
// and AddFromDirectory.
func WithCompressionLevel(level int) CreatorOption {
	return func(cfg *creatorConfig) {
		cfg.level = level
	}
}

// WithSkipCompression adds predicates that decide to store a file's blocks raw.
// If any predicate returns true, deflate is not attempted for that file.
func WithSkipCompression(fns ...SkipCompressionFunc) CreatorOption {
	return func(cfg *creatorConfig) {
		cfg.skipCompression = append(cfg.skipCompression, fns...)
	}
}

// WithProgress sets a callback to receive progress updates.
// The callback may be called concurrently and must be safe for concurrent use.
func WithProgress(fn ProgressFunc) CreatorOption {
	return func(cfg *creatorConfig) {
		cfg.progress = fn
	}
}

// WithCreatorLogger sets the logger for layout and write events.
// If not set, logging is disabled.
func WithCreatorLogger(logger *slog.Logger) CreatorOption {
	return func(cfg *creatorConfig) {
		cfg.logger = logger
	}
}

func (cfg *creatorConfig) entryOptions() []entry.Option {
	return []entry.Option{
		entry.WithLevel(cfg.level),
		entry.WithSkipCompression(cfg.skipCompression...),
	}
}
