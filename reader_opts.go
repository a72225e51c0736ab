package sqpack

import "log/slog"

// Option configures a Reader.
type Option func(*Reader)

// WithStrict enables verification on open: header signatures and SHA-1s,
// segment and data SHA-1s, table ordering and agreement between .index and
// .index2. Any mismatch fails the open with ErrCorruptData.
func WithStrict(enabled bool) Option {
	return func(r *Reader) {
		r.strict = enabled
	}
}

// WithLogger sets the logger for open and lookup events.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithBlockCache keeps up to n decoded blocks in an ARC cache shared by every
// stream the Reader opens. Zero disables the cache.
func WithBlockCache(n int) Option {
	return func(r *Reader) {
		r.cacheBlocks = n
	}
}

// WithMmap memory-maps data files opened by OpenDir instead of reading them
// through file handles.
func WithMmap(enabled bool) Option {
	return func(r *Reader) {
		r.mmap = enabled
	}
}
