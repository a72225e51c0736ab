package entry

import "github.com/meigma/sqpack/internal/codec"

// DefaultLevel is the deflate level used unless WithLevel is given.
const DefaultLevel = codec.DefaultLevel

// SkipCompressionFunc returns true when an entry's blocks should be stored
// without attempting deflate.
type SkipCompressionFunc = codec.SkipCompressionFunc

// DefaultSkipCompression skips entries smaller than minSize and known
// already-compressed extensions.
func DefaultSkipCompression(minSize int64) SkipCompressionFunc {
	return codec.DefaultSkipCompression(minSize)
}

type options struct {
	level int
	store bool
	skip  []SkipCompressionFunc
}

// Option configures a compressing provider.
type Option func(*options)

// WithLevel sets the deflate level (default: DefaultLevel).
func WithLevel(level int) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithStoreOnly stores every block raw.
func WithStoreOnly() Option {
	return func(o *options) {
		o.store = true
	}
}

// WithSkipCompression adds predicates that force raw blocks for an entry.
func WithSkipCompression(fns ...SkipCompressionFunc) Option {
	return func(o *options) {
		o.skip = append(o.skip, fns...)
	}
}

func buildOptions(opts []Option) options {
	o := options{level: DefaultLevel}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) encoder() *codec.Encoder { return codec.NewEncoder(o.level) }

func (o options) storeFor(name string, size int64) bool {
	return o.store || codec.ShouldSkip(name, size, o.skip)
}
