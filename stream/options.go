package stream

type config struct {
	cache     *BlockCache
	namespace string
	base      int64
}

// Option configures Open.
type Option func(*config)

// WithCache shares decoded blocks through c. The namespace identifies the
// stream the entry lives in, such as one data file; blocks are keyed by
// namespace and absolute offset, see WithBase.
func WithCache(c *BlockCache, namespace string) Option {
	return func(cfg *config) {
		cfg.cache = c
		cfg.namespace = namespace
	}
}

// WithBase sets the offset of the entry within the namespace's stream.
func WithBase(base int64) Option {
	return func(cfg *config) {
		cfg.base = base
	}
}
