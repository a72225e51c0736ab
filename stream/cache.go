package stream

import (
	arc "github.com/hashicorp/golang-lru/arc/v2"
)

type blockKey struct {
	ns  string
	off int64
}

// BlockCache holds decoded blocks shared by every stream opened with it.
// Blocks are keyed by a namespace identifying the packed source and the
// block's offset within it.
type BlockCache struct {
	c *arc.ARCCache[blockKey, []byte]
}

// NewBlockCache returns a cache holding up to size decoded blocks.
func NewBlockCache(size int) (*BlockCache, error) {
	c, err := arc.NewARC[blockKey, []byte](size)
	if err != nil {
		return nil, err
	}
	return &BlockCache{c: c}, nil
}

func (c *BlockCache) get(ns string, off int64) ([]byte, bool) {
	if c == nil || ns == "" {
		return nil, false
	}
	return c.c.Get(blockKey{ns: ns, off: off})
}

func (c *BlockCache) add(ns string, off int64, b []byte) {
	if c == nil || ns == "" {
		return
	}
	c.c.Add(blockKey{ns: ns, off: off}, b)
}

// Len returns the number of cached blocks.
func (c *BlockCache) Len() int {
	if c == nil {
		return 0
	}
	return c.c.Len()
}

// Purge drops every cached block.
func (c *BlockCache) Purge() {
	if c != nil {
		c.c.Purge()
	}
}
