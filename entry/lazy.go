package entry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/meigma/sqpack/internal/codec"
	"github.com/meigma/sqpack/pathspec"
)

// Lazy packs a raw source on demand.
//
// Every block is given a worst-case slot so the packed size is known before
// anything is compressed. A read compresses only the blocks it overlaps. The
// block layout, which for textures and models requires parsing the source
// header, is computed once on first use.
type Lazy struct {
	spec  pathspec.PathSpec
	kind  Kind
	src   Source
	enc   *codec.Encoder
	store bool

	state resolver[*lazyLayout]

	mu       sync.Mutex
	lastIdx  int
	lastData []byte
}

type lazyLayout struct {
	plan   *plan
	header []byte
	starts []int64
	slots  []int64
	total  int64
}

// NewLazy returns a provider packing src as the given kind.
func NewLazy(spec pathspec.PathSpec, kind Kind, src Source, opts ...Option) (*Lazy, error) {
	switch kind {
	case KindBinary, KindTexture, KindModel:
	default:
		return nil, fmt.Errorf("%s: %w", kind, ErrUnknownKind)
	}
	o := buildOptions(opts)
	return &Lazy{
		spec:    spec,
		kind:    kind,
		src:     src,
		enc:     o.encoder(),
		store:   o.storeFor(spec.Text, src.Size()),
		lastIdx: -1,
	}, nil
}

// NewLazyBinary packs src as a generic binary entry.
func NewLazyBinary(spec pathspec.PathSpec, src Source, opts ...Option) *Lazy {
	l, _ := NewLazy(spec, KindBinary, src, opts...) //nolint:errcheck // kind is valid
	return l
}

// NewLazyTexture packs src as a texture entry split on mip groups.
func NewLazyTexture(spec pathspec.PathSpec, src Source, opts ...Option) *Lazy {
	l, _ := NewLazy(spec, KindTexture, src, opts...) //nolint:errcheck // kind is valid
	return l
}

// NewLazyModel packs src as a model entry split on its chunks.
func NewLazyModel(spec pathspec.PathSpec, src Source, opts ...Option) *Lazy {
	l, _ := NewLazy(spec, KindModel, src, opts...) //nolint:errcheck // kind is valid
	return l
}

// PathSpec returns the entry's path.
func (z *Lazy) PathSpec() pathspec.PathSpec { return z.spec }

// Kind returns the payload kind.
func (z *Lazy) Kind() Kind { return z.kind }

// Resolve computes the block layout. Later calls return the first result.
func (z *Lazy) Resolve() error {
	_, err := z.layout()
	return err
}

// Size returns the packed size, or zero when the source cannot be packed.
func (z *Lazy) Size() int64 {
	l, err := z.layout()
	if err != nil {
		return 0
	}
	return l.total
}

func (z *Lazy) layout() (*lazyLayout, error) {
	return z.state.get(func() (*lazyLayout, error) {
		p, err := newPlan(z.kind, z.src)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", z.spec, err)
		}
		slots := make([]int64, len(p.blocks))
		for i, b := range p.blocks {
			slots[i] = codec.MaxPaddedBlockSize(b.n)
		}
		header, starts, total, err := p.layout(slots)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", z.spec, err)
		}
		return &lazyLayout{plan: p, header: header, starts: starts, slots: slots, total: total}, nil
	})
}

// ReadAt reads packed bytes, compressing the blocks the range overlaps.
func (z *Lazy) ReadAt(p []byte, off int64) (int, error) {
	l, err := z.layout()
	if err != nil {
		return 0, err
	}
	hs := int64(len(l.header))
	prefixEnd := hs + int64(len(l.plan.prefix))
	return readWindow(l.total, p, off, func(p []byte, off int64) error {
		for len(p) > 0 {
			var n int
			switch {
			case off < hs:
				n = copy(p, l.header[off:])
			case off < prefixEnd:
				n = copy(p, l.plan.prefix[off-hs:])
			default:
				i := sort.Search(len(l.starts), func(i int) bool {
					return l.starts[i]+l.slots[i] > off
				})
				if i == len(l.starts) {
					clear(p)
					return nil
				}
				block, err := z.block(i)
				if err != nil {
					return err
				}
				rel := off - l.starts[i]
				n = int(min(int64(len(p)), l.slots[i]-rel))
				c := 0
				if rel < int64(len(block)) {
					c = copy(p[:n], block[rel:])
				}
				clear(p[c:n])
			}
			p = p[n:]
			off += int64(n)
		}
		return nil
	})
}

func (z *Lazy) block(i int) ([]byte, error) {
	z.mu.Lock()
	if z.lastIdx == i {
		b := z.lastData
		z.mu.Unlock()
		return b, nil
	}
	z.mu.Unlock()

	l, err := z.layout()
	if err != nil {
		return nil, err
	}
	pb := l.plan.blocks[i]
	raw := make([]byte, pb.n)
	if err := readFull(z.src, raw, pb.srcOff); err != nil {
		return nil, fmt.Errorf("pack %s: %w", z.spec, err)
	}
	b, err := z.enc.AppendBlock(nil, raw, z.store)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", z.spec, err)
	}

	z.mu.Lock()
	z.lastIdx, z.lastData = i, b
	z.mu.Unlock()
	return b, nil
}
