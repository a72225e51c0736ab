package entry

import (
	"bytes"
	"fmt"

	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/pathspec"
)

// Memory holds an entry packed up front with every block at its compact size.
type Memory struct {
	spec   pathspec.PathSpec
	kind   Kind
	packed []byte
}

// NewMemory packs src as the given kind immediately.
func NewMemory(spec pathspec.PathSpec, kind Kind, src Source, opts ...Option) (*Memory, error) {
	o := buildOptions(opts)
	p, err := newPlan(kind, src)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", spec, err)
	}
	enc := o.encoder()
	store := o.storeFor(spec.Text, src.Size())

	var body []byte
	padded := make([]int64, len(p.blocks))
	raw := make([]byte, format.BlockDataSize)
	for i, b := range p.blocks {
		if err := readFull(src, raw[:b.n], b.srcOff); err != nil {
			return nil, fmt.Errorf("pack %s: %w", spec, err)
		}
		before := len(body)
		if body, err = enc.AppendBlock(body, raw[:b.n], store); err != nil {
			return nil, fmt.Errorf("pack %s: %w", spec, err)
		}
		padded[i] = int64(len(body) - before)
	}

	header, _, total, err := p.layout(padded)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", spec, err)
	}
	packed := make([]byte, total)
	n := copy(packed, header)
	n += copy(packed[n:], p.prefix)
	copy(packed[n:], body)
	return &Memory{spec: spec, kind: kind, packed: packed}, nil
}

// NewMemoryBytes packs data as the given kind immediately.
func NewMemoryBytes(spec pathspec.PathSpec, kind Kind, data []byte, opts ...Option) (*Memory, error) {
	return NewMemory(spec, kind, bytes.NewReader(data), opts...)
}

// PathSpec returns the entry's path.
func (m *Memory) PathSpec() pathspec.PathSpec { return m.spec }

// Kind returns the payload kind.
func (m *Memory) Kind() Kind { return m.kind }

// Size returns the packed size.
func (m *Memory) Size() int64 { return int64(len(m.packed)) }

// Bytes returns the packed entry. Callers must not modify it.
func (m *Memory) Bytes() []byte { return m.packed }

// ReadAt reads packed bytes.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	return readWindow(m.Size(), p, off, func(p []byte, off int64) error {
		copy(p, m.packed[off:])
		return nil
	})
}
