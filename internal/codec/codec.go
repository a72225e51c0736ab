// Package codec encodes and decodes the deflate blocks that make up SqPack
// entries.
//
// Every block holds at most format.BlockDataSize decompressed bytes and is
// either raw-deflated or stored, whichever is smaller. Writers and readers are
// pooled because entries are compressed and decoded one block at a time.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"

	"github.com/meigma/sqpack/internal/format"
	"github.com/meigma/sqpack/internal/sizing"
)

// DefaultLevel is the deflate level used when none is configured.
const DefaultLevel = flate.DefaultCompression

// MaxPaddedBlockSize returns the largest padded on-disk size of a block
// holding n decompressed bytes. A block never grows past its stored form.
func MaxPaddedBlockSize(n int) int64 {
	return sizing.Align128(int64(format.BlockHeaderSize + n))
}

// Encoder compresses blocks at a fixed deflate level.
type Encoder struct {
	level int
	pool  sync.Pool
}

var (
	encodersMu sync.Mutex
	encoders   = map[int]*Encoder{}
)

// NewEncoder returns the shared encoder for level.
// Levels outside flate's range fall back to DefaultLevel.
func NewEncoder(level int) *Encoder {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = DefaultLevel
	}
	encodersMu.Lock()
	defer encodersMu.Unlock()
	if e, ok := encoders[level]; ok {
		return e
	}
	e := &Encoder{level: level}
	encoders[level] = e
	return e
}

// Level returns the deflate level.
func (e *Encoder) Level() int { return e.level }

type pooledWriter struct {
	w   *flate.Writer
	buf bytes.Buffer
}

func (e *Encoder) get() (*pooledWriter, error) {
	if v, ok := e.pool.Get().(*pooledWriter); ok {
		v.buf.Reset()
		v.w.Reset(&v.buf)
		return v, nil
	}
	pw := &pooledWriter{}
	w, err := flate.NewWriter(&pw.buf, e.level)
	if err != nil {
		return nil, fmt.Errorf("create deflate writer: %w", err)
	}
	pw.w = w
	return pw, nil
}

// Compress deflates src, returning nil when the result would not be smaller.
// The returned slice is owned by the caller.
func (e *Encoder) Compress(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, nil
	}
	pw, err := e.get()
	if err != nil {
		return nil, err
	}
	defer e.pool.Put(pw)

	if _, err := pw.w.Write(src); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := pw.w.Close(); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if pw.buf.Len() >= len(src) {
		return nil, nil
	}
	return bytes.Clone(pw.buf.Bytes()), nil
}

// AppendBlock appends one encoded block for src to dst, padded to the entry
// alignment. With store set, deflate is not attempted.
func (e *Encoder) AppendBlock(dst, src []byte, store bool) ([]byte, error) {
	if len(src) > format.BlockDataSize {
		return dst, fmt.Errorf("%w: block of %d bytes", format.ErrInvalidArgument, len(src))
	}
	var packed []byte
	if !store {
		var err error
		if packed, err = e.Compress(src); err != nil {
			return dst, err
		}
	}

	hdr := format.BlockHeader{DecompressedSize: uint32(len(src))} //nolint:gosec // bounded above
	payload := src
	if packed != nil {
		hdr.CompressedSize = uint32(len(packed)) //nolint:gosec // smaller than src
		payload = packed
	} else {
		hdr.CompressedSize = format.CompressedSizeNotCompressed
	}

	start := len(dst)
	padded := int(sizing.Align128(int64(format.BlockHeaderSize + len(payload))))
	dst = append(dst, make([]byte, padded)...)
	hdr.Put(dst[start:])
	copy(dst[start+format.BlockHeaderSize:], payload)
	return dst, nil
}

// EncodeBlocks splits src into BlockDataSize blocks and returns the encoded
// blocks together with each block's padded size.
func (e *Encoder) EncodeBlocks(src []byte, store bool) ([]byte, []uint16, error) {
	n := format.BlockCount(int64(len(src)))
	out := make([]byte, 0, len(src)/2+n*format.EntryAlignment)
	sizes := make([]uint16, 0, n)
	for off := 0; off < len(src); off += format.BlockDataSize {
		end := min(off+format.BlockDataSize, len(src))
		before := len(out)
		var err error
		if out, err = e.AppendBlock(out, src[off:end], store); err != nil {
			return nil, nil, err
		}
		sizes = append(sizes, uint16(len(out)-before)) //nolint:gosec // at most MaxPaddedBlockSize
	}
	return out, sizes, nil
}

var readers = sync.Pool{}

// Inflate decompresses a raw deflate payload into dst, which must be sized to
// the block's decompressed length.
func Inflate(dst, payload []byte) error {
	src := bytes.NewReader(payload)
	r, ok := readers.Get().(io.ReadCloser)
	if ok {
		if err := r.(flate.Resetter).Reset(src, nil); err != nil {
			return fmt.Errorf("%w: reset inflater: %w", format.ErrCorruptData, err)
		}
	} else {
		r = flate.NewReader(src)
	}
	defer readers.Put(r)

	if _, err := io.ReadFull(r, dst); err != nil {
		return fmt.Errorf("%w: inflate: %w", format.ErrCorruptData, err)
	}
	return nil
}

// DecodeBlock decodes a block held entirely in b into dst and returns the
// number of bytes written. dst must hold at least the block's decompressed size.
func DecodeBlock(dst, b []byte) (int, error) {
	hdr, err := format.ParseBlockHeader(b)
	if err != nil {
		return 0, err
	}
	n := int(hdr.DecompressedSize)
	if len(dst) < n {
		return 0, fmt.Errorf("%w: block of %d bytes into %d byte buffer", format.ErrInvalidArgument, n, len(dst))
	}
	payload := b[format.BlockHeaderSize:]
	if int(hdr.PayloadSize()) > len(payload) {
		return 0, fmt.Errorf("%w: block payload of %d bytes truncated to %d", format.ErrCorruptData, hdr.PayloadSize(), len(payload))
	}
	payload = payload[:hdr.PayloadSize()]
	if hdr.Stored() {
		return copy(dst, payload), nil
	}
	if err := Inflate(dst[:n], payload); err != nil {
		return 0, err
	}
	return n, nil
}

// ReadBlock reads and decodes the block starting at off in r.
//
// paddedSize bounds the read; zero reads the header first to learn the size.
func ReadBlock(r io.ReaderAt, off int64, paddedSize int, dst []byte) (int, error) {
	if paddedSize <= 0 {
		var hb [format.BlockHeaderSize]byte
		if _, err := r.ReadAt(hb[:], off); err != nil {
			return 0, fmt.Errorf("%w: read block header at %d: %w", format.ErrIO, off, err)
		}
		hdr, err := format.ParseBlockHeader(hb[:])
		if err != nil {
			return 0, err
		}
		paddedSize = format.BlockHeaderSize + int(hdr.PayloadSize())
	}
	buf := make([]byte, paddedSize)
	n, err := r.ReadAt(buf, off)
	if n < format.BlockHeaderSize || (err != nil && err != io.EOF) {
		return 0, fmt.Errorf("%w: read block at %d: %w", format.ErrIO, off, err)
	}
	return DecodeBlock(dst, buf[:n])
}
