// Package format defines the SqPack on-disk structures and their little-endian
// encodings.
package format

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // SHA-1 is mandated by the file format
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the size of the common header and of the index/data sub-headers.
	HeaderSize = 1024

	// headerHashOffset is where each 1024-byte header stores the SHA-1 of its preceding bytes.
	headerHashOffset = 0x3C0

	// EntryAlignment is the allocation granularity for entries, headers and blocks.
	EntryAlignment = 128

	// BlockDataSize is the decompressed size of every block but the last of a run.
	BlockDataSize = 16000

	// CompressedSizeNotCompressed marks a block stored without deflate.
	CompressedSizeNotCompressed = 32000

	// FirstEntryOffset is the offset of the first entry in a data file.
	FirstEntryOffset = 2 * HeaderSize

	// MaxDataFiles is the number of data files addressable by a locator.
	MaxDataFiles = 8

	// DefaultMaxFileSize is the default size limit of one data file.
	DefaultMaxFileSize = 2_000_000_000
)

// Signature starts every SqPack file.
var Signature = [12]byte{'S', 'q', 'P', 'a', 'c', 'k'}

// FileType is the type field of the common header.
type FileType uint32

const (
	FileTypeDatabase FileType = 0
	FileTypeData     FileType = 1
	FileTypeIndex    FileType = 2
)

// IndexType discriminates .index from .index2 headers.
type IndexType uint32

const (
	IndexTypeIndex  IndexType = 0
	IndexTypeIndex2 IndexType = 2
)

// SHA1 is a 20-byte SHA-1 digest.
type SHA1 [sha1.Size]byte

// IsZero reports whether no digest was recorded.
func (s SHA1) IsZero() bool { return s == SHA1{} }

// String returns the hex form of the digest.
func (s SHA1) String() string { return fmt.Sprintf("%x", s[:]) }

// Sum1 returns the SHA-1 of b.
func Sum1(b []byte) SHA1 {
	return SHA1(sha1.Sum(b)) //nolint:gosec // format-mandated digest
}

// SqpackHeader is the common 1024-byte header at offset 0 of every file.
type SqpackHeader struct {
	Type   FileType
	Date   uint32
	Time   uint32
	Region uint32
}

// NewSqpackHeader returns a header of the given type with the default region.
func NewSqpackHeader(t FileType) SqpackHeader {
	return SqpackHeader{Type: t, Region: 0xFFFFFFFF}
}

// MarshalBinary encodes the header and its trailing SHA-1.
func (h SqpackHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	copy(b, Signature[:])
	le.PutUint32(b[0x0C:], HeaderSize)
	le.PutUint32(b[0x10:], 1)
	le.PutUint32(b[0x14:], uint32(h.Type))
	le.PutUint32(b[0x18:], h.Date)
	le.PutUint32(b[0x1C:], h.Time)
	le.PutUint32(b[0x20:], h.Region)
	sealHeader(b)
	return b, nil
}

// ParseSqpackHeader decodes the common header.
// With verify set, the signature, header size and SHA-1 are checked.
func ParseSqpackHeader(b []byte, want FileType, verify bool) (SqpackHeader, error) {
	if len(b) < HeaderSize {
		return SqpackHeader{}, fmt.Errorf("%w: sqpack header truncated (%d bytes)", ErrCorruptData, len(b))
	}
	h := SqpackHeader{
		Type:   FileType(le.Uint32(b[0x14:])),
		Date:   le.Uint32(b[0x18:]),
		Time:   le.Uint32(b[0x1C:]),
		Region: le.Uint32(b[0x20:]),
	}
	if !verify {
		return h, nil
	}
	if !bytes.Equal(b[:len(Signature)], Signature[:]) {
		return h, fmt.Errorf("%w: bad signature", ErrCorruptData)
	}
	if size := le.Uint32(b[0x0C:]); size != HeaderSize {
		return h, fmt.Errorf("%w: sqpack header size %d", ErrCorruptData, size)
	}
	if h.Type != want {
		return h, fmt.Errorf("%w: file type %d, want %d", ErrCorruptData, h.Type, want)
	}
	if err := checkSeal(b[:HeaderSize]); err != nil {
		return h, fmt.Errorf("sqpack header: %w", err)
	}
	return h, nil
}

// SegmentDescriptor locates one index segment.
type SegmentDescriptor struct {
	Count  uint32
	Offset uint32
	Size   uint32
	SHA1   SHA1
}

const segmentDescriptorSize = 72

func (d SegmentDescriptor) put(b []byte) {
	le.PutUint32(b[0:], d.Count)
	le.PutUint32(b[4:], d.Offset)
	le.PutUint32(b[8:], d.Size)
	copy(b[12:32], d.SHA1[:])
}

func parseSegmentDescriptor(b []byte) SegmentDescriptor {
	d := SegmentDescriptor{
		Count:  le.Uint32(b[0:]),
		Offset: le.Uint32(b[4:]),
		Size:   le.Uint32(b[8:]),
	}
	copy(d.SHA1[:], b[12:32])
	return d
}

// Index header field offsets.
const (
	offHashLocatorSegment = 0x04
	offDataFilesCount     = 0x50
	offTextLocatorSegment = 0x54
	offSegment3           = 0x9C
	offPathHashSegment    = 0xE4
	offIndexType          = 0x130
)

// IndexHeader is the sub-header of .index and .index2 files.
type IndexHeader struct {
	HashLocatorSegment     SegmentDescriptor
	DataFilesSegmentCount  uint32
	TextLocatorSegment     SegmentDescriptor
	Segment3               SegmentDescriptor
	PathHashLocatorSegment SegmentDescriptor
	Type                   IndexType
}

// MarshalBinary encodes the index header and its trailing SHA-1.
func (h IndexHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	le.PutUint32(b[0:], HeaderSize)
	h.HashLocatorSegment.put(b[offHashLocatorSegment:])
	le.PutUint32(b[offDataFilesCount:], h.DataFilesSegmentCount)
	h.TextLocatorSegment.put(b[offTextLocatorSegment:])
	h.Segment3.put(b[offSegment3:])
	h.PathHashLocatorSegment.put(b[offPathHashSegment:])
	le.PutUint32(b[offIndexType:], uint32(h.Type))
	sealHeader(b)
	return b, nil
}

// ParseIndexHeader decodes an index sub-header. With verify set, the header
// size and SHA-1 are checked.
func ParseIndexHeader(b []byte, verify bool) (IndexHeader, error) {
	if len(b) < HeaderSize {
		return IndexHeader{}, fmt.Errorf("%w: index header truncated (%d bytes)", ErrCorruptData, len(b))
	}
	h := IndexHeader{
		HashLocatorSegment:     parseSegmentDescriptor(b[offHashLocatorSegment:]),
		DataFilesSegmentCount:  le.Uint32(b[offDataFilesCount:]),
		TextLocatorSegment:     parseSegmentDescriptor(b[offTextLocatorSegment:]),
		Segment3:               parseSegmentDescriptor(b[offSegment3:]),
		PathHashLocatorSegment: parseSegmentDescriptor(b[offPathHashSegment:]),
		Type:                   IndexType(le.Uint32(b[offIndexType:])),
	}
	if !verify {
		return h, nil
	}
	if size := le.Uint32(b[0:]); size != HeaderSize {
		return h, fmt.Errorf("%w: index header size %d", ErrCorruptData, size)
	}
	if err := checkSeal(b[:HeaderSize]); err != nil {
		return h, fmt.Errorf("index header: %w", err)
	}
	return h, nil
}

// DataHeader is the sub-header of .datN files.
type DataHeader struct {
	// DataSize is the number of bytes of entries following the headers.
	DataSize    uint64
	SpanIndex   uint32
	MaxFileSize uint64
	DataSHA1    SHA1
}

// MarshalBinary encodes the data header and its trailing SHA-1.
func (h DataHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	le.PutUint32(b[0x00:], HeaderSize)
	le.PutUint32(b[0x08:], 0x10)
	le.PutUint64(b[0x0C:], h.DataSize)
	le.PutUint32(b[0x14:], h.SpanIndex)
	le.PutUint64(b[0x1C:], h.MaxFileSize)
	copy(b[0x24:0x24+len(h.DataSHA1)], h.DataSHA1[:])
	sealHeader(b)
	return b, nil
}

// ParseDataHeader decodes a data sub-header. With verify set, the header size
// and SHA-1 are checked.
func ParseDataHeader(b []byte, verify bool) (DataHeader, error) {
	if len(b) < HeaderSize {
		return DataHeader{}, fmt.Errorf("%w: data header truncated (%d bytes)", ErrCorruptData, len(b))
	}
	h := DataHeader{
		DataSize:    le.Uint64(b[0x0C:]),
		SpanIndex:   le.Uint32(b[0x14:]),
		MaxFileSize: le.Uint64(b[0x1C:]),
	}
	copy(h.DataSHA1[:], b[0x24:])
	if !verify {
		return h, nil
	}
	if size := le.Uint32(b[0:]); size != HeaderSize {
		return h, fmt.Errorf("%w: data header size %d", ErrCorruptData, size)
	}
	if err := checkSeal(b[:HeaderSize]); err != nil {
		return h, fmt.Errorf("data header: %w", err)
	}
	return h, nil
}

var le = binary.LittleEndian

func sealHeader(b []byte) {
	sum := Sum1(b[:headerHashOffset])
	copy(b[headerHashOffset:], sum[:])
}

func checkSeal(b []byte) error {
	var stored SHA1
	copy(stored[:], b[headerHashOffset:])
	if got := Sum1(b[:headerHashOffset]); got != stored {
		return fmt.Errorf("%w: header sha1 %s, stored %s", ErrCorruptData, got, stored)
	}
	return nil
}
