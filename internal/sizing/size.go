// Package sizing provides alignment and overflow-safe size arithmetic for
// entry layout.
package sizing

import (
	"io"
	"math"
)

// Alignment is the allocation granularity of entries and blocks.
const Alignment = 128

// Align rounds n up to a multiple of a, which must be a power of two.
func Align(n, a int64) int64 {
	return (n + a - 1) &^ (a - 1)
}

// Align128 rounds n up to the entry alignment.
func Align128(n int64) int64 {
	return Align(n, Alignment)
}

// ToUint32 converts n to uint32, returning overflowErr if it doesn't fit.
func ToUint32(n int64, overflowErr error) (uint32, error) {
	if n < 0 || n > math.MaxUint32 {
		return 0, overflowErr
	}
	return uint32(n), nil
}

// AddInt64 adds two non-negative sizes, returning (result, false) on overflow.
func AddInt64(a, b int64) (int64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// ReadAllWithLimit reads up to maxSize bytes from r.
// Returns overflowErr if more than maxSize bytes are available.
func ReadAllWithLimit(r io.Reader, maxSize int64, overflowErr error) ([]byte, error) {
	if maxSize < 0 || maxSize > math.MaxInt-1 {
		return nil, overflowErr
	}
	lr := &io.LimitedReader{R: r, N: maxSize + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, overflowErr
	}
	return data, nil
}
