package pathspec

import "hash/crc32"

// crcSlash is the IEEE CRC-32 of "/".
var crcSlash = crc32.ChecksumIEEE([]byte{'/'})

// combine returns the CRC-32 of A||B given crc1 = CRC(A), crc2 = CRC(B) and len2 = len(B).
//
// This is the zlib crc32_combine construction: the CRC register is advanced over
// len2 zero bytes by repeated squaring of the one-zero-bit operator in GF(2).
func combine(crc1, crc2 uint32, len2 int64) uint32 {
	if len2 <= 0 {
		return crc1
	}

	var even, odd [32]uint32

	// Operator for one zero bit.
	odd[0] = crc32.IEEE
	row := uint32(1)
	for n := 1; n < 32; n++ {
		odd[n] = row
		row <<= 1
	}

	gf2Square(&even, &odd) // two zero bits
	gf2Square(&odd, &even) // four zero bits

	for {
		gf2Square(&even, &odd)
		if len2&1 != 0 {
			crc1 = gf2Times(&even, crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}

		gf2Square(&odd, &even)
		if len2&1 != 0 {
			crc1 = gf2Times(&odd, crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}
	}

	return crc1 ^ crc2
}

func gf2Times(mat *[32]uint32, vec uint32) uint32 {
	var sum uint32
	for i := 0; vec != 0; i++ {
		if vec&1 != 0 {
			sum ^= mat[i]
		}
		vec >>= 1
	}
	return sum
}

func gf2Square(square, mat *[32]uint32) {
	for n := range 32 {
		square[n] = gf2Times(mat, mat[n])
	}
}

// segmentHash accumulates the CRC of a slash-joined path one segment at a time.
type segmentHash struct {
	crc uint32
	n   int64
}

func (h *segmentHash) add(segment string) {
	c := crc32.ChecksumIEEE([]byte(segment))
	if h.n == 0 {
		h.crc = c
		h.n = int64(len(segment))
		return
	}
	h.crc = combine(combine(h.crc, crcSlash, 1), c, int64(len(segment)))
	h.n += 1 + int64(len(segment))
}

// join returns the CRC of h + "/" + other.
func (h segmentHash) join(other segmentHash) segmentHash {
	if h.n == 0 {
		return other
	}
	return segmentHash{
		crc: combine(combine(h.crc, crcSlash, 1), other.crc, other.n),
		n:   h.n + 1 + other.n,
	}
}
