package sqpack

import (
	"fmt"
	"io"
	"testing"

	"github.com/meigma/sqpack/entry"
	"github.com/meigma/sqpack/internal/testutil"
	"github.com/meigma/sqpack/pathspec"
)

var benchSinkBytes []byte

func makeBenchViews(b *testing.B, fileCount, fileSize int, random bool) (*Views, []string) {
	b.Helper()
	c := NewCreator(WithStrictViews(true))
	paths := make([]string, fileCount)
	for i := range fileCount {
		paths[i] = fmt.Sprintf("bg/ex1/%02d/file%05d.bin", i%16, i)
		data := testutil.MixedBytes(uint64(i), fileSize) //nolint:gosec // non-negative
		if random {
			data = testutil.RandomBytes(uint64(i), fileSize) //nolint:gosec // non-negative
		}
		p, err := entry.NewMemoryBytes(pathspec.Hash(paths[i]), entry.KindBinary, data)
		if err != nil {
			b.Fatal(err)
		}
		if res := c.AddEntry(p, false); res.Err != nil {
			b.Fatal(res.Err)
		}
	}
	views, err := c.AsViews()
	if err != nil {
		b.Fatal(err)
	}
	return views, paths
}

func BenchmarkReaderReadFile(b *testing.B) {
	const fileCount = 512
	const fileSize = 64 << 10

	for _, random := range []bool{false, true} {
		views, paths := makeBenchViews(b, fileCount, fileSize, random)
		for _, blocks := range []int{0, 256} {
			b.Run(fmt.Sprintf("random=%t/cache=%d", random, blocks), func(b *testing.B) {
				r, err := OpenViews(views, WithBlockCache(blocks))
				if err != nil {
					b.Fatal(err)
				}
				b.SetBytes(fileSize)
				b.ReportAllocs()
				var seed uint64 = 1
				for b.Loop() {
					seed = seed*1664525 + 1013904223
					content, err := r.ReadFile(paths[int(seed%uint64(len(paths)))]) //nolint:gosec // bounded by len
					if err != nil {
						b.Fatal(err)
					}
					benchSinkBytes = content
				}
			})
		}
	}
}

func BenchmarkReaderOpenPartial(b *testing.B) {
	const fileCount = 256
	const fileSize = 256 << 10
	const readSize = 4 << 10

	views, paths := makeBenchViews(b, fileCount, fileSize, false)
	r, err := OpenViews(views, WithBlockCache(64))
	if err != nil {
		b.Fatal(err)
	}
	buf := make([]byte, readSize)
	b.SetBytes(readSize)
	b.ReportAllocs()
	var seed uint64 = 7
	for b.Loop() {
		seed = seed*1664525 + 1013904223
		s, err := r.Open(paths[int(seed%uint64(len(paths)))]) //nolint:gosec // bounded by len
		if err != nil {
			b.Fatal(err)
		}
		off := int64(seed>>16) % (fileSize - readSize) //nolint:gosec // small
		if _, err := s.ReadAt(buf, off); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResolve(b *testing.B) {
	views, paths := makeBenchViews(b, 4096, 128, false)
	r, err := OpenViews(views)
	if err != nil {
		b.Fatal(err)
	}
	specs := make([]pathspec.PathSpec, len(paths))
	for i, p := range paths {
		specs[i] = pathspec.Hash(p)
	}
	b.ReportAllocs()
	i := 0
	for b.Loop() {
		if _, err := r.Resolve(specs[i%len(specs)]); err != nil {
			b.Fatal(err)
		}
		i++
	}
}

func BenchmarkCreatorAsViews(b *testing.B) {
	const fileCount = 128
	const fileSize = 64 << 10

	for _, lazy := range []bool{false, true} {
		b.Run(fmt.Sprintf("lazy=%t", lazy), func(b *testing.B) {
			data := make([][]byte, fileCount)
			for i := range data {
				data[i] = testutil.MixedBytes(uint64(i), fileSize) //nolint:gosec // non-negative
			}
			b.SetBytes(fileCount * fileSize)
			b.ReportAllocs()
			for b.Loop() {
				c := NewCreator()
				for i, d := range data {
					spec := pathspec.Hash(fmt.Sprintf("exd/file%04d.exd", i))
					var p entry.Provider
					if lazy {
						p = entry.NewLazyBinary(spec, testutil.NewMockByteSource(d))
					} else {
						m, err := entry.NewMemoryBytes(spec, entry.KindBinary, d)
						if err != nil {
							b.Fatal(err)
						}
						p = m
					}
					c.AddEntry(p, false)
				}
				views, err := c.AsViews()
				if err != nil {
					b.Fatal(err)
				}
				for _, d := range views.Data {
					if _, err := io.Copy(io.Discard, io.NewSectionReader(d, 0, d.Size())); err != nil {
						b.Fatal(err)
					}
				}
			}
		})
	}
}
