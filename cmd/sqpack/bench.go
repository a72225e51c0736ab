package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/spf13/cobra"

	"github.com/meigma/sqpack"
	"github.com/meigma/sqpack/internal/testutil"
	"github.com/meigma/sqpack/pathspec"
)

type benchConfig struct {
	mode       string
	files      int
	fileSize   int
	dirCount   int
	pattern    string
	duration   time.Duration
	iterations int
	cpuProfile string
	memProfile string
	traceFile  string
	readRandom bool
	tempDir    string
	keepTemp   bool
	seed       uint64
}

var bench benchConfig

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes []byte
	sinkCount int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Profile reads and writes against a generated archive",
	Long: `bench generates a directory of files, packs it into an in-memory archive
and runs one workload against it until --iterations or --duration is reached.

Modes:
  readfile  decode whole entries by path
  resolve   resolve paths through both indices without decoding
  writer    lay out and stream the whole archive`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, cleanup, err := setupTempDir(bench)
		if err != nil {
			return err
		}
		if cleanup != nil {
			defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
		}

		paths, err := makeFiles(dir, bench)
		if err != nil {
			return err
		}
		c := sqpack.NewCreator(append(creatorOptions(), sqpack.WithStrictViews(true))...)
		defer c.Close()
		if err := c.AddFromDirectory(cmd.Context(), dir, false); err != nil {
			return err
		}
		r, err := materialize(c)
		if err != nil {
			return err
		}

		stop, err := startProfiles(bench)
		if err != nil {
			return err
		}
		stats, err := runBench(bench, c, r, paths)
		stop()
		if err != nil {
			return err
		}

		if bench.memProfile != "" {
			runtime.GC()
			f, err := os.Create(bench.memProfile)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := pprof.WriteHeapProfile(f); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "mode=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
			bench.mode,
			stats.ops,
			stats.bytes,
			stats.elapsed,
			float64(stats.bytes)/(1024*1024)/stats.elapsed.Seconds(),
		)
		return nil
	},
}

func init() {
	flags := benchCmd.Flags()
	flags.StringVar(&bench.mode, "mode", "readfile", "mode: readfile, resolve, writer")
	flags.IntVar(&bench.files, "files", 512, "number of files")
	flags.IntVar(&bench.fileSize, "file-size", 64<<10, "file size in bytes")
	flags.IntVar(&bench.dirCount, "dir-count", 16, "number of directories")
	flags.StringVar(&bench.pattern, "pattern", "compressible", "pattern: compressible or random")
	flags.DurationVar(&bench.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flags.IntVar(&bench.iterations, "iterations", 0, "number of iterations to run")
	flags.StringVar(&bench.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flags.StringVar(&bench.memProfile, "memprofile", "", "write heap profile to file")
	flags.StringVar(&bench.traceFile, "trace", "", "write trace to file")
	flags.BoolVar(&bench.readRandom, "read-random", true, "randomize path selection")
	flags.StringVar(&bench.tempDir, "temp-dir", "", "directory to use for dataset")
	flags.BoolVar(&bench.keepTemp, "keep-temp", false, "keep temp dir after run")
	flags.Uint64Var(&bench.seed, "seed", 1, "random seed")
}

type benchStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func runBench(cfg benchConfig, c *sqpack.Creator, r *sqpack.Reader, paths []string) (benchStats, error) {
	start := time.Now()
	ops := 0
	var byteCount int64

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}
	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed)) //nolint:gosec // intentional for reproducible benchmarks

	switch cfg.mode {
	case "readfile":
		for shouldContinue() {
			path := pickPath(paths, ops, rng, cfg.readRandom)
			content, err := r.ReadFile(path)
			if err != nil {
				return benchStats{}, err
			}
			sinkBytes = content
			byteCount += int64(len(content))
			ops++
		}

	case "resolve":
		for shouldContinue() {
			path := pickPath(paths, ops, rng, cfg.readRandom)
			loc, err := r.Resolve(pathspec.Hash(path))
			if err != nil {
				return benchStats{}, fmt.Errorf("resolve %q: %w", path, err)
			}
			sinkCount = int(loc.Index())
			ops++
		}

	case "writer":
		for shouldContinue() {
			views, err := c.AsViews()
			if err != nil {
				return benchStats{}, err
			}
			for _, d := range views.Data {
				n, err := io.Copy(io.Discard, io.NewSectionReader(d, 0, d.Size()))
				if err != nil {
					return benchStats{}, err
				}
				byteCount += n
			}
			ops++
		}

	default:
		return benchStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return benchStats{
		ops:     ops,
		bytes:   byteCount,
		elapsed: time.Since(start),
	}, nil
}

// materialize copies the creator's views into memory and mounts them.
func materialize(c *sqpack.Creator) (*sqpack.Reader, error) {
	views, err := c.AsViews()
	if err != nil {
		return nil, err
	}
	sources := make([]sqpack.ByteSource, len(views.Data))
	for i, d := range views.Data {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, io.NewSectionReader(d, 0, d.Size())); err != nil {
			return nil, fmt.Errorf("data file %d: %w", i, err)
		}
		sources[i] = testutil.NewMockByteSource(buf.Bytes())
	}
	return sqpack.Open(views.Index1, views.Index2, sources, readerOptions()...)
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func startProfiles(cfg benchConfig) (func(), error) {
	var stops []func()
	stop := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if cfg.cpuProfile != "" {
		f, err := os.Create(cfg.cpuProfile)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, err
		}
		stops = append(stops, func() {
			pprof.StopCPUProfile()
			_ = f.Close()
		})
	}

	if cfg.traceFile != "" {
		f, err := os.Create(cfg.traceFile)
		if err != nil {
			stop()
			return nil, err
		}
		if err := trace.Start(f); err != nil {
			f.Close()
			stop()
			return nil, err
		}
		stops = append(stops, func() {
			trace.Stop()
			_ = f.Close()
		})
	}
	return stop, nil
}

func pickPath(paths []string, idx int, rng *rand.Rand, random bool) string {
	if random {
		return paths[rng.IntN(len(paths))]
	}
	return paths[idx%len(paths)]
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func setupTempDir(cfg benchConfig) (string, func() error, error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, nil, os.MkdirAll(cfg.tempDir, 0o750)
	}
	dir, err := os.MkdirTemp("", "sqpack-bench-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() error {
		if cfg.keepTemp {
			return nil
		}
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func makeFiles(dir string, cfg benchConfig) ([]string, error) {
	if cfg.files <= 0 {
		return nil, errors.New("bench needs at least one file")
	}
	dirCount := max(cfg.dirCount, 1)
	paths := make([]string, 0, cfg.files)
	for i := range cfg.files {
		relPath := fmt.Sprintf("bg/ex1/%02d/file%05d.bin", i%dirCount, i)
		fullPath := filepath.Join(dir, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
			return nil, err
		}

		var content []byte
		switch cfg.pattern {
		case "random":
			content = testutil.RandomBytes(cfg.seed+uint64(i), cfg.fileSize) //nolint:gosec // i is non-negative
		default:
			content = testutil.MixedBytes(cfg.seed+uint64(i), cfg.fileSize) //nolint:gosec // i is non-negative
		}

		if err := os.WriteFile(fullPath, content, 0o600); err != nil {
			return nil, err
		}
		paths = append(paths, relPath)
	}
	return paths, nil
}
