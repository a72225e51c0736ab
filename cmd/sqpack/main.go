// Command sqpack inspects, verifies and builds SqPack archives.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/meigma/sqpack"
	"github.com/meigma/sqpack/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string

	logLevel       string
	logFormat      string
	strict         bool
	useMmap        bool
	blockCache     int
	workers        int
	maxSegmentSize int64
	noProgress     bool
)

var rootCmd = &cobra.Command{
	Use:   "sqpack",
	Short: "Inspect and build SqPack game archives",
	Long: `sqpack reads and writes the SqPack archive triplet: name.win32.index,
name.win32.index2 and one or more name.win32.datN data files.

Archive arguments name any file of the triplet, usually the .index file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		flags := cmd.Flags()
		if flags.Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if flags.Changed("strict") {
			cfg.Strict = strict
		}
		if flags.Changed("mmap") {
			cfg.Mmap = useMmap
		}
		if flags.Changed("block-cache") {
			cfg.BlockCache = blockCache
		}
		if flags.Changed("workers") {
			cfg.Workers = workers
		}
		if flags.Changed("max-segment-size") {
			cfg.MaxSegmentSize = maxSegmentSize
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		level, err := config.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		var handler slog.Handler
		if cfg.LogFormat == "json" {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
		}
		slog.SetDefault(slog.New(handler))

		slog.Debug("configuration",
			"strict", cfg.Strict,
			"mmap", cfg.Mmap,
			"block_cache", cfg.BlockCache,
			"workers", cfg.Workers,
			"max_segment_size", cfg.MaxSegmentSize)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is sqpack.yaml in pwd or home)")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "log format (text, json)")
	flags.BoolVar(&strict, "strict", false, "verify hashes and cross-check both indices on open")
	flags.BoolVar(&useMmap, "mmap", false, "memory-map data files")
	flags.IntVar(&blockCache, "block-cache", 0, "decoded blocks to cache, 0 disables")
	flags.IntVar(&workers, "workers", 0, "parallel workers, 0 uses GOMAXPROCS")
	flags.Int64Var(&maxSegmentSize, "max-segment-size", 0, "size limit of one data file")
	flags.BoolVar(&noProgress, "no-progress", false, "disable progress bars")

	rootCmd.AddCommand(lsCmd, catCmd, packCmd, verifyCmd, benchCmd)
}

func readerOptions() []sqpack.Option {
	return []sqpack.Option{
		sqpack.WithStrict(cfg.Strict),
		sqpack.WithMmap(cfg.Mmap),
		sqpack.WithBlockCache(cfg.BlockCache),
		sqpack.WithLogger(slog.Default()),
	}
}

func creatorOptions() []sqpack.CreatorOption {
	return []sqpack.CreatorOption{
		sqpack.WithMaxSegmentSize(cfg.MaxSegmentSize),
		sqpack.WithWorkers(cfg.Workers),
		sqpack.WithCreatorLogger(slog.Default()),
	}
}

// openArchive opens the archive containing path.
func openArchive(path string) (*sqpack.Reader, error) {
	dir, name, ok := sqpack.SplitIndexPath(path)
	if !ok {
		return nil, fmt.Errorf("%s: not a .win32.index, .win32.index2 or .win32.datN file", path)
	}
	return sqpack.OpenDir(dir, name, readerOptions()...)
}
