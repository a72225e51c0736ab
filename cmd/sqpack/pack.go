package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/meigma/sqpack"
	"github.com/meigma/sqpack/entry"
)

var (
	packBase      string
	packMemory    bool
	packLevel     int
	packStoreMin  int64
	packOverwrite bool
)

var packCmd = &cobra.Command{
	Use:   "pack <source-dir> <output-dir> <name>",
	Short: "Build an archive from a directory tree",
	Long: `pack writes name.win32.index, name.win32.index2 and name.win32.datN to
output-dir, with one entry per regular file below source-dir. Entry paths are
the slash-separated paths relative to source-dir; symbolic links are skipped.

With --base, every entry of an existing archive is copied first and files from
source-dir replace entries of the same path.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, outDir, name := args[0], args[1], args[2]

		bars := newProgress(!noProgress)
		opts := append(creatorOptions(),
			sqpack.WithMemoryCompression(packMemory),
			sqpack.WithCompressionLevel(packLevel),
			sqpack.WithProgress(bars.Func()),
			sqpack.WithSkipCompression(sqpack.DefaultSkipCompression(packStoreMin)),
		)
		c := sqpack.NewCreator(opts...)
		defer c.Close()

		overwrite := packOverwrite
		if packBase != "" {
			if err := c.AddEntriesFromExistingArchive(packBase, false); err != nil {
				return fmt.Errorf("base archive: %w", err)
			}
			slog.Info("base archive loaded", "path", packBase, "entries", c.Len())
			overwrite = true
		}

		if err := c.AddFromDirectory(cmd.Context(), src, overwrite); err != nil {
			bars.Finish()
			return err
		}
		err := c.Write(cmd.Context(), outDir, name)
		bars.Finish()
		if err != nil {
			return err
		}

		counts := make(map[sqpack.Outcome]int)
		for _, res := range c.Results() {
			counts[res.Outcome]++
			if res.Err != nil {
				slog.Warn("entry skipped", "path", res.Spec.String(), "error", res.Err)
			}
		}
		slog.Info("archive packed",
			"path", sqpack.IndexPath(outDir, name),
			"entries", c.Len(),
			"added", counts[sqpack.OutcomeAdded],
			"replaced", counts[sqpack.OutcomeReplaced],
			"skipped", counts[sqpack.OutcomeSkippedExisting],
			"errors", counts[sqpack.OutcomeError])
		return nil
	},
}

func init() {
	flags := packCmd.Flags()
	flags.StringVar(&packBase, "base", "", "existing archive whose entries are copied first")
	flags.BoolVar(&packMemory, "memory", false, "compress every file up front instead of while writing")
	flags.IntVar(&packLevel, "level", entry.DefaultLevel, "deflate level, 0 stores blocks uncompressed")
	flags.Int64Var(&packStoreMin, "store-min", 0, "store files smaller than this uncompressed; already-compressed formats are always stored")
	flags.BoolVar(&packOverwrite, "overwrite", false, "later files replace earlier entries of the same path")
}
