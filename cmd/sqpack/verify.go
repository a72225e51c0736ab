package main

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/sqpack"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <archive>",
	Short: "Check hashes and decode every entry",
	Long: `verify opens the archive in strict mode, which checks every header and
segment SHA-1, the data file hashes and the agreement of both indices, then
decodes every entry in full.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.Strict = true
		r, err := openArchive(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		limit := cfg.Workers
		if limit <= 0 {
			limit = runtime.GOMAXPROCS(0)
		}
		var failed, decoded atomic.Int64
		var g errgroup.Group
		g.SetLimit(limit)
		for e := range r.Entries() {
			if err := cmd.Context().Err(); err != nil {
				break
			}
			g.Go(func() error {
				n, err := decodeEntry(r, e)
				if err != nil {
					failed.Add(1)
					slog.Error("entry failed", "path", e.Spec.String(), "locator", e.Locator.String(), "error", err)
					return nil
				}
				decoded.Add(n)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if err := cmd.Context().Err(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d entries, %d data files, %d bytes decoded, %d failed\n",
			r.Len(), r.DataFiles(), decoded.Load(), failed.Load())
		if n := failed.Load(); n > 0 {
			return fmt.Errorf("%d of %d entries failed to decode", n, r.Len())
		}
		return nil
	},
}

func decodeEntry(r *sqpack.Reader, e sqpack.Entry) (int64, error) {
	s, err := r.OpenSpec(e.Spec)
	if err != nil {
		return 0, err
	}
	return io.Copy(io.Discard, io.NewSectionReader(s, 0, s.Size()))
}
