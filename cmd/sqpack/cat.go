package main

import (
	"io"

	"github.com/spf13/cobra"
)

var catRaw bool

var catCmd = &cobra.Command{
	Use:   "cat <archive> <path>",
	Short: "Write an entry's decoded contents to stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openArchive(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		if catRaw {
			p, err := r.EntryProvider(args[1])
			if err != nil {
				return err
			}
			_, err = io.Copy(cmd.OutOrStdout(), io.NewSectionReader(p, 0, p.Size()))
			return err
		}
		s, err := r.Open(args[1])
		if err != nil {
			return err
		}
		_, err = io.Copy(cmd.OutOrStdout(), io.NewSectionReader(s, 0, s.Size()))
		return err
	},
}

func init() {
	catCmd.Flags().BoolVar(&catRaw, "raw", false, "write the packed entry instead of decoding it")
}
