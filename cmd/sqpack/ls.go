package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var lsLong bool

var lsCmd = &cobra.Command{
	Use:   "ls <archive>",
	Short: "List archive entries in data file order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openArchive(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if lsLong {
			fmt.Fprintln(w, "LOCATOR\tALLOCATED\tKIND\tPATH")
		}
		for e := range r.Entries() {
			if !lsLong {
				fmt.Fprintln(w, e.Spec.String())
				continue
			}
			kind := "?"
			if p, err := r.EntryProviderSpec(e.Spec); err == nil {
				kind = p.Kind().String()
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", e.Locator, e.Allocation, kind, e.Spec)
		}
		return w.Flush()
	},
}

func init() {
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "show locator, allocation and kind")
}
