package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [file]",
	Short: "List the assets in a registry snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("cannot read file: %w", err)
		}
		entries, err := decodeSnapshotEntries(data)
		if err != nil {
			return err
		}
		writeAssetTable(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(listCmd)
}

func writeAssetTable(w io.Writer, entries []snapshotEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLOCATION\tDEPARTMENT\tSCANS\tLAST SCAN")
	for _, e := range entries {
		last := "-"
		if n := len(e.Record.ScanHistory); n > 0 {
			last = e.Record.ScanHistory[n-1].Timestamp
		}
		dept := e.Record.Department
		if dept == "" {
			dept = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.Record.ID, e.Key, e.Record.Location, dept, len(e.Record.ScanHistory), last)
	}
	tw.Flush()
}
