package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "assettag",
	Short: "AssetTag tracks physical assets through scannable codes",
	Long: `A small web service that registers physical assets, prints a scannable
code for each one and records every authenticated scan.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
