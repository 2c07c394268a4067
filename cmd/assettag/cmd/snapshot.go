package cmd

import "github.com/spf13/cobra"

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Registry snapshot tools",
	Long:  `Commands for verifying and inspecting registry snapshot files written by the file storage driver.`,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}
