package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/assettag/credential"
)

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash an asset password read from stdin",
	Long: `Reads one line from standard input and prints its bcrypt digest in the form
stored in registry snapshots. Useful for repairing a snapshot by hand.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading password: %w", err)
		}
		digest, err := credential.Hash(strings.TrimRight(line, "\r\n"))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), digest)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashCmd)
}
