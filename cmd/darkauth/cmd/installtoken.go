package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darkauth/darkauth/internal/crypto"
)

var installTokenCmd = &cobra.Command{
	Use:   "install-token",
	Short: "Generate a one-shot bootstrap token",
	Long: `Generates a random install token. Pass it to the server via INSTALL_TOKEN
to arm the bootstrap gate; the token is single-use and expires ten minutes
after the server starts.`,
	// Token generation needs no configuration; skip the root config load.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := crypto.RandomToken(32)
		if err != nil {
			return fmt.Errorf("generate install token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installTokenCmd)
}
