package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/darkauth/darkauth/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "darkauth",
	Short: "DarkAuth identity provider",
	Long: `DarkAuth is an OpenID Connect provider where the server never sees
user passwords: authentication runs over the OPAQUE PAKE, and key material
for zero-knowledge clients is delivered without the server learning it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().String("user-addr", "", "User realm bind address (env: USER_ADDR)")
	rootCmd.PersistentFlags().String("admin-addr", "", "Admin realm bind address (env: ADMIN_ADDR)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
