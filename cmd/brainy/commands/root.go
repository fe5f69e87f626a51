// Package commands implements the Brainy CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "brainy",
		Short: "Brainy - personal assistant over WhatsApp",
		Long: `Brainy is a personal assistant daemon. It links to a WhatsApp account
via QR pairing, saves notes into semantic memory, answers questions from
stored memories, and sends a daily morning digest. A web chat UI runs
alongside the messaging link.

Examples:
  brainy setup
  brainy serve
  brainy serve --config ./config.yaml`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSetupCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
