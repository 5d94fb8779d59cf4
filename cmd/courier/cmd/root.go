package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "Courier messaging demo",
	Long: `Courier is a peer-addressing and request/response layer on top of a
pattern-based pub/sub transport.

Available commands:
  demo    Run two clients through a ping/pong, room, and broadcast exchange

Use "courier [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
