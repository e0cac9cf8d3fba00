package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Webhook relay for console Launch/Exit events",
	Long: `relay accepts Launch/Exit webhooks from game consoles, keeps a bounded
history of them, and pushes each one to connected dashboards over SSE,
WebSocket, or long polling. It can also forward events to other endpoints.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "relay %s\n", rootCmd.Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, sendCmd, simulateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
