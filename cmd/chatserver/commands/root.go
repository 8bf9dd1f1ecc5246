// Package commands provides the CLI commands for the chat server.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "chatserver",
	Short: "go-chat - AI chat backend with SSE result delivery",
	Long: `go-chat is a chat-application backend. It keeps live sessions in a
bounded in-memory registry, runs AI turns on a worker pool, and delivers
results over Server-Sent Events with a long-poll fallback.

Run 'chatserver serve' to start the HTTP server.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("chatserver %s (%s)\n", Version, BuildTime))
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
