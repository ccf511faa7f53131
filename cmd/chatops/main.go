// Command chatops-bot is a conversational assistant for Cloud Foundry
// operations.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatops-bot",
	Short: "Conversational assistant for Cloud Foundry operations and incident analysis.",
	Long: `ChatOps AI Bot is a chat-based operations assistant for Cloud Foundry platforms.
It routes natural-language requests through an LLM with tool calling, checks every
operation against the entitlement database, and executes approved actions through
the remote chatops-service.`,
	// Running with no subcommand starts the gateway.
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, mcpCmd, chatCmd, versionCmd)
	// A local .env is optional; real deployments set the environment.
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
