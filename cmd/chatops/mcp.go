package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/nguyenhx22/chatops-ai-bot/internal/config"
	mcpgw "github.com/nguyenhx22/chatops-ai-bot/internal/gateway/mcp"
	"github.com/nguyenhx22/chatops-ai-bot/internal/session"
)

var (
	mcpConfigPath string
	mcpContext    string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose the operations tools over MCP stdio",
	Long: `Run as a Model Context Protocol server on stdin/stdout so external
MCP clients (IDEs, desktop assistants) can call the Cloud Foundry and
incident tools directly. Every call is attributed to the user configured
under mcp.user_id and passes the same entitlement checks as chat.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	mcpCmd.Flags().StringVar(&mcpContext, "context", string(session.ContextCloudFoundry), "tool set to expose (CF or IRA)")
}

func runMCP(_ *cobra.Command, _ []string) error {
	// Logs go to stderr; stdout carries the MCP protocol stream.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := config.Load(goutils.Env("CHATOPS_CONFIG", mcpConfigPath))
	if err != nil {
		return err
	}
	if cfg.MCP == nil || !cfg.MCP.Enabled {
		return fmt.Errorf("MCP mode is disabled (set mcp.enabled in config)")
	}
	if cfg.MCP.UserID == "" {
		return fmt.Errorf("mcp.user_id is required: tool calls must be attributed to a user")
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	sessCtx, err := session.ParseContext(mcpContext)
	if err != nil {
		return err
	}
	registry, ok := sc.ToolRegs[sessCtx]
	if !ok {
		return fmt.Errorf("context %s has no tool set", sessCtx)
	}
	exec := sc.Agents[sessCtx]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := mcpgw.NewServer(registry, exec, cfg.MCP.UserID, logger)
	return srv.ServeStdio(ctx)
}
