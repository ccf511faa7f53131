// Package mcp exposes the bot's tool registry over the Model Context
// Protocol, so external MCP clients (editors, other agents) can call the
// same Cloud Foundry and incident tools the chat assistant uses. Every
// call flows through the agent's ExecuteTool pipeline: validation,
// entitlement checks inside the tools, logging, metrics, and audit.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nguyenhx22/chatops-ai-bot/internal/agent"
	"github.com/nguyenhx22/chatops-ai-bot/internal/tools"
)

// Server serves the tool registry over MCP stdio transport.
type Server struct {
	registry *tools.Registry
	exec     agent.Agent
	userID   string // Identity attributed to MCP calls.
	logger   *slog.Logger
	mcp      *server.MCPServer
}

// NewServer creates an MCP server over the registry. userID is the
// identity every MCP call runs as; entitlement checks apply to it like to
// any chat user.
func NewServer(registry *tools.Registry, exec agent.Agent, userID string, logger *slog.Logger) *Server {
	s := &Server{
		registry: registry,
		exec:     exec,
		userID:   userID,
		logger:   logger,
		mcp: server.NewMCPServer(
			"chatops-ai-bot",
			"0.1.0",
			server.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	for _, t := range s.registry.All() {
		schema, err := json.Marshal(t.InputSchema())
		if err != nil {
			s.logger.Error("skipping tool with unserializable schema",
				slog.String("tool", t.Name()),
				slog.String("error", err.Error()))
			continue
		}

		name := t.Name()
		s.mcp.AddTool(
			mcp.NewToolWithRawSchema(name, t.Description(), schema),
			s.handler(name),
		)
	}
}

func (s *Server) handler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.logger.InfoContext(ctx, "mcp tool call",
			slog.String("tool", toolName),
			slog.String("user_id", s.userID),
		)

		resp, err := s.exec.ExecuteTool(ctx, &agent.ToolRequest{
			UserID:     s.userID,
			ToolName:   toolName,
			Parameters: req.GetArguments(),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(resp.Output), nil
		}
		return mcp.NewToolResultText(resp.Output), nil
	}
}

// ServeStdio blocks serving MCP over stdin/stdout until the client
// disconnects or ctx is canceled.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("mcp server starting on stdio",
		slog.Int("tools", len(s.registry.List())),
		slog.String("user_id", s.userID),
	)
	if err := server.ServeStdio(s.mcp, server.WithStdioContextFunc(
		func(context.Context) context.Context { return ctx },
	)); err != nil {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}
