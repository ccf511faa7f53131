// Package agent defines the core agent interface and domain types.
package agent

import "context"

// Agent processes user inputs through the LLM and executes tools.
type Agent interface {
	// Process sends a user message to the LLM and returns the response.
	Process(ctx context.Context, input *Input) (*Response, error)

	// ExecuteTool runs a named tool after validation.
	ExecuteTool(ctx context.Context, req *ToolRequest) (*ToolResponse, error)
}

// Input represents a user request entering the agent.
type Input struct {
	UserID         string
	Message        string
	CorrelationID  string
	ConversationID string
	Temperature    *float64 // nil = provider default

	// ContextData is per-turn knowledge appended to the system prompt:
	// the caller's groups, sites, applications, and enabled tasks. Computed
	// fresh each turn so entitlement changes take effect immediately.
	ContextData string
}

// DefaultMaxIterations caps the tool-use loop per turn. Operational
// conversations resolve in a lookup plus one action; anything still looping
// after five rounds is the model going in circles.
const DefaultMaxIterations = 5

// Response is the agent's output after LLM processing.
type Response struct {
	Message     string
	TokensUsed  int
	ToolResults []ToolCallResult // Summary of tools executed during processing.

	// AwaitingHumanInput is set when a tool asked to pause the run and put
	// a question to the user. Message then carries the question.
	AwaitingHumanInput bool
}

// ToolCallResult summarizes a single tool execution within the agentic loop.
type ToolCallResult struct {
	ToolName string
	Success  bool
}

// ToolRequest is the input for a validated tool execution.
type ToolRequest struct {
	UserID        string
	ToolName      string
	Parameters    map[string]any
	CorrelationID string
	ToolUseID     string // LLM tool_use block ID.
}

// ToolResponse is the result of a tool execution.
type ToolResponse struct {
	Output   string
	Success  bool
	Metadata map[string]any
}
