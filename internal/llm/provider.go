// Package llm defines the provider-neutral chat protocol spoken between the
// agent loop and whichever model backend is configured.
package llm

import (
	"context"
	"strings"
)

// Role identifies who sent a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Content block discriminators. Stored in ContentBlock.Type.
const (
	blockText       = "text"
	blockToolUse    = "tool_use"
	blockToolResult = "tool_result"
)

// Provider is a chat backend. OpenAI and Groq both satisfy it through the
// same client; FallbackProvider chains several.
type Provider interface {
	// SendMessage runs one model turn over the given conversation.
	SendMessage(ctx context.Context, req *Request) (*Response, error)
	// Name identifies the backend in logs and metrics (e.g. "groq").
	Name() string
}

// Request carries everything a single model turn needs.
type Request struct {
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	Temperature  *float64         // nil leaves the backend default in place
	Tools        []ToolDefinition // nil disables tool use for this turn
}

// ToolDefinition is one catalog entry offered to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ContentBlock is one piece of a message. Type selects which of the
// remaining fields carry data; the rest stay zero.
type ContentBlock struct {
	Type string `json:"type"`

	// blockText
	Text string `json:"text,omitempty"`

	// blockToolUse
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// blockToolResult
	ToolUseID string `json:"tool_use_id,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// TextBlock wraps plain text as a content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: blockText, Text: text}
}

// ToolUseBlock records a model's request to run a tool.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	return ContentBlock{Type: blockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock records a tool's output, keyed to the tool_use id it
// answers.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: blockToolResult, ToolUseID: toolUseID, Text: content, IsError: isError}
}

// Message is one conversation turn. Plain turns set Content; turns that
// carry tool traffic set ContentBlocks instead. Setting both is a bug.
type Message struct {
	Role          Role
	Content       string
	ContentBlocks []ContentBlock
}

// TextContent flattens the message to plain text, whichever form it is in.
func (m *Message) TextContent() string {
	if len(m.ContentBlocks) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, block := range m.ContentBlocks {
		if block.Type == blockText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// Response is the model's output for one turn.
type Response struct {
	Content       string         // flattened text, convenient for plain replies
	ContentBlocks []ContentBlock // full structured output, tool_use blocks included
	Usage         Usage
	StopReason    string // "end_turn", "tool_use", or "max_tokens"
}

// HasToolUse reports whether the model stopped to request tool execution.
func (r *Response) HasToolUse() bool {
	return r.StopReason == blockToolUse
}

// ToolUseBlocks extracts the tool requests from the response, in order.
func (r *Response) ToolUseBlocks() []ContentBlock {
	var out []ContentBlock
	for _, block := range r.ContentBlocks {
		if block.Type == blockToolUse {
			out = append(out, block)
		}
	}
	return out
}

// Usage counts tokens for one turn.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// IsAuthError reports whether a provider error looks like a credential
// problem. Backends surface these as opaque HTTP error strings, so the check
// is by substring; callers use it to show an actionable message instead of
// the raw API error.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"invalid api key", "invalid_api_key", "authentication", "unauthorized", "incorrect api key"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
