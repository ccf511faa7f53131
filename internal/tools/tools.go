// Package tools defines the tool interface and registry for the chatops
// assistant. Each tool declares its required security action so the agent
// can distinguish read-only lookups from mutating platform operations
// before execution.
package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/nguyenhx22/chatops-ai-bot/internal/llm"
	"github.com/nguyenhx22/chatops-ai-bot/internal/security"
)

// Tool is the interface all assistant tools must implement.
type Tool interface {
	// Name returns the tool's unique identifier (e.g. "restart_application").
	Name() string

	// Description returns the tool description sent to the model. For
	// mutating tools this is also where the confirm-before-acting policy
	// is stated, since the model only sees tools through their catalog.
	Description() string

	// InputSchema returns a JSON Schema object describing the tool's parameters.
	// This is sent to the LLM as the tool's input_schema for function calling.
	InputSchema() map[string]any

	// RequiredAction returns the security action this tool performs.
	// The agent uses this for audit tagging and risk-aware logging.
	RequiredAction() security.Action

	// Validate checks that params are well-formed before execution so
	// malformed model output fails fast with a targeted message.
	Validate(params map[string]any) error

	// Execute runs the tool with the given parameters.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result is what a tool hands back to the agent loop.
type Result struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MaxOutputBytes caps tool output fed back into the conversation. Remote
// health payloads can be large; the model never needs more than this.
const MaxOutputBytes = 1 << 20 // 1 MB

type userIDKey struct{}

// ContextWithUserID stamps the signed-in user onto the context so tools
// can pass it through the entitlement check.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext extracts the user ID from context, or "" if not set.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey{}).(string)
	return v
}

// TruncateOutput caps a string at maxBytes, marking the cut. Caps too
// small to fit the marker hard-truncate instead.
func TruncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	const marker = "\n... [output truncated]"
	if cut := maxBytes - len(marker); cut > 0 {
		return s[:cut] + marker
	}
	return s[:maxBytes]
}

// Registry holds one context's tools keyed by name. Populated during
// wiring, read-only afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry with no tools.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. A duplicate name is a wiring bug, so it panics.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		panic("duplicate tool registration: " + t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns the named tool, nil when unknown.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns the registered tool names, sorted for stable logs.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered tool in name order.
func (r *Registry) All() []Tool {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Tool, len(names))
	for i, name := range names {
		result[i] = r.tools[name]
	}
	return result
}

// ToLLMDefinitions renders the registry as the tool catalog sent with
// every LLM request.
func ToLLMDefinitions(reg *Registry) []llm.ToolDefinition {
	var defs []llm.ToolDefinition
	for _, t := range reg.All() {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}
