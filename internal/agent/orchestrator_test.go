package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/nguyenhx22/chatops-ai-bot/internal/llm"
	"github.com/nguyenhx22/chatops-ai-bot/internal/security"
	"github.com/nguyenhx22/chatops-ai-bot/internal/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedProvider returns canned responses in order, then repeats the last.
type scriptedProvider struct {
	responses []*llm.Response
	calls     int
	requests  []*llm.Request
}

func (p *scriptedProvider) SendMessage(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.requests = append(p.requests, req)
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	return p.responses[idx], nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

type failingProvider struct{ err error }

func (p *failingProvider) SendMessage(context.Context, *llm.Request) (*llm.Response, error) {
	return nil, p.err
}
func (p *failingProvider) Name() string { return "failing" }

// echoTool records invocations and returns a fixed output.
type echoTool struct {
	name   string
	output string
	calls  int
	lastID string
}

func (t *echoTool) Name() string                { return t.name }
func (t *echoTool) Description() string         { return "test tool" }
func (t *echoTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }
func (t *echoTool) RequiredAction() security.Action {
	return security.Action{Name: t.name, RiskLevel: security.RiskLow}
}
func (t *echoTool) Validate(params map[string]any) error {
	if _, bad := params["invalid"]; bad {
		return fmt.Errorf("invalid parameter")
	}
	return nil
}
func (t *echoTool) Execute(ctx context.Context, _ map[string]any) (*tools.Result, error) {
	t.calls++
	t.lastID = tools.UserIDFromContext(ctx)
	return &tools.Result{Output: t.output, Success: true}, nil
}

func toolUseResponse(id, name string, input map[string]any) *llm.Response {
	return &llm.Response{
		ContentBlocks: []llm.ContentBlock{llm.ToolUseBlock(id, name, input)},
		StopReason:    "tool_use",
	}
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		Content:       text,
		ContentBlocks: []llm.ContentBlock{llm.TextBlock(text)},
		StopReason:    "end_turn",
		Usage:         llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func TestProcessPlainText(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{textResponse("All good.")}}
	o := NewOrchestrator(provider, "system", testLogger())

	resp, err := o.Process(context.Background(), &Input{UserID: "alice", Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message != "All good." {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.TokensUsed != 15 {
		t.Errorf("tokens = %d, want 15", resp.TokensUsed)
	}
}

func TestProcessToolLoop(t *testing.T) {
	tool := &echoTool{name: "get_application_information", output: "Context Retrieved: {...}"}
	reg := tools.NewRegistry()
	reg.Register(tool)

	provider := &scriptedProvider{responses: []*llm.Response{
		toolUseResponse("call_1", "get_application_information", map[string]any{"application": "billing-svc"}),
		textResponse("billing-svc runs in wdc01."),
	}}

	o := NewOrchestrator(provider, "system", testLogger()).WithTools(reg)

	resp, err := o.Process(context.Background(), &Input{UserID: "alice", Message: "where does billing-svc run?"})
	if err != nil {
		t.Fatal(err)
	}
	if tool.calls != 1 {
		t.Fatalf("tool executed %d times, want 1", tool.calls)
	}
	if tool.lastID != "alice" {
		t.Errorf("tool saw user %q, want alice", tool.lastID)
	}
	if resp.Message != "billing-svc runs in wdc01." {
		t.Errorf("message = %q", resp.Message)
	}
	if len(resp.ToolResults) != 1 || resp.ToolResults[0].ToolName != "get_application_information" {
		t.Errorf("tool results = %+v", resp.ToolResults)
	}

	// The second request must carry the tool_result back to the model.
	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != llm.RoleUser || len(last.ContentBlocks) != 1 || last.ContentBlocks[0].Type != "tool_result" {
		t.Errorf("tool result not fed back: %+v", last)
	}
	if last.ContentBlocks[0].ToolUseID != "call_1" {
		t.Errorf("tool_use_id = %q", last.ContentBlocks[0].ToolUseID)
	}
}

func TestProcessMaxIterations(t *testing.T) {
	tool := &echoTool{name: "get_application_information", output: "more context"}
	reg := tools.NewRegistry()
	reg.Register(tool)

	// Provider always requests another tool call.
	provider := &scriptedProvider{responses: []*llm.Response{
		toolUseResponse("call_x", "get_application_information", map[string]any{"application": "a"}),
	}}

	o := NewOrchestrator(provider, "system", testLogger()).WithTools(reg)

	resp, err := o.Process(context.Background(), &Input{UserID: "alice", Message: "loop"})
	if err != nil {
		t.Fatal(err)
	}
	if provider.calls != DefaultMaxIterations {
		t.Errorf("provider called %d times, want %d", provider.calls, DefaultMaxIterations)
	}
	if !strings.Contains(resp.Message, "Maximum tool use iterations reached") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestProcessHumanInputPausesLoop(t *testing.T) {
	tool := &echoTool{name: "ask_human", output: "HUMAN_INPUT_REQUIRED::Are you sure you want to restart billing-svc?"}
	reg := tools.NewRegistry()
	reg.Register(tool)

	provider := &scriptedProvider{responses: []*llm.Response{
		toolUseResponse("call_1", "ask_human", map[string]any{"question": "Are you sure?"}),
		textResponse("should never be reached"),
	}}

	o := NewOrchestrator(provider, "system", testLogger()).WithTools(reg)

	resp, err := o.Process(context.Background(), &Input{UserID: "alice", Message: "restart billing-svc"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.AwaitingHumanInput {
		t.Fatal("expected AwaitingHumanInput")
	}
	if resp.Message != "Are you sure you want to restart billing-svc?" {
		t.Errorf("question = %q", resp.Message)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times after pause, want 1", provider.calls)
	}
}

func TestMutationWaitsForConfirmation(t *testing.T) {
	info := &echoTool{name: "get_application_information", output: "Context Retrieved: billing-svc in wdc01/payments-org/prod"}
	confirm := &echoTool{name: "ask_human", output: "HUMAN_INPUT_REQUIRED::Restart billing-svc in wdc01?"}
	restart := &echoTool{name: "restart_application", output: `{"status": "restarted"}`}
	reg := tools.NewRegistry()
	reg.Register(info)
	reg.Register(confirm)
	reg.Register(restart)

	provider := &scriptedProvider{responses: []*llm.Response{
		toolUseResponse("call_1", "get_application_information", map[string]any{"application": "billing-svc"}),
		toolUseResponse("call_2", "ask_human", map[string]any{"question": "Restart billing-svc in wdc01?"}),
		toolUseResponse("call_3", "restart_application", map[string]any{"application": "billing-svc"}),
		textResponse("billing-svc was restarted."),
	}}

	store := NewInMemoryConversationStore()
	o := NewOrchestrator(provider, "system", testLogger()).
		WithTools(reg).
		WithConversationStore(store, 0, 0)
	convID := uuid.New().String()

	// First turn: the model gathers context, then pauses on the
	// confirmation question. The mutating tool must not have run.
	resp, err := o.Process(context.Background(), &Input{
		UserID:         "alice",
		Message:        "restart billing-svc",
		ConversationID: convID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.AwaitingHumanInput {
		t.Fatal("expected the first turn to pause for confirmation")
	}
	if resp.Message != "Restart billing-svc in wdc01?" {
		t.Errorf("question = %q", resp.Message)
	}
	if info.calls != 1 {
		t.Errorf("info tool executed %d times before pause, want 1", info.calls)
	}
	if restart.calls != 0 {
		t.Fatalf("mutating tool executed %d times before confirmation, want 0", restart.calls)
	}

	// Second turn: the user confirms and the restart goes through.
	resp, err = o.Process(context.Background(), &Input{
		UserID:         "alice",
		Message:        "yes",
		ConversationID: convID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.AwaitingHumanInput {
		t.Error("still awaiting input after confirmation")
	}
	if restart.calls != 1 {
		t.Errorf("mutating tool executed %d times after confirmation, want 1", restart.calls)
	}
	if resp.Message != "billing-svc was restarted." {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestProcessToolValidationErrorFedBack(t *testing.T) {
	tool := &echoTool{name: "get_application_information", output: "unused"}
	reg := tools.NewRegistry()
	reg.Register(tool)

	provider := &scriptedProvider{responses: []*llm.Response{
		toolUseResponse("call_1", "get_application_information", map[string]any{"invalid": true}),
		textResponse("I could not complete that."),
	}}

	o := NewOrchestrator(provider, "system", testLogger()).WithTools(reg)

	resp, err := o.Process(context.Background(), &Input{UserID: "alice", Message: "do it"})
	if err != nil {
		t.Fatal(err)
	}
	if tool.calls != 0 {
		t.Errorf("tool executed %d times on invalid params, want 0", tool.calls)
	}
	if len(resp.ToolResults) != 1 || resp.ToolResults[0].Success {
		t.Errorf("tool results = %+v, want one failure", resp.ToolResults)
	}

	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if len(last.ContentBlocks) != 1 || !last.ContentBlocks[0].IsError {
		t.Errorf("validation error not fed back as error block: %+v", last)
	}
}

func TestProcessProviderError(t *testing.T) {
	o := NewOrchestrator(&failingProvider{err: fmt.Errorf("API error (status 401): invalid api key")}, "system", testLogger())

	_, err := o.Process(context.Background(), &Input{UserID: "alice", Message: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !llm.IsAuthError(err) {
		t.Errorf("IsAuthError(%v) = false, want true", err)
	}
}

func TestProcessPersistsHistory(t *testing.T) {
	store := NewInMemoryConversationStore()
	provider := &scriptedProvider{responses: []*llm.Response{textResponse("noted")}}
	o := NewOrchestrator(provider, "system", testLogger()).WithConversationStore(store, 0, 0)

	convID := uuid.New()
	_, err := o.Process(context.Background(), &Input{
		UserID:         "alice",
		Message:        "remember this",
		ConversationID: convID.String(),
	})
	if err != nil {
		t.Fatal(err)
	}

	hist, err := store.LoadHistory(context.Background(), convID, 10)
	if err != nil {
		t.Fatal(err)
	}
	// user message + assistant response.
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].Role != llm.RoleUser || hist[0].Content != "remember this" {
		t.Errorf("first message = %+v", hist[0])
	}
	if hist[1].Role != llm.RoleAssistant {
		t.Errorf("second message role = %q", hist[1].Role)
	}
}

func TestTruncateHistoryStartsWithUser(t *testing.T) {
	o := NewOrchestrator(&scriptedProvider{responses: []*llm.Response{textResponse("x")}}, "", testLogger())
	o.maxHistoryMessages = 3

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "1"},
		{Role: llm.RoleAssistant, Content: "2"},
		{Role: llm.RoleUser, Content: "3"},
		{Role: llm.RoleAssistant, Content: "4"},
		{Role: llm.RoleUser, Content: "5"},
	}
	truncated := o.truncateHistory(history)
	if len(truncated) == 0 || truncated[0].Role != llm.RoleUser {
		t.Errorf("truncated history starts with %+v", truncated[0])
	}
}

func TestConversationStoreOwnership(t *testing.T) {
	store := NewInMemoryConversationStore()
	convID := uuid.New()

	if _, err := store.GetOrCreateConversation(context.Background(), "alice", convID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetOrCreateConversation(context.Background(), "mallory", convID); err == nil {
		t.Error("expected cross-user access to be rejected")
	}
}
