package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nguyenhx22/chatops-ai-bot/internal/llm"
	"github.com/nguyenhx22/chatops-ai-bot/internal/observability"
	"github.com/nguyenhx22/chatops-ai-bot/internal/security"
	"github.com/nguyenhx22/chatops-ai-bot/internal/tools"
	"github.com/nguyenhx22/chatops-ai-bot/internal/tools/common"
)

// Orchestrator is the default Agent implementation.
// It delegates to an LLM provider and drives the tool-use loop.
// Conversation history is managed per-call: loaded from a ConversationStore
// (if configured) or kept ephemeral (empty each call).
type Orchestrator struct {
	provider     llm.Provider
	systemPrompt string
	logger       *slog.Logger

	toolRegistry *tools.Registry              // nil = no tools available
	obs          *observability.Observability // nil = observability disabled
	auditor      security.Auditor             // nil = auditing disabled

	maxIterations int    // 0 = DefaultMaxIterations
	model         string // metrics label only; the provider owns the real model

	// Conversation memory (nil = ephemeral, no persistence).
	convStore          ConversationStore
	maxHistoryMessages int // 0 = DefaultMaxHistoryMessages
	maxMessageBytes    int // 0 = DefaultMaxMessageBytes
}

// NewOrchestrator creates an agent backed by the given LLM provider.
func NewOrchestrator(provider llm.Provider, systemPrompt string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		provider:     provider,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

// WithTools attaches a tool registry to the orchestrator.
func (o *Orchestrator) WithTools(registry *tools.Registry) *Orchestrator {
	o.toolRegistry = registry
	return o
}

// WithObservability attaches observability (metrics, tracing).
func (o *Orchestrator) WithObservability(obs *observability.Observability) *Orchestrator {
	o.obs = obs
	return o
}

// WithAuditor attaches an audit trail for tool executions.
func (o *Orchestrator) WithAuditor(a security.Auditor) *Orchestrator {
	o.auditor = a
	return o
}

// WithMaxIterations sets the maximum number of tool-use loop iterations.
func (o *Orchestrator) WithMaxIterations(n int) *Orchestrator {
	o.maxIterations = n
	return o
}

// WithModel sets the model name used in metrics labels.
func (o *Orchestrator) WithModel(name string) *Orchestrator {
	o.model = name
	return o
}

// WithConversationStore attaches persistent conversation memory.
func (o *Orchestrator) WithConversationStore(store ConversationStore, maxMessages, maxMsgBytes int) *Orchestrator {
	o.convStore = store
	o.maxHistoryMessages = maxMessages
	o.maxMessageBytes = maxMsgBytes
	return o
}

// Process sends the user's message to the LLM and runs an agentic loop:
// when the LLM requests tool use, the tools are executed and results fed back
// until the LLM produces a final text response, a tool asks for human input,
// or the iteration cap is hit.
func (o *Orchestrator) Process(ctx context.Context, input *Input) (*Response, error) {
	ctx, endSpan := o.startSpan(ctx, "agent.process",
		attribute.String("user_id", input.UserID),
		attribute.String("correlation_id", input.CorrelationID),
	)
	defer endSpan()

	o.logger.DebugContext(ctx, "processing input",
		slog.String("user_id", input.UserID),
		slog.String("correlation_id", input.CorrelationID),
		slog.String("conversation_id", input.ConversationID),
	)

	history, convID, persistent := o.loadConversation(ctx, input)

	// Everything appended from here on is new this call; persisted as one
	// batch at every exit point.
	historyStart := len(history)

	history = append(history, llm.Message{
		Role:    llm.RoleUser,
		Content: o.truncateContent(input.Message),
	})
	history = o.truncateHistory(history)

	var toolDefs []llm.ToolDefinition
	if o.toolRegistry != nil {
		toolDefs = tools.ToLLMDefinitions(o.toolRegistry)
	}

	maxIter := o.maxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	totalTokens := 0
	var allToolResults []ToolCallResult

	systemPrompt := o.systemPrompt
	if input.ContextData != "" {
		systemPrompt += "\n\n## Context\n" + input.ContextData
	}

	for iter := 0; iter < maxIter; iter++ {
		start := time.Now()
		llmResp, err := o.provider.SendMessage(ctx, &llm.Request{
			SystemPrompt: systemPrompt,
			Messages:     history,
			Temperature:  input.Temperature,
			Tools:        toolDefs,
		})
		if err != nil {
			o.recordLLMRequest("error", start, llm.Usage{})
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			o.persistNewMessages(ctx, persistent, convID, history[historyStart:])
			return nil, fmt.Errorf("llm request failed: %w", err)
		}
		o.recordLLMRequest("ok", start, llmResp.Usage)

		totalTokens += llmResp.Usage.InputTokens + llmResp.Usage.OutputTokens

		// The assistant turn goes into history whole, tool_use blocks
		// included, so follow-up requests replay correctly.
		history = append(history, llm.Message{
			Role:          llm.RoleAssistant,
			ContentBlocks: llmResp.ContentBlocks,
		})

		// A plain text reply ends the loop.
		if !llmResp.HasToolUse() {
			o.persistNewMessages(ctx, persistent, convID, history[historyStart:])
			return &Response{
				Message:     llmResp.Content,
				TokensUsed:  totalTokens,
				ToolResults: allToolResults,
			}, nil
		}

		o.logger.InfoContext(ctx, "executing tool calls",
			slog.Int("iteration", iter+1),
			slog.Int("tool_calls", len(llmResp.ToolUseBlocks())),
			slog.String("correlation_id", input.CorrelationID),
		)

		resultBlocks, results, question := o.executeToolCalls(ctx, input, llmResp.ToolUseBlocks())
		allToolResults = append(allToolResults, results...)

		// Tool results go back as a user message with tool_result blocks.
		history = append(history, llm.Message{
			Role:          llm.RoleUser,
			ContentBlocks: resultBlocks,
		})

		// A tool asked to pause the run and put a question to the user.
		// History stays protocol-valid (the sentinel output is recorded as
		// the tool result); the user's answer arrives as the next message.
		if question != "" {
			o.persistNewMessages(ctx, persistent, convID, history[historyStart:])
			return &Response{
				Message:            question,
				TokensUsed:         totalTokens,
				ToolResults:        allToolResults,
				AwaitingHumanInput: true,
			}, nil
		}
	}

	o.logger.WarnContext(ctx, "max tool-use iterations reached",
		slog.Int("max_iterations", maxIter),
		slog.String("correlation_id", input.CorrelationID),
	)

	o.persistNewMessages(ctx, persistent, convID, history[historyStart:])

	return &Response{
		Message:     "Maximum tool use iterations reached. Please refine your request.",
		TokensUsed:  totalTokens,
		ToolResults: allToolResults,
	}, nil
}

// startSpan opens a trace span when tracing is enabled. The returned end
// function is a no-op otherwise, so callers defer it unconditionally.
func (o *Orchestrator) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	if o.obs == nil || o.obs.Tracer == nil {
		return ctx, func() {}
	}
	ctx, span := o.obs.Tracer.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}

// loadConversation resolves the transcript for this turn. A missing or
// unparseable conversation id, or any store failure, degrades to an
// ephemeral turn rather than failing the request.
func (o *Orchestrator) loadConversation(ctx context.Context, input *Input) ([]llm.Message, uuid.UUID, bool) {
	if input.ConversationID == "" || o.convStore == nil {
		return nil, uuid.Nil, false
	}

	convID, err := uuid.Parse(input.ConversationID)
	if err != nil {
		convID = uuid.New()
	}
	convID, err = o.convStore.GetOrCreateConversation(ctx, input.UserID, convID)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to load conversation, falling back to ephemeral",
			slog.String("error", err.Error()),
		)
		return nil, uuid.Nil, false
	}

	maxHist := o.maxHistoryMessages
	if maxHist <= 0 {
		maxHist = DefaultMaxHistoryMessages
	}
	history, err := o.convStore.LoadHistory(ctx, convID, maxHist)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to load history, falling back to ephemeral",
			slog.String("error", err.Error()),
		)
		return nil, uuid.Nil, false
	}
	return history, convID, true
}

func (o *Orchestrator) recordLLMRequest(status string, start time.Time, usage llm.Usage) {
	if o.obs == nil {
		return
	}
	o.obs.Metrics.RecordLLMRequest(o.provider.Name(), o.model, status,
		time.Since(start).Seconds(), usage.InputTokens, usage.OutputTokens)
}

// persistNewMessages writes this call's new messages in one batch. A store
// failure loses the tail of the transcript but never fails the turn.
func (o *Orchestrator) persistNewMessages(ctx context.Context, persistent bool, convID uuid.UUID, msgs []llm.Message) {
	if !persistent || len(msgs) == 0 {
		return
	}
	if err := o.convStore.AppendMessages(ctx, convID, msgs); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist conversation messages",
			slog.String("conversation_id", convID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// truncateHistory drops the oldest messages past the window. The kept slice
// must open with a user turn or the chat API rejects it, so a leading
// assistant message goes too.
func (o *Orchestrator) truncateHistory(history []llm.Message) []llm.Message {
	limit := o.maxHistoryMessages
	if limit <= 0 {
		limit = DefaultMaxHistoryMessages
	}
	if len(history) <= limit {
		return history
	}
	kept := history[len(history)-limit:]
	if len(kept) > 0 && kept[0].Role == llm.RoleAssistant {
		kept = kept[1:]
	}
	return kept
}

// truncateContent caps one message's size before it enters history.
func (o *Orchestrator) truncateContent(s string) string {
	limit := o.maxMessageBytes
	if limit <= 0 {
		limit = DefaultMaxMessageBytes
	}
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n[message truncated]"
}

// executeToolCalls iterates over tool_use blocks, calls ExecuteTool for each,
// and builds tool_result content blocks. When a tool output carries the
// human-input sentinel, the question is returned and remaining blocks are
// still answered so the history stays consistent.
func (o *Orchestrator) executeToolCalls(
	ctx context.Context,
	input *Input,
	toolUseBlocks []llm.ContentBlock,
) ([]llm.ContentBlock, []ToolCallResult, string) {
	var resultBlocks []llm.ContentBlock
	var results []ToolCallResult
	var question string

	for _, block := range toolUseBlocks {
		toolResp, err := o.ExecuteTool(ctx, &ToolRequest{
			UserID:        input.UserID,
			ToolName:      block.Name,
			Parameters:    block.Input,
			CorrelationID: input.CorrelationID,
			ToolUseID:     block.ID,
		})

		if err != nil {
			// Errors are reported back to the LLM as error results.
			resultBlocks = append(resultBlocks, llm.ToolResultBlock(
				block.ID,
				fmt.Sprintf("Error: %s", err.Error()),
				true,
			))
			results = append(results, ToolCallResult{ToolName: block.Name, Success: false})
			continue
		}

		output := tools.TruncateOutput(toolResp.Output, tools.MaxOutputBytes)
		if q, ok := common.HumanInputQuestion(output); ok && question == "" {
			question = q
		}
		resultBlocks = append(resultBlocks, llm.ToolResultBlock(block.ID, output, false))
		results = append(results, ToolCallResult{
			ToolName: block.Name,
			Success:  toolResp.Success,
		})
	}

	return resultBlocks, results, question
}

// ExecuteTool validates parameters and runs the tool, recording metrics and
// an audit event for the action.
func (o *Orchestrator) ExecuteTool(ctx context.Context, req *ToolRequest) (*ToolResponse, error) {
	ctx, endSpan := o.startSpan(ctx, "agent.execute_tool",
		attribute.String("tool", req.ToolName),
		attribute.String("user_id", req.UserID),
		attribute.String("correlation_id", req.CorrelationID),
	)
	defer endSpan()

	if o.toolRegistry == nil {
		return nil, fmt.Errorf("no tool registry configured")
	}
	tool := o.toolRegistry.Get(req.ToolName)
	if tool == nil {
		return nil, fmt.Errorf("unknown tool: %s", req.ToolName)
	}

	// Validate parameters before spending anything on execution.
	if err := tool.Validate(req.Parameters); err != nil {
		return nil, fmt.Errorf("tool %s validation: %w", req.ToolName, err)
	}

	action := tool.RequiredAction()

	o.logger.InfoContext(ctx, "executing tool",
		slog.String("tool", req.ToolName),
		slog.String("user_id", req.UserID),
		slog.String("correlation_id", req.CorrelationID),
		slog.String("action", action.Name),
		slog.String("risk", action.RiskLevel.String()),
	)

	start := time.Now()
	result, err := tool.Execute(tools.ContextWithUserID(ctx, req.UserID), req.Parameters)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil || (result != nil && !result.Success) {
		status = "error"
	}
	if o.obs != nil {
		o.obs.Metrics.RecordToolExecution(req.ToolName, status, elapsed.Seconds())
	}
	o.auditToolExecution(ctx, req, action, status, err)

	if err != nil {
		return nil, fmt.Errorf("tool %s execution: %w", req.ToolName, err)
	}

	return &ToolResponse{
		Output:   result.Output,
		Success:  result.Success,
		Metadata: result.Metadata,
	}, nil
}

func (o *Orchestrator) auditToolExecution(ctx context.Context, req *ToolRequest, action security.Action, status string, err error) {
	if o.auditor == nil || !action.Mutating() {
		return
	}
	event := security.AuditEvent{
		Timestamp:     time.Now().UTC(),
		CorrelationID: req.CorrelationID,
		UserID:        req.UserID,
		Action:        action.Name,
		Result:        status,
	}
	if err != nil {
		event.Error = err.Error()
	}
	o.auditor.LogAction(ctx, event)
}

// Compile-time interface check.
var _ Agent = (*Orchestrator)(nil)
