// Package common holds tools shared across assistant contexts.
package common

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nguyenhx22/chatops-ai-bot/internal/security"
	"github.com/nguyenhx22/chatops-ai-bot/internal/tools"
)

// HumanInputSentinel prefixes a tool output that requires the run to pause
// and wait for the user. The text after the sentinel is the question to ask.
const HumanInputSentinel = "HUMAN_INPUT_REQUIRED::"

// HumanInputQuestion extracts the question from a sentinel-carrying output.
// Returns ("", false) when the output is not a human-input request.
func HumanInputQuestion(output string) (string, bool) {
	if !strings.HasPrefix(output, HumanInputSentinel) {
		return "", false
	}
	return strings.TrimPrefix(output, HumanInputSentinel), true
}

// AskHumanTool lets the model pause the run and put a question to the user.
// The session controller detects the sentinel in the output and surfaces the
// question instead of continuing the agent loop.
type AskHumanTool struct {
	logger *slog.Logger
}

// NewAskHumanTool creates the human-input tool.
func NewAskHumanTool(logger *slog.Logger) *AskHumanTool {
	return &AskHumanTool{logger: logger}
}

func (t *AskHumanTool) Name() string { return "ask_human" }
func (t *AskHumanTool) Description() string {
	return "Use this tool to ask the human user a specific question when you need " +
		"clarification, confirmation, or subjective input before proceeding."
}
func (t *AskHumanTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{
				"type":        "string",
				"description": "The specific question to ask the human user for clarification, confirmation, or subjective input.",
			},
		},
		"required": []string{"question"},
	}
}
func (t *AskHumanTool) RequiredAction() security.Action {
	return security.Action{Name: "ask_human", RiskLevel: security.RiskLow}
}

func (t *AskHumanTool) Validate(params map[string]any) error {
	if q, _ := params["question"].(string); q == "" {
		return fmt.Errorf("question is required")
	}
	return nil
}

func (t *AskHumanTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	question, _ := params["question"].(string)

	t.logger.InfoContext(ctx, "ask_human tool invoked", slog.String("question", question))

	return &tools.Result{
		Output:  HumanInputSentinel + question,
		Success: true,
	}, nil
}
