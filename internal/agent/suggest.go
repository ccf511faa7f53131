package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nguyenhx22/chatops-ai-bot/internal/llm"
)

// DefaultSuggestionCount is how many follow-up prompts are generated per call.
const DefaultSuggestionCount = 5

// suggestionHistoryWindow is how many recent turns inform the suggestions.
const suggestionHistoryWindow = 3

// Suggester generates follow-up prompt suggestions from recent conversation
// history and the tool catalog available in the active context.
type Suggester struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewSuggester creates a prompt suggester backed by the given provider.
func NewSuggester(provider llm.Provider, logger *slog.Logger) *Suggester {
	return &Suggester{provider: provider, logger: logger}
}

const suggestPromptTemplate = `### AI Assistant Instructions:
Based on the available tools and the user's most recent conversation, suggest %d relevant prompts the user can ask next.
Only return a list of concise suggestions with no extra commentary.
Prompts should be a question or a command directed to the AI assistant.

### Available Tools:
%s

### Recent Chat History:
%s

### AI Assistant Output Format:
- If tools are available, the first suggestion should ask about the available tools.
- If tools are not available, the first suggestion should ask about what the user can do with this chatbot.
- Provide a list of short one sentence suggestions, each on a new line.
- Do not use any bullet points or numbering.`

// Generate returns up to n suggested prompts. toolsSection documents the
// tools available in the active context ("None" when tool-less).
// Failures degrade to static suggestions rather than erroring the caller.
func (s *Suggester) Generate(ctx context.Context, toolsSection string, history []llm.Message, n int) []string {
	if n <= 0 {
		n = DefaultSuggestionCount
	}

	var snippets []string
	start := len(history) - suggestionHistoryWindow
	if start < 0 {
		start = 0
	}
	for _, m := range history[start:] {
		role := "Assistant"
		if m.Role == llm.RoleUser {
			role = "User"
		}
		snippets = append(snippets, role+": "+m.TextContent())
	}

	prompt := fmt.Sprintf(suggestPromptTemplate, n, toolsSection, strings.Join(snippets, "\n"))

	resp, err := s.provider.SendMessage(ctx, &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "suggestion generation failed", slog.String("error", err.Error()))
		return []string{
			"Try asking about what you can do with this chatbot.",
			"Try asking about the available tools.",
		}
	}

	return parseSuggestions(resp.Content, n)
}

// parseSuggestions splits the raw model output into clean suggestion lines,
// stripping any bullets or numbering the model added anyway.
func parseSuggestions(raw string, n int) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.Trim(line, "-•123456789. \t")
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}
