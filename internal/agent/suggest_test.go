package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nguyenhx22/chatops-ai-bot/internal/llm"
)

func TestSuggesterGenerate(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		textResponse("What tools are available?\nRestart billing-svc at wdc01\n- Check health of billing-svc\n\n3. Stop billing-svc"),
	}}
	s := NewSuggester(provider, testLogger())

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "restart billing-svc"},
		{Role: llm.RoleAssistant, Content: "Done."},
	}
	got := s.Generate(context.Background(), "tool docs here", history, 5)

	want := []string{
		"What tools are available?",
		"Restart billing-svc at wdc01",
		"Check health of billing-svc",
		"Stop billing-svc",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d suggestions: %v", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("suggestion[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Prompt should carry the tool docs and only the recent history window.
	sent := provider.requests[0].Messages[0].Content
	if !strings.Contains(sent, "tool docs here") {
		t.Error("prompt missing tools section")
	}
	if !strings.Contains(sent, "User: restart billing-svc") {
		t.Error("prompt missing history snippet")
	}
}

func TestSuggesterHistoryWindow(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{textResponse("a")}}
	s := NewSuggester(provider, testLogger())

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "oldest"},
		{Role: llm.RoleUser, Content: "older"},
		{Role: llm.RoleUser, Content: "recent-1"},
		{Role: llm.RoleAssistant, Content: "recent-2"},
		{Role: llm.RoleUser, Content: "recent-3"},
	}
	s.Generate(context.Background(), "none", history, 3)

	sent := provider.requests[0].Messages[0].Content
	if strings.Contains(sent, "oldest") || strings.Contains(sent, "older") {
		t.Error("prompt includes history beyond the window")
	}
	for _, frag := range []string{"recent-1", "recent-2", "recent-3"} {
		if !strings.Contains(sent, frag) {
			t.Errorf("prompt missing %s", frag)
		}
	}
}

func TestSuggesterFallbackOnProviderError(t *testing.T) {
	s := NewSuggester(&failingProvider{err: fmt.Errorf("boom")}, testLogger())

	got := s.Generate(context.Background(), "none", nil, 5)
	if len(got) != 2 {
		t.Fatalf("got %d fallback suggestions: %v", len(got), got)
	}
	if !strings.Contains(got[0], "what you can do") {
		t.Errorf("fallback[0] = %q", got[0])
	}
}

func TestParseSuggestionsCapsAtN(t *testing.T) {
	got := parseSuggestions("a\nb\nc\nd", 2)
	if len(got) != 2 {
		t.Errorf("got %v, want 2 entries", got)
	}
}
