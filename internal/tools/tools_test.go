package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/nguyenhx22/chatops-ai-bot/internal/security"
)

type fakeTool struct {
	name string
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool " + f.name }
func (f *fakeTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (f *fakeTool) RequiredAction() security.Action {
	return security.Action{Name: f.name, RiskLevel: security.RiskLow}
}
func (f *fakeTool) Validate(map[string]any) error { return nil }
func (f *fakeTool) Execute(context.Context, map[string]any) (*Result, error) {
	return &Result{Output: "ok", Success: true}, nil
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "zeta"})
	reg.Register(&fakeTool{name: "alpha"})
	reg.Register(&fakeTool{name: "mid"})

	names := reg.List()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("List() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	all := reg.All()
	for i, tool := range all {
		if tool.Name() != want[i] {
			t.Errorf("All()[%d] = %q, want %q", i, tool.Name(), want[i])
		}
	}
}

func TestRegistryGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "alpha"})

	if reg.Get("alpha") == nil {
		t.Error("registered tool not found")
	}
	if reg.Get("missing") != nil {
		t.Error("unknown name should return nil")
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "alpha"})

	defer func() {
		if recover() == nil {
			t.Error("duplicate registration should panic")
		}
	}()
	reg.Register(&fakeTool{name: "alpha"})
}

func TestTruncateOutput(t *testing.T) {
	short := "hello"
	if got := TruncateOutput(short, 100); got != short {
		t.Errorf("short output altered: %q", got)
	}

	long := strings.Repeat("x", 200)
	got := TruncateOutput(long, 100)
	if len(got) > 100 {
		t.Errorf("output not truncated, len=%d", len(got))
	}
	if !strings.Contains(got, "truncated") {
		t.Errorf("truncation marker missing: %q", got)
	}

	// A cap smaller than the marker hard-cuts instead.
	if got := TruncateOutput(long, 5); got != "xxxxx" {
		t.Errorf("tiny cap = %q", got)
	}
}

func TestToLLMDefinitions(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "beta"})
	reg.Register(&fakeTool{name: "alpha"})

	defs := ToLLMDefinitions(reg)
	if len(defs) != 2 {
		t.Fatalf("definitions = %d, want 2", len(defs))
	}
	if defs[0].Name != "alpha" || defs[1].Name != "beta" {
		t.Errorf("definitions out of order: %q, %q", defs[0].Name, defs[1].Name)
	}
	if defs[0].Description == "" || defs[0].InputSchema == nil {
		t.Errorf("definition incomplete: %+v", defs[0])
	}
}

func TestUserIDContext(t *testing.T) {
	ctx := context.Background()
	if got := UserIDFromContext(ctx); got != "" {
		t.Errorf("empty context yielded %q", got)
	}
	ctx = ContextWithUserID(ctx, "anguyen")
	if got := UserIDFromContext(ctx); got != "anguyen" {
		t.Errorf("UserIDFromContext = %q", got)
	}
}
