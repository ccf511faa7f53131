package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nguyenhx22/chatops-ai-bot/internal/agent"
	"github.com/nguyenhx22/chatops-ai-bot/internal/entitlement"
	"github.com/nguyenhx22/chatops-ai-bot/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubAgent struct {
	resp  *agent.Response
	err   error
	calls int
	last  *agent.Input
}

func (a *stubAgent) Process(_ context.Context, input *agent.Input) (*agent.Response, error) {
	a.calls++
	a.last = input
	return a.resp, a.err
}

func (a *stubAgent) ExecuteTool(context.Context, *agent.ToolRequest) (*agent.ToolResponse, error) {
	return nil, fmt.Errorf("not implemented")
}

type stubProvider struct {
	resp *llm.Response
	err  error
	last *llm.Request
}

func (p *stubProvider) SendMessage(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.last = req
	return p.resp, p.err
}
func (p *stubProvider) Name() string { return "stub" }

type stubStore struct {
	sites []entitlement.GroupSites
	apps  []entitlement.GroupApplications
	tasks []string
}

func (s *stubStore) IsAuthorized(context.Context, string, string, string) bool { return false }
func (s *stubStore) UserGroups(context.Context, string) ([]string, error)      { return nil, nil }
func (s *stubStore) AppDeployments(context.Context, string, string) ([]entitlement.AppDeployment, error) {
	return nil, nil
}
func (s *stubStore) SitesByGroup(context.Context, string) ([]entitlement.GroupSites, error) {
	return s.sites, nil
}
func (s *stubStore) ApplicationsByGroup(context.Context, string) ([]entitlement.GroupApplications, error) {
	return s.apps, nil
}
func (s *stubStore) EnabledTasks(context.Context, string) ([]string, error) { return s.tasks, nil }

func newTestController(cf agent.Agent, direct llm.Provider) *Controller {
	store := &stubStore{
		sites: []entitlement.GroupSites{{GroupName: "payments", Sites: []string{"wdc01"}}},
		apps:  []entitlement.GroupApplications{{GroupName: "payments", Applications: []string{"billing-svc"}}},
		tasks: []string{"RESTART APPLICATION"},
	}
	c := NewController(store, direct, testLogger()).WithDefaultModel("gpt-4o")
	if cf != nil {
		c.WithAgent(ContextCloudFoundry, cf)
	}
	return c
}

func TestStartSessionDefaults(t *testing.T) {
	c := newTestController(nil, &stubProvider{})
	s := c.StartSession("alice", "Alice Nguyen")

	if s.ActiveContext != ContextCloudFoundry {
		t.Errorf("default context = %s", s.ActiveContext)
	}
	if s.Temperature != DefaultTemperature {
		t.Errorf("default temperature = %v", s.Temperature)
	}
	if s.Model != "gpt-4o" {
		t.Errorf("default model = %q", s.Model)
	}
}

func TestHandleMessageRoutesToAgentWithKnowledge(t *testing.T) {
	cf := &stubAgent{resp: &agent.Response{Message: "billing-svc restarted."}}
	c := newTestController(cf, &stubProvider{})
	c.StartSession("alice", "Alice")

	reply, err := c.HandleMessage(context.Background(), "alice", "restart billing-svc")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "billing-svc restarted." {
		t.Errorf("reply = %q", reply)
	}
	if cf.calls != 1 {
		t.Fatalf("agent called %d times", cf.calls)
	}
	if cf.last.UserID != "alice" {
		t.Errorf("agent saw user %q", cf.last.UserID)
	}
	for _, frag := range []string{"billing-svc", "wdc01", "payments", "RESTART APPLICATION"} {
		if !strings.Contains(cf.last.ContextData, frag) {
			t.Errorf("context data missing %s", frag)
		}
	}
	if cf.last.Temperature == nil || *cf.last.Temperature != DefaultTemperature {
		t.Errorf("temperature not forwarded: %v", cf.last.Temperature)
	}

	s, _ := c.Get("alice")
	transcript := s.Transcript()
	if len(transcript) != 2 {
		t.Fatalf("transcript length = %d", len(transcript))
	}
	if transcript[0].Content != "restart billing-svc" || transcript[1].Content != "billing-svc restarted." {
		t.Errorf("transcript = %+v", transcript)
	}
}

func TestHandleMessageHumanInputPending(t *testing.T) {
	cf := &stubAgent{resp: &agent.Response{
		Message:            "Are you sure you want to restart billing-svc?",
		AwaitingHumanInput: true,
	}}
	c := newTestController(cf, &stubProvider{})
	c.StartSession("alice", "Alice")

	reply, err := c.HandleMessage(context.Background(), "alice", "restart billing-svc")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(reply, "Are you sure") {
		t.Errorf("reply = %q", reply)
	}

	s, _ := c.Get("alice")
	if q, pending := s.AwaitingInput(); !pending || q != reply {
		t.Errorf("pending = %v %q", pending, q)
	}

	// The next message answers the question and clears the pending state.
	cf.resp = &agent.Response{Message: "Restarted."}
	if _, err := c.HandleMessage(context.Background(), "alice", "yes"); err != nil {
		t.Fatal(err)
	}
	if _, pending := mustGet(t, c, "alice").AwaitingInput(); pending {
		t.Error("pending question not cleared")
	}
}

func TestHandleMessageAuthErrorMapped(t *testing.T) {
	cf := &stubAgent{err: fmt.Errorf("llm request failed: API error (status 401): invalid api key")}
	c := newTestController(cf, &stubProvider{})
	c.StartSession("alice", "Alice")

	reply, err := c.HandleMessage(context.Background(), "alice", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(reply, "Invalid API key.") {
		t.Errorf("reply = %q", reply)
	}
}

func TestDirectContext(t *testing.T) {
	direct := &stubProvider{resp: &llm.Response{Content: "Direct answer."}}
	c := newTestController(nil, direct)
	c.StartSession("alice", "Alice")
	if err := c.SwitchContext("alice", ContextDirect); err != nil {
		t.Fatal(err)
	}

	reply, err := c.HandleMessage(context.Background(), "alice", "what is cloud foundry?")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Direct answer." {
		t.Errorf("reply = %q", reply)
	}
	if direct.last.SystemPrompt != directSystemPrompt {
		t.Errorf("system prompt = %q", direct.last.SystemPrompt)
	}
	if direct.last.Tools != nil {
		t.Error("direct chat must not carry tools")
	}
}

func TestDirectContextEmptyResponse(t *testing.T) {
	direct := &stubProvider{resp: &llm.Response{Content: ""}}
	c := newTestController(nil, direct)
	c.StartSession("alice", "Alice")
	_ = c.SwitchContext("alice", ContextDirect)

	reply, _ := c.HandleMessage(context.Background(), "alice", "hi")
	if !strings.Contains(reply, "empty response") {
		t.Errorf("reply = %q", reply)
	}
}

func TestContextSwitchKeepsTranscriptsSeparate(t *testing.T) {
	cf := &stubAgent{resp: &agent.Response{Message: "cf reply"}}
	direct := &stubProvider{resp: &llm.Response{Content: "direct reply"}}
	c := newTestController(cf, direct)
	c.StartSession("alice", "Alice")

	if _, err := c.HandleMessage(context.Background(), "alice", "cf question"); err != nil {
		t.Fatal(err)
	}
	_ = c.SwitchContext("alice", ContextDirect)
	if _, err := c.HandleMessage(context.Background(), "alice", "direct question"); err != nil {
		t.Fatal(err)
	}

	s := mustGet(t, c, "alice")
	if got := len(s.Transcript()); got != 2 {
		t.Errorf("direct transcript length = %d", got)
	}
	_ = c.SwitchContext("alice", ContextCloudFoundry)
	s = mustGet(t, c, "alice")
	if got := s.Transcript(); len(got) != 2 || got[0].Content != "cf question" {
		t.Errorf("cf transcript = %+v", got)
	}
}

func TestNoSessionIsAnError(t *testing.T) {
	c := newTestController(nil, &stubProvider{})
	if _, err := c.HandleMessage(context.Background(), "ghost", "hi"); err == nil {
		t.Error("expected error for missing session")
	}
	if _, err := c.Get("ghost"); err == nil {
		t.Error("expected error for missing session")
	}
}

func TestEndSession(t *testing.T) {
	c := newTestController(nil, &stubProvider{})
	c.StartSession("alice", "Alice")
	c.EndSession("alice")
	if _, err := c.Get("alice"); err == nil {
		t.Error("session survived logout")
	}
}

func TestSetTemperatureValidation(t *testing.T) {
	c := newTestController(nil, &stubProvider{})
	c.StartSession("alice", "Alice")

	if err := c.SetTemperature("alice", 3.5); err == nil {
		t.Error("expected out-of-range error")
	}
	if err := c.SetTemperature("alice", 0.2); err != nil {
		t.Fatal(err)
	}
	if s := mustGet(t, c, "alice"); s.Temperature != 0.2 {
		t.Errorf("temperature = %v", s.Temperature)
	}
}

func TestParseContext(t *testing.T) {
	for _, valid := range []string{"CF", "IRA", "DIRECT"} {
		if _, err := ParseContext(valid); err != nil {
			t.Errorf("ParseContext(%q) failed: %v", valid, err)
		}
	}
	if _, err := ParseContext("K8S"); err == nil {
		t.Error("expected error for unknown context")
	}
}

func mustGet(t *testing.T, c *Controller, userID string) *Session {
	t.Helper()
	s, err := c.Get(userID)
	if err != nil {
		t.Fatal(err)
	}
	return s
}
