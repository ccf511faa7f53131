package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type scriptedProvider struct {
	name   string
	resp   *Response
	err    error
	called int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) SendMessage(_ context.Context, _ *Request) (*Response, error) {
	p.called++
	return p.resp, p.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFallbackPrimaryAnswers(t *testing.T) {
	primary := &scriptedProvider{name: "openai", resp: &Response{Content: "ok"}}
	backup := &scriptedProvider{name: "groq", resp: &Response{Content: "never"}}

	f := NewFallbackProvider([]Provider{primary, backup}, discard())
	resp, err := f.SendMessage(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q, want ok", resp.Content)
	}
	if backup.called != 0 {
		t.Errorf("backup called %d times, want 0", backup.called)
	}
}

func TestFallbackUsesNextProvider(t *testing.T) {
	primary := &scriptedProvider{name: "openai", err: errors.New("rate limited")}
	backup := &scriptedProvider{name: "groq", resp: &Response{Content: "from groq"}}

	f := NewFallbackProvider([]Provider{primary, backup}, discard())
	resp, err := f.SendMessage(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Content != "from groq" {
		t.Errorf("content = %q, want from groq", resp.Content)
	}
	if primary.called != 1 || backup.called != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.called, backup.called)
	}
}

func TestFallbackAllFail(t *testing.T) {
	primary := &scriptedProvider{name: "openai", err: errors.New("down")}
	backup := &scriptedProvider{name: "groq", err: errors.New("also down")}

	f := NewFallbackProvider([]Provider{primary, backup}, discard())
	_, err := f.SendMessage(context.Background(), &Request{})
	if err == nil {
		t.Fatal("expected error when every provider fails")
	}
	for _, want := range []string{"openai: down", "groq: also down"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestFallbackStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &scriptedProvider{name: "openai", err: errors.New("interrupted")}
	backup := &scriptedProvider{name: "groq", resp: &Response{Content: "late"}}

	cancel()
	f := NewFallbackProvider([]Provider{primary, backup}, discard())
	if _, err := f.SendMessage(ctx, &Request{}); err == nil {
		t.Fatal("expected error")
	}
	if backup.called != 0 {
		t.Errorf("backup called %d times after cancel, want 0", backup.called)
	}
}

func TestFallbackName(t *testing.T) {
	f := NewFallbackProvider([]Provider{
		&scriptedProvider{name: "openai"},
		&scriptedProvider{name: "groq"},
	}, discard())
	if got := f.Name(); got != "openai>groq" {
		t.Errorf("Name() = %q, want openai>groq", got)
	}
}
