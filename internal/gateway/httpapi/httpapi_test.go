package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nguyenhx22/chatops-ai-bot/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startGateway runs a gateway on a loopback port and returns its base URL.
func startGateway(t *testing.T, cfg Config) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	lis.Close()

	cfg.ListenAddr = addr
	sessions := session.NewController(nil, nil, testLogger())
	g := NewGateway(cfg, sessions, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = g.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = g.Stop(context.Background())
	})

	base := "http://" + addr
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			resp.Body.Close()
			return base
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("gateway did not become ready")
	return ""
}

func TestChatRejectsOversizedBody(t *testing.T) {
	base := startGateway(t, Config{
		APIKeys:        map[string]string{"test-key": "tester"},
		MaxRequestSize: 512,
	})

	body := fmt.Sprintf(`{"message": %q}`, strings.Repeat("x", 2048))
	req, err := http.NewRequest(http.MethodPost, base+"/v1/chat", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer test-key")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 || resp.StatusCode >= 500 {
		t.Errorf("status = %d, want 4xx for a body over the configured limit", resp.StatusCode)
	}
}

func TestRequestsUnderBodyLimitServed(t *testing.T) {
	base := startGateway(t, Config{
		APIKeys:        map[string]string{"test-key": "tester"},
		MaxRequestSize: 512,
	})

	req, err := http.NewRequest(http.MethodGet, base+"/v1/session", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer test-key")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestMaxRequestSizeDefault(t *testing.T) {
	if got := (Config{}).maxRequestSize(); got != defaultMaxRequestSize {
		t.Errorf("maxRequestSize() = %d, want %d", got, defaultMaxRequestSize)
	}
	if got := (Config{MaxRequestSize: 512}).maxRequestSize(); got != 512 {
		t.Errorf("maxRequestSize() = %d, want 512", got)
	}
}
