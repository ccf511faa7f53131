package chatops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// staticTokens is a TokenProvider returning a fixed token or error.
type staticTokens struct {
	token string
	err   error
	calls int
}

func (s *staticTokens) AccessToken(_ context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func TestAccessTokenExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		q := r.URL.Query()
		if q.Get("algorithm") != "RS256_2048" {
			t.Errorf("algorithm = %q, want RS256_2048", q.Get("algorithm"))
		}
		if q.Get("idjwt") != "false" {
			t.Errorf("idjwt = %q, want false", q.Get("idjwt"))
		}
		body, _ := io.ReadAll(r.Body)
		form := string(body)
		for _, want := range []string{"grant_type=client_credentials", "client_id=bot-client", "scope=chatops"} {
			if !strings.Contains(form, want) {
				t.Errorf("form body missing %q: %s", want, form)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-123", "expires_in": 900})
	}))
	defer srv.Close()

	auth := NewAuthService(srv.URL, "bot-client", "secret", "chatops", testLogger())
	token, err := auth.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q, want tok-123", token)
	}
}

func TestAccessTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	auth := NewAuthService(srv.URL, "bot-client", "bad", "chatops", testLogger())
	_, err := auth.AccessToken(context.Background())
	if err == nil {
		t.Fatal("expected error for 401")
	}
	if !strings.Contains(err.Error(), "status 401") {
		t.Errorf("error = %v, want status 401 mention", err)
	}
}

func TestAccessTokenMissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	auth := NewAuthService(srv.URL, "bot-client", "secret", "chatops", testLogger())
	if _, err := auth.AccessToken(context.Background()); err == nil {
		t.Fatal("expected error for response without access_token")
	}
}

func TestRestartApplicationSendsWirePayload(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "restarted", "app": "billing-svc"})
	}))
	defer srv.Close()

	tokens := &staticTokens{token: "tok-abc"}
	client := NewClient(srv.URL, tokens, testLogger())

	result := client.RestartApplication(context.Background(), Request{
		AppName: "billing-svc",
		Site:    "wdc01",
		Org:     "payments-org",
		Space:   "prod",
	})

	if result.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want success (%s)", result.Outcome, result.Message)
	}
	if gotPath != "/cloudfoundry/restart-application" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("authorization = %q, want Bearer tok-abc", gotAuth)
	}
	want := map[string]string{
		"cf_app_name": "billing-svc",
		"cf_site":     "wdc01",
		"cf_org":      "payments-org",
		"cf_space":    "prod",
	}
	for k, v := range want {
		if gotBody[k] != v {
			t.Errorf("body[%s] = %q, want %q", k, gotBody[k], v)
		}
	}
	if result.Payload["status"] != "restarted" {
		t.Errorf("payload.status = %v, want restarted", result.Payload["status"])
	}
	if tokens.calls != 1 {
		t.Errorf("token fetched %d times, want 1", tokens.calls)
	}
}

func TestTokenFailureSkipsActionCall(t *testing.T) {
	var actionCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		actionCalls++
	}))
	defer srv.Close()

	tokens := &staticTokens{err: errors.New("token endpoint down")}
	client := NewClient(srv.URL, tokens, testLogger())

	result := client.StopApplication(context.Background(), Request{AppName: "billing-svc"})
	if result.Outcome != OutcomeTransportError {
		t.Fatalf("outcome = %s, want transport_error", result.Outcome)
	}
	if actionCalls != 0 {
		t.Errorf("action endpoint called %d times, want 0", actionCalls)
	}
	if !strings.Contains(result.Render(), "failed to retrieve access token") {
		t.Errorf("rendered = %q", result.Render())
	}
}

func TestFireAndForgetReturnsPendingImmediately(t *testing.T) {
	received := make(chan Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body wirePayload
		_ = json.NewDecoder(r.Body).Decode(&body)
		received <- Request(body)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "started"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, &staticTokens{token: "tok"}, testLogger())

	// Cancel the caller's context before the call: the dispatched request
	// must not inherit it.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := client.StartApplication(ctx, Request{
		AppName: "billing-svc",
		Site:    "wdc01",
		Org:     "payments-org",
		Space:   "prod",
	}, FireAndForget())

	if result.Outcome != OutcomePending {
		t.Fatalf("outcome = %s, want pending", result.Outcome)
	}
	if result.Err() {
		t.Error("Err() = true for a pending result")
	}

	select {
	case req := <-received:
		if req.AppName != "billing-svc" || req.Site != "wdc01" {
			t.Errorf("request = %+v", req)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("background request never reached the service")
	}
}

func TestServiceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "application not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, &staticTokens{token: "tok"}, testLogger())
	result := client.CheckApplicationHealth(context.Background(), Request{AppName: "ghost-app"})

	if result.Outcome != OutcomeTransportError {
		t.Fatalf("outcome = %s, want transport_error", result.Outcome)
	}
	if result.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", result.StatusCode)
	}
	if !strings.Contains(result.Render(), "status 404") {
		t.Errorf("rendered = %q", result.Render())
	}
}

func TestNonJSONSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>gateway timeout</html>"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, &staticTokens{token: "tok"}, testLogger())
	result := client.StartApplication(context.Background(), Request{AppName: "billing-svc"})

	if result.Outcome != OutcomeDecodeError {
		t.Fatalf("outcome = %s, want decode_error", result.Outcome)
	}
	if !result.Err() {
		t.Error("Err() = false, want true")
	}
}

func TestRenderSuccessIsIndentedJSON(t *testing.T) {
	r := successResult(map[string]any{"status": "started"})
	rendered := r.Render()
	if !strings.Contains(rendered, "\"status\": \"started\"") {
		t.Errorf("rendered = %q, want indented JSON", rendered)
	}
}

func TestOutcomeStrings(t *testing.T) {
	cases := map[Outcome]string{
		OutcomeSuccess:        "success",
		OutcomeTransportError: "transport_error",
		OutcomeDecodeError:    "decode_error",
		OutcomePending:        "pending",
	}
	for outcome, want := range cases {
		if got := outcome.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", outcome, got, want)
		}
	}
}
