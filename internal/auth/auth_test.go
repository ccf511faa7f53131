package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler) (*SSOClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewSSOClient("tenant-1", "client-1", "secret-1", "https://bot.example.com/callback", testLogger(),
		WithEndpoints(server.URL+"/authorize", server.URL+"/token", server.URL+"/me"))
	return client, server
}

func TestLoginURL(t *testing.T) {
	c := NewSSOClient("tenant-1", "client-1", "secret-1", "https://bot.example.com/callback", testLogger())

	u, err := url.Parse(c.LoginURL())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(u.Path, "tenant-1") {
		t.Errorf("login URL missing tenant: %s", u)
	}
	q := u.Query()
	for key, want := range map[string]string{
		"client_id":     "client-1",
		"response_type": "code",
		"redirect_uri":  "https://bot.example.com/callback",
		"response_mode": "query",
		"scope":         "User.Read",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestExchangeCode(t *testing.T) {
	var form url.Values
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		form = r.PostForm
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"expires_in":    1800,
		})
	}))

	token, err := c.ExchangeCode(context.Background(), "code-1")
	if err != nil {
		t.Fatal(err)
	}
	if token.AccessToken != "at-1" || token.RefreshToken != "rt-1" {
		t.Errorf("token = %+v", token)
	}
	if token.Expired(time.Now()) {
		t.Error("fresh token reported expired")
	}

	for key, want := range map[string]string{
		"grant_type":    "authorization_code",
		"code":          "code-1",
		"redirect_uri":  "https://bot.example.com/callback",
		"client_id":     "client-1",
		"client_secret": "secret-1",
	} {
		if got := form.Get(key); got != want {
			t.Errorf("form %s = %q, want %q", key, got, want)
		}
	}
}

func TestRefresh(t *testing.T) {
	var form url.Values
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		form = r.PostForm
		json.NewEncoder(w).Encode(map[string]any{"access_token": "at-2", "refresh_token": "rt-2"})
	}))

	token, err := c.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatal(err)
	}
	if token.AccessToken != "at-2" {
		t.Errorf("token = %+v", token)
	}
	if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "rt-1" {
		t.Errorf("form = %v", form)
	}
	// The endpoint omitted expires_in; the client falls back to one hour.
	if token.Expiry.Before(time.Now().Add(55 * time.Minute)) {
		t.Errorf("default expiry too short: %v", token.Expiry)
	}
}

func TestExchangeCodeRejected(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"invalid_grant"}`)
	}))

	if _, err := c.ExchangeCode(context.Background(), "stale-code"); err == nil {
		t.Fatal("expected error")
	} else if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("error = %v", err)
	}
}

func TestExchangeCodeEmptyInputs(t *testing.T) {
	c := NewSSOClient("t", "c", "s", "r", testLogger())
	if _, err := c.ExchangeCode(context.Background(), ""); err == nil {
		t.Error("expected error for empty code")
	}
	if _, err := c.Refresh(context.Background(), ""); err == nil {
		t.Error("expected error for empty refresh token")
	}
}

func TestProfile(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer at-1" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"displayName":       "Nguyen, Alice",
			"userPrincipalName": "ANguyen@Example.COM",
		})
	}))

	id, err := c.Profile(context.Background(), "at-1")
	if err != nil {
		t.Fatal(err)
	}
	if id.UserID != "anguyen" {
		t.Errorf("UserID = %q", id.UserID)
	}
	if id.DisplayName != "Alice Nguyen" {
		t.Errorf("DisplayName = %q", id.DisplayName)
	}
	if id.Principal != "ANguyen@Example.COM" {
		t.Errorf("Principal = %q", id.Principal)
	}
}

func TestLoginRoundTrip(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			json.NewEncoder(w).Encode(map[string]any{"access_token": "at-1", "refresh_token": "rt-1", "expires_in": 3600})
		case "/me":
			json.NewEncoder(w).Encode(map[string]any{"displayName": "Bob Ops", "userPrincipalName": "bob@example.com"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	id, token, err := c.Login(context.Background(), "code-1")
	if err != nil {
		t.Fatal(err)
	}
	if id.UserID != "bob" || id.DisplayName != "Bob Ops" {
		t.Errorf("identity = %+v", id)
	}
	if token.AccessToken != "at-1" {
		t.Errorf("token = %+v", token)
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	if (Token{}).Expired(now) != true {
		t.Error("zero token should be expired")
	}
	if (Token{Expiry: now.Add(time.Minute)}).Expired(now) {
		t.Error("future expiry reported expired")
	}
	if !(Token{Expiry: now.Add(-time.Second)}).Expired(now) {
		t.Error("past expiry not reported expired")
	}
}

func TestCanonicalUserID(t *testing.T) {
	cases := map[string]string{
		"ANguyen@example.com": "anguyen",
		"bob@corp.example":    "bob",
		"plainuser":           "plainuser",
	}
	for in, want := range cases {
		if got := CanonicalUserID(in); got != want {
			t.Errorf("CanonicalUserID(%q) = %q, want %q", in, got, want)
		}
	}
}
