// Package chatops implements the authenticated HTTP client for the remote
// chatops-service, which performs the actual Cloud Foundry actions.
//
// Every call acquires a fresh access token: latency is traded for the
// simplicity of never handling a stale token mid-call. No retries are
// performed; the conversation layer decides whether to re-issue a request.
package chatops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Action endpoint paths on the chatops-service.
const (
	pathRestart     = "/cloudfoundry/restart-application"
	pathStart       = "/cloudfoundry/start-application"
	pathStop        = "/cloudfoundry/stop-application"
	pathCheckHealth = "/cloudfoundry/check-application-health"
)

const defaultTimeout = 300 * time.Second

// Request identifies the application instance an operation targets.
// Constructed fresh per call, never mutated.
type Request struct {
	AppName string
	Site    string
	Org     string
	Space   string
}

// wirePayload is the exact JSON body the chatops-service expects.
type wirePayload struct {
	AppName string `json:"cf_app_name"`
	Site    string `json:"cf_site"`
	Org     string `json:"cf_org"`
	Space   string `json:"cf_space"`
}

// Client calls the chatops-service action endpoints.
type Client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout overrides the per-call timeout (default 300s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a chatops-service client.
func NewClient(baseURL string, tokens TokenProvider, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		tokens:  tokens,
		timeout: defaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// CallOption adjusts a single operation call.
type CallOption func(*callSettings)

type callSettings struct {
	fireAndForget bool
}

// FireAndForget dispatches the call on a background goroutine and returns
// an immediate Pending result. The eventual outcome is logged, not
// returned. Unused by the default action handlers; preserved for API
// compatibility with callers that cannot wait out the full timeout.
func FireAndForget() CallOption {
	return func(s *callSettings) { s.fireAndForget = true }
}

// RestartApplication restarts the application instance.
func (c *Client) RestartApplication(ctx context.Context, req Request, opts ...CallOption) Result {
	return c.call(ctx, "restart", pathRestart, req, opts...)
}

// StartApplication starts the application instance.
func (c *Client) StartApplication(ctx context.Context, req Request, opts ...CallOption) Result {
	return c.call(ctx, "start", pathStart, req, opts...)
}

// StopApplication stops the application instance.
func (c *Client) StopApplication(ctx context.Context, req Request, opts ...CallOption) Result {
	return c.call(ctx, "stop", pathStop, req, opts...)
}

// CheckApplicationHealth checks the application instance's health.
func (c *Client) CheckApplicationHealth(ctx context.Context, req Request, opts ...CallOption) Result {
	return c.call(ctx, "check_health", pathCheckHealth, req, opts...)
}

func (c *Client) call(ctx context.Context, action, path string, req Request, opts ...CallOption) Result {
	var settings callSettings
	for _, opt := range opts {
		opt(&settings)
	}

	if settings.fireAndForget {
		// Detach from the caller's context: the caller returns immediately
		// and must not cancel the in-flight operation.
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			result := c.send(bg, action, path, req)
			c.logger.Info("background chatops call completed",
				slog.String("action", action),
				slog.String("application", req.AppName),
				slog.String("outcome", result.Outcome.String()),
			)
		}()
		return pendingResult()
	}

	return c.send(ctx, action, path, req)
}

// send performs one authenticated POST: token, request, decode.
func (c *Client) send(ctx context.Context, action, path string, req Request) Result {
	c.logger.InfoContext(ctx, "calling chatops-service",
		slog.String("action", action),
		slog.String("application", req.AppName),
		slog.String("site", req.Site),
	)

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to retrieve access token",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		return transportError(0, "failed to retrieve access token")
	}

	body, err := json.Marshal(wirePayload(req))
	if err != nil {
		return transportError(0, fmt.Sprintf("encoding request: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return transportError(0, fmt.Sprintf("creating request: %v", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.ErrorContext(ctx, "chatops-service call failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		return transportError(0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(0, fmt.Sprintf("reading response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.ErrorContext(ctx, "chatops-service returned error status",
			slog.String("action", action),
			slog.Int("status", resp.StatusCode),
			slog.String("response", string(respBody)),
		)
		return transportError(resp.StatusCode, string(respBody))
	}

	var payload map[string]any
	if err := json.Unmarshal(respBody, &payload); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode chatops-service response",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		return decodeError(err.Error())
	}

	c.logger.InfoContext(ctx, "chatops-service call successful",
		slog.String("action", action),
		slog.String("application", req.AppName),
		slog.Int("status", resp.StatusCode),
	)
	return successResult(payload)
}
