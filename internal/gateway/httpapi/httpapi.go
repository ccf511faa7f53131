// Package httpapi implements the HTTP gateway for the chatops bot.
//
// Security:
//   - Azure AD sign-in; the gateway issues opaque bearer tokens
//   - Request body size limits (default 1 MB)
//   - Per-user rate limiting via token bucket
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"

	"github.com/nguyenhx22/chatops-ai-bot/internal/auth"
	"github.com/nguyenhx22/chatops-ai-bot/internal/entitlement"
	"github.com/nguyenhx22/chatops-ai-bot/internal/observability"
	"github.com/nguyenhx22/chatops-ai-bot/internal/ratelimit"
	"github.com/nguyenhx22/chatops-ai-bot/internal/session"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// tokenPruneInterval is how often expired, unrefreshable sign-ins are
// swept from the token store.
const tokenPruneInterval = 10 * time.Minute

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP gateway.
type Config struct {
	ListenAddr     string            // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key to user id mapping, for deployments without SSO.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP gateway.
type Gateway struct {
	config   Config
	sessions *session.Controller
	sso      *auth.SSOClient
	store    entitlement.Store
	limiter  *ratelimit.Limiter
	tokens   *tokenStore
	logger   *slog.Logger
	server   *http.Server
	okapi    *okapi.Okapi
	group    *okapi.Group
}

// NewGateway creates an HTTP gateway.
func NewGateway(cfg Config, sessions *session.Controller, sso *auth.SSOClient, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:   cfg,
		sessions: sessions,
		sso:      sso,
		limiter:  rl,
		tokens:   newTokenStore(),
		logger:   logger,
		okapi:    okapi.New(okapi.WithMaxMultipartMemory(cfg.maxRequestSize())),
	}
}

func (c Config) maxRequestSize() int64 {
	if c.MaxRequestSize > 0 {
		return c.MaxRequestSize
	}
	return defaultMaxRequestSize
}

// WithEntitlements attaches the entitlement store backing /v1/applications.
func (g *Gateway) WithEntitlements(store entitlement.Store) *Gateway {
	g.store = store
	return g
}

// WithOpenAPIDocs enables the generated API documentation.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "ChatOps Bot",
			Version: "v0.1.0",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Cap request bodies before any handler reads them. Bind fails on an
	// oversized body, so the handler answers with a 4xx instead of
	// buffering an unbounded payload.
	limit := g.config.maxRequestSize()
	g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	})

	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	// Sign-in endpoints (unauthenticated). Mounted only when SSO is
	// configured; API-key deployments have no interactive sign-in.
	if g.sso != nil {
		g.okapi.Get("/auth/login", g.handleLoginURL,
			okapi.DocSummary("Get the Microsoft login redirect URL"),
			okapi.DocTags("Auth"),
			okapi.DocResponse(LoginURLResponse{}),
		)
		g.okapi.Get("/auth/callback", g.handleCallback,
			okapi.DocSummary("Complete the Azure AD sign-in"),
			okapi.DocTags("Auth"),
			okapi.DocResponse(SignInResponse{}),
			okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
			okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		)
	}

	// Authenticated /v1 group.
	g.group = g.okapi.Group("/v1", g.authenticate)

	g.group.Post("/chat", g.handleChat,
		okapi.DocSummary("Send a chat message to the active assistant"),
		okapi.DocTags("Chat"),
		okapi.DocRequestBody(ChatRequest{}),
		okapi.DocResponse(ChatResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Get("/suggestions", g.handleSuggestions,
		okapi.DocSummary("Generate follow-up prompt suggestions"),
		okapi.DocTags("Chat"),
		okapi.DocResponse(SuggestionsResponse{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Post("/context", g.handleSwitchContext,
		okapi.DocSummary("Switch the active assistant context"),
		okapi.DocTags("Session"),
		okapi.DocRequestBody(ContextRequest{}),
		okapi.DocResponse(SessionResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Post("/settings", g.handleSettings,
		okapi.DocSummary("Update model or temperature for the session"),
		okapi.DocTags("Session"),
		okapi.DocRequestBody(SettingsRequest{}),
		okapi.DocResponse(SessionResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Get("/session", g.handleSession,
		okapi.DocSummary("Get the current session state"),
		okapi.DocTags("Session"),
		okapi.DocResponse(SessionResponse{}),
	)
	g.group.Get("/applications", g.handleApplications,
		okapi.DocSummary("List applications and deployments visible to the caller"),
		okapi.DocTags("Entitlements"),
		okapi.DocResponse(ApplicationsResponse{}),
	)
	g.group.Post("/logout", g.handleLogout,
		okapi.DocSummary("End the session and revoke the gateway token"),
		okapi.DocTags("Auth"),
		okapi.DocResponse(map[string]string{}),
	)

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go g.pruneTokens(ctx)

	g.logger.Info("http gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// pruneTokens periodically drops sign-ins whose Azure tokens expired
// without a refresh token, and ends the matching sessions.
func (g *Gateway) pruneTokens(ctx context.Context) {
	ticker := time.NewTicker(tokenPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, userID := range g.tokens.PruneExpired() {
				g.sessions.EndSession(userID)
				g.logger.Info("expired sign-in pruned", slog.String("user_id", userID))
			}
		}
	}
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(_ context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Sign-in handlers ---

// LoginURLResponse carries the Microsoft login redirect.
type LoginURLResponse struct {
	LoginURL string `json:"login_url"`
}

func (g *Gateway) handleLoginURL(c *okapi.Context) error {
	return c.OK(LoginURLResponse{LoginURL: g.sso.LoginURL()})
}

// SignInResponse is returned after a completed sign-in.
type SignInResponse struct {
	Token       string `json:"token"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

func (g *Gateway) handleCallback(c *okapi.Context) error {
	code := c.Request().URL.Query().Get("code")
	if code == "" {
		return c.AbortBadRequest("code is required")
	}

	id, token, err := g.sso.Login(c.Context(), code)
	if err != nil {
		g.logger.Error("sign-in failed", slog.String("error", err.Error()))
		return c.AbortUnauthorized("sign-in failed")
	}

	g.sessions.StartSession(id.UserID, id.DisplayName)
	bearer := g.tokens.Issue(id, token)

	g.logger.Info("user signed in", slog.String("user_id", id.UserID))
	return c.OK(SignInResponse{
		Token:       bearer,
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
	})
}

// --- Chat handlers ---

// ChatRequest is the JSON body for POST /v1/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the JSON response for POST /v1/chat.
type ChatResponse struct {
	Reply         string `json:"reply"`
	AwaitingInput bool   `json:"awaiting_input"`
	CorrelationID string `json:"correlation_id"`
}

func (g *Gateway) handleChat(c *okapi.Context) error {
	userID := c.GetString("userID")

	if g.limiter != nil {
		if err := g.limiter.Allow(userID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("message is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.AbortBadRequest("message is required")
	}

	correlationID := newCorrelationID()
	g.logger.Info("chat turn",
		slog.String("user_id", userID),
		slog.String("correlation_id", correlationID),
	)

	reply, err := g.sessions.HandleMessage(c.Context(), userID, req.Message)
	if err != nil {
		g.logger.Error("chat turn failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("processing failed")
	}

	awaiting := false
	if s, err := g.sessions.Get(userID); err == nil {
		_, awaiting = s.AwaitingInput()
	}

	return c.OK(ChatResponse{
		Reply:         reply,
		AwaitingInput: awaiting,
		CorrelationID: correlationID,
	})
}

// SuggestionsResponse is the JSON response for GET /v1/suggestions.
type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

func (g *Gateway) handleSuggestions(c *okapi.Context) error {
	userID := c.GetString("userID")

	if g.limiter != nil {
		if err := g.limiter.Allow(userID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	n := 0
	if raw := c.Request().URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 10 {
			return c.AbortBadRequest("n must be between 1 and 10")
		}
		n = parsed
	}

	suggestions, err := g.sessions.Suggestions(c.Context(), userID, n)
	if err != nil {
		return sessionError(c, err)
	}
	return c.OK(SuggestionsResponse{Suggestions: suggestions})
}

// --- Session handlers ---

// ContextRequest selects the assistant context: CF, IRA, or DIRECT.
type ContextRequest struct {
	Context string `json:"context"`
}

// SettingsRequest updates model and/or temperature. Omitted fields are
// left unchanged.
type SettingsRequest struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// SessionResponse describes the session state.
type SessionResponse struct {
	UserID        string  `json:"user_id"`
	DisplayName   string  `json:"display_name"`
	Context       string  `json:"context"`
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature"`
	AwaitingInput bool    `json:"awaiting_input"`
}

func (g *Gateway) handleSwitchContext(c *okapi.Context) error {
	userID := c.GetString("userID")

	var req ContextRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("context is required")
	}
	target, err := session.ParseContext(req.Context)
	if err != nil {
		return c.AbortBadRequest(err.Error())
	}

	if err := g.sessions.SwitchContext(userID, target); err != nil {
		return sessionError(c, err)
	}
	return g.sessionState(c, userID)
}

func (g *Gateway) handleSettings(c *okapi.Context) error {
	userID := c.GetString("userID")

	var req SettingsRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Model == "" && req.Temperature == nil {
		return c.AbortBadRequest("model or temperature is required")
	}

	if req.Model != "" {
		if err := g.sessions.SetModel(userID, req.Model); err != nil {
			return sessionError(c, err)
		}
	}
	if req.Temperature != nil {
		if err := g.sessions.SetTemperature(userID, *req.Temperature); err != nil {
			return sessionError(c, err)
		}
	}
	return g.sessionState(c, userID)
}

func (g *Gateway) handleSession(c *okapi.Context) error {
	return g.sessionState(c, c.GetString("userID"))
}

func (g *Gateway) sessionState(c *okapi.Context, userID string) error {
	s, err := g.sessions.Get(userID)
	if err != nil {
		return sessionError(c, err)
	}
	_, awaiting := s.AwaitingInput()
	return c.OK(SessionResponse{
		UserID:        s.UserID,
		DisplayName:   s.DisplayName,
		Context:       string(s.ActiveContext),
		Model:         s.Model,
		Temperature:   s.Temperature,
		AwaitingInput: awaiting,
	})
}

// --- Entitlement handlers ---

// ApplicationsResponse lists either the caller's per-group application
// bindings or, when ?application= is given, the resolved deployments.
type ApplicationsResponse struct {
	Groups      []entitlement.GroupApplications `json:"groups,omitempty"`
	Deployments []entitlement.AppDeployment     `json:"deployments,omitempty"`
}

func (g *Gateway) handleApplications(c *okapi.Context) error {
	userID := c.GetString("userID")
	if g.store == nil {
		return c.AbortServiceUnavailable("entitlement store not configured")
	}

	if app := c.Request().URL.Query().Get("application"); app != "" {
		deps, err := g.store.AppDeployments(c.Context(), userID, app)
		if err != nil {
			g.logger.Error("deployment lookup failed", slog.String("error", err.Error()))
			return c.AbortInternalServerError("lookup failed")
		}
		return c.OK(ApplicationsResponse{Deployments: deps})
	}

	groups, err := g.store.ApplicationsByGroup(c.Context(), userID)
	if err != nil {
		g.logger.Error("application lookup failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("lookup failed")
	}
	return c.OK(ApplicationsResponse{Groups: groups})
}

func (g *Gateway) handleLogout(c *okapi.Context) error {
	userID := c.GetString("userID")
	g.tokens.Revoke(c.GetString("bearer"))
	g.sessions.EndSession(userID)
	g.logger.Info("user signed out", slog.String("user_id", userID))
	return c.OK(map[string]string{"status": "signed_out"})
}

// --- Health handlers ---

// HealthResponse is the JSON response for the probes.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate resolves the bearer token to a signed-in user, refreshing
// the backing Azure token when it has expired.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		bearer := strings.TrimPrefix(authHeader, "Bearer ")

		entry, ok := g.tokens.Lookup(bearer)
		if !ok {
			// Fall back to static API keys for deployments without SSO.
			if userID := g.apiKeyUser(bearer); userID != "" {
				if _, err := g.sessions.Get(userID); err != nil {
					g.sessions.StartSession(userID, userID)
				}
				c.Set("userID", userID)
				c.Set("bearer", bearer)
				return next(c)
			}
			return c.AbortUnauthorized("invalid or expired token")
		}

		if entry.token.Expired(time.Now()) {
			refreshed, err := g.sso.Refresh(c.Context(), entry.token.RefreshToken)
			if err != nil {
				g.tokens.Revoke(bearer)
				g.sessions.EndSession(entry.identity.UserID)
				g.logger.Warn("token refresh failed, session ended",
					slog.String("user_id", entry.identity.UserID))
				return c.AbortUnauthorized("session expired")
			}
			g.tokens.Update(bearer, refreshed)
		}

		c.Set("userID", entry.identity.UserID)
		c.Set("bearer", bearer)
		return next(c)
	}
}

// apiKeyUser maps a static API key to its user id, constant-time.
func (g *Gateway) apiKeyUser(key string) string {
	userID := ""
	for candidate, mapped := range g.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(candidate)) == 1 {
			userID = mapped
		}
	}
	return userID
}

// --- Helpers ---

// sessionError maps controller errors to HTTP responses. A missing
// session means the token outlived the server's session state (restart),
// so the client must sign in again.
func sessionError(c *okapi.Context, err error) error {
	if errors.Is(err, session.ErrNoSession) {
		return c.AbortUnauthorized("no active session, sign in again")
	}
	return c.AbortBadRequest(err.Error())
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
