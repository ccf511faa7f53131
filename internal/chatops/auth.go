package chatops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// tokenQuery carries the non-standard parameters the token service requires
// on the query string. x/oauth2 cannot express these, hence the hand-rolled
// client-credentials exchange.
const tokenQuery = "algorithm=RS256_2048&blind=false&compress=false&idjwt=false"

// TokenProvider yields a bearer token for the chatops-service.
type TokenProvider interface {
	// AccessToken fetches a token. Called once per outbound operation;
	// tokens are short-lived and deliberately not cached across calls.
	AccessToken(ctx context.Context) (string, error)
}

// AuthService fetches OAuth2 access tokens using the client-credentials grant.
type AuthService struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	httpClient   *http.Client
	logger       *slog.Logger
}

// AuthOption configures the AuthService.
type AuthOption func(*AuthService)

// WithAuthHTTPClient sets a custom HTTP client for token requests.
func WithAuthHTTPClient(hc *http.Client) AuthOption {
	return func(a *AuthService) { a.httpClient = hc }
}

// NewAuthService creates a client-credentials token provider.
func NewAuthService(tokenURL, clientID, clientSecret, scope string, logger *slog.Logger, opts ...AuthOption) *AuthService {
	a := &AuthService{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AccessToken performs the client-credentials exchange and returns the token.
func (a *AuthService) AccessToken(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":     {a.clientID},
		"client_secret": {a.clientSecret},
		"scope":         {a.scope},
		"grant_type":    {"client_credentials"},
	}

	endpoint := a.tokenURL
	if strings.Contains(endpoint, "?") {
		endpoint += "&" + tokenQuery
	} else {
		endpoint += "?" + tokenQuery
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		a.logger.ErrorContext(ctx, "token endpoint returned non-200",
			slog.Int("status", resp.StatusCode),
		)
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	return tok.AccessToken, nil
}
