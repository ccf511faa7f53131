// Package auth implements Azure AD sign-in for the chat surfaces: the
// authorization-code flow against login.microsoftonline.com and the
// profile lookup against Microsoft Graph. The gateway drives the flow;
// this package only speaks the wire protocol.
package auth

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

const (
	defaultScope   = "User.Read"
	graphProfile   = "https://graph.microsoft.com/v1.0/me"
	defaultTimeout = 30 * time.Second
)

// Identity is the resolved result of a completed sign-in.
type Identity struct {
	// UserID is the canonical id used everywhere downstream: the local
	// part of the principal name, lower-cased.
	UserID      string
	DisplayName string
	Principal   string
}

// Token holds the Azure AD token pair with its absolute expiry.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Expired reports whether the access token is past its expiry. A zero
// expiry counts as expired, matching the cold-session case.
func (t Token) Expired(now time.Time) bool {
	return t.Expiry.IsZero() || !now.Before(t.Expiry)
}

// SSOClient performs the Azure AD authorization-code flow.
type SSOClient struct {
	tenantID     string
	clientID     string
	clientSecret string
	redirectURI  string
	scope        string

	authURL    string
	tokenURL   string
	profileURL string

	httpClient *http.Client
	logger     *slog.Logger
}

// SSOOption configures the SSOClient.
type SSOOption func(*SSOClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) SSOOption {
	return func(c *SSOClient) { c.httpClient = hc }
}

// WithScope overrides the requested scope (default User.Read).
func WithScope(scope string) SSOOption {
	return func(c *SSOClient) {
		if scope != "" {
			c.scope = scope
		}
	}
}

// WithEndpoints overrides the Azure and Graph endpoints. Used by tests
// and by deployments fronted by a corporate proxy.
func WithEndpoints(authURL, tokenURL, profileURL string) SSOOption {
	return func(c *SSOClient) {
		c.authURL = authURL
		c.tokenURL = tokenURL
		c.profileURL = profileURL
	}
}

// NewSSOClient creates an Azure AD client for the given tenant and
// application registration.
func NewSSOClient(tenantID, clientID, clientSecret, redirectURI string, logger *slog.Logger, opts ...SSOOption) *SSOClient {
	c := &SSOClient{
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		scope:        defaultScope,
		authURL:      fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/authorize", tenantID),
		tokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		profileURL:   graphProfile,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return c
}

// LoginURL builds the Microsoft login redirect for the browser.
func (c *SSOClient) LoginURL() string {
	params := url.Values{
		"client_id":     {c.clientID},
		"response_type": {"code"},
		"redirect_uri":  {c.redirectURI},
		"response_mode": {"query"},
		"scope":         {c.scope},
	}
	return c.authURL + "?" + params.Encode()
}

// tokenResponse is the Azure token endpoint's success body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// ExchangeCode redeems an authorization code for a token pair.
func (c *SSOClient) ExchangeCode(ctx context.Context, code string) (Token, error) {
	if code == "" {
		return Token{}, fmt.Errorf("authorization code is empty")
	}
	return c.fetchToken(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.redirectURI},
	})
}

// Refresh exchanges a refresh token for a new token pair.
func (c *SSOClient) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, fmt.Errorf("refresh token is empty")
	}
	return c.fetchToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (c *SSOClient) fetchToken(ctx context.Context, form url.Values) (Token, error) {
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.ErrorContext(ctx, "Azure token request rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("grant_type", form.Get("grant_type")))
		return Token{}, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return Token{}, fmt.Errorf("token response contained no access token")
	}

	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	c.logger.InfoContext(ctx, "Azure access token retrieved",
		slog.String("grant_type", form.Get("grant_type")),
		slog.Int("expires_in", expiresIn))

	return Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Expiry:       time.Now().UTC().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

// graphProfileResponse is the subset of the Graph /me body we consume.
type graphProfileResponse struct {
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Profile fetches the signed-in user's identity from Microsoft Graph.
func (c *SSOClient) Profile(ctx context.Context, accessToken string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Identity{}, fmt.Errorf("failed to read profile response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.ErrorContext(ctx, "Graph profile request rejected",
			slog.Int("status", resp.StatusCode))
		return Identity{}, fmt.Errorf("profile endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var pr graphProfileResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return Identity{}, fmt.Errorf("failed to decode profile response: %w", err)
	}
	if pr.UserPrincipalName == "" {
		return Identity{}, fmt.Errorf("profile response contained no principal name")
	}

	id := Identity{
		UserID:      CanonicalUserID(pr.UserPrincipalName),
		DisplayName: normalizeDisplayName(pr.DisplayName),
		Principal:   pr.UserPrincipalName,
	}
	c.logger.InfoContext(ctx, "user profile loaded", slog.String("user_id", id.UserID))
	return id, nil
}

// Login completes a sign-in from a redirect callback: it redeems the
// authorization code and resolves the user's identity in one step.
func (c *SSOClient) Login(ctx context.Context, code string) (Identity, Token, error) {
	token, err := c.ExchangeCode(ctx, code)
	if err != nil {
		return Identity{}, Token{}, err
	}
	id, err := c.Profile(ctx, token.AccessToken)
	if err != nil {
		return Identity{}, Token{}, err
	}
	return id, token, nil
}

// CanonicalUserID derives the downstream user id from a principal name:
// everything before the '@', lower-cased.
func CanonicalUserID(principal string) string {
	local, _, _ := strings.Cut(principal, "@")
	return strings.ToLower(local)
}

// normalizeDisplayName converts directory-style "Last, First" names to
// "First Last" and leaves anything else untouched.
func normalizeDisplayName(name string) string {
	last, first, found := strings.Cut(name, ", ")
	if !found || last == "" || first == "" {
		return name
	}
	return first + " " + last
}
