// Package config handles loading and validating chatops-ai-bot configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for the bot.
type Config struct {
	Server        ServerConfig         `json:"server" yaml:"server"`
	Providers     ProvidersConfig      `json:"providers" yaml:"providers"`
	ChatOps       ChatOpsConfig        `json:"chatops" yaml:"chatops"`
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"` // nil = SQLite default
	SSO           *SSOConfig           `json:"sso,omitempty" yaml:"sso,omitempty"`         // nil = SSO disabled (api-key auth only)
	Agent         AgentConfig          `json:"agent" yaml:"agent"`
	Incident      IncidentConfig       `json:"incident" yaml:"incident"`
	RateLimit     RateLimitConfig      `json:"rate_limit" yaml:"rate_limit"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	MCP           *MCPConfig           `json:"mcp,omitempty" yaml:"mcp,omitempty"`                     // nil = MCP server disabled
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	ListenAddr     string            `json:"listen_addr" yaml:"listen_addr"`           // Default: ":8080"
	EnableDocs     bool              `json:"enable_docs" yaml:"enable_docs"`           // Serve OpenAPI docs.
	APIKeys        map[string]string `json:"api_keys,omitempty" yaml:"api_keys,omitempty"` // maps API key to user ID; keys usually from env
	MaxRequestSize int64             `json:"max_request_size" yaml:"max_request_size"` // Bytes. 0 = 1 MB default.
}

// Addr returns the listen address, defaulting to ":8080".
func (s *ServerConfig) Addr() string {
	if s.ListenAddr != "" {
		return s.ListenAddr
	}
	return ":8080"
}

// ProvidersConfig holds LLM provider credentials and model selection.
type ProvidersConfig struct {
	Default string          `json:"default" yaml:"default"` // "openai" or "groq". Default: first configured.
	OpenAI  *ProviderConfig `json:"openai,omitempty" yaml:"openai,omitempty"`
	Groq    *ProviderConfig `json:"groq,omitempty" yaml:"groq,omitempty"`
}

// ProviderConfig configures a single OpenAI-compatible provider.
type ProviderConfig struct {
	APIKey    string  `json:"api_key,omitempty" yaml:"api_key,omitempty"` // Usually from env.
	Model     string  `json:"model" yaml:"model"`
	BaseURL   string  `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Override API endpoint (Groq, proxies).
	MaxTokens int     `json:"max_tokens" yaml:"max_tokens"` // 0 = provider default.
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// ChatOpsConfig configures the remote chatops-service and its OAuth2 token endpoint.
type ChatOpsConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`                 // e.g. "https://chatops-service.example.net/api/v1"
	TokenURL       string `json:"token_url" yaml:"token_url"`               // OAuth2 client-credentials endpoint.
	ClientID       string `json:"client_id" yaml:"client_id"`
	ClientSecret   string `json:"client_secret,omitempty" yaml:"client_secret,omitempty"` // Usually from env.
	Scope          string `json:"scope" yaml:"scope"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"` // Default: 300.
}

// Timeout returns the remote call timeout, defaulting to 300 seconds.
func (c *ChatOpsConfig) Timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return 300 * time.Second
}

// StorageConfig configures the persistence backend for entitlements and conversations.
// When nil, defaults to SQLite at the data directory.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"` // "sqlite" (default) or "postgres".
	DataDir  string                 `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// SSOConfig configures the Azure AD authorization-code flow for user sign-in.
type SSOConfig struct {
	TenantID     string `json:"tenant_id" yaml:"tenant_id"`
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret,omitempty" yaml:"client_secret,omitempty"` // Usually from env.
	RedirectURI  string `json:"redirect_uri" yaml:"redirect_uri"`
	Scope        string `json:"scope" yaml:"scope"` // Default: "User.Read".
}

// SSOScope returns the requested scope, defaulting to "User.Read".
func (s *SSOConfig) SSOScope() string {
	if s.Scope != "" {
		return s.Scope
	}
	return "User.Read"
}

// AgentConfig tunes the conversational agent runtime.
type AgentConfig struct {
	MaxIterations      int `json:"max_iterations" yaml:"max_iterations"`             // Tool-use loop cap. Default: 5.
	MaxHistoryMessages int `json:"max_history_messages" yaml:"max_history_messages"` // Default: 100.
	SuggestionCount    int `json:"suggestion_count" yaml:"suggestion_count"`         // Default: 5.
}

// Iterations returns the tool-use loop cap, defaulting to 5.
func (a *AgentConfig) Iterations() int {
	if a.MaxIterations > 0 {
		return a.MaxIterations
	}
	return 5
}

// MaxHistory returns the per-conversation message cap, defaulting to 100.
func (a *AgentConfig) MaxHistory() int {
	if a.MaxHistoryMessages > 0 {
		return a.MaxHistoryMessages
	}
	return 100
}

// Suggestions returns how many prompt suggestions to generate, defaulting to 5.
func (a *AgentConfig) Suggestions() int {
	if a.SuggestionCount > 0 {
		return a.SuggestionCount
	}
	return 5
}

// IncidentConfig configures the incident-history (IRA) data source.
type IncidentConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"` // Directory holding platform/incident/investigation files. Default: "data".
}

// Dir returns the incident data directory, defaulting to "data".
func (i *IncidentConfig) Dir() string {
	if i.DataDir != "" {
		return i.DataDir
	}
	return "data"
}

// RateLimitConfig configures per-user request throttling on the gateway.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"` // 0 = unlimited.
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// ObservabilityConfig enables metrics and tracing.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig enables the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics".
}

// TracingConfig enables OpenTelemetry trace export.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"` // OTLP endpoint, e.g. "localhost:4317".
	Protocol    string  `json:"protocol" yaml:"protocol"` // "grpc" (default) or "http".
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "chatops-ai-bot".
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0 = always sample.
	Insecure    bool    `json:"insecure" yaml:"insecure"`
}

// MCPConfig enables exposing the tool catalog over the Model Context Protocol.
type MCPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	UserID  string `json:"user_id" yaml:"user_id"` // Identity attributed to MCP tool calls.
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/chatops.json" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".chatops-bot", "config.json")
}

// Load reads, parses, and validates the config file at path.
// Environment variables override file values for secrets.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets environment variables take precedence over file
// values. Secrets are expected to arrive this way in deployed environments.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if c.Providers.OpenAI == nil {
			c.Providers.OpenAI = &ProviderConfig{}
		}
		c.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		if c.Providers.Groq == nil {
			c.Providers.Groq = &ProviderConfig{}
		}
		c.Providers.Groq.APIKey = v
	}
	if v := os.Getenv("CHATOPS_CLIENT_SECRET"); v != "" {
		c.ChatOps.ClientSecret = v
	}
	if v := os.Getenv("CHATOPS_DB_DSN"); v != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{Driver: "postgres"}
		}
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("AZURE_CLIENT_SECRET"); v != "" {
		if c.SSO != nil {
			c.SSO.ClientSecret = v
		}
	}
	if v := os.Getenv("CHATOPS_DATA_DIR"); v != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{}
		}
		c.Storage.DataDir = v
	}
}

// validate enforces startup-time configuration errors: a bot without a
// reachable provider or chatops-service cannot serve a single turn, so
// these fail immediately instead of per-call.
func (c *Config) validate() error {
	if c.Providers.OpenAI == nil && c.Providers.Groq == nil {
		return fmt.Errorf("no LLM provider configured: set providers.openai or providers.groq")
	}
	if p := c.Providers.OpenAI; p != nil && p.Model == "" {
		return fmt.Errorf("providers.openai.model is required")
	}
	if p := c.Providers.Groq; p != nil && p.Model == "" {
		return fmt.Errorf("providers.groq.model is required")
	}
	switch c.Providers.Default {
	case "", "openai", "groq":
	default:
		return fmt.Errorf("providers.default must be \"openai\" or \"groq\", got %q", c.Providers.Default)
	}
	if c.Providers.Default == "openai" && c.Providers.OpenAI == nil {
		return fmt.Errorf("providers.default is \"openai\" but providers.openai is not configured")
	}
	if c.Providers.Default == "groq" && c.Providers.Groq == nil {
		return fmt.Errorf("providers.default is \"groq\" but providers.groq is not configured")
	}

	if c.ChatOps.BaseURL == "" {
		return fmt.Errorf("chatops.base_url is required")
	}
	if c.ChatOps.TokenURL == "" {
		return fmt.Errorf("chatops.token_url is required")
	}
	if c.ChatOps.ClientID == "" || c.ChatOps.ClientSecret == "" {
		return fmt.Errorf("chatops.client_id and chatops.client_secret are required")
	}

	if s := c.Storage; s != nil && s.StorageDriver() == "postgres" {
		if s.Postgres == nil || s.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required when storage.driver is \"postgres\"")
		}
	}

	if c.SSO != nil {
		if c.SSO.TenantID == "" || c.SSO.ClientID == "" || c.SSO.ClientSecret == "" {
			return fmt.Errorf("sso requires tenant_id, client_id, and client_secret")
		}
		if c.SSO.RedirectURI == "" {
			return fmt.Errorf("sso.redirect_uri is required")
		}
	}

	return nil
}

// DefaultProvider returns the name of the provider to use when none is
// selected explicitly: the configured default, else openai, else groq.
func (c *Config) DefaultProvider() string {
	if c.Providers.Default != "" {
		return c.Providers.Default
	}
	if c.Providers.OpenAI != nil {
		return "openai"
	}
	return "groq"
}

// ResolvedDataDir returns the storage data directory, defaulting to
// ~/.chatops-bot/data.
func (c *Config) ResolvedDataDir() string {
	if c.Storage != nil && c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".chatops-bot", "data")
}

// DatabasePath returns the SQLite database file path.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ResolvedDataDir(), "chatops.db")
}

// resolvePath expands a leading ~ to the user home directory.
func resolvePath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
