package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nguyenhx22/chatops-ai-bot/internal/agent"
	"github.com/nguyenhx22/chatops-ai-bot/internal/chatops"
	"github.com/nguyenhx22/chatops-ai-bot/internal/config"
	"github.com/nguyenhx22/chatops-ai-bot/internal/dispatch"
	"github.com/nguyenhx22/chatops-ai-bot/internal/incident"
	"github.com/nguyenhx22/chatops-ai-bot/internal/llm"
	"github.com/nguyenhx22/chatops-ai-bot/internal/llm/openai"
	"github.com/nguyenhx22/chatops-ai-bot/internal/observability"
	"github.com/nguyenhx22/chatops-ai-bot/internal/security"
	"github.com/nguyenhx22/chatops-ai-bot/internal/session"
	"github.com/nguyenhx22/chatops-ai-bot/internal/storage"
	pgstore "github.com/nguyenhx22/chatops-ai-bot/internal/storage/postgres"
	sqlitestore "github.com/nguyenhx22/chatops-ai-bot/internal/storage/sqlite"
	"github.com/nguyenhx22/chatops-ai-bot/internal/tools"
	cftools "github.com/nguyenhx22/chatops-ai-bot/internal/tools/cloudfoundry"
	"github.com/nguyenhx22/chatops-ai-bot/internal/tools/common"
	iratools "github.com/nguyenhx22/chatops-ai-bot/internal/tools/ira"
)

const cfSystemPrompt = `You are a Cloud Foundry operations assistant. You help users inspect
and manage their applications across Cloud Foundry foundations using the available tools.

Every operation is restricted to the applications, groups, and sites listed in the context
below. Never act on an application the user is not entitled to, and never guess a site or
group name: if a required value is missing or ambiguous, use the ask_human tool to ask the
user before calling any action tool. Before a restart, start, or stop, confirm the exact
application, group, and site with the user. Report tool results verbatim; do not invent
status information.`

const iraSystemPrompt = `You are an Incident Resolution Assistant. Your goal is to help users
by retrieving information about platforms, incidents, and investigations using the available
tools based on the provided context and user requests.

Answer only from tool output. If a platform or incident is not found, say so plainly instead
of speculating. When the user's request is ambiguous, use the ask_human tool to clarify
before retrieving anything.`

// SharedComponents holds the initialized subsystems that both the gateway
// and MCP modes require. Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config   *config.Config
	Logger   *slog.Logger
	Obs      *observability.Observability
	Store    storage.Store
	Provider llm.Provider
	ToolRegs map[session.Context]*tools.Registry
	Agents   map[session.Context]agent.Agent
	Sessions *session.Controller

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// initShared performs all common initialization shared between the gateway
// and MCP modes. Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Ensure data directory exists.
	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	logger.Debug("data directory initialized", slog.String("path", dataDir))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
		)
	}

	// Storage (unified: SQLite default, PostgreSQL optional).
	store, err := initStore(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	sc.Store = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})
	logger.Debug("storage initialized", slog.String("driver", store.Driver()))

	// Run migrations.
	if err := store.Migrate(context.Background()); err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if obs != nil && obs.Health != nil {
		obs.Health.AddCheck("database", store.Ping)
	}

	// LLM provider.
	provider, err := newLLMProvider(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing LLM provider: %w", err)
	}
	sc.Provider = provider
	logger.Debug("llm provider initialized", slog.String("provider", provider.Name()))

	auditor := security.NewSlogAuditor(logger)

	// Remote chatops-service client behind its OAuth2 token endpoint.
	tokenSvc := chatops.NewAuthService(
		cfg.ChatOps.TokenURL,
		cfg.ChatOps.ClientID,
		cfg.ChatOps.ClientSecret,
		cfg.ChatOps.Scope,
		logger,
	)
	opsClient := chatops.NewClient(cfg.ChatOps.BaseURL, tokenSvc, logger,
		chatops.WithTimeout(cfg.ChatOps.Timeout()),
	)

	// Entitlement-gated dispatcher in front of the operations client.
	dispatcher := dispatch.New(store.Entitlements(), opsClient, logger).
		WithAuditor(auditor)
	if obs != nil && obs.Metrics != nil {
		dispatcher.WithMetrics(obs.Metrics)
	}

	// Tool registries, one per conversation context.
	cfReg := tools.NewRegistry()
	cftools.RegisterAll(cfReg, dispatcher, logger)
	cfReg.Register(common.NewAskHumanTool(logger))

	incidentStore := incident.NewFileStore(cfg.Incident.Dir(), logger)
	iraReg := tools.NewRegistry()
	iratools.RegisterAll(iraReg, incidentStore, logger)
	iraReg.Register(common.NewAskHumanTool(logger))

	sc.ToolRegs = map[session.Context]*tools.Registry{
		session.ContextCloudFoundry: cfReg,
		session.ContextIRA:          iraReg,
	}
	logger.Debug("tools registered",
		slog.Any("cf", cfReg.List()),
		slog.Any("ira", iraReg.List()),
	)

	// Conversation persistence.
	convStore := store.Conversations()

	cfAgent := agent.NewOrchestrator(provider, cfSystemPrompt, logger).
		WithTools(cfReg).
		WithMaxIterations(cfg.Agent.Iterations()).
		WithConversationStore(convStore, cfg.Agent.MaxHistory(), 0).
		WithObservability(obs).
		WithAuditor(auditor)

	iraAgent := agent.NewOrchestrator(provider, iraSystemPrompt, logger).
		WithTools(iraReg).
		WithMaxIterations(cfg.Agent.Iterations()).
		WithConversationStore(convStore, cfg.Agent.MaxHistory(), 0).
		WithObservability(obs).
		WithAuditor(auditor)

	sc.Agents = map[session.Context]agent.Agent{
		session.ContextCloudFoundry: cfAgent,
		session.ContextIRA:          iraAgent,
	}

	suggester := agent.NewSuggester(provider, logger)

	sessions := session.NewController(store.Entitlements(), provider, logger).
		WithAgent(session.ContextCloudFoundry, cfAgent).
		WithAgent(session.ContextIRA, iraAgent).
		WithSuggester(suggester)
	if obs != nil && obs.Metrics != nil {
		sessions.WithMetrics(obs.Metrics)
	}
	if model := defaultModel(cfg); model != "" {
		sessions.WithDefaultModel(model)
	}
	sc.Sessions = sessions

	return sc, nil
}

// newLLMProvider builds the provider chain from config. When both OpenAI and
// Groq are configured, the non-default one becomes the fallback.
func newLLMProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	var openaiClient, groqClient llm.Provider

	if pc := cfg.Providers.OpenAI; pc != nil {
		opts := []openai.Option{}
		if pc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pc.BaseURL))
		}
		openaiClient = openai.NewClient(pc.APIKey, pc.Model, logger, opts...)
	}
	if pc := cfg.Providers.Groq; pc != nil {
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = "https://api.groq.com/openai/v1"
		}
		groqClient = openai.NewClient(pc.APIKey, pc.Model, logger,
			openai.WithName("groq"),
			openai.WithBaseURL(baseURL),
		)
	}

	var chain []llm.Provider
	if cfg.DefaultProvider() == "groq" {
		for _, p := range []llm.Provider{groqClient, openaiClient} {
			if p != nil {
				chain = append(chain, p)
			}
		}
	} else {
		for _, p := range []llm.Provider{openaiClient, groqClient} {
			if p != nil {
				chain = append(chain, p)
			}
		}
	}

	switch len(chain) {
	case 0:
		return nil, fmt.Errorf("no LLM provider configured (set providers.openai or providers.groq)")
	case 1:
		return chain[0], nil
	default:
		return llm.NewFallbackProvider(chain, logger), nil
	}
}

// defaultModel returns the configured model of the default provider.
func defaultModel(cfg *config.Config) string {
	switch cfg.DefaultProvider() {
	case "groq":
		if cfg.Providers.Groq != nil {
			return cfg.Providers.Groq.Model
		}
	default:
		if cfg.Providers.OpenAI != nil {
			return cfg.Providers.OpenAI.Model
		}
	}
	return ""
}

// initStore creates the appropriate storage backend from config.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch driver := cfg.Storage.StorageDriver(); driver {
	case storage.DriverPostgres:
		return initPostgresStore(cfg, logger)
	case storage.DriverSQLite:
		return initSQLiteStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

func initSQLiteStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	return sqlitestore.Open(sqlitestore.Config{
		Path: cfg.DatabasePath(),
	}, logger)
}

func initPostgresStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	var dsn string
	pgCfg := pgstore.Config{}
	if cfg.Storage != nil && cfg.Storage.Postgres != nil {
		pg := cfg.Storage.Postgres
		dsn = pg.DSN
		pgCfg.MaxOpenConns = pg.MaxOpenConns
		pgCfg.MaxIdleConns = pg.MaxIdleConns
		pgCfg.ConnMaxLifetime = time.Duration(pg.ConnMaxLifetimeS) * time.Second
	}
	if envDSN := os.Getenv("CHATOPS_DB_DSN"); envDSN != "" {
		dsn = envDSN
	}
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required (set storage.postgres.dsn or CHATOPS_DB_DSN)")
	}
	pgCfg.DSN = dsn

	return pgstore.Open(pgCfg, logger)
}
