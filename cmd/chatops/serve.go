package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/nguyenhx22/chatops-ai-bot/internal/auth"
	"github.com/nguyenhx22/chatops-ai-bot/internal/config"
	"github.com/nguyenhx22/chatops-ai-bot/internal/gateway/httpapi"
	"github.com/nguyenhx22/chatops-ai-bot/internal/ratelimit"
)

var (
	serveConfigPath string
	servePort       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `chatops-bot --config path` and `chatops-bot serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&servePort, "port", "", "override HTTP listen address (e.g. :8080)")
	}
}

// runServe starts the bot in gateway mode: the HTTP API plus, when
// configured, the Azure SSO sign-in flow.
func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("CHATOPS_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Server.ListenAddr = servePort
	}

	logger.Info("starting in gateway mode", slog.String("config", serveConfigPath))

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Azure SSO sign-in (optional; API keys work without it).
	var sso *auth.SSOClient
	if cfg.SSO != nil {
		sso = auth.NewSSOClient(
			cfg.SSO.TenantID,
			cfg.SSO.ClientID,
			cfg.SSO.ClientSecret,
			cfg.SSO.RedirectURI,
			logger,
			auth.WithScope(cfg.SSO.SSOScope()),
		)
		logger.Debug("sso client initialized", slog.String("tenant", cfg.SSO.TenantID))
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		TurnsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:          cfg.RateLimit.BurstSize,
	})

	// Build the API key to user ID mapping from config plus env override.
	apiKeys := cfg.Server.APIKeys
	if apiKeys == nil {
		apiKeys = make(map[string]string)
	}
	if envKeys := os.Getenv("CHATOPS_API_KEYS"); envKeys != "" {
		for _, entry := range strings.Split(envKeys, ",") {
			parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
			if len(parts) == 2 {
				apiKeys[parts[0]] = parts[1]
			}
		}
	}

	httpCfg := httpapi.Config{
		ListenAddr:     cfg.Server.Addr(),
		EnableDocs:     cfg.Server.EnableDocs,
		APIKeys:        apiKeys,
		MaxRequestSize: cfg.Server.MaxRequestSize,
	}
	if sc.Obs != nil {
		httpCfg.Metrics = sc.Obs.Metrics
		httpCfg.HealthChecker = sc.Obs.Health
		if sc.Obs.Metrics != nil {
			httpCfg.MetricsRegistry = sc.Obs.Metrics.Registry
		}
		if sc.Obs.Tracer != nil {
			httpCfg.Tracer = sc.Obs.Tracer.Tracer()
		}
		if cfg.Observability != nil && cfg.Observability.Metrics != nil {
			httpCfg.MetricsPath = cfg.Observability.Metrics.Path
		}
	}

	gw := httpapi.NewGateway(httpCfg, sc.Sessions, sso, limiter, logger).
		WithEntitlements(sc.Store.Entitlements())

	logger.Info("gateway configured",
		slog.String("addr", cfg.Server.Addr()),
		slog.Bool("sso", sso != nil),
		slog.Int("api_keys", len(apiKeys)),
	)

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	// Wait for signal or gateway error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return gw.Stop(shutdownCtx)
}
