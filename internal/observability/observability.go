// Package observability provides Prometheus metrics, OpenTelemetry tracing,
// and health checks for the bot. Every component is optional and nil-safe:
// a disabled feature costs callers one nil check per operation.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nguyenhx22/chatops-ai-bot/internal/config"
)

// Observability bundles the enabled components. Fields for disabled
// features stay nil; Health is the one component that always exists.
type Observability struct {
	Metrics *MetricsCollector
	Tracer  *TracerSetup
	Health  *HealthChecker
}

// New builds the observability stack from config. A nil config switches
// everything off and returns nil, which every consumer tolerates.
func New(cfg *config.ObservabilityConfig, logger *slog.Logger) (*Observability, error) {
	if cfg == nil {
		return nil, nil
	}

	obs := &Observability{
		// Readiness checks are registered during wiring, so the checker
		// exists even when metrics and tracing are off.
		Health: NewHealthChecker(logger),
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		obs.Metrics = NewMetricsCollector()
	}
	if cfg.Tracing != nil && cfg.Tracing.Enabled {
		ts, err := NewTracerSetup(cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("initializing tracing: %w", err)
		}
		obs.Tracer = ts
	}

	return obs, nil
}

// Shutdown flushes and releases whatever components were enabled.
func (o *Observability) Shutdown(ctx context.Context) {
	if o == nil {
		return
	}
	if o.Tracer != nil {
		_ = o.Tracer.Shutdown(ctx)
	}
}
