package observability

import (
	"context"
	"log/slog"
	"time"
)

// Readiness checks share one deadline so a hung dependency cannot stall
// the probe endpoint.
const healthCheckTimeout = 3 * time.Second

type readinessCheck struct {
	name string
	fn   func(ctx context.Context) error
}

// HealthChecker answers the liveness and readiness probes. Readiness
// aggregates the dependency checks registered during wiring (database,
// token endpoint, chatops-service).
type HealthChecker struct {
	checks []readinessCheck
	logger *slog.Logger
}

// NewHealthChecker creates a checker with nothing registered yet.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{logger: logger}
}

// AddCheck registers a named readiness check.
func (h *HealthChecker) AddCheck(name string, fn func(ctx context.Context) error) {
	h.checks = append(h.checks, readinessCheck{name: name, fn: fn})
}

// HealthStatus is the probe endpoints' JSON body.
type HealthStatus struct {
	Status string                 `json:"status"` // "ok" or "degraded"
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult reports one dependency.
type CheckResult struct {
	Status  string `json:"status"`            // "ok" or "fail"
	Message string `json:"message,omitempty"` // error text when failed
}

// CheckHealth is liveness: "ok" for as long as the process answers.
func (h *HealthChecker) CheckHealth() HealthStatus {
	return HealthStatus{Status: "ok"}
}

// CheckReady runs every registered check. One failure degrades the whole
// status; the per-check results say which.
func (h *HealthChecker) CheckReady(ctx context.Context) HealthStatus {
	if len(h.checks) == 0 {
		return HealthStatus{Status: "ok"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]CheckResult, len(h.checks)),
	}
	for _, c := range h.checks {
		status.Checks[c.name] = h.runCheck(checkCtx, c)
		if status.Checks[c.name].Status != "ok" {
			status.Status = "degraded"
		}
	}
	return status
}

func (h *HealthChecker) runCheck(ctx context.Context, c readinessCheck) CheckResult {
	err := c.fn(ctx)
	if err == nil {
		return CheckResult{Status: "ok"}
	}
	if h.logger != nil {
		h.logger.WarnContext(ctx, "readiness check failed",
			slog.String("check", c.name),
			slog.String("error", err.Error()),
		)
	}
	return CheckResult{Status: "fail", Message: err.Error()}
}
