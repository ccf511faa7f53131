// Package security defines the action and risk model shared by tools and
// the agent runtime, plus a structured audit trail for tool executions.
// Entitlement decisions themselves live in internal/entitlement; this
// package only classifies what a tool is allowed to mean.
package security

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrPermissionDenied is returned when an entitlement check rejects an action.
var ErrPermissionDenied = errors.New("permission denied")

// RiskLevel classifies the danger of an action.
type RiskLevel int

const (
	RiskLow    RiskLevel = iota // Read-only, no side effects.
	RiskMedium                  // Mutates a single scoped application.
	RiskHigh                    // Stops or disrupts a running application.
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Action identifies a specific operation a tool wants to perform.
type Action struct {
	Name      string
	RiskLevel RiskLevel
}

// Mutating reports whether the action changes remote state.
// Mutating actions are entitlement-gated and confirmation-gated at the
// conversation level; read-only actions are not.
func (a Action) Mutating() bool { return a.RiskLevel > RiskLow }

// AuditEvent is a single entry in the append-only audit trail.
type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	UserID        string    `json:"user_id"`
	GroupName     string    `json:"group_name,omitempty"`
	Action        string    `json:"action"`
	Application   string    `json:"application,omitempty"`
	Site          string    `json:"site,omitempty"`
	Result        string    `json:"result"` // "success", "failure", "denied"
	Error         string    `json:"error,omitempty"`
}

// Auditor records audit events. Implementations must never fail the
// calling operation; auditing is best-effort by contract.
type Auditor interface {
	LogAction(ctx context.Context, event AuditEvent)
}

// SlogAuditor writes audit events to a structured logger.
type SlogAuditor struct {
	logger *slog.Logger
}

// NewSlogAuditor creates an auditor backed by the given logger.
func NewSlogAuditor(logger *slog.Logger) *SlogAuditor {
	return &SlogAuditor{logger: logger}
}

// LogAction emits the event as a structured log record.
func (a *SlogAuditor) LogAction(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	a.logger.InfoContext(ctx, "audit",
		slog.Time("timestamp", event.Timestamp),
		slog.String("correlation_id", event.CorrelationID),
		slog.String("user_id", event.UserID),
		slog.String("group_name", event.GroupName),
		slog.String("action", event.Action),
		slog.String("application", event.Application),
		slog.String("site", event.Site),
		slog.String("result", event.Result),
		slog.String("error", event.Error),
	)
}
