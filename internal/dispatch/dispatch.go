// Package dispatch implements the command-dispatch and authorization
// pipeline. Each action validates its arguments, checks entitlement, calls
// the remote service, and normalizes the outcome, in one pass.
//
// Every operation returns a plain user-facing string. Nothing may
// propagate past a dispatcher method, storage failures and panics
// included, because an uncaught failure would abort the whole
// conversational turn in the agent runtime.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nguyenhx22/chatops-ai-bot/internal/chatops"
	"github.com/nguyenhx22/chatops-ai-bot/internal/entitlement"
	"github.com/nguyenhx22/chatops-ai-bot/internal/observability"
	"github.com/nguyenhx22/chatops-ai-bot/internal/security"
)

// Operations is the remote chatops-service surface the dispatcher needs.
// Satisfied by *chatops.Client.
type Operations interface {
	RestartApplication(ctx context.Context, req chatops.Request, opts ...chatops.CallOption) chatops.Result
	StartApplication(ctx context.Context, req chatops.Request, opts ...chatops.CallOption) chatops.Result
	StopApplication(ctx context.Context, req chatops.Request, opts ...chatops.CallOption) chatops.Result
	CheckApplicationHealth(ctx context.Context, req chatops.Request, opts ...chatops.CallOption) chatops.Result
}

// ActionArgs carries the argument set shared by all application actions.
// Immutable per invocation.
type ActionArgs struct {
	Application string
	GroupName   string
	Site        string
	Org         string
	Space       string
}

// Dispatcher validates, authorizes, and forwards application actions.
type Dispatcher struct {
	store   entitlement.Store
	ops     Operations
	auditor security.Auditor                 // nil = auditing disabled
	metrics *observability.MetricsCollector // nil = metrics disabled
	logger  *slog.Logger
}

// New creates a Dispatcher.
func New(store entitlement.Store, ops Operations, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, ops: ops, logger: logger}
}

// WithAuditor attaches an audit trail for action outcomes.
func (d *Dispatcher) WithAuditor(a security.Auditor) *Dispatcher {
	d.auditor = a
	return d
}

// WithMetrics attaches a metrics collector.
func (d *Dispatcher) WithMetrics(m *observability.MetricsCollector) *Dispatcher {
	d.metrics = m
	return d
}

// GetApplicationInformation returns deployment details (site, organization,
// space per group) for applications whose registered binding is contained
// in the requested name. Read-only: no authorization gate.
func (d *Dispatcher) GetApplicationInformation(ctx context.Context, userID, application string) (out string) {
	defer d.recoverBoundary(ctx, "get_application_information", userID, ActionArgs{Application: application}, &out)

	if application == "" {
		return "Error: Missing 'application' argument."
	}

	d.logger.InfoContext(ctx, "retrieving application information",
		slog.String("user_id", userID),
		slog.String("application", application),
	)

	rows, err := d.store.AppDeployments(ctx, userID, application)
	if err != nil {
		d.logger.ErrorContext(ctx, "application information lookup failed",
			slog.String("user_id", userID),
			slog.String("application", application),
			slog.String("error", err.Error()),
		)
		return fmt.Sprintf("Error: Unable to retrieve information for application '%s'.", application)
	}
	if len(rows) == 0 {
		return fmt.Sprintf("No application information found for '%s'.", application)
	}

	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error: Unable to render information for application '%s'.", application)
	}
	return "Context Retrieved: " + string(b)
}

// RestartApplication restarts an application after an entitlement check.
func (d *Dispatcher) RestartApplication(ctx context.Context, userID string, args ActionArgs) (out string) {
	defer d.recoverBoundary(ctx, "restart", userID, args, &out)
	return d.mutate(ctx, userID, "restart", args, d.ops.RestartApplication)
}

// StartApplication starts an application after an entitlement check.
func (d *Dispatcher) StartApplication(ctx context.Context, userID string, args ActionArgs) (out string) {
	defer d.recoverBoundary(ctx, "start", userID, args, &out)
	return d.mutate(ctx, userID, "start", args, d.ops.StartApplication)
}

// StopApplication stops an application after an entitlement check.
func (d *Dispatcher) StopApplication(ctx context.Context, userID string, args ActionArgs) (out string) {
	defer d.recoverBoundary(ctx, "stop", userID, args, &out)
	return d.mutate(ctx, userID, "stop", args, d.ops.StopApplication)
}

// CheckApplicationHealth queries application health. Unlike the mutating
// actions, health checks skip the entitlement gate: health is
// non-destructive, and operators routinely check applications they cannot
// act on. Kept as-is from the original system.
func (d *Dispatcher) CheckApplicationHealth(ctx context.Context, userID string, args ActionArgs) (out string) {
	defer d.recoverBoundary(ctx, "check_health", userID, args, &out)

	if msg := validateArgs(args); msg != "" {
		return msg
	}

	d.logger.InfoContext(ctx, "checking application health",
		slog.String("user_id", userID),
		slog.String("application", args.Application),
		slog.String("site", args.Site),
	)

	result := d.callRemote(ctx, "check_health", args, d.ops.CheckApplicationHealth)
	d.audit(ctx, userID, "check_health", args, result)
	return result.Render()
}

// mutate runs the shared authorize-then-call path for restart/start/stop.
func (d *Dispatcher) mutate(
	ctx context.Context,
	userID, action string,
	args ActionArgs,
	call func(context.Context, chatops.Request, ...chatops.CallOption) chatops.Result,
) string {
	if msg := validateArgs(args); msg != "" {
		return msg
	}

	d.logger.InfoContext(ctx, "attempting application action",
		slog.String("action", action),
		slog.String("user_id", userID),
		slog.String("application", args.Application),
		slog.String("group_name", args.GroupName),
		slog.String("site", args.Site),
		slog.String("org", args.Org),
		slog.String("space", args.Space),
	)

	if !d.store.IsAuthorized(ctx, userID, args.GroupName, args.Application) {
		d.metrics.RecordEntitlementCheck("denied")
		d.logger.WarnContext(ctx, "permission denied for application action",
			slog.String("action", action),
			slog.String("user_id", userID),
			slog.String("application", args.Application),
			slog.String("group_name", args.GroupName),
		)
		d.auditDenied(ctx, userID, action, args)
		return fmt.Sprintf(
			"You do not have permission to %s %s. Please ensure the application name is correct and you have the necessary permissions.",
			verb(action), args.Application,
		)
	}
	d.metrics.RecordEntitlementCheck("granted")

	result := d.callRemote(ctx, action, args, call)
	d.audit(ctx, userID, action, args, result)
	return result.Render()
}

func (d *Dispatcher) callRemote(
	ctx context.Context,
	action string,
	args ActionArgs,
	call func(context.Context, chatops.Request, ...chatops.CallOption) chatops.Result,
) chatops.Result {
	start := time.Now()
	result := call(ctx, chatops.Request{
		AppName: args.Application,
		Site:    args.Site,
		Org:     args.Org,
		Space:   args.Space,
	})
	d.metrics.RecordRemoteCall(action, result.Outcome.String(), time.Since(start).Seconds())
	return result
}

func (d *Dispatcher) audit(ctx context.Context, userID, action string, args ActionArgs, result chatops.Result) {
	if d.auditor == nil {
		return
	}
	outcome := "success"
	errText := ""
	if result.Err() {
		outcome = "failure"
		errText = result.Message
	}
	d.auditor.LogAction(ctx, security.AuditEvent{
		UserID:      userID,
		GroupName:   args.GroupName,
		Action:      action,
		Application: args.Application,
		Site:        args.Site,
		Result:      outcome,
		Error:       errText,
	})
}

func (d *Dispatcher) auditDenied(ctx context.Context, userID, action string, args ActionArgs) {
	if d.auditor == nil {
		return
	}
	d.auditor.LogAction(ctx, security.AuditEvent{
		UserID:      userID,
		GroupName:   args.GroupName,
		Action:      action,
		Application: args.Application,
		Site:        args.Site,
		Result:      "denied",
	})
}

// recoverBoundary converts a panic in an action body into a uniform
// user-facing error string.
func (d *Dispatcher) recoverBoundary(ctx context.Context, action, userID string, args ActionArgs, out *string) {
	r := recover()
	if r == nil {
		return
	}
	d.logger.ErrorContext(ctx, "unexpected failure during application action",
		slog.String("action", action),
		slog.String("user_id", userID),
		slog.String("application", args.Application),
		slog.String("group_name", args.GroupName),
		slog.String("site", args.Site),
		slog.String("org", args.Org),
		slog.String("space", args.Space),
		slog.Any("panic", r),
	)
	*out = fmt.Sprintf(
		"Error: An unexpected error occurred while attempting to %s application '%s'.",
		verb(action), args.Application,
	)
}

// ErrorReply reports whether a dispatcher reply describes a failure or a
// denial rather than a completed operation. Dispatcher methods return plain
// strings for the model to read; this is the one place that knows their
// failure shapes.
func ErrorReply(msg string) bool {
	for _, prefix := range []string{
		"Error:",
		"You do not have permission",
		"API request failed",
		"Request to service failed",
		"Failed to decode",
	} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

// validateArgs returns a targeted "missing X" message, or "" when complete.
func validateArgs(args ActionArgs) string {
	switch {
	case args.Application == "":
		return "Error: Missing 'application' argument."
	case args.GroupName == "":
		return "Error: Missing 'group_name' argument."
	case args.Site == "":
		return "Error: Missing 'cloud_foundry_site' argument."
	case args.Org == "":
		return "Error: Missing 'cf_organization' argument."
	case args.Space == "":
		return "Error: Missing 'cf_space' argument."
	}
	return ""
}

func verb(action string) string {
	switch action {
	case "check_health":
		return "check health of"
	case "get_application_information":
		return "look up"
	default:
		return action
	}
}
