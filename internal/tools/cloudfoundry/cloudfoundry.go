// Package cloudfoundry exposes the Cloud Foundry operations catalog as
// agent tools. The tools are thin adapters over the dispatch layer, which
// owns validation, authorization, and remote calls; descriptions carry the
// conversational policy (lookup first, confirm before acting) since the
// model only sees tools through their catalog.
package cloudfoundry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nguyenhx22/chatops-ai-bot/internal/dispatch"
	"github.com/nguyenhx22/chatops-ai-bot/internal/security"
	"github.com/nguyenhx22/chatops-ai-bot/internal/tools"
)

const actionPolicy = "Before executing, confirm the user has specified the Cloud Foundry site; if not, ask for it. " +
	"Before executing, confirm the user's intent by asking for confirmation (e.g., 'Are you sure?'). " +
	"Proceed only if the user replies affirmatively ('yes', 'confirm', etc.). " +
	"The get_application_information tool MUST be executed first in the conversation flow to retrieve required info like 'cf_organization' and 'cf_space'. " +
	"Input MUST contain 'group_name', 'application', 'cloud_foundry_site', 'cf_organization', and 'cf_space'."

// InfoTool retrieves deployment details for an application.
type InfoTool struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewInfoTool creates the application-information lookup tool.
func NewInfoTool(d *dispatch.Dispatcher, logger *slog.Logger) *InfoTool {
	return &InfoTool{dispatcher: d, logger: logger}
}

func (t *InfoTool) Name() string { return "get_application_information" }
func (t *InfoTool) Description() string {
	return "Tool used to retrieve the required information for Cloud Foundry tasks, " +
		"such as cf_organization and cf_space, for a given application."
}
func (t *InfoTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"application": map[string]any{
				"type":        "string",
				"description": "The name of the Cloud Foundry application.",
			},
		},
		"required": []string{"application"},
	}
}
func (t *InfoTool) RequiredAction() security.Action {
	return security.Action{Name: "get_application_information", RiskLevel: security.RiskLow}
}

func (t *InfoTool) Validate(params map[string]any) error {
	if app, _ := params["application"].(string); app == "" {
		return fmt.Errorf("application is required")
	}
	return nil
}

func (t *InfoTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	app, _ := params["application"].(string)
	userID := tools.UserIDFromContext(ctx)

	out := t.dispatcher.GetApplicationInformation(ctx, userID, app)
	return &tools.Result{
		Output:  tools.TruncateOutput(out, tools.MaxOutputBytes),
		Success: !dispatch.ErrorReply(out),
	}, nil
}

// ActionTool runs one application operation (restart, start, stop, or
// health check) through the dispatcher. All four share the same argument
// surface; they differ in name, policy text, and the dispatcher method
// they invoke.
type ActionTool struct {
	name        string
	description string
	action      security.Action
	invoke      func(ctx context.Context, userID string, args dispatch.ActionArgs) string
	logger      *slog.Logger
}

// NewRestartTool creates the application restart tool.
func NewRestartTool(d *dispatch.Dispatcher, logger *slog.Logger) *ActionTool {
	return &ActionTool{
		name:        "restart_application",
		description: "This tool is used to restart an application in Cloud Foundry. " + actionPolicy,
		action:      security.Action{Name: "restart_application", RiskLevel: security.RiskHigh},
		invoke:      d.RestartApplication,
		logger:      logger,
	}
}

// NewStartTool creates the application start tool.
func NewStartTool(d *dispatch.Dispatcher, logger *slog.Logger) *ActionTool {
	return &ActionTool{
		name:        "start_application",
		description: "This tool is used to start an application in Cloud Foundry. " + actionPolicy,
		action:      security.Action{Name: "start_application", RiskLevel: security.RiskHigh},
		invoke:      d.StartApplication,
		logger:      logger,
	}
}

// NewStopTool creates the application stop tool.
func NewStopTool(d *dispatch.Dispatcher, logger *slog.Logger) *ActionTool {
	return &ActionTool{
		name:        "stop_application",
		description: "This tool is used to stop an application in Cloud Foundry. " + actionPolicy,
		action:      security.Action{Name: "stop_application", RiskLevel: security.RiskHigh},
		invoke:      d.StopApplication,
		logger:      logger,
	}
}

// NewHealthTool creates the application health-check tool. Read-only, so
// it carries RiskLow and skips the confirmation policy.
func NewHealthTool(d *dispatch.Dispatcher, logger *slog.Logger) *ActionTool {
	return &ActionTool{
		name: "check_application_health",
		description: "Use this tool when the user asks about the health of an application. " +
			"This tool is used to check the health of an application in Cloud Foundry. " +
			"Before executing, confirm the user has specified the Cloud Foundry site; if not, ask for it. " +
			"The get_application_information tool MUST be executed first in the conversation flow to retrieve required info like 'cf_organization' and 'cf_space'. " +
			"Input MUST contain 'group_name', 'application', 'cloud_foundry_site', 'cf_organization', and 'cf_space'.",
		action: security.Action{Name: "check_application_health", RiskLevel: security.RiskLow},
		invoke: d.CheckApplicationHealth,
		logger: logger,
	}
}

func (t *ActionTool) Name() string        { return t.name }
func (t *ActionTool) Description() string { return t.description }

func (t *ActionTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"group_name": map[string]any{
				"type":        "string",
				"description": "The group name associated with the application.",
			},
			"application": map[string]any{
				"type":        "string",
				"description": "The name of the Cloud Foundry application.",
			},
			"cloud_foundry_site": map[string]any{
				"type":        "string",
				"description": "The Cloud Foundry site identifier (e.g., 'po-r2').",
			},
			"cf_organization": map[string]any{
				"type":        "string",
				"description": "The Cloud Foundry organization name where the app resides.",
			},
			"cf_space": map[string]any{
				"type":        "string",
				"description": "The Cloud Foundry space name where the app resides.",
			},
		},
		"required": []string{"group_name", "application", "cloud_foundry_site", "cf_organization", "cf_space"},
	}
}

func (t *ActionTool) RequiredAction() security.Action { return t.action }

func (t *ActionTool) Validate(params map[string]any) error {
	for _, key := range []string{"group_name", "application", "cloud_foundry_site", "cf_organization", "cf_space"} {
		if v, _ := params[key].(string); v == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	return nil
}

func (t *ActionTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	args := argsFromParams(params)
	userID := tools.UserIDFromContext(ctx)

	t.logger.InfoContext(ctx, "executing cloud foundry tool",
		slog.String("tool", t.name),
		slog.String("application", args.Application),
		slog.String("site", args.Site),
	)

	out := t.invoke(ctx, userID, args)
	return &tools.Result{
		Output:  tools.TruncateOutput(out, tools.MaxOutputBytes),
		Success: !dispatch.ErrorReply(out),
		Metadata: map[string]any{
			"application": args.Application,
			"site":        args.Site,
		},
	}, nil
}

func argsFromParams(params map[string]any) dispatch.ActionArgs {
	str := func(key string) string {
		v, _ := params[key].(string)
		return v
	}
	return dispatch.ActionArgs{
		Application: str("application"),
		GroupName:   str("group_name"),
		Site:        str("cloud_foundry_site"),
		Org:         str("cf_organization"),
		Space:       str("cf_space"),
	}
}

// RegisterAll wires the full Cloud Foundry catalog into a registry.
func RegisterAll(reg *tools.Registry, d *dispatch.Dispatcher, logger *slog.Logger) {
	reg.Register(NewInfoTool(d, logger))
	reg.Register(NewRestartTool(d, logger))
	reg.Register(NewStartTool(d, logger))
	reg.Register(NewStopTool(d, logger))
	reg.Register(NewHealthTool(d, logger))
}
