// Package ira exposes incident-reliability knowledge (platform summaries,
// incident and investigation history) as read-only agent tools.
package ira

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nguyenhx22/chatops-ai-bot/internal/incident"
	"github.com/nguyenhx22/chatops-ai-bot/internal/security"
	"github.com/nguyenhx22/chatops-ai-bot/internal/tools"
)

// PlatformInfoTool returns the summary document for a named platform.
type PlatformInfoTool struct {
	store  incident.Store
	logger *slog.Logger
}

// NewPlatformInfoTool creates the platform-information tool.
func NewPlatformInfoTool(store incident.Store, logger *slog.Logger) *PlatformInfoTool {
	return &PlatformInfoTool{store: store, logger: logger}
}

func (t *PlatformInfoTool) Name() string { return "get_platform_information" }
func (t *PlatformInfoTool) Description() string {
	return "Retrieves platform information for a given platform name, such as architecture, " +
		"regions, and operational notes."
}
func (t *PlatformInfoTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"platform_name": map[string]any{
				"type":        "string",
				"description": "The name of the platform to get information for.",
			},
		},
		"required": []string{"platform_name"},
	}
}
func (t *PlatformInfoTool) RequiredAction() security.Action {
	return security.Action{Name: "get_platform_information", RiskLevel: security.RiskLow}
}

func (t *PlatformInfoTool) Validate(params map[string]any) error {
	if name, _ := params["platform_name"].(string); name == "" {
		return fmt.Errorf("platform_name is required")
	}
	return nil
}

func (t *PlatformInfoTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	name, _ := params["platform_name"].(string)

	t.logger.InfoContext(ctx, "fetching platform information", slog.String("platform_name", name))

	data, err := t.store.PlatformInformation(ctx, name)
	if err != nil {
		return &tools.Result{
			Output:  fmt.Sprintf("Error: Unable to retrieve platform information for '%s'.", name),
			Success: false,
		}, nil
	}
	return &tools.Result{
		Output:  tools.TruncateOutput(data, tools.MaxOutputBytes),
		Success: true,
	}, nil
}

// HistoryTool serves either incident history or investigation history,
// selected at construction. Both take the same optional query argument.
type HistoryTool struct {
	name        string
	description string
	fetch       func(ctx context.Context, query string) (string, error)
	logger      *slog.Logger
}

// NewIncidentHistoryTool creates the incident-history tool.
func NewIncidentHistoryTool(store incident.Store, logger *slog.Logger) *HistoryTool {
	return &HistoryTool{
		name: "get_incident_history",
		description: "Retrieves the recorded incident history. Accepts an optional query to " +
			"filter records by keyword (application name, incident id, site).",
		fetch:  store.IncidentHistory,
		logger: logger,
	}
}

// NewInvestigationHistoryTool creates the investigation-history tool.
func NewInvestigationHistoryTool(store incident.Store, logger *slog.Logger) *HistoryTool {
	return &HistoryTool{
		name: "get_investigation_history",
		description: "Retrieves the recorded investigation history. Accepts an optional query to " +
			"filter records by keyword.",
		fetch:  store.InvestigationHistory,
		logger: logger,
	}
}

func (t *HistoryTool) Name() string        { return t.name }
func (t *HistoryTool) Description() string { return t.description }

func (t *HistoryTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Optional keyword to filter history records.",
			},
		},
	}
}

func (t *HistoryTool) RequiredAction() security.Action {
	return security.Action{Name: t.name, RiskLevel: security.RiskLow}
}

func (t *HistoryTool) Validate(map[string]any) error { return nil }

func (t *HistoryTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	query, _ := params["query"].(string)

	t.logger.InfoContext(ctx, "fetching history", slog.String("tool", t.name), slog.String("query", query))

	data, err := t.fetch(ctx, query)
	if err != nil {
		return &tools.Result{
			Output:  "Error: History data source not found.",
			Success: false,
		}, nil
	}
	return &tools.Result{
		Output:  tools.TruncateOutput(data, tools.MaxOutputBytes),
		Success: true,
	}, nil
}

// RegisterAll wires the incident-reliability catalog into a registry.
func RegisterAll(reg *tools.Registry, store incident.Store, logger *slog.Logger) {
	reg.Register(NewPlatformInfoTool(store, logger))
	reg.Register(NewIncidentHistoryTool(store, logger))
	reg.Register(NewInvestigationHistoryTool(store, logger))
}
