package session

import (
	"context"
	"encoding/json"

	"github.com/nguyenhx22/chatops-ai-bot/internal/entitlement"
)

// cfToolDocs documents the Cloud Foundry catalog for suggestion prompts.
const cfToolDocs = "- `get_application_information`: Retrieve info about a Cloud Foundry app. Requires \"application\".\n" +
	"    e.g., \"get info for app <app_name>\"\n" +
	"- `restart_application`: Restart a CF app. Requires \"application\", \"group_name\", \"cloud_foundry_site\". Ask for confirmation first.\n" +
	"    e.g., \"restart application <app_name> at cf site <cf_site> for the group <group_name>\"\n" +
	"- `start_application`: Start a CF app. Requires \"application\", \"group_name\", \"cloud_foundry_site\". Ask for confirmation first.\n" +
	"    e.g., \"start application <app_name> at cf site <cf_site> for the group <group_name>\"\n" +
	"- `stop_application`: Stop a CF app. Requires \"application\", \"group_name\", \"cloud_foundry_site\". Ask for confirmation first.\n" +
	"    e.g., \"stop application <app_name> at cf site <cf_site> for the group <group_name>\"\n" +
	"- `check_application_health`: Check health of a CF app. Requires \"application\", \"group_name\", \"cloud_foundry_site\".\n" +
	"    e.g., \"check health for application <app_name> at cf site <cf_site> for the group <group_name>\""

// iraToolDocs documents the incident-reliability catalog for suggestion prompts.
const iraToolDocs = "- `get_platform_information`: Fetch platform information.\n" +
	"- `get_incident_history`: Retrieve historical incident reports.\n" +
	"- `get_investigation_history`: Show prior investigations."

// directToolDocs is the tool-less placeholder for direct chat.
const directToolDocs = "None. This is a direct LLM chat without tool access."

// toolDocs returns the suggestion-prompt tool documentation for a context.
func toolDocs(c Context) string {
	switch c {
	case ContextCloudFoundry:
		return cfToolDocs
	case ContextIRA:
		return iraToolDocs
	default:
		return directToolDocs
	}
}

// cloudFoundryKnowledge renders the caller's reachable Cloud Foundry
// landscape (enabled tasks, sites per group, applications per group) as the
// per-turn context block for the CF agent. Failures degrade to empty
// sections; the agent can still answer, it just knows less.
func cloudFoundryKnowledge(ctx context.Context, store entitlement.Store, userID string) string {
	tasks, err := store.EnabledTasks(ctx, entitlement.TaskTypeCloudFoundry)
	if err != nil {
		tasks = nil
	}
	sites, err := store.SitesByGroup(ctx, userID)
	if err != nil {
		sites = nil
	}
	apps, err := store.ApplicationsByGroup(ctx, userID)
	if err != nil {
		apps = nil
	}

	tasksJSON := marshalOrEmpty([]map[string]any{{"CLOUD_FOUNDRY_TASKS": tasks}})

	siteEntries := make([]map[string]any, 0, len(sites))
	for _, g := range sites {
		siteEntries = append(siteEntries, map[string]any{
			"GROUP_NAME":          g.GroupName,
			"CLOUD_FOUNDRY_SITES": g.Sites,
		})
	}
	appEntries := make([]map[string]any, 0, len(apps))
	for _, g := range apps {
		appEntries = append(appEntries, map[string]any{
			"GROUP_NAME":   g.GroupName,
			"APPLICATIONS": g.Applications,
		})
	}

	return "Cloud Foundry Task Application:\n" +
		tasksJSON + "\n\n" + marshalOrEmpty(siteEntries) + "\n\n" + marshalOrEmpty(appEntries)
}

// iraKnowledge renders the static incident-reliability context block.
func iraKnowledge() string {
	info := map[string]any{
		"application": "IRA - Incident Resolution Assistant",
		"components":  []map[string]string{{"Platform_Name": "mpa"}},
	}
	return "Incident Resolution Assistant (IRA):\n" + marshalOrEmpty(info)
}

func marshalOrEmpty(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
