// Package entitlement defines read-only access to the user, group, and
// application mapping that gates Cloud Foundry operations.
//
// The authorization rule is deliberately permissive: a requested application
// name matches a registered binding when the (lower-cased) request CONTAINS
// the binding as a substring. Chat input carries site suffixes and instance
// decorations ("billing-svc-prod-42"), so bindings act as match patterns
// rather than exact names. The direction matters: a short binding authorizes
// many requested names, never the reverse.
package entitlement

import (
	"context"
	"strings"
)

// Deployment is a three-level location for an application instance.
type Deployment struct {
	Site  string `json:"cf_site"`
	Org   string `json:"cf_organization"`
	Space string `json:"cf_space"`
}

// AppDeployment pairs a registered application binding with its group and
// the deployments reachable through that group.
type AppDeployment struct {
	Application string       `json:"application"`
	GroupName   string       `json:"group_name"`
	Deployments []Deployment `json:"details"`
}

// GroupSites lists the Cloud Foundry sites reachable through one group.
type GroupSites struct {
	GroupName string   `json:"group_name"`
	Sites     []string `json:"cloud_foundry_sites"`
}

// GroupApplications lists the application bindings registered for one group.
type GroupApplications struct {
	GroupName    string   `json:"group_name"`
	Applications []string `json:"applications"`
}

// TaskTypeCloudFoundry selects the Cloud Foundry task catalog.
const TaskTypeCloudFoundry = "CLOUD FOUNDRY"

// Store is the read-only entitlement query surface.
// Implementations must be fail-closed: IsAuthorized returns false on any
// storage failure, and the list queries return empty results rather than
// surfacing connectivity errors to the dispatch path.
type Store interface {
	// IsAuthorized reports whether userID, through groupName, may act on
	// appName. Matching follows the substring containment rule (see the
	// package comment). Never returns an error; failures are logged and
	// treated as denial.
	IsAuthorized(ctx context.Context, userID, groupName, appName string) bool

	// UserGroups returns the group names userID belongs to.
	UserGroups(ctx context.Context, userID string) ([]string, error)

	// AppDeployments returns, for each registered binding contained in
	// appName and reachable by userID, the deployments it grants.
	AppDeployments(ctx context.Context, userID, appName string) ([]AppDeployment, error)

	// SitesByGroup returns the per-group site lists visible to userID.
	SitesByGroup(ctx context.Context, userID string) ([]GroupSites, error)

	// ApplicationsByGroup returns the per-group application bindings
	// visible to userID.
	ApplicationsByGroup(ctx context.Context, userID string) ([]GroupApplications, error)

	// EnabledTasks returns the enabled task names for the given task type.
	EnabledTasks(ctx context.Context, taskType string) ([]string, error)
}

// Matches reports whether a requested application name matches a registered
// binding. Case-insensitive, directional: the request must contain the
// binding. Empty bindings never match.
func Matches(requested, binding string) bool {
	if binding == "" {
		return false
	}
	return strings.Contains(strings.ToLower(requested), strings.ToLower(binding))
}
