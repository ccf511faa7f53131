package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/nguyenhx22/chatops-ai-bot/internal/entitlement"
)

// Compile-time interface check.
var _ entitlement.Store = (*EntitlementRepository)(nil)

// EntitlementRepository implements entitlement.Store against the chatops
// entitlement tables. All queries are read-only; the tables are loaded by
// the provisioning pipeline.
//
// The substring containment rule is pushed into SQL so matching behaves
// identically across backends:
//
//	LOWER(requested) LIKE '%' || LOWER(binding) || '%'
//
// Empty bindings are excluded explicitly. LIKE '%%' matches everything,
// which would turn a blank row into a universal grant.
type EntitlementRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewEntitlementRepository creates an EntitlementRepository.
func NewEntitlementRepository(db *gorm.DB, logger *slog.Logger) *EntitlementRepository {
	return &EntitlementRepository{db: db, logger: logger}
}

// IsAuthorized reports whether userID, through groupName, may act on
// appName. Fail-closed: any query error counts as denial.
func (r *EntitlementRepository) IsAuthorized(ctx context.Context, userID, groupName, appName string) bool {
	var count int64
	err := r.db.WithContext(ctx).Raw(`
		SELECT COUNT(1)
		FROM chatops_users a
		JOIN chatops_app_groups b ON a.group_name = b.group_name
		WHERE LOWER(a.userid) = LOWER(?)
		  AND LOWER(a.group_name) = LOWER(?)
		  AND b.application <> ''
		  AND LOWER(?) LIKE '%' || LOWER(b.application) || '%'`,
		userID, groupName, appName,
	).Scan(&count).Error
	if err != nil {
		r.logger.ErrorContext(ctx, "entitlement check failed, denying",
			slog.String("user_id", userID),
			slog.String("group_name", groupName),
			slog.String("error", err.Error()))
		return false
	}
	return count > 0
}

// UserGroups returns the group names userID belongs to.
func (r *EntitlementRepository) UserGroups(ctx context.Context, userID string) ([]string, error) {
	var groups []string
	err := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("LOWER(userid) = LOWER(?)", userID).
		Order("group_name").
		Pluck("group_name", &groups).Error
	if err != nil {
		return nil, fmt.Errorf("querying user groups: %w", err)
	}
	return groups, nil
}

// appDeploymentRow flattens the three-way join for scanning.
type appDeploymentRow struct {
	Application string
	GroupName   string
	Site        string
	Org         string
	Space       string
}

// AppDeployments returns, for each registered binding contained in appName
// and reachable by userID, the deployments it grants. Rows are grouped by
// (application, group) preserving query order.
func (r *EntitlementRepository) AppDeployments(ctx context.Context, userID, appName string) ([]entitlement.AppDeployment, error) {
	var rows []appDeploymentRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT a.application, a.group_name,
		       b.cf_site AS site, b.cf_organization AS org, b.cf_space AS space
		FROM chatops_app_groups a
		JOIN chatops_org_space b ON a.group_name = b.group_name
		JOIN chatops_users c ON a.group_name = c.group_name
		WHERE LOWER(c.userid) = LOWER(?)
		  AND a.application <> ''
		  AND LOWER(?) LIKE '%' || LOWER(a.application) || '%'
		ORDER BY a.application, a.group_name, b.cf_site`,
		userID, appName,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying application deployments: %w", err)
	}

	var out []entitlement.AppDeployment
	index := map[[2]string]int{}
	for _, row := range rows {
		key := [2]string{row.Application, row.GroupName}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, entitlement.AppDeployment{
				Application: row.Application,
				GroupName:   row.GroupName,
			})
		}
		out[i].Deployments = append(out[i].Deployments, entitlement.Deployment{
			Site:  row.Site,
			Org:   row.Org,
			Space: row.Space,
		})
	}
	return out, nil
}

type groupValueRow struct {
	GroupName string
	Value     string
}

// SitesByGroup returns the per-group site lists visible to userID.
func (r *EntitlementRepository) SitesByGroup(ctx context.Context, userID string) ([]entitlement.GroupSites, error) {
	var rows []groupValueRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT a.group_name, b.cf_site AS value
		FROM chatops_users a
		JOIN chatops_org_space b ON a.group_name = b.group_name
		WHERE LOWER(a.userid) = LOWER(?)
		ORDER BY 1, 2`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying sites by group: %w", err)
	}

	var out []entitlement.GroupSites
	index := map[string]int{}
	for _, row := range rows {
		i, ok := index[row.GroupName]
		if !ok {
			i = len(out)
			index[row.GroupName] = i
			out = append(out, entitlement.GroupSites{GroupName: row.GroupName})
		}
		out[i].Sites = append(out[i].Sites, row.Value)
	}
	return out, nil
}

// ApplicationsByGroup returns the per-group application bindings visible
// to userID.
func (r *EntitlementRepository) ApplicationsByGroup(ctx context.Context, userID string) ([]entitlement.GroupApplications, error) {
	var rows []groupValueRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT a.group_name, b.application AS value
		FROM chatops_users a
		JOIN chatops_app_groups b ON a.group_name = b.group_name
		WHERE LOWER(a.userid) = LOWER(?)
		ORDER BY 1, 2`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying applications by group: %w", err)
	}

	var out []entitlement.GroupApplications
	index := map[string]int{}
	for _, row := range rows {
		i, ok := index[row.GroupName]
		if !ok {
			i = len(out)
			index[row.GroupName] = i
			out = append(out, entitlement.GroupApplications{GroupName: row.GroupName})
		}
		out[i].Applications = append(out[i].Applications, row.Value)
	}
	return out, nil
}

// EnabledTasks returns the enabled task names for the given task type.
func (r *EntitlementRepository) EnabledTasks(ctx context.Context, taskType string) ([]string, error) {
	var tasks []string
	err := r.db.WithContext(ctx).
		Model(&TaskModel{}).
		Where("enabled = 'Y' AND task_type = ?", taskType).
		Order("task_name").
		Pluck("task_name", &tasks).Error
	if err != nil {
		return nil, fmt.Errorf("querying enabled tasks: %w", err)
	}
	return tasks, nil
}
