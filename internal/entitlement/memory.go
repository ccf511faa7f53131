package entitlement

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Membership links a user to a group.
type Membership struct {
	UserID    string
	GroupName string
}

// Binding registers an application name pattern under a group.
type Binding struct {
	GroupName   string
	Application string
}

// OrgSpace registers a deployment location under a group.
type OrgSpace struct {
	GroupName  string
	Deployment Deployment
}

// Task is an operation in the chatops task catalog.
type Task struct {
	Name    string
	Type    string
	Enabled bool
}

// MemoryStore is an in-memory Store used for tests and local development.
// Safe for concurrent reads; seed it before serving.
type MemoryStore struct {
	mu          sync.RWMutex
	memberships []Membership
	bindings    []Binding
	orgSpaces   []OrgSpace
	tasks       []Task
}

// NewMemoryStore creates an empty in-memory entitlement store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AddMembership registers a user in a group.
func (s *MemoryStore) AddMembership(userID, groupName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships = append(s.memberships, Membership{UserID: userID, GroupName: groupName})
}

// AddBinding registers an application binding for a group.
func (s *MemoryStore) AddBinding(groupName, application string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings = append(s.bindings, Binding{GroupName: groupName, Application: application})
}

// AddOrgSpace registers a deployment location for a group.
func (s *MemoryStore) AddOrgSpace(groupName string, d Deployment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgSpaces = append(s.orgSpaces, OrgSpace{GroupName: groupName, Deployment: d})
}

// AddTask registers a chatops task.
func (s *MemoryStore) AddTask(name, taskType string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, Task{Name: name, Type: taskType, Enabled: enabled})
}

// IsAuthorized implements the substring containment rule over seeded rows.
func (s *MemoryStore) IsAuthorized(_ context.Context, userID, groupName, appName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isMember(userID, groupName) {
		return false
	}
	for _, b := range s.bindings {
		if strings.EqualFold(b.GroupName, groupName) && Matches(appName, b.Application) {
			return true
		}
	}
	return false
}

// UserGroups returns the group names userID belongs to, sorted.
func (s *MemoryStore) UserGroups(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{}
	var groups []string
	for _, m := range s.memberships {
		if strings.EqualFold(m.UserID, userID) && !seen[m.GroupName] {
			seen[m.GroupName] = true
			groups = append(groups, m.GroupName)
		}
	}
	sort.Strings(groups)
	return groups, nil
}

// AppDeployments returns the deployments granted by bindings contained in appName.
func (s *MemoryStore) AppDeployments(ctx context.Context, userID, appName string) ([]AppDeployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []AppDeployment
	for _, b := range s.bindings {
		if !s.isMember(userID, b.GroupName) || !Matches(appName, b.Application) {
			continue
		}
		entry := AppDeployment{Application: b.Application, GroupName: b.GroupName}
		for _, loc := range s.orgSpaces {
			if strings.EqualFold(loc.GroupName, b.GroupName) {
				entry.Deployments = append(entry.Deployments, loc.Deployment)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// SitesByGroup returns the distinct sites per group visible to userID.
func (s *MemoryStore) SitesByGroup(ctx context.Context, userID string) ([]GroupSites, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byGroup := map[string][]string{}
	for _, loc := range s.orgSpaces {
		if !s.isMember(userID, loc.GroupName) {
			continue
		}
		if !contains(byGroup[loc.GroupName], loc.Deployment.Site) {
			byGroup[loc.GroupName] = append(byGroup[loc.GroupName], loc.Deployment.Site)
		}
	}
	return sortedGroupLists(byGroup, func(g string, items []string) GroupSites {
		return GroupSites{GroupName: g, Sites: items}
	}), nil
}

// ApplicationsByGroup returns the distinct bindings per group visible to userID.
func (s *MemoryStore) ApplicationsByGroup(ctx context.Context, userID string) ([]GroupApplications, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byGroup := map[string][]string{}
	for _, b := range s.bindings {
		if !s.isMember(userID, b.GroupName) {
			continue
		}
		if !contains(byGroup[b.GroupName], b.Application) {
			byGroup[b.GroupName] = append(byGroup[b.GroupName], b.Application)
		}
	}
	return sortedGroupLists(byGroup, func(g string, items []string) GroupApplications {
		return GroupApplications{GroupName: g, Applications: items}
	}), nil
}

// EnabledTasks returns the enabled task names of the given type, sorted.
func (s *MemoryStore) EnabledTasks(_ context.Context, taskType string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for _, t := range s.tasks {
		if t.Enabled && strings.EqualFold(t.Type, taskType) {
			names = append(names, t.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) isMember(userID, groupName string) bool {
	for _, m := range s.memberships {
		if strings.EqualFold(m.UserID, userID) && strings.EqualFold(m.GroupName, groupName) {
			return true
		}
	}
	return false
}

func contains(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

func sortedGroupLists[T any](byGroup map[string][]string, build func(string, []string) T) []T {
	groups := make([]string, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	out := make([]T, 0, len(groups))
	for _, g := range groups {
		items := byGroup[g]
		sort.Strings(items)
		out = append(out, build(g, items))
	}
	return out
}
