package models

// Scope is the (tenant, user, workspace) triple that partitions the domain
// store. Every persisted entity and every observed event carries one.
type Scope struct {
	TenantID    string `json:"tenantId"`
	UserID      string `json:"userId"`
	WorkspaceID string `json:"workspaceId"`
}

// IsZero reports whether no scope field is set.
func (s Scope) IsZero() bool {
	return s.TenantID == "" && s.UserID == "" && s.WorkspaceID == ""
}

// TaskScopeKind identifies which level of the hierarchy a task belongs to.
type TaskScopeKind string

const (
	TaskScopeGlobal     TaskScopeKind = "global"
	TaskScopeRepository TaskScopeKind = "repository"
	TaskScopeProject    TaskScopeKind = "project"
)

// ValidTaskScopeKind reports whether k is a member of the closed set.
func ValidTaskScopeKind(k TaskScopeKind) bool {
	switch k {
	case TaskScopeGlobal, TaskScopeRepository, TaskScopeProject:
		return true
	}
	return false
}

// TaskScope locates a task's ordering domain: the kind plus the identifier of
// the repository or project when the kind is not global.
type TaskScope struct {
	Kind    TaskScopeKind `json:"kind"`
	ScopeID string        `json:"scopeId,omitempty"`
}
