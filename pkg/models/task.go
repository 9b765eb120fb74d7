package models

import "time"

// TaskStatus is the task workflow state.
type TaskStatus string

const (
	TaskDraft      TaskStatus = "draft"
	TaskReady      TaskStatus = "ready"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
)

// ValidTaskStatus reports whether s is a member of the closed set.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskDraft, TaskReady, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

// Task is a unit of work queued against a scope. OrderIndex values within one
// (scope kind, scope id) form a dense permutation of [0..n-1].
type Task struct {
	ID           string     `json:"taskId"`
	Scope        Scope      `json:"scope"`
	TaskScope    TaskScope  `json:"taskScope"`
	RepositoryID string     `json:"repositoryId,omitempty"`
	ProjectID    string     `json:"projectId,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Status       TaskStatus `json:"status"`
	OrderIndex   int        `json:"orderIndex"`

	ClaimedByController string `json:"claimedByController,omitempty"`
	ClaimedByProject    string `json:"claimedByProject,omitempty"`
	Branch              string `json:"branch,omitempty"`
	BaseBranch          string `json:"baseBranch,omitempty"`

	// Linear issue linkage, opaque to the server.
	Linear map[string]any `json:"linear,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
