package events

// Filter is the per-subscription match predicate. All set clauses must hold
// for an event to be delivered. IncludeOutput gates session-output events
// regardless of the other clauses.
type Filter struct {
	TenantID    string `json:"tenantId,omitempty"`
	UserID      string `json:"userId,omitempty"`
	WorkspaceID string `json:"workspaceId,omitempty"`

	RepositoryID   string `json:"repositoryId,omitempty"`
	TaskID         string `json:"taskId,omitempty"`
	DirectoryID    string `json:"directoryId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`

	IncludeOutput bool `json:"includeOutput"`
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e Observed) bool {
	if _, isOutput := e.(SessionOutput); isOutput && !f.IncludeOutput {
		return false
	}

	meta := e.EventMeta()
	if f.TenantID != "" && meta.Scope.TenantID != f.TenantID {
		return false
	}
	if f.UserID != "" && meta.Scope.UserID != f.UserID {
		return false
	}
	if f.WorkspaceID != "" && meta.Scope.WorkspaceID != f.WorkspaceID {
		return false
	}
	if f.DirectoryID != "" && meta.DirectoryID != f.DirectoryID {
		return false
	}
	if f.ConversationID != "" && meta.ConversationID != f.ConversationID {
		return false
	}
	if f.RepositoryID != "" && !touchesRepository(e, f.RepositoryID) {
		return false
	}
	if f.TaskID != "" && !touchesTask(e, f.TaskID) {
		return false
	}
	return true
}

// touchesRepository implements the repositoryId narrower: only the event
// kinds enumerated here can match, each through its own repository linkage.
func touchesRepository(e Observed, repositoryID string) bool {
	switch ev := e.(type) {
	case DirectoryGitUpdated:
		return ev.Snapshot.RepositoryID == repositoryID
	case RepositoryUpserted:
		return ev.Repository.ID == repositoryID
	case RepositoryUpdated:
		return ev.Repository.ID == repositoryID
	case RepositoryArchived:
		return ev.RepositoryID == repositoryID
	case TaskCreated:
		return ev.Task.RepositoryID == repositoryID
	case TaskUpdated:
		return ev.Task.RepositoryID == repositoryID
	case TaskReordered:
		for _, t := range ev.Tasks {
			if t.RepositoryID == repositoryID {
				return true
			}
		}
		return false
	case GithubPRUpserted:
		return ev.PR.RepositoryID == repositoryID
	case GithubPRClosed:
		return ev.RepositoryID == repositoryID
	case GithubPRJobsUpdated:
		return ev.RepositoryID == repositoryID
	}
	return false
}

// touchesTask implements the taskId narrower for task-touching events.
func touchesTask(e Observed, taskID string) bool {
	switch ev := e.(type) {
	case TaskCreated:
		return ev.Task.ID == taskID
	case TaskUpdated:
		return ev.Task.ID == taskID
	case TaskReordered:
		for _, t := range ev.Tasks {
			if t.ID == taskID {
				return true
			}
		}
		return false
	}
	return false
}
