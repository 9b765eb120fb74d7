// Package client projects observed events from a stream subscription into a
// synced workspace snapshot. The reducer is pure: applying an event returns a
// new snapshot when anything changed and the identical snapshot pointer when
// nothing did, so callers can detect change by pointer comparison. A
// Projector wraps the reducer with the per-subscription cursor guard, making
// replayed and regressed events exact no-ops.
package client

import (
	"github.com/devharness/harnessd/pkg/models"
)

// SessionView is the client-side runtime view of one session, folded from
// session-status, session-control, session-output and session-exit events.
type SessionView struct {
	SessionID    string              `json:"sessionId"`
	Live         bool                `json:"live"`
	Status       *models.StatusModel `json:"status,omitempty"`
	Controller   *models.Controller  `json:"controller,omitempty"`
	LastExit     *models.ExitStatus  `json:"lastExit,omitempty"`
	OutputCursor int64               `json:"outputCursor"`
}

// PullRequestView pairs an observed PR with its CI jobs.
type PullRequestView struct {
	PR   models.GithubPR      `json:"pr"`
	Jobs []models.GithubPRJob `json:"jobs,omitempty"`
}

// Snapshot is the synced workspace state. Maps are never mutated in place;
// the reducer copies the map it changes and shares the rest.
type Snapshot struct {
	Directories   map[string]models.Directory
	Repositories  map[string]models.Repository
	Conversations map[string]models.Conversation
	Tasks         map[string]models.Task
	GitSnapshots  map[string]models.DirectoryGitSnapshot
	PullRequests  map[string]PullRequestView
	Sessions      map[string]SessionView
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Directories:   map[string]models.Directory{},
		Repositories:  map[string]models.Repository{},
		Conversations: map[string]models.Conversation{},
		Tasks:         map[string]models.Task{},
		GitSnapshots:  map[string]models.DirectoryGitSnapshot{},
		PullRequests:  map[string]PullRequestView{},
		Sessions:      map[string]SessionView{},
	}
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
