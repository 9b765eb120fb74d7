package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devharness/harnessd/pkg/models"
)

func scopeA() models.Scope {
	return models.Scope{TenantID: "t1", UserID: "u1", WorkspaceID: "w1"}
}

func TestFilterMatches(t *testing.T) {
	meta := Meta{Scope: scopeA(), DirectoryID: "d1", ConversationID: "c1"}

	tests := []struct {
		name   string
		filter Filter
		event  Observed
		want   bool
	}{
		{
			"empty filter matches non-output events",
			Filter{},
			DirectoryArchived{Meta: meta},
			true,
		},
		{
			"output excluded by default",
			Filter{},
			SessionOutput{Meta: meta, SessionID: "c1", Cursor: 10},
			false,
		},
		{
			"output included when opted in",
			Filter{IncludeOutput: true},
			SessionOutput{Meta: meta, SessionID: "c1", Cursor: 10},
			true,
		},
		{
			"output still subject to scope clauses",
			Filter{IncludeOutput: true, TenantID: "other"},
			SessionOutput{Meta: meta, SessionID: "c1", Cursor: 10},
			false,
		},
		{
			"tenant mismatch",
			Filter{TenantID: "t2"},
			DirectoryArchived{Meta: meta},
			false,
		},
		{
			"full scope match",
			Filter{TenantID: "t1", UserID: "u1", WorkspaceID: "w1"},
			DirectoryArchived{Meta: meta},
			true,
		},
		{
			"directory clause",
			Filter{DirectoryID: "d2"},
			DirectoryArchived{Meta: meta},
			false,
		},
		{
			"conversation clause",
			Filter{ConversationID: "c1"},
			ConversationUpdated{Meta: meta},
			true,
		},
		{
			"repository narrower matches task events",
			Filter{RepositoryID: "r1"},
			TaskCreated{Meta: Meta{Scope: scopeA()}, Task: models.Task{ID: "tk1", RepositoryID: "r1"}},
			true,
		},
		{
			"repository narrower excludes unrelated kinds",
			Filter{RepositoryID: "r1"},
			DirectoryArchived{Meta: meta},
			false,
		},
		{
			"repository narrower on pr events",
			Filter{RepositoryID: "r1"},
			GithubPRClosed{Meta: Meta{Scope: scopeA()}, RepositoryID: "r1", Number: 7},
			true,
		},
		{
			"repository narrower on git snapshots",
			Filter{RepositoryID: "r1"},
			DirectoryGitUpdated{Meta: meta, Snapshot: models.DirectoryGitSnapshot{DirectoryID: "d1", RepositoryID: "r2"}},
			false,
		},
		{
			"task narrower matches reorder containing the task",
			Filter{TaskID: "tk2"},
			TaskReordered{Meta: Meta{Scope: scopeA()}, Tasks: []models.Task{{ID: "tk1"}, {ID: "tk2"}}},
			true,
		},
		{
			"task narrower excludes non-task kinds",
			Filter{TaskID: "tk1"},
			ConversationUpdated{Meta: meta},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.event))
		})
	}
}
