package client

import (
	"strconv"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/models"
)

// Reduce folds one observed event into the snapshot. It returns the new
// snapshot and whether anything changed; an event that changes nothing
// returns the input pointer unchanged.
func Reduce(s *Snapshot, ev events.Observed) (*Snapshot, bool) {
	switch e := ev.(type) {
	case events.DirectoryUpserted:
		next := shallow(s)
		next.Directories = cloneMap(s.Directories)
		next.Directories[e.Directory.ID] = e.Directory
		return next, true

	case events.DirectoryArchived:
		dir, ok := s.Directories[e.DirectoryID]
		if !ok || dir.ArchivedAt != nil {
			return s, false
		}
		at := e.TS
		dir.ArchivedAt = &at
		next := shallow(s)
		next.Directories = cloneMap(s.Directories)
		next.Directories[dir.ID] = dir
		return next, true

	case events.DirectoryGitUpdated:
		next := shallow(s)
		next.GitSnapshots = cloneMap(s.GitSnapshots)
		next.GitSnapshots[e.DirectoryID] = e.Snapshot
		return next, true

	case events.RepositoryUpserted:
		return putRepository(s, e.Repository)
	case events.RepositoryUpdated:
		return putRepository(s, e.Repository)

	case events.RepositoryArchived:
		repo, ok := s.Repositories[e.RepositoryID]
		if !ok || repo.ArchivedAt != nil {
			return s, false
		}
		at := e.TS
		repo.ArchivedAt = &at
		next := shallow(s)
		next.Repositories = cloneMap(s.Repositories)
		next.Repositories[repo.ID] = repo
		return next, true

	case events.ConversationCreated:
		return putConversation(s, e.Conversation)
	case events.ConversationUpdated:
		return putConversation(s, e.Conversation)

	case events.ConversationArchived:
		conv, ok := s.Conversations[e.ConversationID]
		if !ok || conv.ArchivedAt != nil {
			return s, false
		}
		at := e.TS
		conv.ArchivedAt = &at
		next := shallow(s)
		next.Conversations = cloneMap(s.Conversations)
		next.Conversations[conv.ID] = conv
		return next, true

	case events.ConversationDeleted:
		if _, ok := s.Conversations[e.ConversationID]; !ok {
			return s, false
		}
		next := shallow(s)
		next.Conversations = cloneMap(s.Conversations)
		delete(next.Conversations, e.ConversationID)
		return next, true

	case events.TaskCreated:
		return putTask(s, e.Task)
	case events.TaskUpdated:
		return putTask(s, e.Task)

	case events.TaskReordered:
		next := shallow(s)
		next.Tasks = cloneMap(s.Tasks)
		for _, task := range e.Tasks {
			next.Tasks[task.ID] = task
		}
		return next, true

	case events.SessionStatus:
		view := s.Sessions[e.SessionID]
		view.SessionID = e.SessionID
		view.Live = true
		status := e.Status
		view.Status = &status
		return putSession(s, view)

	case events.SessionControl:
		view := s.Sessions[e.SessionID]
		view.SessionID = e.SessionID
		view.Controller = e.Controller
		return putSession(s, view)

	case events.SessionOutput:
		view := s.Sessions[e.SessionID]
		if e.Cursor <= view.OutputCursor {
			return s, false
		}
		view.SessionID = e.SessionID
		view.Live = true
		view.OutputCursor = e.Cursor
		return putSession(s, view)

	case events.SessionExit:
		view := s.Sessions[e.SessionID]
		view.SessionID = e.SessionID
		view.Live = false
		exit := e.Exit
		view.LastExit = &exit
		return putSession(s, view)

	case events.GithubPRUpserted:
		key := prKey(e.PR.RepositoryID, e.PR.Number)
		view := s.PullRequests[key]
		view.PR = e.PR
		next := shallow(s)
		next.PullRequests = cloneMap(s.PullRequests)
		next.PullRequests[key] = view
		return next, true

	case events.GithubPRClosed:
		key := prKey(e.RepositoryID, e.Number)
		if _, ok := s.PullRequests[key]; !ok {
			return s, false
		}
		next := shallow(s)
		next.PullRequests = cloneMap(s.PullRequests)
		delete(next.PullRequests, key)
		return next, true

	case events.GithubPRJobsUpdated:
		key := prKey(e.RepositoryID, e.Number)
		view, ok := s.PullRequests[key]
		if !ok {
			return s, false
		}
		view.Jobs = e.Jobs
		next := shallow(s)
		next.PullRequests = cloneMap(s.PullRequests)
		next.PullRequests[key] = view
		return next, true
	}

	// Unknown event kinds are ignored so newer servers stay compatible.
	return s, false
}

func shallow(s *Snapshot) *Snapshot {
	next := *s
	return &next
}

func putRepository(s *Snapshot, repo models.Repository) (*Snapshot, bool) {
	next := shallow(s)
	next.Repositories = cloneMap(s.Repositories)
	next.Repositories[repo.ID] = repo
	return next, true
}

func putConversation(s *Snapshot, conv models.Conversation) (*Snapshot, bool) {
	next := shallow(s)
	next.Conversations = cloneMap(s.Conversations)
	next.Conversations[conv.ID] = conv
	return next, true
}

func putTask(s *Snapshot, task models.Task) (*Snapshot, bool) {
	next := shallow(s)
	next.Tasks = cloneMap(s.Tasks)
	next.Tasks[task.ID] = task
	return next, true
}

func putSession(s *Snapshot, view SessionView) (*Snapshot, bool) {
	next := shallow(s)
	next.Sessions = cloneMap(s.Sessions)
	next.Sessions[view.SessionID] = view
	return next, true
}

func prKey(repositoryID string, number int) string {
	return repositoryID + "#" + strconv.Itoa(number)
}
