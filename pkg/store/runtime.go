package store

import (
	"encoding/base64"
	"strconv"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/models"
)

// The methods below are the session registry's hooks into the store. A
// session id equals its conversation id, so runtime transitions land on the
// conversation record. Sessions without a conversation (removed mid-flight)
// still produce events carrying the session id alone. Like every other
// mutation, each hook commits and publishes its events in one critical
// section.

// SessionStarted marks the conversation live.
func (s *Store) SessionStarted(sessionID string, status models.RuntimeStatus) []events.Observed {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil
	}
	at := s.now()
	conv.RuntimeLive = true
	conv.RuntimeStatus = status
	conv.RuntimeLastExit = nil
	conv.LastEventAt = &at

	return s.publish(events.ConversationUpdated{
		Meta:         s.meta(conv.Scope, conv.DirectoryID, sessionID),
		Conversation: *conv,
	})
}

// SessionExited records the exit on the conversation and emits the
// session-exit event.
func (s *Store) SessionExited(sessionID string, exit models.ExitStatus) []events.Observed {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.meta(models.Scope{}, "", sessionID)
	if conv, ok := s.conversations[sessionID]; ok {
		at := s.now()
		conv.RuntimeLive = false
		conv.RuntimeStatus = models.RuntimeExited
		conv.RuntimeLastExit = &exit
		conv.LastEventAt = &at
		meta = s.meta(conv.Scope, conv.DirectoryID, sessionID)
	}

	return s.publish(events.SessionExit{
		Meta:      meta,
		SessionID: sessionID,
		Exit:      exit,
	})
}

// StatusModelApplied stores the reducer's latest status model on the
// conversation and emits the session-status event.
func (s *Store) StatusModelApplied(sessionID string, model models.StatusModel) []events.Observed {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.meta(models.Scope{}, "", sessionID)
	if conv, ok := s.conversations[sessionID]; ok {
		conv.RuntimeStatus = model.RuntimeStatus
		m := model
		conv.RuntimeStatusModel = &m
		at := model.ObservedAt
		conv.LastEventAt = &at
		meta = s.meta(conv.Scope, conv.DirectoryID, sessionID)
	}

	return s.publish(events.SessionStatus{
		Meta:      meta,
		SessionID: sessionID,
		Status:    model,
	})
}

// ControlChanged emits the session-control event for a claim, takeover or
// release.
func (s *Store) ControlChanged(sessionID, action string, controller, previous *models.Controller, reason string) []events.Observed {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.meta(models.Scope{}, "", sessionID)
	if conv, ok := s.conversations[sessionID]; ok {
		meta = s.meta(conv.Scope, conv.DirectoryID, sessionID)
	}

	return s.publish(events.SessionControl{
		Meta:               meta,
		SessionID:          sessionID,
		Action:             action,
		Controller:         controller,
		PreviousController: previous,
		Reason:             reason,
	})
}

// OutputObserved mirrors one PTY output chunk into the observed stream for
// includeOutput subscriptions.
func (s *Store) OutputObserved(sessionID string, cursor int64, chunk []byte) []events.Observed {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.meta(models.Scope{}, "", sessionID)
	if conv, ok := s.conversations[sessionID]; ok {
		meta = s.meta(conv.Scope, conv.DirectoryID, sessionID)
	}

	return s.publish(events.SessionOutput{
		Meta:        meta,
		SessionID:   sessionID,
		Cursor:      cursor,
		ChunkBase64: base64.StdEncoding.EncodeToString(chunk),
	})
}

// --- GitHub pull-request ingest ---

// UpsertGithubPR stores observed PR state and emits the github-pr-upserted
// event.
func (s *Store) UpsertGithubPR(scope models.Scope, pr models.GithubPR) []events.Observed {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := prKey(pr.RepositoryID, pr.Number)
	state, ok := s.pullRequests[key]
	if !ok {
		state = &githubPRState{}
		s.pullRequests[key] = state
	}
	state.pr = pr

	return s.publish(events.GithubPRUpserted{
		Meta: s.meta(scope, "", ""),
		PR:   pr,
	})
}

// CloseGithubPR drops a PR from the observed set.
func (s *Store) CloseGithubPR(scope models.Scope, repositoryID string, number int) []events.Observed {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pullRequests, prKey(repositoryID, number))

	return s.publish(events.GithubPRClosed{
		Meta:         s.meta(scope, "", ""),
		RepositoryID: repositoryID,
		Number:       number,
	})
}

// UpdateGithubPRJobs replaces the CI job list attached to a PR.
func (s *Store) UpdateGithubPRJobs(scope models.Scope, repositoryID string, number int, jobs []models.GithubPRJob) []events.Observed {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.pullRequests[prKey(repositoryID, number)]; ok {
		state.jobs = jobs
	}

	return s.publish(events.GithubPRJobsUpdated{
		Meta:         s.meta(scope, "", ""),
		RepositoryID: repositoryID,
		Number:       number,
		Jobs:         jobs,
	})
}

func prKey(repositoryID string, number int) string {
	return repositoryID + "#" + strconv.Itoa(number)
}
