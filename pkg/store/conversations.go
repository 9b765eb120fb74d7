package store

import (
	"sort"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/models"
)

// CreateConversation creates a conversation under an existing directory.
// ptyLive reports whether a PTY for the id is already running, which decides
// the initial runtime status.
func (s *Store) CreateConversation(conversationID, directoryID, title, agentType string, adapterState map[string]any, ptyLive bool) (models.Conversation, []events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, ok := s.directories[directoryID]
	if !ok || dir.ArchivedAt != nil {
		return models.Conversation{}, nil, notFound("directory", directoryID)
	}

	id := conversationID
	if id == "" {
		id = s.newID()
	} else if _, exists := s.conversations[id]; exists {
		return models.Conversation{}, nil, ErrAlreadyExists
	}

	status := models.RuntimeCompleted
	if ptyLive {
		status = models.RuntimeRunning
	}

	conv := &models.Conversation{
		ID:            id,
		Scope:         dir.Scope,
		DirectoryID:   directoryID,
		Title:         title,
		AgentType:     agentType,
		AdapterState:  adapterState,
		RuntimeStatus: status,
		RuntimeLive:   ptyLive,
		CreatedAt:     s.now(),
	}
	s.conversations[id] = conv

	ev := events.ConversationCreated{
		Meta:         s.meta(conv.Scope, directoryID, id),
		Conversation: *conv,
	}
	return *conv, s.publish(ev), nil
}

// GetConversation returns one conversation by id.
func (s *Store) GetConversation(conversationID string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.Conversation{}, notFound("conversation", conversationID)
	}
	return *conv, nil
}

// UpdateConversation renames a conversation.
func (s *Store) UpdateConversation(conversationID, title string) (models.Conversation, []events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.Conversation{}, nil, notFound("conversation", conversationID)
	}
	conv.Title = title

	ev := events.ConversationUpdated{
		Meta:         s.meta(conv.Scope, conv.DirectoryID, conversationID),
		Conversation: *conv,
	}
	return *conv, s.publish(ev), nil
}

// ArchiveConversation soft-deletes a conversation.
func (s *Store) ArchiveConversation(conversationID string) ([]events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, notFound("conversation", conversationID)
	}
	if conv.ArchivedAt != nil {
		return nil, nil
	}
	at := s.now()
	conv.ArchivedAt = &at

	ev := events.ConversationArchived{Meta: s.meta(conv.Scope, conv.DirectoryID, conversationID)}
	return s.publish(ev), nil
}

// DeleteConversation removes the record. The caller is responsible for
// closing any live session first; the command dispatcher does both as one
// step.
func (s *Store) DeleteConversation(conversationID string) ([]events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, notFound("conversation", conversationID)
	}
	delete(s.conversations, conversationID)

	ev := events.ConversationDeleted{Meta: s.meta(conv.Scope, conv.DirectoryID, conversationID)}
	return s.publish(ev), nil
}

// ListConversations returns the scope's conversations ordered by lastEventAt
// descending (nulls after non-nulls), then createdAt descending, then id.
func (s *Store) ListConversations(scope models.Scope, directoryID string, includeArchived bool, limit *int) []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Conversation, 0)
	for _, c := range s.conversations {
		if c.Scope != scope {
			continue
		}
		if directoryID != "" && c.DirectoryID != directoryID {
			continue
		}
		if c.ArchivedAt != nil && !includeArchived {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.LastEventAt != nil && b.LastEventAt == nil:
			return true
		case a.LastEventAt == nil && b.LastEventAt != nil:
			return false
		case a.LastEventAt != nil && b.LastEventAt != nil && !a.LastEventAt.Equal(*b.LastEventAt):
			return a.LastEventAt.After(*b.LastEventAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return clip(out, limit)
}
