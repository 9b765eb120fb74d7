// Package events defines the observed-event taxonomy and the subscription
// multiplexer that fans events out to clients.
//
// Every mutation committed by the domain store and every session lifecycle
// transition produces exactly one observed event. Events are delivered inside
// stream.event envelopes with a per-subscription strictly increasing cursor;
// the same (subscriptionId, cursor) pair is never delivered twice.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/devharness/harnessd/pkg/models"
)

// Event type discriminators.
const (
	TypeDirectoryUpserted   = "directory-upserted"
	TypeDirectoryArchived   = "directory-archived"
	TypeDirectoryGitUpdated = "directory-git-updated"

	TypeRepositoryUpserted = "repository-upserted"
	TypeRepositoryUpdated  = "repository-updated"
	TypeRepositoryArchived = "repository-archived"

	TypeConversationCreated  = "conversation-created"
	TypeConversationUpdated  = "conversation-updated"
	TypeConversationArchived = "conversation-archived"
	TypeConversationDeleted  = "conversation-deleted"

	TypeTaskCreated   = "task-created"
	TypeTaskUpdated   = "task-updated"
	TypeTaskReordered = "task-reordered"

	TypeSessionStatus  = "session-status"
	TypeSessionControl = "session-control"
	TypeSessionOutput  = "session-output"
	TypeSessionExit    = "session-exit"

	TypeGithubPRUpserted    = "github-pr-upserted"
	TypeGithubPRClosed      = "github-pr-closed"
	TypeGithubPRJobsUpdated = "github-pr-jobs-updated"
)

// Meta carries the routing fields common to all observed events: the owning
// scope plus the directory/conversation the event touches, when any.
type Meta struct {
	Scope          models.Scope `json:"scope"`
	DirectoryID    string       `json:"directoryId,omitempty"`
	ConversationID string       `json:"conversationId,omitempty"`
	TS             time.Time    `json:"ts"`
}

// Observed is the sum type for every server-emitted event.
type Observed interface {
	EventType() string
	EventMeta() Meta
}

type DirectoryUpserted struct {
	Meta
	Directory models.Directory `json:"directory"`
}

type DirectoryArchived struct {
	Meta
}

type DirectoryGitUpdated struct {
	Meta
	Snapshot models.DirectoryGitSnapshot `json:"snapshot"`
}

type RepositoryUpserted struct {
	Meta
	Repository models.Repository `json:"repository"`
}

type RepositoryUpdated struct {
	Meta
	Repository models.Repository `json:"repository"`
}

type RepositoryArchived struct {
	Meta
	RepositoryID string `json:"repositoryId"`
}

type ConversationCreated struct {
	Meta
	Conversation models.Conversation `json:"conversation"`
}

type ConversationUpdated struct {
	Meta
	Conversation models.Conversation `json:"conversation"`
}

type ConversationArchived struct {
	Meta
}

type ConversationDeleted struct {
	Meta
}

type TaskCreated struct {
	Meta
	Task models.Task `json:"task"`
}

type TaskUpdated struct {
	Meta
	Task models.Task `json:"task"`
}

// TaskReordered carries the full post-reorder ordering for its scope.
type TaskReordered struct {
	Meta
	TaskScope models.TaskScope `json:"taskScope"`
	Tasks     []models.Task    `json:"tasks"`
}

type SessionStatus struct {
	Meta
	SessionID string             `json:"sessionId"`
	Status    models.StatusModel `json:"status"`
}

// SessionControl records a claim, takeover, or release. PreviousController is
// set only for takeovers.
type SessionControl struct {
	Meta
	SessionID          string             `json:"sessionId"`
	Action             string             `json:"action"` // claimed | taken-over | released
	Controller         *models.Controller `json:"controller,omitempty"`
	PreviousController *models.Controller `json:"previousController,omitempty"`
	Reason             string             `json:"reason,omitempty"`
}

// SessionOutput mirrors a PTY output chunk into the observed stream for
// subscriptions that opted in via includeOutput.
type SessionOutput struct {
	Meta
	SessionID   string `json:"sessionId"`
	Cursor      int64  `json:"cursor"`
	ChunkBase64 string `json:"chunkBase64"`
}

type SessionExit struct {
	Meta
	SessionID string            `json:"sessionId"`
	Exit      models.ExitStatus `json:"exit"`
}

type GithubPRUpserted struct {
	Meta
	PR models.GithubPR `json:"pr"`
}

type GithubPRClosed struct {
	Meta
	RepositoryID string `json:"repositoryId"`
	Number       int    `json:"number"`
}

type GithubPRJobsUpdated struct {
	Meta
	RepositoryID string               `json:"repositoryId"`
	Number       int                  `json:"number"`
	Jobs         []models.GithubPRJob `json:"jobs"`
}

func (DirectoryUpserted) EventType() string    { return TypeDirectoryUpserted }
func (DirectoryArchived) EventType() string    { return TypeDirectoryArchived }
func (DirectoryGitUpdated) EventType() string  { return TypeDirectoryGitUpdated }
func (RepositoryUpserted) EventType() string   { return TypeRepositoryUpserted }
func (RepositoryUpdated) EventType() string    { return TypeRepositoryUpdated }
func (RepositoryArchived) EventType() string   { return TypeRepositoryArchived }
func (ConversationCreated) EventType() string  { return TypeConversationCreated }
func (ConversationUpdated) EventType() string  { return TypeConversationUpdated }
func (ConversationArchived) EventType() string { return TypeConversationArchived }
func (ConversationDeleted) EventType() string  { return TypeConversationDeleted }
func (TaskCreated) EventType() string          { return TypeTaskCreated }
func (TaskUpdated) EventType() string          { return TypeTaskUpdated }
func (TaskReordered) EventType() string        { return TypeTaskReordered }
func (SessionStatus) EventType() string        { return TypeSessionStatus }
func (SessionControl) EventType() string       { return TypeSessionControl }
func (SessionOutput) EventType() string        { return TypeSessionOutput }
func (SessionExit) EventType() string          { return TypeSessionExit }
func (GithubPRUpserted) EventType() string     { return TypeGithubPRUpserted }
func (GithubPRClosed) EventType() string       { return TypeGithubPRClosed }
func (GithubPRJobsUpdated) EventType() string  { return TypeGithubPRJobsUpdated }

func (m Meta) EventMeta() Meta { return m }

// MarshalObserved serializes an event with its "type" discriminator injected.
func MarshalObserved(e Observed) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.EventType(), err)
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("reshape %s event: %w", e.EventType(), err)
	}
	m["type"] = e.EventType()
	return json.Marshal(m)
}

// ParseObserved decodes an event by its "type" discriminator. Unknown types
// and shape mismatches are errors; callers at the protocol boundary drop the
// enclosing envelope.
func ParseObserved(data []byte) (Observed, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("observed event: %w", err)
	}

	switch probe.Type {
	case TypeDirectoryUpserted:
		return decodeObserved[DirectoryUpserted](data)
	case TypeDirectoryArchived:
		return decodeObserved[DirectoryArchived](data)
	case TypeDirectoryGitUpdated:
		return decodeObserved[DirectoryGitUpdated](data)
	case TypeRepositoryUpserted:
		return decodeObserved[RepositoryUpserted](data)
	case TypeRepositoryUpdated:
		return decodeObserved[RepositoryUpdated](data)
	case TypeRepositoryArchived:
		return decodeObserved[RepositoryArchived](data)
	case TypeConversationCreated:
		return decodeObserved[ConversationCreated](data)
	case TypeConversationUpdated:
		return decodeObserved[ConversationUpdated](data)
	case TypeConversationArchived:
		return decodeObserved[ConversationArchived](data)
	case TypeConversationDeleted:
		return decodeObserved[ConversationDeleted](data)
	case TypeTaskCreated:
		return decodeObserved[TaskCreated](data)
	case TypeTaskUpdated:
		return decodeObserved[TaskUpdated](data)
	case TypeTaskReordered:
		return decodeObserved[TaskReordered](data)
	case TypeSessionStatus:
		return decodeObserved[SessionStatus](data)
	case TypeSessionControl:
		return decodeObserved[SessionControl](data)
	case TypeSessionOutput:
		return decodeObserved[SessionOutput](data)
	case TypeSessionExit:
		return decodeObserved[SessionExit](data)
	case TypeGithubPRUpserted:
		return decodeObserved[GithubPRUpserted](data)
	case TypeGithubPRClosed:
		return decodeObserved[GithubPRClosed](data)
	case TypeGithubPRJobsUpdated:
		return decodeObserved[GithubPRJobsUpdated](data)
	default:
		return nil, fmt.Errorf("observed event: unknown type %q", probe.Type)
	}
}

func decodeObserved[T Observed](data []byte) (Observed, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("observed event: %w", err)
	}
	return e, nil
}
