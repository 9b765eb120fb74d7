package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/devharness/harnessd/pkg/models"
)

// Command type discriminators.
const (
	CmdDirectoryUpsert   = "directory.upsert"
	CmdDirectoryList     = "directory.list"
	CmdDirectoryArchive  = "directory.archive"
	CmdDirectoryGitState = "directory.git-status"
	CmdDirectoryGitIn    = "directory.git-update"

	CmdRepositoryUpsert  = "repository.upsert"
	CmdRepositoryGet     = "repository.get"
	CmdRepositoryList    = "repository.list"
	CmdRepositoryUpdate  = "repository.update"
	CmdRepositoryArchive = "repository.archive"

	CmdConversationCreate  = "conversation.create"
	CmdConversationUpdate  = "conversation.update"
	CmdConversationArchive = "conversation.archive"
	CmdConversationDelete  = "conversation.delete"
	CmdConversationList    = "conversation.list"

	CmdTaskCreate   = "task.create"
	CmdTaskReady    = "task.ready"
	CmdTaskDraft    = "task.draft"
	CmdTaskComplete = "task.complete"
	CmdTaskReorder  = "task.reorder"
	CmdTaskClaim    = "task.claim"
	CmdTaskPull     = "task.pull"
	CmdTaskList     = "task.list"

	CmdPtyStart             = "pty.start"
	CmdPtyAttach            = "pty.attach"
	CmdPtyDetach            = "pty.detach"
	CmdPtyClose             = "pty.close"
	CmdPtySubscribeEvents   = "pty.subscribe-events"
	CmdPtyUnsubscribeEvents = "pty.unsubscribe-events"

	CmdSessionClaim     = "session.claim"
	CmdSessionRelease   = "session.release"
	CmdSessionRespond   = "session.respond"
	CmdSessionInterrupt = "session.interrupt"
	CmdSessionRemove    = "session.remove"
	CmdSessionList      = "session.list"
	CmdSessionStatus    = "session.status"

	CmdStreamSubscribe   = "stream.subscribe"
	CmdStreamUnsubscribe = "stream.unsubscribe"

	CmdGithubPRIngest = "github.pr-ingest"
)

// Cmd is the sum type of command payloads carried inside command envelopes.
type Cmd interface {
	CmdType() string
	// validate is called after JSON decoding; it enforces required fields,
	// closed enums, and numeric ranges.
	validate() error
}

// errField builds the uniform validation error.
func errField(cmdType, field, problem string) error {
	return fmt.Errorf("%s: field %q %s", cmdType, field, problem)
}

func validateScope(cmdType string, s models.Scope) error {
	if s.TenantID == "" || s.UserID == "" || s.WorkspaceID == "" {
		return errField(cmdType, "scope", "requires tenantId, userId and workspaceId")
	}
	return nil
}

func validateLimit(cmdType string, limit *int) error {
	if limit != nil && *limit < 1 {
		return errField(cmdType, "limit", "must be >= 1")
	}
	return nil
}

func validateOptionalID(cmdType, field, id string) error {
	if len(id) > maxIDLen {
		return errField(cmdType, field, "exceeds 128 characters")
	}
	return nil
}

func validateRequiredID(cmdType, field, id string) error {
	if id == "" {
		return errField(cmdType, field, "is required")
	}
	return validateOptionalID(cmdType, field, id)
}

// --- Directory commands ---

type DirectoryUpsertCmd struct {
	DirectoryID string       `json:"directoryId,omitempty"`
	Scope       models.Scope `json:"scope"`
	Path        string       `json:"path"`
}

func (DirectoryUpsertCmd) CmdType() string { return CmdDirectoryUpsert }

func (c DirectoryUpsertCmd) validate() error {
	if err := validateScope(CmdDirectoryUpsert, c.Scope); err != nil {
		return err
	}
	if err := validateOptionalID(CmdDirectoryUpsert, "directoryId", c.DirectoryID); err != nil {
		return err
	}
	if c.Path == "" {
		return errField(CmdDirectoryUpsert, "path", "is required")
	}
	return nil
}

type DirectoryListCmd struct {
	Scope           models.Scope `json:"scope"`
	IncludeArchived bool         `json:"includeArchived,omitempty"`
	Limit           *int         `json:"limit,omitempty"`
}

func (DirectoryListCmd) CmdType() string { return CmdDirectoryList }

func (c DirectoryListCmd) validate() error {
	if err := validateScope(CmdDirectoryList, c.Scope); err != nil {
		return err
	}
	return validateLimit(CmdDirectoryList, c.Limit)
}

type DirectoryArchiveCmd struct {
	DirectoryID string `json:"directoryId"`
}

func (DirectoryArchiveCmd) CmdType() string { return CmdDirectoryArchive }

func (c DirectoryArchiveCmd) validate() error {
	return validateRequiredID(CmdDirectoryArchive, "directoryId", c.DirectoryID)
}

type DirectoryGitStatusCmd struct {
	Scope       models.Scope `json:"scope"`
	DirectoryID string       `json:"directoryId,omitempty"`
}

func (DirectoryGitStatusCmd) CmdType() string { return CmdDirectoryGitState }

func (c DirectoryGitStatusCmd) validate() error {
	if err := validateScope(CmdDirectoryGitState, c.Scope); err != nil {
		return err
	}
	return validateOptionalID(CmdDirectoryGitState, "directoryId", c.DirectoryID)
}

// DirectoryGitUpdateCmd ingests a fresh git snapshot for one directory, as
// produced by a workspace watcher.
type DirectoryGitUpdateCmd struct {
	Scope    models.Scope                `json:"scope"`
	Snapshot models.DirectoryGitSnapshot `json:"snapshot"`
}

func (DirectoryGitUpdateCmd) CmdType() string { return CmdDirectoryGitIn }

func (c DirectoryGitUpdateCmd) validate() error {
	if err := validateScope(CmdDirectoryGitIn, c.Scope); err != nil {
		return err
	}
	return validateRequiredID(CmdDirectoryGitIn, "snapshot.directoryId", c.Snapshot.DirectoryID)
}

// --- Repository commands ---

type RepositoryUpsertCmd struct {
	RepositoryID  string         `json:"repositoryId,omitempty"`
	Scope         models.Scope   `json:"scope"`
	Name          string         `json:"name"`
	RemoteURL     string         `json:"remoteUrl,omitempty"`
	DefaultBranch string         `json:"defaultBranch,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (RepositoryUpsertCmd) CmdType() string { return CmdRepositoryUpsert }

func (c RepositoryUpsertCmd) validate() error {
	if err := validateScope(CmdRepositoryUpsert, c.Scope); err != nil {
		return err
	}
	if err := validateOptionalID(CmdRepositoryUpsert, "repositoryId", c.RepositoryID); err != nil {
		return err
	}
	if c.Name == "" {
		return errField(CmdRepositoryUpsert, "name", "is required")
	}
	return nil
}

type RepositoryGetCmd struct {
	RepositoryID string `json:"repositoryId"`
}

func (RepositoryGetCmd) CmdType() string { return CmdRepositoryGet }

func (c RepositoryGetCmd) validate() error {
	return validateRequiredID(CmdRepositoryGet, "repositoryId", c.RepositoryID)
}

type RepositoryListCmd struct {
	Scope           models.Scope `json:"scope"`
	IncludeArchived bool         `json:"includeArchived,omitempty"`
	Limit           *int         `json:"limit,omitempty"`
}

func (RepositoryListCmd) CmdType() string { return CmdRepositoryList }

func (c RepositoryListCmd) validate() error {
	if err := validateScope(CmdRepositoryList, c.Scope); err != nil {
		return err
	}
	return validateLimit(CmdRepositoryList, c.Limit)
}

type RepositoryUpdateCmd struct {
	RepositoryID  string         `json:"repositoryId"`
	Name          *string        `json:"name,omitempty"`
	RemoteURL     *string        `json:"remoteUrl,omitempty"`
	DefaultBranch *string        `json:"defaultBranch,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (RepositoryUpdateCmd) CmdType() string { return CmdRepositoryUpdate }

func (c RepositoryUpdateCmd) validate() error {
	if err := validateRequiredID(CmdRepositoryUpdate, "repositoryId", c.RepositoryID); err != nil {
		return err
	}
	if c.Name != nil && *c.Name == "" {
		return errField(CmdRepositoryUpdate, "name", "may not be empty")
	}
	return nil
}

type RepositoryArchiveCmd struct {
	RepositoryID string `json:"repositoryId"`
}

func (RepositoryArchiveCmd) CmdType() string { return CmdRepositoryArchive }

func (c RepositoryArchiveCmd) validate() error {
	return validateRequiredID(CmdRepositoryArchive, "repositoryId", c.RepositoryID)
}

// --- Conversation commands ---

type ConversationCreateCmd struct {
	ConversationID string         `json:"conversationId,omitempty"`
	DirectoryID    string         `json:"directoryId"`
	Title          string         `json:"title"`
	AgentType      string         `json:"agentType"`
	AdapterState   map[string]any `json:"adapterState,omitempty"`
}

func (ConversationCreateCmd) CmdType() string { return CmdConversationCreate }

func (c ConversationCreateCmd) validate() error {
	if err := validateOptionalID(CmdConversationCreate, "conversationId", c.ConversationID); err != nil {
		return err
	}
	if err := validateRequiredID(CmdConversationCreate, "directoryId", c.DirectoryID); err != nil {
		return err
	}
	if c.Title == "" {
		return errField(CmdConversationCreate, "title", "is required")
	}
	if c.AgentType == "" {
		return errField(CmdConversationCreate, "agentType", "is required")
	}
	return nil
}

type ConversationUpdateCmd struct {
	ConversationID string `json:"conversationId"`
	Title          string `json:"title"`
}

func (ConversationUpdateCmd) CmdType() string { return CmdConversationUpdate }

func (c ConversationUpdateCmd) validate() error {
	if err := validateRequiredID(CmdConversationUpdate, "conversationId", c.ConversationID); err != nil {
		return err
	}
	if c.Title == "" {
		return errField(CmdConversationUpdate, "title", "is required")
	}
	return nil
}

type ConversationArchiveCmd struct {
	ConversationID string `json:"conversationId"`
}

func (ConversationArchiveCmd) CmdType() string { return CmdConversationArchive }

func (c ConversationArchiveCmd) validate() error {
	return validateRequiredID(CmdConversationArchive, "conversationId", c.ConversationID)
}

type ConversationDeleteCmd struct {
	ConversationID string `json:"conversationId"`
}

func (ConversationDeleteCmd) CmdType() string { return CmdConversationDelete }

func (c ConversationDeleteCmd) validate() error {
	return validateRequiredID(CmdConversationDelete, "conversationId", c.ConversationID)
}

type ConversationListCmd struct {
	Scope           models.Scope `json:"scope"`
	DirectoryID     string       `json:"directoryId,omitempty"`
	IncludeArchived bool         `json:"includeArchived,omitempty"`
	Limit           *int         `json:"limit,omitempty"`
}

func (ConversationListCmd) CmdType() string { return CmdConversationList }

func (c ConversationListCmd) validate() error {
	if err := validateScope(CmdConversationList, c.Scope); err != nil {
		return err
	}
	if err := validateOptionalID(CmdConversationList, "directoryId", c.DirectoryID); err != nil {
		return err
	}
	return validateLimit(CmdConversationList, c.Limit)
}

// --- Task commands ---

type TaskCreateCmd struct {
	Scope        models.Scope     `json:"scope"`
	TaskScope    models.TaskScope `json:"taskScope"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	RepositoryID string           `json:"repositoryId,omitempty"`
	ProjectID    string           `json:"projectId,omitempty"`
	Linear       map[string]any   `json:"linear,omitempty"`
}

func (TaskCreateCmd) CmdType() string { return CmdTaskCreate }

func (c TaskCreateCmd) validate() error {
	if err := validateScope(CmdTaskCreate, c.Scope); err != nil {
		return err
	}
	if err := validateTaskScope(CmdTaskCreate, c.TaskScope); err != nil {
		return err
	}
	if c.Title == "" {
		return errField(CmdTaskCreate, "title", "is required")
	}
	return nil
}

func validateTaskScope(cmdType string, ts models.TaskScope) error {
	if !models.ValidTaskScopeKind(ts.Kind) {
		return errField(cmdType, "taskScope.kind", "must be global, repository or project")
	}
	if ts.Kind == models.TaskScopeGlobal {
		if ts.ScopeID != "" {
			return errField(cmdType, "taskScope.scopeId", "must be empty for global scope")
		}
		return nil
	}
	return validateRequiredID(cmdType, "taskScope.scopeId", ts.ScopeID)
}

type TaskReadyCmd struct {
	TaskID string `json:"taskId"`
}

func (TaskReadyCmd) CmdType() string { return CmdTaskReady }

func (c TaskReadyCmd) validate() error {
	return validateRequiredID(CmdTaskReady, "taskId", c.TaskID)
}

type TaskDraftCmd struct {
	TaskID string `json:"taskId"`
}

func (TaskDraftCmd) CmdType() string { return CmdTaskDraft }

func (c TaskDraftCmd) validate() error {
	return validateRequiredID(CmdTaskDraft, "taskId", c.TaskID)
}

type TaskCompleteCmd struct {
	TaskID string `json:"taskId"`
}

func (TaskCompleteCmd) CmdType() string { return CmdTaskComplete }

func (c TaskCompleteCmd) validate() error {
	return validateRequiredID(CmdTaskComplete, "taskId", c.TaskID)
}

type TaskReorderCmd struct {
	Scope          models.Scope     `json:"scope"`
	TaskScope      models.TaskScope `json:"taskScope"`
	OrderedTaskIDs []string         `json:"orderedTaskIds"`
}

func (TaskReorderCmd) CmdType() string { return CmdTaskReorder }

func (c TaskReorderCmd) validate() error {
	if err := validateScope(CmdTaskReorder, c.Scope); err != nil {
		return err
	}
	if err := validateTaskScope(CmdTaskReorder, c.TaskScope); err != nil {
		return err
	}
	if len(c.OrderedTaskIDs) == 0 {
		return errField(CmdTaskReorder, "orderedTaskIds", "is required")
	}
	for _, id := range c.OrderedTaskIDs {
		if err := validateRequiredID(CmdTaskReorder, "orderedTaskIds[]", id); err != nil {
			return err
		}
	}
	return nil
}

type TaskClaimCmd struct {
	TaskID       string `json:"taskId"`
	ControllerID string `json:"controllerId"`
	ProjectID    string `json:"projectId,omitempty"`
	BranchName   string `json:"branchName,omitempty"`
	BaseBranch   string `json:"baseBranch,omitempty"`
}

func (TaskClaimCmd) CmdType() string { return CmdTaskClaim }

func (c TaskClaimCmd) validate() error {
	if err := validateRequiredID(CmdTaskClaim, "taskId", c.TaskID); err != nil {
		return err
	}
	return validateRequiredID(CmdTaskClaim, "controllerId", c.ControllerID)
}

type TaskPullCmd struct {
	Scope        models.Scope `json:"scope"`
	ControllerID string       `json:"controllerId"`
	ProjectID    string       `json:"projectId,omitempty"`
	RepositoryID string       `json:"repositoryId,omitempty"`
	BranchName   string       `json:"branchName,omitempty"`
	BaseBranch   string       `json:"baseBranch,omitempty"`
}

func (TaskPullCmd) CmdType() string { return CmdTaskPull }

func (c TaskPullCmd) validate() error {
	if err := validateScope(CmdTaskPull, c.Scope); err != nil {
		return err
	}
	return validateRequiredID(CmdTaskPull, "controllerId", c.ControllerID)
}

type TaskListCmd struct {
	Scope     models.Scope      `json:"scope"`
	TaskScope *models.TaskScope `json:"taskScope,omitempty"`
}

func (TaskListCmd) CmdType() string { return CmdTaskList }

func (c TaskListCmd) validate() error {
	if err := validateScope(CmdTaskList, c.Scope); err != nil {
		return err
	}
	if c.TaskScope != nil {
		return validateTaskScope(CmdTaskList, *c.TaskScope)
	}
	return nil
}

// --- PTY commands ---

type PtyStartCmd struct {
	ConversationID string `json:"conversationId"`
	InitialCols    int    `json:"initialCols,omitempty"`
	InitialRows    int    `json:"initialRows,omitempty"`
}

func (PtyStartCmd) CmdType() string { return CmdPtyStart }

func (c PtyStartCmd) validate() error {
	if err := validateRequiredID(CmdPtyStart, "conversationId", c.ConversationID); err != nil {
		return err
	}
	if c.InitialCols < 0 || c.InitialCols > maxDim {
		return errField(CmdPtyStart, "initialCols", "out of range")
	}
	if c.InitialRows < 0 || c.InitialRows > maxDim {
		return errField(CmdPtyStart, "initialRows", "out of range")
	}
	return nil
}

type PtyAttachCmd struct {
	SessionID   string `json:"sessionId"`
	SinceCursor *int64 `json:"sinceCursor,omitempty"`
}

func (PtyAttachCmd) CmdType() string { return CmdPtyAttach }

func (c PtyAttachCmd) validate() error {
	if err := validateRequiredID(CmdPtyAttach, "sessionId", c.SessionID); err != nil {
		return err
	}
	if c.SinceCursor != nil && *c.SinceCursor < 0 {
		return errField(CmdPtyAttach, "sinceCursor", "must be >= 0")
	}
	return nil
}

type PtyDetachCmd struct {
	SessionID string `json:"sessionId"`
}

func (PtyDetachCmd) CmdType() string { return CmdPtyDetach }

func (c PtyDetachCmd) validate() error {
	return validateRequiredID(CmdPtyDetach, "sessionId", c.SessionID)
}

type PtyCloseCmd struct {
	SessionID string `json:"sessionId"`
}

func (PtyCloseCmd) CmdType() string { return CmdPtyClose }

func (c PtyCloseCmd) validate() error {
	return validateRequiredID(CmdPtyClose, "sessionId", c.SessionID)
}

type PtySubscribeEventsCmd struct {
	SessionID string `json:"sessionId"`
}

func (PtySubscribeEventsCmd) CmdType() string { return CmdPtySubscribeEvents }

func (c PtySubscribeEventsCmd) validate() error {
	return validateRequiredID(CmdPtySubscribeEvents, "sessionId", c.SessionID)
}

type PtyUnsubscribeEventsCmd struct {
	SessionID string `json:"sessionId"`
}

func (PtyUnsubscribeEventsCmd) CmdType() string { return CmdPtyUnsubscribeEvents }

func (c PtyUnsubscribeEventsCmd) validate() error {
	return validateRequiredID(CmdPtyUnsubscribeEvents, "sessionId", c.SessionID)
}

// --- Session control commands ---

type SessionClaimCmd struct {
	SessionID       string                `json:"sessionId"`
	ControllerID    string                `json:"controllerId"`
	ControllerType  models.ControllerType `json:"controllerType"`
	ControllerLabel string                `json:"controllerLabel,omitempty"`
	Reason          string                `json:"reason,omitempty"`
	Takeover        bool                  `json:"takeover,omitempty"`
}

func (SessionClaimCmd) CmdType() string { return CmdSessionClaim }

func (c SessionClaimCmd) validate() error {
	if err := validateRequiredID(CmdSessionClaim, "sessionId", c.SessionID); err != nil {
		return err
	}
	if err := validateRequiredID(CmdSessionClaim, "controllerId", c.ControllerID); err != nil {
		return err
	}
	if !models.ValidControllerType(c.ControllerType) {
		return errField(CmdSessionClaim, "controllerType", "must be human, agent or automation")
	}
	return nil
}

type SessionReleaseCmd struct {
	SessionID    string `json:"sessionId"`
	ControllerID string `json:"controllerId,omitempty"`
}

func (SessionReleaseCmd) CmdType() string { return CmdSessionRelease }

func (c SessionReleaseCmd) validate() error {
	if err := validateRequiredID(CmdSessionRelease, "sessionId", c.SessionID); err != nil {
		return err
	}
	return validateOptionalID(CmdSessionRelease, "controllerId", c.ControllerID)
}

type SessionRespondCmd struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

func (SessionRespondCmd) CmdType() string { return CmdSessionRespond }

func (c SessionRespondCmd) validate() error {
	if err := validateRequiredID(CmdSessionRespond, "sessionId", c.SessionID); err != nil {
		return err
	}
	if c.Text == "" {
		return errField(CmdSessionRespond, "text", "is required")
	}
	return nil
}

type SessionInterruptCmd struct {
	SessionID string `json:"sessionId"`
}

func (SessionInterruptCmd) CmdType() string { return CmdSessionInterrupt }

func (c SessionInterruptCmd) validate() error {
	return validateRequiredID(CmdSessionInterrupt, "sessionId", c.SessionID)
}

type SessionRemoveCmd struct {
	SessionID string `json:"sessionId"`
}

func (SessionRemoveCmd) CmdType() string { return CmdSessionRemove }

func (c SessionRemoveCmd) validate() error {
	return validateRequiredID(CmdSessionRemove, "sessionId", c.SessionID)
}

type SessionListCmd struct {
	Live bool `json:"live,omitempty"`
}

func (SessionListCmd) CmdType() string { return CmdSessionList }

func (SessionListCmd) validate() error { return nil }

type SessionStatusCmd struct {
	SessionID string `json:"sessionId"`
}

func (SessionStatusCmd) CmdType() string { return CmdSessionStatus }

func (c SessionStatusCmd) validate() error {
	return validateRequiredID(CmdSessionStatus, "sessionId", c.SessionID)
}

// --- Stream commands ---

type StreamSubscribeCmd struct {
	TenantID       string `json:"tenantId,omitempty"`
	UserID         string `json:"userId,omitempty"`
	WorkspaceID    string `json:"workspaceId,omitempty"`
	RepositoryID   string `json:"repositoryId,omitempty"`
	TaskID         string `json:"taskId,omitempty"`
	DirectoryID    string `json:"directoryId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	IncludeOutput  bool   `json:"includeOutput,omitempty"`
	AfterCursor    *int64 `json:"afterCursor,omitempty"`
}

func (StreamSubscribeCmd) CmdType() string { return CmdStreamSubscribe }

func (c StreamSubscribeCmd) validate() error {
	for field, id := range map[string]string{
		"repositoryId":   c.RepositoryID,
		"taskId":         c.TaskID,
		"directoryId":    c.DirectoryID,
		"conversationId": c.ConversationID,
	} {
		if err := validateOptionalID(CmdStreamSubscribe, field, id); err != nil {
			return err
		}
	}
	if c.AfterCursor != nil && *c.AfterCursor < 0 {
		return errField(CmdStreamSubscribe, "afterCursor", "must be >= 0")
	}
	return nil
}

type StreamUnsubscribeCmd struct {
	SubscriptionID string `json:"subscriptionId"`
}

func (StreamUnsubscribeCmd) CmdType() string { return CmdStreamUnsubscribe }

func (c StreamUnsubscribeCmd) validate() error {
	return validateRequiredID(CmdStreamUnsubscribe, "subscriptionId", c.SubscriptionID)
}

// --- External ingest commands ---

// GithubPRIngestCmd feeds observed pull-request state from the GitHub poller.
type GithubPRIngestCmd struct {
	Action       string               `json:"action"` // upserted | closed | jobs-updated
	Scope        models.Scope         `json:"scope"`
	PR           *models.GithubPR     `json:"pr,omitempty"`
	RepositoryID string               `json:"repositoryId,omitempty"`
	Number       int                  `json:"number,omitempty"`
	Jobs         []models.GithubPRJob `json:"jobs,omitempty"`
}

func (GithubPRIngestCmd) CmdType() string { return CmdGithubPRIngest }

func (c GithubPRIngestCmd) validate() error {
	if err := validateScope(CmdGithubPRIngest, c.Scope); err != nil {
		return err
	}
	switch c.Action {
	case "upserted":
		if c.PR == nil {
			return errField(CmdGithubPRIngest, "pr", "is required for upserted")
		}
		return validateRequiredID(CmdGithubPRIngest, "pr.repositoryId", c.PR.RepositoryID)
	case "closed", "jobs-updated":
		if c.Number < 1 {
			return errField(CmdGithubPRIngest, "number", "must be >= 1")
		}
		return validateRequiredID(CmdGithubPRIngest, "repositoryId", c.RepositoryID)
	}
	return errField(CmdGithubPRIngest, "action", "must be upserted, closed or jobs-updated")
}

// --- Union codec ---

// MarshalCmd serializes a command payload with its "type" discriminator.
func MarshalCmd(c Cmd) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("nil command")
	}
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", c.CmdType(), err)
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("encode %s command: %w", c.CmdType(), err)
	}
	m["type"] = c.CmdType()
	return json.Marshal(m)
}

// ParseCmd decodes and validates a command payload by its "type" field.
func ParseCmd(data []byte) (Cmd, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("command: %w", err)
	}

	switch probe.Type {
	case CmdDirectoryUpsert:
		return decodeCmd[DirectoryUpsertCmd](data)
	case CmdDirectoryList:
		return decodeCmd[DirectoryListCmd](data)
	case CmdDirectoryArchive:
		return decodeCmd[DirectoryArchiveCmd](data)
	case CmdDirectoryGitState:
		return decodeCmd[DirectoryGitStatusCmd](data)
	case CmdDirectoryGitIn:
		return decodeCmd[DirectoryGitUpdateCmd](data)
	case CmdRepositoryUpsert:
		return decodeCmd[RepositoryUpsertCmd](data)
	case CmdRepositoryGet:
		return decodeCmd[RepositoryGetCmd](data)
	case CmdRepositoryList:
		return decodeCmd[RepositoryListCmd](data)
	case CmdRepositoryUpdate:
		return decodeCmd[RepositoryUpdateCmd](data)
	case CmdRepositoryArchive:
		return decodeCmd[RepositoryArchiveCmd](data)
	case CmdConversationCreate:
		return decodeCmd[ConversationCreateCmd](data)
	case CmdConversationUpdate:
		return decodeCmd[ConversationUpdateCmd](data)
	case CmdConversationArchive:
		return decodeCmd[ConversationArchiveCmd](data)
	case CmdConversationDelete:
		return decodeCmd[ConversationDeleteCmd](data)
	case CmdConversationList:
		return decodeCmd[ConversationListCmd](data)
	case CmdTaskCreate:
		return decodeCmd[TaskCreateCmd](data)
	case CmdTaskReady:
		return decodeCmd[TaskReadyCmd](data)
	case CmdTaskDraft:
		return decodeCmd[TaskDraftCmd](data)
	case CmdTaskComplete:
		return decodeCmd[TaskCompleteCmd](data)
	case CmdTaskReorder:
		return decodeCmd[TaskReorderCmd](data)
	case CmdTaskClaim:
		return decodeCmd[TaskClaimCmd](data)
	case CmdTaskPull:
		return decodeCmd[TaskPullCmd](data)
	case CmdTaskList:
		return decodeCmd[TaskListCmd](data)
	case CmdPtyStart:
		return decodeCmd[PtyStartCmd](data)
	case CmdPtyAttach:
		return decodeCmd[PtyAttachCmd](data)
	case CmdPtyDetach:
		return decodeCmd[PtyDetachCmd](data)
	case CmdPtyClose:
		return decodeCmd[PtyCloseCmd](data)
	case CmdPtySubscribeEvents:
		return decodeCmd[PtySubscribeEventsCmd](data)
	case CmdPtyUnsubscribeEvents:
		return decodeCmd[PtyUnsubscribeEventsCmd](data)
	case CmdSessionClaim:
		return decodeCmd[SessionClaimCmd](data)
	case CmdSessionRelease:
		return decodeCmd[SessionReleaseCmd](data)
	case CmdSessionRespond:
		return decodeCmd[SessionRespondCmd](data)
	case CmdSessionInterrupt:
		return decodeCmd[SessionInterruptCmd](data)
	case CmdSessionRemove:
		return decodeCmd[SessionRemoveCmd](data)
	case CmdSessionList:
		return decodeCmd[SessionListCmd](data)
	case CmdSessionStatus:
		return decodeCmd[SessionStatusCmd](data)
	case CmdStreamSubscribe:
		return decodeCmd[StreamSubscribeCmd](data)
	case CmdStreamUnsubscribe:
		return decodeCmd[StreamUnsubscribeCmd](data)
	case CmdGithubPRIngest:
		return decodeCmd[GithubPRIngestCmd](data)
	default:
		return nil, fmt.Errorf("command: unknown type %q", probe.Type)
	}
}

func decodeCmd[T Cmd](data []byte) (Cmd, error) {
	var c T
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("command: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}
