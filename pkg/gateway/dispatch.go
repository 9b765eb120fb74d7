package gateway

import (
	"fmt"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/models"
	"github.com/devharness/harnessd/pkg/protocol"
	"github.com/devharness/harnessd/pkg/session"
)

// dispatch routes one validated command to the store, the session registry or
// the multiplexer. Store mutations publish their observed events themselves,
// inside the store lock, so the dispatcher only shapes command results.
func (s *Server) dispatch(c *conn, cmd protocol.Cmd) (any, error) {
	if s.draining.Load() {
		return nil, fmt.Errorf("%w: command %s refused", ErrShuttingDown, cmd.CmdType())
	}

	switch cmd := cmd.(type) {

	// --- Directories ---

	case protocol.DirectoryUpsertCmd:
		dir, _, err := s.store.UpsertDirectory(cmd.DirectoryID, cmd.Scope, cmd.Path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"directory": dir}, nil

	case protocol.DirectoryListCmd:
		dirs := s.store.ListDirectories(cmd.Scope, cmd.IncludeArchived, cmd.Limit)
		return map[string]any{"directories": dirs}, nil

	case protocol.DirectoryArchiveCmd:
		_, err := s.store.ArchiveDirectory(cmd.DirectoryID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"archived": true}, nil

	case protocol.DirectoryGitStatusCmd:
		snaps := s.store.GitStatus(cmd.Scope, cmd.DirectoryID)
		return map[string]any{"snapshots": snaps}, nil

	case protocol.DirectoryGitUpdateCmd:
		_, err := s.store.UpdateGitSnapshot(cmd.Scope, cmd.Snapshot)
		if err != nil {
			return nil, err
		}
		return map[string]any{"updated": true}, nil

	// --- Repositories ---

	case protocol.RepositoryUpsertCmd:
		repo, _, err := s.store.UpsertRepository(cmd.RepositoryID, cmd.Scope, cmd.Name, cmd.RemoteURL, cmd.DefaultBranch, cmd.Metadata)
		if err != nil {
			return nil, err
		}
		return map[string]any{"repository": repo}, nil

	case protocol.RepositoryGetCmd:
		repo, err := s.store.GetRepository(cmd.RepositoryID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"repository": repo}, nil

	case protocol.RepositoryListCmd:
		repos := s.store.ListRepositories(cmd.Scope, cmd.IncludeArchived, cmd.Limit)
		return map[string]any{"repositories": repos}, nil

	case protocol.RepositoryUpdateCmd:
		repo, _, err := s.store.UpdateRepository(cmd.RepositoryID, cmd.Name, cmd.RemoteURL, cmd.DefaultBranch, cmd.Metadata)
		if err != nil {
			return nil, err
		}
		return map[string]any{"repository": repo}, nil

	case protocol.RepositoryArchiveCmd:
		_, err := s.store.ArchiveRepository(cmd.RepositoryID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"archived": true}, nil

	// --- Conversations ---

	case protocol.ConversationCreateCmd:
		live := s.registry.IsLive(cmd.ConversationID)
		conv, _, err := s.store.CreateConversation(cmd.ConversationID, cmd.DirectoryID, cmd.Title, cmd.AgentType, cmd.AdapterState, live)
		if err != nil {
			return nil, err
		}
		return map[string]any{"conversation": conv}, nil

	case protocol.ConversationUpdateCmd:
		conv, _, err := s.store.UpdateConversation(cmd.ConversationID, cmd.Title)
		if err != nil {
			return nil, err
		}
		return map[string]any{"conversation": conv}, nil

	case protocol.ConversationArchiveCmd:
		_, err := s.store.ArchiveConversation(cmd.ConversationID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"archived": true}, nil

	case protocol.ConversationDeleteCmd:
		// A live session goes down with its conversation.
		if s.registry.IsLive(cmd.ConversationID) {
			if err := s.registry.Remove(cmd.ConversationID); err != nil {
				return nil, err
			}
		}
		_, err := s.store.DeleteConversation(cmd.ConversationID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"deleted": true}, nil

	case protocol.ConversationListCmd:
		convs := s.store.ListConversations(cmd.Scope, cmd.DirectoryID, cmd.IncludeArchived, cmd.Limit)
		return map[string]any{"conversations": convs}, nil

	// --- Tasks ---

	case protocol.TaskCreateCmd:
		task, _, err := s.store.CreateTask(cmd.Scope, cmd.TaskScope, cmd.Title, cmd.Description, cmd.RepositoryID, cmd.ProjectID, cmd.Linear)
		if err != nil {
			return nil, err
		}
		return map[string]any{"task": task}, nil

	case protocol.TaskReadyCmd:
		return s.taskResult(s.store.ReadyTask(cmd.TaskID))

	case protocol.TaskDraftCmd:
		return s.taskResult(s.store.DraftTask(cmd.TaskID))

	case protocol.TaskCompleteCmd:
		return s.taskResult(s.store.CompleteTask(cmd.TaskID))

	case protocol.TaskReorderCmd:
		tasks, _, err := s.store.ReorderTasks(cmd.Scope, cmd.TaskScope, cmd.OrderedTaskIDs)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tasks": tasks}, nil

	case protocol.TaskClaimCmd:
		return s.taskResult(s.store.ClaimTask(cmd.TaskID, cmd.ControllerID, cmd.ProjectID, cmd.BranchName, cmd.BaseBranch))

	case protocol.TaskPullCmd:
		result, _, err := s.store.PullTask(cmd.Scope, cmd.ControllerID, cmd.ProjectID, cmd.RepositoryID, cmd.BranchName, cmd.BaseBranch)
		if err != nil {
			return nil, err
		}
		return result, nil

	case protocol.TaskListCmd:
		tasks := s.store.ListTasks(cmd.Scope, cmd.TaskScope)
		return map[string]any{"tasks": tasks}, nil

	// --- PTY lifecycle ---

	case protocol.PtyStartCmd:
		conv, err := s.store.GetConversation(cmd.ConversationID)
		if err != nil {
			return nil, err
		}
		dir, err := s.store.GetDirectory(conv.DirectoryID)
		if err != nil {
			return nil, err
		}
		return s.registry.Start(session.StartRequest{
			SessionID:    conv.ID,
			AgentType:    conv.AgentType,
			AdapterState: conv.AdapterState,
			Cwd:          dir.Path,
			InitialCols:  cmd.InitialCols,
			InitialRows:  cmd.InitialRows,
		})

	case protocol.PtyAttachCmd:
		return s.registry.Attach(c.id, cmd.SessionID, cmd.SinceCursor, c)

	case protocol.PtyDetachCmd:
		if err := s.registry.Detach(c.id, cmd.SessionID); err != nil {
			return nil, err
		}
		return map[string]any{"detached": true}, nil

	case protocol.PtyCloseCmd:
		if err := s.registry.Close(cmd.SessionID); err != nil {
			return nil, err
		}
		return map[string]any{"closed": true}, nil

	case protocol.PtySubscribeEventsCmd:
		if err := s.registry.SubscribeEvents(c.id, cmd.SessionID, c); err != nil {
			return nil, err
		}
		return map[string]any{"subscribed": true}, nil

	case protocol.PtyUnsubscribeEventsCmd:
		if err := s.registry.UnsubscribeEvents(c.id, cmd.SessionID); err != nil {
			return nil, err
		}
		return map[string]any{"unsubscribed": true}, nil

	// --- Session control ---

	case protocol.SessionClaimCmd:
		return s.registry.Claim(cmd.SessionID, cmd.ControllerID, cmd.ControllerType, cmd.ControllerLabel, cmd.Reason, cmd.Takeover)

	case protocol.SessionReleaseCmd:
		if err := s.registry.Release(cmd.SessionID); err != nil {
			return nil, err
		}
		return map[string]any{"released": true}, nil

	case protocol.SessionRespondCmd:
		n, err := s.registry.Respond(cmd.SessionID, cmd.Text)
		if err != nil {
			return nil, err
		}
		return map[string]any{"responded": true, "sentBytes": n}, nil

	case protocol.SessionInterruptCmd:
		if err := s.registry.Interrupt(cmd.SessionID); err != nil {
			return nil, err
		}
		return map[string]any{"interrupted": true}, nil

	case protocol.SessionRemoveCmd:
		if err := s.registry.Remove(cmd.SessionID); err != nil {
			return nil, err
		}
		// Removing a session deletes its conversation when one exists.
		if _, err := s.store.GetConversation(cmd.SessionID); err == nil {
			if _, err := s.store.DeleteConversation(cmd.SessionID); err != nil {
				return nil, err
			}
		}
		return map[string]any{"removed": true}, nil

	case protocol.SessionListCmd:
		return map[string]any{"sessions": s.registry.List(cmd.Live)}, nil

	case protocol.SessionStatusCmd:
		info, err := s.registry.Status(cmd.SessionID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"session": info}, nil

	// --- Stream subscriptions ---

	case protocol.StreamSubscribeCmd:
		filter := events.Filter{
			TenantID:       cmd.TenantID,
			UserID:         cmd.UserID,
			WorkspaceID:    cmd.WorkspaceID,
			RepositoryID:   cmd.RepositoryID,
			TaskID:         cmd.TaskID,
			DirectoryID:    cmd.DirectoryID,
			ConversationID: cmd.ConversationID,
			IncludeOutput:  cmd.IncludeOutput,
		}
		result, err := s.mux.Subscribe(filter, cmd.AfterCursor, c)
		if err != nil {
			return nil, err
		}
		c.trackSubscription(result.SubscriptionID)
		return result, nil

	case protocol.StreamUnsubscribeCmd:
		ok := s.mux.Unsubscribe(cmd.SubscriptionID)
		if ok {
			c.forgetSubscription(cmd.SubscriptionID)
		}
		return map[string]any{"unsubscribed": ok}, nil

	// --- External ingest ---

	case protocol.GithubPRIngestCmd:
		switch cmd.Action {
		case "upserted":
			s.store.UpsertGithubPR(cmd.Scope, *cmd.PR)
		case "closed":
			s.store.CloseGithubPR(cmd.Scope, cmd.RepositoryID, cmd.Number)
		case "jobs-updated":
			s.store.UpdateGithubPRJobs(cmd.Scope, cmd.RepositoryID, cmd.Number, cmd.Jobs)
		}
		return map[string]any{"ingested": true}, nil
	}

	return nil, fmt.Errorf("unhandled command type %q", cmd.CmdType())
}

func (s *Server) taskResult(task models.Task, _ []events.Observed, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]any{"task": task}, nil
}

func sessionSignal(sig protocol.Signal) session.Signal {
	switch sig {
	case protocol.SignalInterrupt:
		return session.SignalInterrupt
	case protocol.SignalEOF:
		return session.SignalEOF
	default:
		return session.SignalTerminate
	}
}
