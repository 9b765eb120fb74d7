package store

import (
	"fmt"
	"sort"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/models"
)

// Task workflow: created as draft, draft↔ready via task.ready/task.draft,
// ready→in-progress via task.claim, in-progress→completed via task.complete.
// task.ready also backs an in-progress task out of its claim. Within one
// (scope, taskScope) the orderIndex values always form a dense permutation of
// [0..n-1].

// PullAvailability classifies a task.pull outcome.
type PullAvailability string

const (
	PullClaimed PullAvailability = "claimed"
	PullNone    PullAvailability = "none"
	PullBlocked PullAvailability = "blocked"
)

// PullSettings carries the branch settings the claim was made with.
type PullSettings struct {
	BranchName string `json:"branchName,omitempty"`
	BaseBranch string `json:"baseBranch,omitempty"`
}

// PullResult is the task.pull command result.
type PullResult struct {
	Task         *models.Task     `json:"task,omitempty"`
	DirectoryID  string           `json:"directoryId,omitempty"`
	Availability PullAvailability `json:"availability"`
	Reason       string           `json:"reason,omitempty"`
	Settings     PullSettings     `json:"settings"`
	RepositoryID string           `json:"repositoryId,omitempty"`
}

// CreateTask creates a draft task at the end of its scope's ordering.
func (s *Store) CreateTask(scope models.Scope, taskScope models.TaskScope, title, description, repositoryID, projectID string, linear map[string]any) (models.Task, []events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if taskScope.Kind == models.TaskScopeRepository && repositoryID == "" {
		repositoryID = taskScope.ScopeID
	}
	if taskScope.Kind == models.TaskScopeProject && projectID == "" {
		projectID = taskScope.ScopeID
	}

	now := s.now()
	task := &models.Task{
		ID:           s.newID(),
		Scope:        scope,
		TaskScope:    taskScope,
		RepositoryID: repositoryID,
		ProjectID:    projectID,
		Title:        title,
		Description:  description,
		Status:       models.TaskDraft,
		OrderIndex:   len(s.tasksInScopeLocked(scope, taskScope)),
		Linear:       linear,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.tasks[task.ID] = task

	ev := events.TaskCreated{
		Meta: s.meta(scope, "", ""),
		Task: *task,
	}
	return *task, s.publish(ev), nil
}

// ReadyTask moves a draft or in-progress task to ready. Leaving in-progress
// resets the claim fields.
func (s *Store) ReadyTask(taskID string) (models.Task, []events.Observed, error) {
	return s.transitionTask(taskID, models.TaskReady, models.TaskDraft, models.TaskInProgress)
}

// DraftTask moves a ready task back to draft.
func (s *Store) DraftTask(taskID string) (models.Task, []events.Observed, error) {
	return s.transitionTask(taskID, models.TaskDraft, models.TaskReady)
}

// CompleteTask finishes an in-progress task.
func (s *Store) CompleteTask(taskID string) (models.Task, []events.Observed, error) {
	return s.transitionTask(taskID, models.TaskCompleted, models.TaskInProgress)
}

func (s *Store) transitionTask(taskID string, to models.TaskStatus, from ...models.TaskStatus) (models.Task, []events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return models.Task{}, nil, notFound("task", taskID)
	}
	allowed := false
	for _, f := range from {
		if task.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return models.Task{}, nil, fmt.Errorf("%w: task %s is %s, cannot move to %s",
			ErrPreconditionFailed, taskID, task.Status, to)
	}

	// Leaving in-progress clears the claim.
	if task.Status == models.TaskInProgress && to != models.TaskCompleted {
		task.ClaimedByController = ""
		task.ClaimedByProject = ""
	}
	task.Status = to
	task.UpdatedAt = s.now()

	ev := events.TaskUpdated{
		Meta: s.meta(task.Scope, "", ""),
		Task: *task,
	}
	return *task, s.publish(ev), nil
}

// ReorderTasks reassigns orderIndex by position. The input set must equal the
// scope's current task set exactly.
func (s *Store) ReorderTasks(scope models.Scope, taskScope models.TaskScope, orderedTaskIDs []string) ([]models.Task, []events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.tasksInScopeLocked(scope, taskScope)
	if len(orderedTaskIDs) != len(current) {
		return nil, nil, fmt.Errorf("%w: reorder lists %d tasks, scope has %d",
			ErrPreconditionFailed, len(orderedTaskIDs), len(current))
	}
	inScope := make(map[string]*models.Task, len(current))
	for _, t := range current {
		inScope[t.ID] = t
	}
	seen := make(map[string]bool, len(orderedTaskIDs))
	for _, id := range orderedTaskIDs {
		if seen[id] {
			return nil, nil, fmt.Errorf("%w: duplicate task id %s in reorder", ErrPreconditionFailed, id)
		}
		seen[id] = true
		if _, ok := inScope[id]; !ok {
			return nil, nil, fmt.Errorf("%w: task %s is not in scope", ErrPreconditionFailed, id)
		}
	}

	now := s.now()
	out := make([]models.Task, 0, len(orderedTaskIDs))
	for i, id := range orderedTaskIDs {
		task := inScope[id]
		task.OrderIndex = i
		task.UpdatedAt = now
		out = append(out, *task)
	}

	ev := events.TaskReordered{
		Meta:      s.meta(scope, "", ""),
		TaskScope: taskScope,
		Tasks:     out,
	}
	return out, s.publish(ev), nil
}

// ClaimTask moves a ready task to in-progress under the given controller.
// A task already in progress under a different controller is a conflict;
// re-claiming one's own task is a no-op success.
func (s *Store) ClaimTask(taskID, controllerID, projectID, branchName, baseBranch string) (models.Task, []events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return models.Task{}, nil, notFound("task", taskID)
	}
	evs, err := s.claimTaskLocked(task, controllerID, projectID, branchName, baseBranch)
	if err != nil {
		return models.Task{}, nil, err
	}
	return *task, evs, nil
}

func (s *Store) claimTaskLocked(task *models.Task, controllerID, projectID, branchName, baseBranch string) ([]events.Observed, error) {
	switch task.Status {
	case models.TaskInProgress:
		if task.ClaimedByController != controllerID {
			return nil, fmt.Errorf("%w: task %s is claimed by %s",
				ErrConflict, task.ID, task.ClaimedByController)
		}
		return nil, nil
	case models.TaskReady:
	default:
		return nil, fmt.Errorf("%w: task %s is %s, only ready tasks can be claimed",
			ErrPreconditionFailed, task.ID, task.Status)
	}

	task.Status = models.TaskInProgress
	task.ClaimedByController = controllerID
	task.ClaimedByProject = projectID
	if branchName != "" {
		task.Branch = branchName
	}
	if baseBranch != "" {
		task.BaseBranch = baseBranch
	}
	task.UpdatedAt = s.now()

	return s.publish(events.TaskUpdated{
		Meta: s.meta(task.Scope, "", ""),
		Task: *task,
	}), nil
}

// PullTask selects and claims the lowest-ordered ready task matching the
// scope. A controller that already holds an in-progress task in the matched
// set is blocked until it completes or releases it.
func (s *Store) PullTask(scope models.Scope, controllerID, projectID, repositoryID, branchName, baseBranch string) (PullResult, []events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := PullSettings{BranchName: branchName, BaseBranch: baseBranch}

	candidates := make([]*models.Task, 0)
	for _, t := range s.tasks {
		if t.Scope != scope || !s.pullMatchesLocked(t, projectID, repositoryID) {
			continue
		}
		if t.Status == models.TaskInProgress && t.ClaimedByController == controllerID {
			return PullResult{
				Availability: PullBlocked,
				Reason:       fmt.Sprintf("controller %s already has task %s in progress", controllerID, t.ID),
				Settings:     settings,
			}, nil, nil
		}
		if t.Status == models.TaskReady {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return PullResult{Availability: PullNone, Settings: settings}, nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].OrderIndex != candidates[j].OrderIndex {
			return candidates[i].OrderIndex < candidates[j].OrderIndex
		}
		return candidates[i].ID < candidates[j].ID
	})

	task := candidates[0]
	evs, err := s.claimTaskLocked(task, controllerID, projectID, branchName, baseBranch)
	if err != nil {
		return PullResult{}, nil, err
	}

	claimed := *task
	directoryID := claimed.ProjectID
	if directoryID == "" {
		directoryID = projectID
	}
	return PullResult{
		Task:         &claimed,
		DirectoryID:  directoryID,
		Availability: PullClaimed,
		Settings:     settings,
		RepositoryID: claimed.RepositoryID,
	}, evs, nil
}

// pullMatchesLocked decides whether a task is in the pull's selection set.
// Global tasks always match; repository and project tasks match when the pull
// names their repository or project. Caller holds s.mu.
func (s *Store) pullMatchesLocked(t *models.Task, projectID, repositoryID string) bool {
	switch t.TaskScope.Kind {
	case models.TaskScopeGlobal:
		return true
	case models.TaskScopeRepository:
		return repositoryID != "" && t.TaskScope.ScopeID == repositoryID
	case models.TaskScopeProject:
		return projectID != "" && t.TaskScope.ScopeID == projectID
	}
	return false
}

// ListTasks returns tasks in scope ordered by orderIndex, then id. A nil
// taskScope lists every task scope the tenant scope owns.
func (s *Store) ListTasks(scope models.Scope, taskScope *models.TaskScope) []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Task, 0)
	for _, t := range s.tasks {
		if t.Scope != scope {
			continue
		}
		if taskScope != nil && t.TaskScope != *taskScope {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// tasksInScopeLocked returns the scope's tasks ordered by orderIndex. Caller
// holds s.mu.
func (s *Store) tasksInScopeLocked(scope models.Scope, taskScope models.TaskScope) []*models.Task {
	out := make([]*models.Task, 0)
	for _, t := range s.tasks {
		if t.Scope == scope && t.TaskScope == taskScope {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}
