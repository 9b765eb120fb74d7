package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/models"
)

func newDirectory(t *testing.T, s *Store) models.Directory {
	t.Helper()
	dir, _, err := s.UpsertDirectory("", testScope(), "/work/app")
	require.NoError(t, err)
	return dir
}

func TestCreateConversation(t *testing.T) {
	s := testStore()
	dir := newDirectory(t, s)

	conv, evs, err := s.CreateConversation("", dir.ID, "fix the bug", "shell", map[string]any{"model": "large"}, false)
	require.NoError(t, err)
	assert.Equal(t, dir.Scope, conv.Scope)
	assert.Equal(t, models.RuntimeCompleted, conv.RuntimeStatus)
	assert.False(t, conv.RuntimeLive)

	require.Len(t, evs, 1)
	created, ok := evs[0].(events.ConversationCreated)
	require.True(t, ok)
	assert.Equal(t, conv.ID, created.ConversationID)
	assert.Equal(t, dir.ID, created.DirectoryID)
}

func TestCreateConversationWithLivePty(t *testing.T) {
	s := testStore()
	dir := newDirectory(t, s)

	conv, _, err := s.CreateConversation("conv-1", dir.ID, "t", "shell", nil, true)
	require.NoError(t, err)
	assert.True(t, conv.RuntimeLive)
	assert.Equal(t, models.RuntimeRunning, conv.RuntimeStatus)
}

func TestCreateConversationErrors(t *testing.T) {
	s := testStore()
	dir := newDirectory(t, s)

	_, _, err := s.CreateConversation("", "nope", "t", "shell", nil, false)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.CreateConversation("conv-1", dir.ID, "t", "shell", nil, false)
	require.NoError(t, err)
	_, _, err = s.CreateConversation("conv-1", dir.ID, "t", "shell", nil, false)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Archived directories refuse new conversations.
	_, err = s.ArchiveDirectory(dir.ID)
	require.NoError(t, err)
	_, _, err = s.CreateConversation("", dir.ID, "t", "shell", nil, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateConversation(t *testing.T) {
	s := testStore()
	dir := newDirectory(t, s)
	_, _, err := s.CreateConversation("conv-1", dir.ID, "old", "shell", nil, false)
	require.NoError(t, err)

	conv, evs, err := s.UpdateConversation("conv-1", "new title")
	require.NoError(t, err)
	assert.Equal(t, "new title", conv.Title)
	require.Len(t, evs, 1)

	_, _, err = s.UpdateConversation("nope", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveConversation(t *testing.T) {
	s := testStore()
	dir := newDirectory(t, s)
	_, _, err := s.CreateConversation("conv-1", dir.ID, "t", "shell", nil, false)
	require.NoError(t, err)

	evs, err := s.ArchiveConversation("conv-1")
	require.NoError(t, err)
	require.Len(t, evs, 1)

	evs, err = s.ArchiveConversation("conv-1")
	require.NoError(t, err)
	assert.Empty(t, evs, "re-archive is a no-op")

	conv, err := s.GetConversation("conv-1")
	require.NoError(t, err)
	assert.NotNil(t, conv.ArchivedAt)
}

func TestDeleteConversation(t *testing.T) {
	s := testStore()
	dir := newDirectory(t, s)
	_, _, err := s.CreateConversation("conv-1", dir.ID, "t", "shell", nil, false)
	require.NoError(t, err)

	evs, err := s.DeleteConversation("conv-1")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	_, ok := evs[0].(events.ConversationDeleted)
	assert.True(t, ok)

	_, err = s.GetConversation("conv-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.DeleteConversation("conv-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversationsOrdering(t *testing.T) {
	s := testStore()
	dir := newDirectory(t, s)

	_, _, err := s.CreateConversation("conv-a", dir.ID, "a", "shell", nil, false)
	require.NoError(t, err)
	_, _, err = s.CreateConversation("conv-b", dir.ID, "b", "shell", nil, false)
	require.NoError(t, err)
	_, _, err = s.CreateConversation("conv-c", dir.ID, "c", "shell", nil, false)
	require.NoError(t, err)

	// No activity yet: newest created first.
	got := s.ListConversations(testScope(), "", false, nil)
	require.Len(t, got, 3)
	assert.Equal(t, "conv-c", got[0].ID)
	assert.Equal(t, "conv-a", got[2].ID)

	// Activity promotes a conversation ahead of the inactive ones.
	s.SessionStarted("conv-a", models.RuntimeRunning)
	got = s.ListConversations(testScope(), "", false, nil)
	assert.Equal(t, "conv-a", got[0].ID)

	// Later activity wins over earlier activity.
	s.SessionStarted("conv-b", models.RuntimeRunning)
	got = s.ListConversations(testScope(), "", false, nil)
	assert.Equal(t, []string{"conv-b", "conv-a", "conv-c"},
		[]string{got[0].ID, got[1].ID, got[2].ID})
}

func TestListConversationsByDirectory(t *testing.T) {
	s := testStore()
	dir := newDirectory(t, s)
	other, _, err := s.UpsertDirectory("", testScope(), "/work/other")
	require.NoError(t, err)

	_, _, err = s.CreateConversation("conv-1", dir.ID, "t", "shell", nil, false)
	require.NoError(t, err)
	_, _, err = s.CreateConversation("conv-2", other.ID, "t", "shell", nil, false)
	require.NoError(t, err)

	got := s.ListConversations(testScope(), dir.ID, false, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "conv-1", got[0].ID)
}

func TestSessionHooksOnConversation(t *testing.T) {
	s := testStore()
	dir := newDirectory(t, s)
	_, _, err := s.CreateConversation("conv-1", dir.ID, "t", "shell", nil, false)
	require.NoError(t, err)

	evs := s.SessionStarted("conv-1", models.RuntimeRunning)
	require.Len(t, evs, 1)
	conv, _ := s.GetConversation("conv-1")
	assert.True(t, conv.RuntimeLive)
	assert.Equal(t, models.RuntimeRunning, conv.RuntimeStatus)
	assert.NotNil(t, conv.LastEventAt)

	code := 0
	evs = s.SessionExited("conv-1", models.ExitStatus{Code: &code})
	require.Len(t, evs, 1)
	exit, ok := evs[0].(events.SessionExit)
	require.True(t, ok)
	assert.Equal(t, "conv-1", exit.SessionID)
	assert.Equal(t, dir.Scope, exit.Scope)

	conv, _ = s.GetConversation("conv-1")
	assert.False(t, conv.RuntimeLive)
	assert.Equal(t, models.RuntimeExited, conv.RuntimeStatus)
	require.NotNil(t, conv.RuntimeLastExit)
	assert.Equal(t, 0, *conv.RuntimeLastExit.Code)
}

// A session without a conversation record still produces events so observers
// learn about orphaned exits.
func TestSessionHooksWithoutConversation(t *testing.T) {
	s := testStore()

	assert.Empty(t, s.SessionStarted("ghost", models.RuntimeRunning))

	code := 1
	evs := s.SessionExited("ghost", models.ExitStatus{Code: &code})
	require.Len(t, evs, 1)
	exit := evs[0].(events.SessionExit)
	assert.Equal(t, "ghost", exit.SessionID)
	assert.Empty(t, exit.Scope.TenantID)
}

func TestGithubPRIngest(t *testing.T) {
	s := testStore()

	pr := models.GithubPR{RepositoryID: "repo-1", Number: 7, Title: "fix", State: "open"}
	evs := s.UpsertGithubPR(testScope(), pr)
	require.Len(t, evs, 1)
	up, ok := evs[0].(events.GithubPRUpserted)
	require.True(t, ok)
	assert.Equal(t, 7, up.PR.Number)

	jobs := []models.GithubPRJob{{Name: "ci", Status: "completed", Conclusion: "success"}}
	evs = s.UpdateGithubPRJobs(testScope(), "repo-1", 7, jobs)
	require.Len(t, evs, 1)
	ju := evs[0].(events.GithubPRJobsUpdated)
	assert.Len(t, ju.Jobs, 1)

	evs = s.CloseGithubPR(testScope(), "repo-1", 7)
	require.Len(t, evs, 1)
	closed := evs[0].(events.GithubPRClosed)
	assert.Equal(t, 7, closed.Number)
}
