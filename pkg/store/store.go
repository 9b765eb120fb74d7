// Package store is the in-memory authoritative mapping of directories,
// repositories, conversations, tasks and per-session runtime state.
//
// Every mutation runs inside one critical section under the store write lock.
// The events it produces are handed to the configured Publisher before the
// lock releases, so stream cursors are always assigned in commit order, and
// are also returned to the caller. Reads return copies, never emit events.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/models"
)

// Store owns every persisted domain entity. Safe for concurrent use: one
// writer at a time, reads operate on copies taken under the same lock.
type Store struct {
	mu sync.Mutex

	directories   map[string]*models.Directory
	repositories  map[string]*models.Repository
	conversations map[string]*models.Conversation
	tasks         map[string]*models.Task
	gitSnapshots  map[string]*models.DirectoryGitSnapshot
	pullRequests  map[string]*githubPRState

	now   func() time.Time
	newID func() string
	pub   Publisher
}

// Publisher receives event batches as mutations commit. The events
// multiplexer satisfies it.
type Publisher interface {
	Publish(batch ...events.Observed)
}

type githubPRState struct {
	pr   models.GithubPR
	jobs []models.GithubPRJob
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the store clock. Used by tests to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides id assignment. Used by tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithPublisher wires the publisher that mutations commit their events to.
// It is invoked while the store lock is still held: two mutations can never
// reach the publisher in an order different from their commit order.
func WithPublisher(pub Publisher) Option {
	return func(s *Store) { s.pub = pub }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		directories:   make(map[string]*models.Directory),
		repositories:  make(map[string]*models.Repository),
		conversations: make(map[string]*models.Conversation),
		tasks:         make(map[string]*models.Task),
		gitSnapshots:  make(map[string]*models.DirectoryGitSnapshot),
		pullRequests:  make(map[string]*githubPRState),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// publish hands a committed batch to the publisher, if any. Caller holds
// s.mu. Returns the batch unchanged so mutations can publish and return in
// one step.
func (s *Store) publish(batch ...events.Observed) []events.Observed {
	if s.pub != nil && len(batch) > 0 {
		s.pub.Publish(batch...)
	}
	return batch
}

func (s *Store) meta(scope models.Scope, directoryID, conversationID string) events.Meta {
	return events.Meta{
		Scope:          scope,
		DirectoryID:    directoryID,
		ConversationID: conversationID,
		TS:             s.now(),
	}
}

// --- Directories ---

// UpsertDirectory creates or updates a directory. When no directoryId is
// given, an existing directory with the same (scope, path) is updated in
// place; otherwise a new record is created with a fresh id.
func (s *Store) UpsertDirectory(directoryID string, scope models.Scope, path string) (models.Directory, []events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dir *models.Directory
	if directoryID != "" {
		dir = s.directories[directoryID]
	} else {
		for _, d := range s.directories {
			if d.Scope == scope && d.Path == path && d.ArchivedAt == nil {
				dir = d
				break
			}
		}
	}

	if dir == nil {
		id := directoryID
		if id == "" {
			id = s.newID()
		}
		dir = &models.Directory{
			ID:        id,
			Scope:     scope,
			Path:      path,
			CreatedAt: s.now(),
		}
		s.directories[id] = dir
	} else {
		if dir.Scope != scope {
			return models.Directory{}, nil, invalid("directory %s belongs to a different scope", dir.ID)
		}
		dir.Path = path
	}

	ev := events.DirectoryUpserted{
		Meta:      s.meta(scope, dir.ID, ""),
		Directory: *dir,
	}
	return *dir, s.publish(ev), nil
}

// GetDirectory returns one directory by id.
func (s *Store) GetDirectory(directoryID string) (models.Directory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, ok := s.directories[directoryID]
	if !ok {
		return models.Directory{}, notFound("directory", directoryID)
	}
	return *dir, nil
}

// ListDirectories returns the scope's directories newest first, then by id.
func (s *Store) ListDirectories(scope models.Scope, includeArchived bool, limit *int) []models.Directory {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Directory, 0)
	for _, d := range s.directories {
		if d.Scope != scope {
			continue
		}
		if d.ArchivedAt != nil && !includeArchived {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return clip(out, limit)
}

// ArchiveDirectory soft-deletes a directory and archives every contained
// conversation. Conversation events precede the directory event, matching the
// order the mutations commit.
func (s *Store) ArchiveDirectory(directoryID string) ([]events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, ok := s.directories[directoryID]
	if !ok {
		return nil, notFound("directory", directoryID)
	}
	if dir.ArchivedAt != nil {
		return nil, nil
	}

	var evs []events.Observed
	for _, id := range s.sortedConversationIDs() {
		conv := s.conversations[id]
		if conv.DirectoryID != directoryID || conv.ArchivedAt != nil {
			continue
		}
		at := s.now()
		conv.ArchivedAt = &at
		evs = append(evs, events.ConversationArchived{Meta: s.meta(conv.Scope, directoryID, conv.ID)})
	}

	at := s.now()
	dir.ArchivedAt = &at
	evs = append(evs, events.DirectoryArchived{Meta: s.meta(dir.Scope, directoryID, "")})
	return s.publish(evs...), nil
}

// GitStatus returns the scope's git snapshots, optionally narrowed to one
// directory.
func (s *Store) GitStatus(scope models.Scope, directoryID string) []models.DirectoryGitSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.DirectoryGitSnapshot, 0)
	for id, snap := range s.gitSnapshots {
		dir, ok := s.directories[id]
		if !ok || dir.Scope != scope {
			continue
		}
		if directoryID != "" && id != directoryID {
			continue
		}
		out = append(out, *snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DirectoryID < out[j].DirectoryID })
	return out
}

// UpdateGitSnapshot overwrites the directory's git snapshot wholesale and
// records the repository association on the directory.
func (s *Store) UpdateGitSnapshot(scope models.Scope, snap models.DirectoryGitSnapshot) ([]events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, ok := s.directories[snap.DirectoryID]
	if !ok {
		return nil, notFound("directory", snap.DirectoryID)
	}
	if dir.Scope != scope {
		return nil, notFound("directory", snap.DirectoryID)
	}

	snap.UpdatedAt = s.now()
	s.gitSnapshots[snap.DirectoryID] = &snap
	if snap.RepositoryID != "" {
		dir.RepositoryID = snap.RepositoryID
	}

	ev := events.DirectoryGitUpdated{
		Meta:     s.meta(scope, snap.DirectoryID, ""),
		Snapshot: snap,
	}
	return s.publish(ev), nil
}

// --- Repositories ---

// UpsertRepository creates or updates a repository record.
func (s *Store) UpsertRepository(repositoryID string, scope models.Scope, name, remoteURL, defaultBranch string, metadata map[string]any) (models.Repository, []events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo := s.repositories[repositoryID]
	if repositoryID == "" {
		for _, r := range s.repositories {
			if r.Scope == scope && r.Name == name && r.ArchivedAt == nil {
				repo = r
				break
			}
		}
	}

	if repo == nil {
		id := repositoryID
		if id == "" {
			id = s.newID()
		}
		repo = &models.Repository{ID: id, Scope: scope, CreatedAt: s.now()}
		s.repositories[id] = repo
	} else if repo.Scope != scope {
		return models.Repository{}, nil, invalid("repository %s belongs to a different scope", repo.ID)
	}

	repo.Name = name
	repo.RemoteURL = remoteURL
	repo.DefaultBranch = defaultBranch
	if metadata != nil {
		repo.Metadata = metadata
	}

	ev := events.RepositoryUpserted{
		Meta:       s.meta(scope, "", ""),
		Repository: *repo,
	}
	return *repo, s.publish(ev), nil
}

// GetRepository returns one repository by id.
func (s *Store) GetRepository(repositoryID string) (models.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repositories[repositoryID]
	if !ok {
		return models.Repository{}, notFound("repository", repositoryID)
	}
	return *repo, nil
}

// ListRepositories returns the scope's repositories newest first, then by id.
func (s *Store) ListRepositories(scope models.Scope, includeArchived bool, limit *int) []models.Repository {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Repository, 0)
	for _, r := range s.repositories {
		if r.Scope != scope {
			continue
		}
		if r.ArchivedAt != nil && !includeArchived {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return clip(out, limit)
}

// UpdateRepository applies a partial update; nil fields are left untouched.
func (s *Store) UpdateRepository(repositoryID string, name, remoteURL, defaultBranch *string, metadata map[string]any) (models.Repository, []events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repositories[repositoryID]
	if !ok {
		return models.Repository{}, nil, notFound("repository", repositoryID)
	}

	if name != nil {
		repo.Name = *name
	}
	if remoteURL != nil {
		repo.RemoteURL = *remoteURL
	}
	if defaultBranch != nil {
		repo.DefaultBranch = *defaultBranch
	}
	if metadata != nil {
		repo.Metadata = metadata
	}

	ev := events.RepositoryUpdated{
		Meta:       s.meta(repo.Scope, "", ""),
		Repository: *repo,
	}
	return *repo, s.publish(ev), nil
}

// ArchiveRepository soft-deletes a repository. Hard deletion is not
// supported.
func (s *Store) ArchiveRepository(repositoryID string) ([]events.Observed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repositories[repositoryID]
	if !ok {
		return nil, notFound("repository", repositoryID)
	}
	if repo.ArchivedAt != nil {
		return nil, nil
	}
	at := s.now()
	repo.ArchivedAt = &at

	ev := events.RepositoryArchived{
		Meta:         s.meta(repo.Scope, "", ""),
		RepositoryID: repositoryID,
	}
	return s.publish(ev), nil
}

// sortedConversationIDs returns conversation ids in lexicographic order so
// cascade iteration is deterministic. Caller holds s.mu.
func (s *Store) sortedConversationIDs() []string {
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func clip[T any](list []T, limit *int) []T {
	if limit != nil && len(list) > *limit {
		return list[:*limit]
	}
	return list
}
