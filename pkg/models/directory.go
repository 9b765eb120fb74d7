package models

import "time"

// Directory is a project directory tracked by the harness. Archival is a
// soft delete: archived directories are hidden from default listings but
// remain addressable.
type Directory struct {
	ID           string     `json:"directoryId"`
	Scope        Scope      `json:"scope"`
	Path         string     `json:"path"`
	RepositoryID string     `json:"repositoryId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ArchivedAt   *time.Time `json:"archivedAt,omitempty"`
}

// RepoSnapshot captures the remote-tracking view of a directory's repository
// at git-status observation time.
type RepoSnapshot struct {
	RemoteURL     string `json:"remoteUrl,omitempty"`
	CommitsAhead  int    `json:"commitsAhead"`
	CommitsBehind int    `json:"commitsBehind"`
}

// DirectoryGitSnapshot is the one-per-directory git status record. It is
// overwritten wholesale by each directory-git-updated observed event.
type DirectoryGitSnapshot struct {
	DirectoryID  string       `json:"directoryId"`
	RepositoryID string       `json:"repositoryId,omitempty"`
	Branch       string       `json:"branch"`
	Additions    int          `json:"additions"`
	Deletions    int          `json:"deletions"`
	ChangedFiles int          `json:"changedFiles"`
	Repo         RepoSnapshot `json:"repo"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}
