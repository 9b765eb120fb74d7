package models

import "time"

// Repository is a tracked git repository. Metadata is an opaque map owned by
// clients; the server stores and returns it without interpretation.
// Repositories are never hard-deleted, only archived.
type Repository struct {
	ID            string         `json:"repositoryId"`
	Scope         Scope          `json:"scope"`
	Name          string         `json:"name"`
	RemoteURL     string         `json:"remoteUrl,omitempty"`
	DefaultBranch string         `json:"defaultBranch,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	ArchivedAt    *time.Time     `json:"archivedAt,omitempty"`
}
