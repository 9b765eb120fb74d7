package models

import "time"

// GithubPR mirrors the subset of pull-request state the harness observes from
// its GitHub ingest. It exists so pr-touching observed events can be routed
// by repository filters.
type GithubPR struct {
	RepositoryID string    `json:"repositoryId"`
	Number       int       `json:"number"`
	Title        string    `json:"title,omitempty"`
	State        string    `json:"state,omitempty"`
	URL          string    `json:"url,omitempty"`
	HeadBranch   string    `json:"headBranch,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// GithubPRJob is one CI job attached to a pull request.
type GithubPRJob struct {
	Name       string `json:"name"`
	Conclusion string `json:"conclusion,omitempty"`
	Status     string `json:"status"`
	URL        string `json:"url,omitempty"`
}
