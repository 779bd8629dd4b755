// internal/model/models.go
package model

import (
	"encoding/json"
	"time"
)

// Identity is the authenticated user as seen by the aggregation pipeline:
// the login and email used to attribute commits.
type Identity struct {
	Login string `json:"login"`
	Email string `json:"email"`
}

// RepositorySummary is one entry of a repository list page, kept verbatim
// from the upstream API.
type RepositorySummary struct {
	Name        string  `json:"name"`
	FullName    string  `json:"full_name"`
	Language    *string `json:"language"`
	PushedAt    *string `json:"pushed_at"`
	Private     bool    `json:"private"`
	Fork        bool    `json:"fork"`
	HTMLURL     string  `json:"html_url"`
	Description *string `json:"description"`
}

// Branch is one branch of a repository.
type Branch struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
}

// Contributor is one contributor with their contribution count.
type Contributor struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
}

// PullSummary is a trimmed pull request entry.
type PullSummary struct {
	Number   int     `json:"number"`
	State    string  `json:"state"`
	MergedAt *string `json:"merged_at"`
	User     *string `json:"user"`
}

// CommitEntry is one entry of a repository commit list. Author is the
// platform account (absent for commits not linked to an account); Commit is
// the raw git commit payload, carried through untouched.
type CommitEntry struct {
	SHA    string `json:"sha"`
	Author *struct {
		Login string `json:"login"`
	} `json:"author"`
	Commit json.RawMessage `json:"commit"`
}

// commitPayload is the subset of the raw commit payload the identity
// filter needs.
type commitPayload struct {
	Author *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"author"`
	Committer *struct {
		Email string `json:"email"`
	} `json:"committer"`
}

// GitAuthor decodes the author name and email out of the raw commit payload.
func (c CommitEntry) GitAuthor() (name, email string) {
	var p commitPayload
	if err := json.Unmarshal(c.Commit, &p); err != nil || p.Author == nil {
		return "", ""
	}
	return p.Author.Name, p.Author.Email
}

// GitCommitterEmail decodes the committer email out of the raw commit payload.
func (c CommitEntry) GitCommitterEmail() string {
	var p commitPayload
	if err := json.Unmarshal(c.Commit, &p); err != nil || p.Committer == nil {
		return ""
	}
	return p.Committer.Email
}

// DetailCommit is the commit shape embedded in a RepositoryDetail.
type DetailCommit struct {
	SHA    string          `json:"sha"`
	Author *string         `json:"author"`
	Commit json.RawMessage `json:"commit"`
}

// IssueEntry is one entry of the issues list endpoint. PullRequest is the
// upstream marker identifying pull requests returned by that endpoint.
type IssueEntry struct {
	Number int    `json:"number"`
	State  string `json:"state"`
	Title  string `json:"title"`
	User   *struct {
		Login string `json:"login"`
	} `json:"user"`
	PullRequest json.RawMessage `json:"pull_request,omitempty"`
}

// IsPullRequest reports whether the entry carries a non-null pull_request
// marker, i.e. is a pull request returned by the issues endpoint.
func (i IssueEntry) IsPullRequest() bool {
	return len(i.PullRequest) > 0 && string(i.PullRequest) != "null"
}

// DetailIssue is the issue shape embedded in a RepositoryDetail.
type DetailIssue struct {
	Number int     `json:"number"`
	State  string  `json:"state"`
	Title  string  `json:"title"`
	User   *string `json:"user"`
}

// RepositoryDetail is the enriched per-repository record combining the seven
// sub-resource fetches. Every collection is always present, possibly empty,
// never null: a failed sub-fetch degrades to its empty default.
type RepositoryDetail struct {
	Name         string         `json:"name"`
	FullName     string         `json:"full_name"`
	Private      bool           `json:"private"`
	Fork         bool           `json:"fork"`
	HTMLURL      string         `json:"html_url"`
	Description  *string        `json:"description"`
	Language     *string        `json:"language"`
	Topics       []string       `json:"topics"`
	Languages    map[string]int `json:"languages"`
	Branches     []Branch       `json:"branches"`
	Contributors []Contributor  `json:"contributors"`
	Pulls        []PullSummary  `json:"pulls"`
	Commits      []DetailCommit `json:"commits"`
	Issues       []DetailIssue  `json:"issues"`
}

// RecentRepo is one entry of the recentRepos list in ActivityMetrics.
type RecentRepo struct {
	Name     string  `json:"name"`
	Language *string `json:"language"`
	Updated  *string `json:"updated"`
}

// ActivityMetrics is the derived commit-activity summary. Recomputed per
// request, never stored.
type ActivityMetrics struct {
	TotalCommits        int          `json:"totalCommits"`
	EstimatedLinesAdded int          `json:"estimatedLinesAdded"`
	TimeSavedMinutes    int          `json:"timeSavedMinutes"`
	TimeSavedHours      string       `json:"timeSavedHours"`
	PushEvents          int          `json:"pushEvents"`
	RecentRepos         []RecentRepo `json:"recentRepos"`
	LastActivity        *string      `json:"lastActivity"`
}

// FullData is the everything-at-once payload assembled by the aggregation
// pipeline. Collections are initialized empty so partial failure never
// produces a null field.
type FullData struct {
	User        json.RawMessage     `json:"user"`
	Orgs        []json.RawMessage   `json:"orgs"`
	Gists       []json.RawMessage   `json:"gists"`
	Starred     []json.RawMessage   `json:"starred"`
	Followers   []json.RawMessage   `json:"followers"`
	Following   []json.RawMessage   `json:"following"`
	Repos       []RepositorySummary `json:"repos"`
	RepoDetails []RepositoryDetail  `json:"repoDetails"`
	Events      []json.RawMessage   `json:"events"`
}

// UsageRecord holds the self-reported Copilot usage counters for one user.
// Exactly one record per identity; a save replaces the whole record.
type UsageRecord struct {
	CompletionsAccepted int        `json:"completionsAccepted"`
	CompletionsRejected int        `json:"completionsRejected"`
	LinesGenerated      int        `json:"linesGenerated"`
	LastUpdated         *time.Time `json:"lastUpdated"`
}
