// internal/github/client.go
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	apperrors "copilot-metrics-service/internal/errors"
	"copilot-metrics-service/internal/model"
)

const (
	// pageSize is the fixed page size of the upstream list endpoints.
	pageSize = 100
	// pageDelay is the pause between page fetches to avoid bursting the
	// upstream rate limit.
	pageDelay = 100 * time.Millisecond
	// defaultMaxPages bounds the pagination walk for pathological accounts.
	defaultMaxPages = 50
)

// Client is a wrapper around the go-github client, authenticated with one
// user's bearer token. The typed go-github services cover the user, org and
// Copilot billing endpoints; the raw request plumbing covers the literal-path
// calls of the aggregation pipeline, whose wire format (paths, per_page=100,
// JSON bodies) is a fixed upstream contract.
type Client struct {
	gh     *github.Client
	logger *slog.Logger

	// overridable in tests
	pageDelay time.Duration
	maxPages  int
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return &Client{
		gh:        github.NewClient(tc),
		logger:    logger,
		pageDelay: pageDelay,
		maxPages:  defaultMaxPages,
	}
}

// WithBaseURL points the client at a different API root. Used for GitHub
// Enterprise installs and for tests against a fake API server.
func (c *Client) WithBaseURL(url string) error {
	ghc, err := c.gh.WithEnterpriseURLs(url, url)
	if err != nil {
		return err
	}
	c.gh = ghc
	return nil
}

// SetMaxPages overrides the pagination safety bound.
func (c *Client) SetMaxPages(n int) {
	if n > 0 {
		c.maxPages = n
	}
}

// SetPageDelay overrides the inter-page pacing delay.
func (c *Client) SetPageDelay(d time.Duration) {
	c.pageDelay = d
}

// Get performs one authenticated GET against a literal API path (relative to
// the API root, e.g. "repos/{owner}/{repo}/languages") and decodes the JSON
// body into v. It never retries; retry policy belongs to callers.
func (c *Client) Get(ctx context.Context, path string, v any) error {
	req, err := c.gh.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	if _, err := c.gh.Do(ctx, req, v); err != nil {
		return normalizeError(path, err)
	}
	return nil
}

// normalizeError translates go-github failures into the typed error
// taxonomy. Decode failures pass through untouched so the pagination walker
// can distinguish them from upstream failures.
func normalizeError(resource string, err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		switch ghErr.Response.StatusCode {
		case http.StatusNotFound:
			return &apperrors.NotFoundError{Resource: resource}
		case http.StatusForbidden:
			return &apperrors.ForbiddenError{Resource: resource}
		default:
			return &apperrors.UpstreamError{
				StatusCode: ghErr.Response.StatusCode,
				Message:    ghErr.Message,
			}
		}
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &apperrors.ForbiddenError{Resource: resource}
	}
	return err
}

// isDecodeFailure reports whether err came from decoding a well-formed HTTP
// response whose body did not match the expected shape.
func isDecodeFailure(err error) bool {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	return errors.As(err, &typeErr) || errors.As(err, &syntaxErr)
}

// ListPaginated walks a paginated list endpoint from page 1 until a short
// page signals end-of-data, and returns the flattened sequence in page order.
// A response that fails to decode as a sequence truncates the walk at the
// last good page instead of failing. A page that is exactly full followed by
// an empty page costs one extra round trip but is always correct.
func ListPaginated[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	var all []T
	for page := 1; page <= c.maxPages; page++ {
		pagePath := fmt.Sprintf("%s%sper_page=%d&page=%d", path, sep, pageSize, page)
		c.logger.Debug("Fetching page", "path", path, "page", page)

		var items []T
		if err := c.Get(ctx, pagePath, &items); err != nil {
			if isDecodeFailure(err) {
				c.logger.Warn("Unexpected page shape, truncating pagination", "path", path, "page", page)
				return all, nil
			}
			return nil, err
		}

		all = append(all, items...)
		if len(items) < pageSize {
			break
		}

		if err := sleep(ctx, c.pageDelay); err != nil {
			return all, err
		}
	}
	return all, nil
}

// sleep pauses for d, returning early if the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// User fetches the authenticated user's profile.
func (c *Client) User(ctx context.Context) (*github.User, error) {
	u, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, normalizeError("user", err)
	}
	return u, nil
}

// Organizations fetches the authenticated user's organizations.
func (c *Client) Organizations(ctx context.Context) ([]*github.Organization, error) {
	orgs, _, err := c.gh.Organizations.List(ctx, "", nil)
	if err != nil {
		return nil, normalizeError("user/orgs", err)
	}
	return orgs, nil
}

// OrgCopilotBilling fetches an organization's Copilot billing summary. A 404
// maps to a typed not-found error, a 403 to a typed forbidden error, and any
// other failure to a generic upstream error.
func (c *Client) OrgCopilotBilling(ctx context.Context, org string) (*github.CopilotOrganizationDetails, error) {
	billing, _, err := c.gh.Copilot.GetCopilotBilling(ctx, org)
	if err != nil {
		return nil, normalizeError("orgs/"+org+"/copilot/billing", err)
	}
	return billing, nil
}

// RecentRepositories fetches one page of the user's repositories sorted by
// most recent update, proxied as raw JSON.
func (c *Client) RecentRepositories(ctx context.Context, perPage int) ([]json.RawMessage, error) {
	var repos []json.RawMessage
	path := fmt.Sprintf("user/repos?sort=updated&per_page=%d", perPage)
	if err := c.Get(ctx, path, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// PushedRepositories fetches one page of up to 100 most-recently-pushed
// repositories across all affiliations of the authenticated user.
func (c *Client) PushedRepositories(ctx context.Context) ([]model.RepositorySummary, error) {
	var repos []model.RepositorySummary
	path := fmt.Sprintf("user/repos?sort=pushed&per_page=%d&affiliation=owner,collaborator,organization_member", pageSize)
	if err := c.Get(ctx, path, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// Languages fetches the language byte-count mapping for one repository.
func (c *Client) Languages(ctx context.Context, fullName string) (map[string]int, error) {
	langs := map[string]int{}
	if err := c.Get(ctx, "repos/"+fullName+"/languages", &langs); err != nil {
		return nil, err
	}
	return langs, nil
}

// Topics fetches the topic names of one repository.
func (c *Client) Topics(ctx context.Context, fullName string) ([]string, error) {
	var body struct {
		Names []string `json:"names"`
	}
	if err := c.Get(ctx, "repos/"+fullName+"/topics", &body); err != nil {
		return nil, err
	}
	return body.Names, nil
}

// Branches fetches one page of branches for one repository.
func (c *Client) Branches(ctx context.Context, fullName string) ([]model.Branch, error) {
	var branches []model.Branch
	path := fmt.Sprintf("repos/%s/branches?per_page=%d", fullName, pageSize)
	if err := c.Get(ctx, path, &branches); err != nil {
		return nil, err
	}
	return branches, nil
}

// Contributors fetches one page of contributors for one repository.
func (c *Client) Contributors(ctx context.Context, fullName string) ([]model.Contributor, error) {
	var contributors []model.Contributor
	path := fmt.Sprintf("repos/%s/contributors?per_page=%d", fullName, pageSize)
	if err := c.Get(ctx, path, &contributors); err != nil {
		return nil, err
	}
	return contributors, nil
}

// Pulls fetches recent pull requests (open and closed) for one repository.
func (c *Client) Pulls(ctx context.Context, fullName string) ([]model.PullSummary, error) {
	var raw []struct {
		Number   int     `json:"number"`
		State    string  `json:"state"`
		MergedAt *string `json:"merged_at"`
		User     *struct {
			Login string `json:"login"`
		} `json:"user"`
	}
	if err := c.Get(ctx, "repos/"+fullName+"/pulls?state=all&per_page=50", &raw); err != nil {
		return nil, err
	}
	pulls := make([]model.PullSummary, len(raw))
	for i, p := range raw {
		pulls[i] = model.PullSummary{Number: p.Number, State: p.State, MergedAt: p.MergedAt}
		if p.User != nil {
			login := p.User.Login
			pulls[i].User = &login
		}
	}
	return pulls, nil
}

// Commits fetches one page of up to 100 recent commits for one repository.
func (c *Client) Commits(ctx context.Context, fullName string) ([]model.CommitEntry, error) {
	var commits []model.CommitEntry
	path := fmt.Sprintf("repos/%s/commits?per_page=%d", fullName, pageSize)
	if err := c.Get(ctx, path, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

// Issues fetches one page of issues for one repository. The upstream issues
// endpoint also returns pull requests; entries carrying a pull_request
// marker are excluded here. That filtering is an upstream API quirk to
// preserve, not a bug.
func (c *Client) Issues(ctx context.Context, fullName string) ([]model.DetailIssue, error) {
	var raw []model.IssueEntry
	path := fmt.Sprintf("repos/%s/issues?state=all&per_page=%d", fullName, pageSize)
	if err := c.Get(ctx, path, &raw); err != nil {
		return nil, err
	}
	issues := make([]model.DetailIssue, 0, len(raw))
	for _, i := range raw {
		if i.IsPullRequest() {
			continue
		}
		issue := model.DetailIssue{Number: i.Number, State: i.State, Title: i.Title}
		if i.User != nil {
			login := i.User.Login
			issue.User = &login
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// CommitStats fetches the diff statistics (additions, deletions) of one
// commit.
func (c *Client) CommitStats(ctx context.Context, fullName, sha string) (additions, deletions int, err error) {
	var body struct {
		Stats struct {
			Additions int `json:"additions"`
			Deletions int `json:"deletions"`
		} `json:"stats"`
	}
	if err := c.Get(ctx, "repos/"+fullName+"/commits/"+sha, &body); err != nil {
		return 0, 0, err
	}
	return body.Stats.Additions, body.Stats.Deletions, nil
}
