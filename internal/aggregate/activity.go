// internal/aggregate/activity.go
package aggregate

import (
	"context"
	"fmt"
	"math"
	"strings"

	gh "copilot-metrics-service/internal/github"
	"copilot-metrics-service/internal/model"
)

// Time-saved heuristic: 30% of added lines are assumed assistance-influenced,
// at a nominal 0.5 minutes of authoring time per line, with a 45% time
// reduction. The formula is product policy; output compatibility depends on
// keeping it exact.
const (
	assistanceRate = 0.30
	minutesPerLine = 0.5
	speedupFactor  = 0.55

	// commitDetailCap bounds the per-repository diff-stat fetches. It exists
	// purely to limit API call volume, not for correctness.
	commitDetailCap = 30
	// recentRepoLimit bounds the recentRepos list in the response.
	recentRepoLimit = 10
)

// Activity computes the commit-activity metrics for the authenticated
// identity: up to 100 most-recently-pushed repositories, up to 100 recent
// commits each, filtered to commits attributable to the identity, with diff
// statistics sampled from the first 30 matches per repository. A repository
// whose commit list fails to fetch is skipped; a failed diff-stat fetch is
// excluded from the lines-added tally without decrementing the commit count.
func (s *Service) Activity(ctx context.Context, client *gh.Client, identity model.Identity) (*model.ActivityMetrics, error) {
	repos, err := client.PushedRepositories(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Fetched repositories for activity", "count", len(repos), "login", identity.Login)

	var totalCommits, linesAdded, linesDeleted, pushEvents int
	for _, repo := range repos {
		commits, err := client.Commits(ctx, repo.FullName)
		if err != nil {
			s.logger.Warn("Skipping repository, commit fetch failed", "repo", repo.FullName, "error", err)
			continue
		}

		var mine []model.CommitEntry
		for _, c := range commits {
			if matchesIdentity(c, identity) {
				mine = append(mine, c)
			}
		}
		if len(mine) == 0 {
			continue
		}
		totalCommits += len(mine)

		sample := mine
		if len(sample) > commitDetailCap {
			sample = sample[:commitDetailCap]
		}
		for _, c := range sample {
			additions, deletions, err := client.CommitStats(ctx, repo.FullName, c.SHA)
			if err != nil {
				s.logger.Warn("Skipping commit detail", "repo", repo.FullName, "sha", c.SHA, "error", err)
				continue
			}
			linesAdded += additions
			linesDeleted += deletions
		}
		// one push event per repository the user has commits in
		pushEvents++
	}
	s.logger.Info("Activity aggregation finished",
		"totalCommits", totalCommits, "linesAdded", linesAdded, "linesDeleted", linesDeleted)

	timeSaved := estimateTimeSaved(linesAdded)

	metrics := &model.ActivityMetrics{
		TotalCommits:        totalCommits,
		EstimatedLinesAdded: linesAdded,
		TimeSavedMinutes:    timeSaved,
		TimeSavedHours:      fmt.Sprintf("%.1f", float64(timeSaved)/60),
		PushEvents:          pushEvents,
		RecentRepos:         []model.RecentRepo{},
	}
	for _, repo := range repos {
		if len(metrics.RecentRepos) == recentRepoLimit {
			break
		}
		metrics.RecentRepos = append(metrics.RecentRepos, model.RecentRepo{
			Name:     repo.Name,
			Language: repo.Language,
			Updated:  repo.PushedAt,
		})
	}
	if len(repos) > 0 {
		metrics.LastActivity = repos[0].PushedAt
	}
	return metrics, nil
}

// estimateTimeSaved converts a lines-added count into estimated minutes
// saved.
func estimateTimeSaved(linesAdded int) int {
	return int(math.Round(float64(linesAdded) * assistanceRate * minutesPerLine * speedupFactor))
}

// matchesIdentity attributes a commit to the identity through a tiered
// match: account login, then commit author email, then committer email, then
// a case-insensitive substring match of the login inside the author's
// display name. The last tier is deliberately loose; changing it changes
// which commits count.
func matchesIdentity(c model.CommitEntry, identity model.Identity) bool {
	if identity.Login != "" && c.Author != nil && c.Author.Login == identity.Login {
		return true
	}
	name, email := c.GitAuthor()
	if identity.Email != "" && email == identity.Email {
		return true
	}
	if identity.Email != "" && c.GitCommitterEmail() == identity.Email {
		return true
	}
	if identity.Login != "" && name != "" &&
		strings.Contains(strings.ToLower(name), strings.ToLower(identity.Login)) {
		return true
	}
	return false
}
