// internal/aggregate/details.go
package aggregate

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	gh "copilot-metrics-service/internal/github"
	"copilot-metrics-service/internal/model"
)

const (
	// batchSize caps the number of repositories whose details are fetched
	// concurrently.
	batchSize = 5
	// batchDelay is the pause between batches to stay under the upstream
	// rate limit.
	batchDelay = 200 * time.Millisecond
)

// Service runs the aggregation pipelines for one request at a time. It holds
// no per-request state; concurrent requests are fully independent.
type Service struct {
	logger *slog.Logger

	// overridable in tests
	batchDelay time.Duration
}

// New creates a new aggregation Service.
func New(logger *slog.Logger) *Service {
	return &Service{
		logger:     logger,
		batchDelay: batchDelay,
	}
}

// RepositoryDetails fetches the enriched detail record for every repository,
// in batches of five. Output order matches input order regardless of fetch
// completion order, and no failure aborts the run: a repository whose
// sub-fetches all fail still yields a record with empty collections.
func (s *Service) RepositoryDetails(ctx context.Context, client *gh.Client, repos []model.RepositorySummary) []model.RepositoryDetail {
	return collectBatches(ctx, repos, batchSize, s.batchDelay, func(ctx context.Context, repo model.RepositorySummary) model.RepositoryDetail {
		return s.fetchDetail(ctx, client, repo)
	})
}

// collectBatches partitions items into contiguous batches of size n, runs fn
// concurrently within each batch, and waits for the whole batch before
// starting the next one. Results are collected per-batch in construction
// order, so the output order is the input order. Between batches it pauses
// for delay.
func collectBatches[T, R any](ctx context.Context, items []T, n int, delay time.Duration, fn func(context.Context, T) R) []R {
	results := make([]R, 0, len(items))
	for start := 0; start < len(items); start += n {
		end := min(start+n, len(items))
		batch := items[start:end]
		batchResults := make([]R, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, item := range batch {
			g.Go(func() error {
				batchResults[i] = fn(gctx, item)
				return nil
			})
		}
		_ = g.Wait()
		results = append(results, batchResults...)

		if end < len(items) {
			if err := pause(ctx, delay); err != nil {
				break
			}
		}
	}
	return results
}

// fetchDetail assembles one RepositoryDetail from seven sub-resource
// fetches. Languages and topics run in parallel; the rest run in sequence.
// Every sub-fetch degrades to its empty default on failure, so no single
// sub-resource failure aborts the record.
func (s *Service) fetchDetail(ctx context.Context, client *gh.Client, repo model.RepositorySummary) model.RepositoryDetail {
	logger := s.logger.With("repo", repo.FullName)

	detail := model.RepositoryDetail{
		Name:         repo.Name,
		FullName:     repo.FullName,
		Private:      repo.Private,
		Fork:         repo.Fork,
		HTMLURL:      repo.HTMLURL,
		Description:  repo.Description,
		Language:     repo.Language,
		Topics:       []string{},
		Languages:    map[string]int{},
		Branches:     []model.Branch{},
		Contributors: []model.Contributor{},
		Pulls:        []model.PullSummary{},
		Commits:      []model.DetailCommit{},
		Issues:       []model.DetailIssue{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if langs, err := client.Languages(gctx, repo.FullName); err != nil {
			logger.Warn("Failed to fetch languages", "error", err)
		} else if langs != nil {
			detail.Languages = langs
		}
		return nil
	})
	g.Go(func() error {
		if topics, err := client.Topics(gctx, repo.FullName); err != nil {
			logger.Warn("Failed to fetch topics", "error", err)
		} else if topics != nil {
			detail.Topics = topics
		}
		return nil
	})
	_ = g.Wait()

	if branches, err := client.Branches(ctx, repo.FullName); err != nil {
		logger.Warn("Failed to fetch branches", "error", err)
	} else if branches != nil {
		detail.Branches = branches
	}

	if contributors, err := client.Contributors(ctx, repo.FullName); err != nil {
		logger.Warn("Failed to fetch contributors", "error", err)
	} else if contributors != nil {
		detail.Contributors = contributors
	}

	if pulls, err := client.Pulls(ctx, repo.FullName); err != nil {
		logger.Warn("Failed to fetch pulls", "error", err)
	} else if pulls != nil {
		detail.Pulls = pulls
	}

	if commits, err := client.Commits(ctx, repo.FullName); err != nil {
		logger.Warn("Failed to fetch commits", "error", err)
	} else {
		detail.Commits = make([]model.DetailCommit, len(commits))
		for i, c := range commits {
			dc := model.DetailCommit{SHA: c.SHA, Commit: c.Commit}
			if c.Author != nil {
				login := c.Author.Login
				dc.Author = &login
			}
			detail.Commits[i] = dc
		}
	}

	if issues, err := client.Issues(ctx, repo.FullName); err != nil {
		logger.Warn("Failed to fetch issues", "error", err)
	} else if issues != nil {
		detail.Issues = issues
	}

	return detail
}

// pause waits for d, returning early if the context is cancelled.
func pause(ctx context.Context, d time.Duration) error {
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
