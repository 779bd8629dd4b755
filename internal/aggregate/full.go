// internal/aggregate/full.go
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	gh "copilot-metrics-service/internal/github"
	"copilot-metrics-service/internal/model"
)

// FullData assembles the everything-at-once payload: six tolerant top-level
// fetches in parallel, then every repository page by page, recent events,
// and batched per-repository details. Every collection in the result is
// present even when its fetch failed; only the repository list fetch itself
// is fatal.
func (s *Service) FullData(ctx context.Context, client *gh.Client, identity model.Identity) (*model.FullData, error) {
	data := &model.FullData{
		Orgs:        []json.RawMessage{},
		Gists:       []json.RawMessage{},
		Starred:     []json.RawMessage{},
		Followers:   []json.RawMessage{},
		Following:   []json.RawMessage{},
		Repos:       []model.RepositorySummary{},
		RepoDetails: []model.RepositoryDetail{},
		Events:      []json.RawMessage{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var user json.RawMessage
		if err := client.Get(gctx, "user", &user); err != nil {
			s.logger.Warn("Failed to fetch user profile", "error", err)
			return nil
		}
		data.User = user
		return nil
	})
	g.Go(func() error { return s.tolerantList(gctx, client, "user/orgs", &data.Orgs) })
	g.Go(func() error { return s.tolerantList(gctx, client, "gists", &data.Gists) })
	g.Go(func() error { return s.tolerantList(gctx, client, "user/starred?per_page=100", &data.Starred) })
	g.Go(func() error { return s.tolerantList(gctx, client, "user/followers?per_page=100", &data.Followers) })
	g.Go(func() error { return s.tolerantList(gctx, client, "user/following?per_page=100", &data.Following) })
	_ = g.Wait()

	if data.User == nil {
		// fall back to the session identity so the field is never null
		fallback, err := json.Marshal(identity)
		if err != nil {
			return nil, err
		}
		data.User = fallback
	}

	repos, err := gh.ListPaginated[model.RepositorySummary](ctx, client, "user/repos")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repositories: %w", err)
	}
	if repos != nil {
		data.Repos = repos
	}

	events, err := gh.ListPaginated[json.RawMessage](ctx, client, "users/"+identity.Login+"/events")
	if err != nil {
		s.logger.Warn("Failed to fetch events", "login", identity.Login, "error", err)
	} else if events != nil {
		data.Events = events
	}

	data.RepoDetails = s.RepositoryDetails(ctx, client, repos)
	return data, nil
}

// tolerantList fetches one list resource, logging and keeping the empty
// default on failure.
func (s *Service) tolerantList(ctx context.Context, client *gh.Client, path string, dst *[]json.RawMessage) error {
	var items []json.RawMessage
	if err := client.Get(ctx, path, &items); err != nil {
		s.logger.Warn("Failed to fetch list resource", "path", path, "error", err)
		return nil
	}
	if items != nil {
		*dst = items
	}
	return nil
}
