package github

import (
	"context"
	"time"

	gh "github.com/google/go-github/v66/github"
)

// searchPageSize is the code-search page size (the API maximum).
const searchPageSize = 100

// SearchResult is the output of the search stage.
type SearchResult struct {
	Repos []DependentRepo

	// TotalCount is the search engine's reported total match count, which
	// counts files, not repositories.
	TotalCount int

	// RateLimited is set when pagination stopped early because a page fetch
	// stayed rate-limited through all retries. Repos holds everything
	// gathered before the cutoff.
	RateLimited bool

	// Capped is set when maxPages full pages were consumed without reaching
	// the end of results. Not an error condition, distinct from RateLimited.
	Capped bool
}

// SearchDependents runs paginated code search for query, deduplicating
// matches by repository: a manifest matched several times in one repository
// (a monorepo) contributes exactly one candidate.
//
// A non-full page signals end-of-results and stops pagination early. Between
// pages the stage sleeps pageDelay to stay under secondary rate limits. A
// page fetch that stays rate-limited after retries ends the stage with
// whatever was gathered, flagged RateLimited. Non-rate-limit errors propagate
// immediately.
func (c *Client) SearchDependents(ctx context.Context, query string, maxPages int, pageDelay time.Duration) (*SearchResult, error) {
	result := &SearchResult{}
	seen := make(map[string]bool)

	opts := &gh.SearchOptions{
		ListOptions: gh.ListOptions{PerPage: searchPageSize},
	}

	for page := 1; page <= maxPages; page++ {
		opts.Page = page

		var res *gh.CodeSearchResult
		err := retryOnRateLimit(ctx, func() error {
			r, _, err := c.Rest.Search.Code(ctx, query, opts)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
		if err != nil {
			if isAnyRateLimit(err) {
				c.logger.Warn("code search rate limited", "page", page, "collected", len(result.Repos))
				result.RateLimited = true
				return result, nil
			}
			return nil, err
		}

		if page == 1 {
			result.TotalCount = res.GetTotal()
		}
		for _, item := range res.CodeResults {
			repo := codeResultRepo(item)
			if repo.FullName == "" || seen[repo.FullName] {
				continue
			}
			seen[repo.FullName] = true
			result.Repos = append(result.Repos, repo)
		}

		if len(res.CodeResults) < searchPageSize {
			return result, nil
		}
		if page == maxPages {
			result.Capped = true
			return result, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pageDelay):
		}
	}
	return result, nil
}

// codeResultRepo builds a partial DependentRepo from one search match.
// Search results carry identity and the fork flag; stars and push date come
// back zero-valued here and are filled in by enrichment.
func codeResultRepo(item *gh.CodeResult) DependentRepo {
	repo := item.GetRepository()

	r := DependentRepo{
		Owner:        repo.GetOwner().GetLogin(),
		Name:         repo.GetName(),
		FullName:     repo.GetFullName(),
		Stars:        repo.GetStargazersCount(),
		AvatarURL:    repo.GetOwner().GetAvatarURL(),
		IsFork:       repo.GetFork(),
		ManifestPath: item.GetPath(),
	}
	if ts := repo.PushedAt; ts != nil {
		r.LastPush = ts.Format(time.RFC3339)
	}
	return r
}
