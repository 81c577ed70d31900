package github

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// VerifyFunc checks whether a manifest's text actually declares the target
// package, guarding against search false positives (the name appearing only
// in a README or a description string). It returns the declared version and
// dependency type when found.
type VerifyFunc func(manifest string) (version, depType string, ok bool)

// EnrichResult is the output of the enrichment stage.
type EnrichResult struct {
	Repos []DependentRepo

	// RateLimited is set when a batch stayed rate-limited through all
	// retries. Repos holds everything enriched before the cutoff.
	RateLimited bool
}

// EnrichDependents fetches metadata and manifest content for candidates in
// aliased GraphQL batches of batchSize, running up to concurrency batches at
// a time.
//
// Candidates whose repository no longer exists, whose manifest is missing or
// unreadable, or whose manifest fails verification are silently dropped.
// Hard errors within a batch abort the whole stage; a rate-limited batch
// ends the stage after its wave with everything enriched so far.
func (c *Client) EnrichDependents(ctx context.Context, candidates []DependentRepo, manifestFile string, verify VerifyFunc, batchSize, concurrency int) (*EnrichResult, error) {
	result := &EnrichResult{}
	batchSize = max(batchSize, 1)
	concurrency = max(concurrency, 1)

	var batches [][]DependentRepo
	for start := 0; start < len(candidates); start += batchSize {
		batches = append(batches, candidates[start:min(start+batchSize, len(candidates))])
	}

	for wave := 0; wave < len(batches); wave += concurrency {
		group := batches[wave:min(wave+concurrency, len(batches))]
		outs := make([]batchOutcome, len(group))

		var wg sync.WaitGroup
		for i, batch := range group {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outs[i] = c.enrichBatch(ctx, batch, manifestFile, verify)
			}()
		}
		wg.Wait()

		// Classify the settled wave in two passes: a hard error anywhere
		// must surface before any rate-limit signal is acted on.
		for _, out := range outs {
			if out.err != nil {
				return nil, out.err
			}
		}
		rateLimited := false
		for _, out := range outs {
			result.Repos = append(result.Repos, out.repos...)
			rateLimited = rateLimited || out.rateLimited
		}
		if rateLimited {
			c.logger.Warn("enrichment rate limited", "enriched", len(result.Repos))
			result.RateLimited = true
			return result, nil
		}
	}
	return result, nil
}

type batchOutcome struct {
	repos       []DependentRepo
	rateLimited bool
	err         error
}

func (c *Client) enrichBatch(ctx context.Context, batch []DependentRepo, manifestFile string, verify VerifyFunc) batchOutcome {
	query := buildBatchQuery(batch, manifestFile)

	var resp gqlResponse
	err := retryOnRateLimit(ctx, func() error {
		return c.doGraphQL(ctx, query, &resp)
	})
	if err != nil {
		if isAnyRateLimit(err) {
			return batchOutcome{rateLimited: true}
		}
		return batchOutcome{err: err}
	}

	// First pass over per-alias errors: NOT_FOUND means the candidate is
	// gone (dropped below), RATE_LIMITED is a partial-result signal, and
	// anything else is a genuine failure that must not be masked.
	rateLimited := false
	for _, gerr := range resp.Errors {
		switch gerr.Type {
		case "NOT_FOUND":
		case "RATE_LIMITED":
			rateLimited = true
		default:
			return batchOutcome{err: fmt.Errorf("graphql: %s: %s", gerr.Type, gerr.Message)}
		}
	}

	out := batchOutcome{rateLimited: rateLimited}
	for i, cand := range batch {
		node, ok := resp.Data[alias(i)]
		if !ok || node == nil {
			continue // deleted or private since search indexed it
		}
		if node.Manifest == nil || node.Manifest.Text == nil {
			continue
		}
		version, depType, ok := verify(*node.Manifest.Text)
		if !ok {
			continue
		}

		enriched := cand
		enriched.Stars = node.StargazerCount
		enriched.LastPush = node.PushedAt
		enriched.IsFork = node.IsFork
		enriched.Archived = node.IsArchived
		if node.Owner.AvatarURL != "" {
			enriched.AvatarURL = node.Owner.AvatarURL
		}
		enriched.Version = version
		enriched.DepType = depType
		out.repos = append(out.repos, enriched)
	}
	return out
}

func alias(i int) string { return "r" + strconv.Itoa(i) }

// buildBatchQuery assembles one aliased repository query per candidate,
// fetching metadata plus the manifest blob in a single round trip.
func buildBatchQuery(batch []DependentRepo, manifestFile string) string {
	var b strings.Builder
	b.WriteString("query {\n")
	for i, cand := range batch {
		path := cand.ManifestPath
		if path == "" {
			path = manifestFile
		}
		fmt.Fprintf(&b, "%s: repository(owner: %s, name: %s) {\n", alias(i), strconv.Quote(cand.Owner), strconv.Quote(cand.Name))
		b.WriteString("nameWithOwner stargazerCount pushedAt isFork isArchived owner { avatarUrl }\n")
		fmt.Fprintf(&b, "manifest: object(expression: %s) { ... on Blob { text } }\n", strconv.Quote("HEAD:"+path))
		b.WriteString("}\n")
	}
	b.WriteString("}")
	return b.String()
}

type gqlResponse struct {
	Data   map[string]*repoNode `json:"data"`
	Errors []gqlError           `json:"errors"`
}

type gqlError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type repoNode struct {
	NameWithOwner  string `json:"nameWithOwner"`
	StargazerCount int    `json:"stargazerCount"`
	PushedAt       string `json:"pushedAt"`
	IsFork         bool   `json:"isFork"`
	IsArchived     bool   `json:"isArchived"`
	Owner          struct {
		AvatarURL string `json:"avatarUrl"`
	} `json:"owner"`
	Manifest *struct {
		Text *string `json:"text"`
	} `json:"manifest"`
}
