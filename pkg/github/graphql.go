package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gh "github.com/google/go-github/v66/github"
)

// doGraphQL posts query to the GraphQL endpoint and decodes the response.
// Rate-limited responses are returned as the same error types go-github
// produces for REST calls, so one classifier covers both transports.
func (c *Client) doGraphQL(ctx context.Context, query string, out *gqlResponse) error {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.GraphQLURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := classifyGraphQLStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// classifyGraphQLStatus mirrors go-github's CheckResponse for the two
// rate-limit shapes: 403 with zero remaining quota (primary) and 403/429
// with a retry-after header (secondary).
func classifyGraphQLStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				after := time.Duration(secs) * time.Second
				return &gh.AbuseRateLimitError{
					Response:   resp,
					Message:    "secondary rate limit",
					RetryAfter: &after,
				}
			}
		}
		if resp.Header.Get("X-Ratelimit-Remaining") == "0" {
			rle := &gh.RateLimitError{
				Response: resp,
				Message:  "rate limit exceeded",
			}
			if v := resp.Header.Get("X-Ratelimit-Reset"); v != "" {
				if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
					rle.Rate.Reset = gh.Timestamp{Time: time.Unix(epoch, 0)}
				}
			}
			return rle
		}
	}

	return fmt.Errorf("graphql: unexpected status %d", resp.StatusCode)
}
