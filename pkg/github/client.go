// Package github provides the upstream GitHub access used by the
// dependent-resolution pipeline: paginated code search, batched metadata and
// manifest enrichment over the GraphQL API, the dependents-page count scrape,
// and the rate-limit classification and backoff policy shared by all of them.
package github

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	gh "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

const httpTimeout = 30 * time.Second

// Client wraps the GitHub REST and GraphQL APIs for dependent discovery.
//
// The exported URL fields exist so tests can point the client at a fake
// server; production code never touches them after construction.
type Client struct {
	Rest       *gh.Client
	GraphQLURL string
	WebURL     string

	http   *http.Client
	logger *log.Logger
}

// NewClient creates a GitHub client. Pass an empty token for unauthenticated
// requests (much lower rate limits; search and GraphQL require a token in
// practice).
func NewClient(token string, logger *log.Logger) *Client {
	httpClient := &http.Client{Timeout: httpTimeout}
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = &http.Client{
			Timeout:   httpTimeout,
			Transport: &oauth2.Transport{Source: src},
		}
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Client{
		Rest:       gh.NewClient(httpClient),
		GraphQLURL: "https://api.github.com/graphql",
		WebURL:     "https://github.com",
		http:       httpClient,
		logger:     logger,
	}
}
