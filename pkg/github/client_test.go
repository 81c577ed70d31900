package github

import (
	"io"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/charmbracelet/log"
	gh "github.com/google/go-github/v66/github"
)

// testClient points a Client at a fake server for REST, GraphQL, and the
// dependents page alike.
func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	c := NewClient("", log.New(io.Discard))
	c.http = srv.Client()
	c.GraphQLURL = srv.URL + "/graphql"
	c.WebURL = srv.URL

	rest := gh.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parsing server URL: %v", err)
	}
	rest.BaseURL = base
	c.Rest = rest
	return c
}
