package github

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// dependentsCountPattern matches the "1,234 Repositories" label on the
// dependents page, tolerating thousands separators.
var dependentsCountPattern = regexp.MustCompile(`([\d,]+)\s*\n?\s*Repositories`)

// DependentCount scrapes the live dependents page for owner/repo and
// extracts the repository count. The page is not an API, so any failure —
// network, non-200, layout change, unparseable number — reports ok=false
// rather than an error; callers degrade to "count unavailable".
func (c *Client) DependentCount(ctx context.Context, owner, repo string) (int, bool) {
	url := c.WebURL + "/" + owner + "/" + repo + "/network/dependents"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	// The count appears within the first part of the page; cap the read.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, false
	}

	m := dependentsCountPattern.FindSubmatch(body)
	if m == nil {
		return 0, false
	}
	count, err := strconv.Atoi(strings.ReplaceAll(string(m[1]), ",", ""))
	if err != nil {
		return 0, false
	}
	return count, true
}
