// Package registry provides shared HTTP functionality for package-registry
// API clients (npm, PyPI, crates.io, RubyGems, Packagist, the Go module proxy).
//
// Each ecosystem strategy uses a Client to resolve a package name to its
// source repository and to probe whether a package exists at all. The client
// handles retry logic, error classification, and common request headers.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/matzehuels/usedby/pkg/httputil"
)

var (
	// ErrNotFound is returned when a package or resource doesn't exist in the registry.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")
)

// Client provides shared HTTP functionality for all registry API clients.
// It handles retry logic and common request headers.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	http    *http.Client
	headers map[string]string
}

// NewClient creates a Client with the given default headers.
// Headers are applied to all requests made through this client.
// Pass nil for headers if no default headers are needed.
func NewClient(headers map[string]string) *Client {
	return &Client{
		http:    NewHTTPClient(),
		headers: headers,
	}
}

// SetHTTPClient replaces the underlying HTTP client. Intended for tests.
func (c *Client) SetHTTPClient(h *http.Client) { c.http = h }

// Get performs an HTTP GET request with retries and JSON-decodes the
// response into v.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	return httputil.RetryWithBackoff(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, url)
		if err != nil {
			return err
		}
		defer body.Close()
		return json.NewDecoder(body).Decode(v)
	})
}

// GetText performs an HTTP GET request and returns the response body as a
// string. Useful for non-JSON endpoints like go.mod files.
func (c *Client) GetText(ctx context.Context, url string) (string, error) {
	var text string
	err := httputil.RetryWithBackoff(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, url)
		if err != nil {
			return err
		}
		defer body.Close()
		data, err := io.ReadAll(body)
		text = string(data)
		return err
	})
	return text, err
}

// Exists probes url and reports whether the resource is present.
// A 404 reports false; any other failure is returned as an error so callers
// can decide how permissive to be.
func (c *Client) Exists(ctx context.Context, url string) (bool, error) {
	body, err := c.doRequest(ctx, http.MethodGet, url)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	body.Close()
	return true, nil
}

func (c *Client) doRequest(ctx context.Context, method, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, httputil.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}

	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return ErrNotFound
	case code >= 500:
		return httputil.Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}
