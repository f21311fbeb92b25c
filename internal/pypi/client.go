// Package pypi implements the metadata client for the upstream registry's
// JSON API (`/pypi/{project}/json`) plus the name and requirement parsing
// helpers shared by the resolver and the analyzer.
package pypi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const defaultUserAgent = "wheelstub"

// Client fetches project metadata from one registry base URL. The zero value
// is not usable; construct via NewClient.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// NewClient builds a metadata client for the given registry base URL. A nil
// httpClient falls back to http.DefaultClient; callers normally pass the
// shared metadata client so the strict overall timeout applies.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  defaultUserAgent,
	}
}

// BaseURL reports the registry base this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Project fetches and decodes the JSON metadata document for a project.
// The name is normalized before building the URL. A 404 maps to
// NotFoundError (errors.Is ErrNotFound); other non-200 statuses map to
// StatusError.
func (c *Client) Project(ctx context.Context, name string) (*Project, error) {
	normalized := Normalize(name)
	if normalized == "" {
		return nil, errors.New("pypi: empty project name")
	}
	endpoint := fmt.Sprintf("%s/pypi/%s/json", c.baseURL, normalized)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("pypi: build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pypi: fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Package: normalized}
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	var project Project
	if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
		return nil, fmt.Errorf("pypi: decode %s: %w", endpoint, err)
	}
	return &project, nil
}
