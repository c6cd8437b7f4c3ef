// Package odesli implements a client for the Odesli (song.link) universal
// link API, used to resolve a track on one streaming catalog to its
// equivalent id on another without any search-string guessing.
//
// API docs: https://linktree.notion.site/API-d0ebe08a5e304a55928405eb682f6741
package odesli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/desertthunder/crossfade/internal/shared"
)

const (
	baseURL = "https://api.song.link/v1-alpha.1/links"

	// requestsPerMinute is Odesli's documented rate limit.
	requestsPerMinute = 10
)

type linkEntry struct {
	EntityUniqueID string `json:"entityUniqueId"`
}

type linksResponse struct {
	LinksByPlatform map[string]linkEntry `json:"linksByPlatform"`
}

// Client resolves source-catalog track URLs to a target platform's track
// id through Odesli, holding callers to the documented 10 requests/minute.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	platform   string // target platform key in linksByPlatform, e.g. "tidal"
	country    string
}

// New builds a Client that resolves links to the given target platform
// (the linksByPlatform key, e.g. "tidal").
func New(platform string) *Client {
	return &Client{
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
		baseURL:    baseURL,
		platform:   platform,
		country:    "US",
	}
}

// WithBaseURL overrides the API base URL, for pointing the client at a test
// server.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

// WithHTTPClient installs a custom http.Client, for tests.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// ResolveTidalID implements [matching.LinkResolver]. Despite the name it
// resolves to whatever platform the Client was constructed with; the name
// matches the interface the matching engine depends on, since Tidal is the
// only target catalog wired up today.
func (c *Client) ResolveTidalID(ctx context.Context, sourceTrackURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("odesli rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return "", fmt.Errorf("build odesli request: %w", err)
	}

	q := req.URL.Query()
	q.Set("url", sourceTrackURL)
	q.Set("userCountry", c.country)
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("odesli request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: odesli returned 429", shared.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: odesli status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var body linksResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode odesli response: %w", err)
	}

	entry, ok := body.LinksByPlatform[c.platform]
	if !ok || entry.EntityUniqueID == "" {
		return "", nil
	}

	// entityUniqueId is of the form "TIDAL_TRACK::123456".
	parts := strings.SplitN(entry.EntityUniqueID, "::", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", nil
	}

	return parts[1], nil
}
