// Package tidal implements [catalog.TargetCatalog] against the Tidal API:
// find-or-create playlists, ETag-guarded mutation with a per-item fallback,
// and free-text track search.
package tidal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/crossfade/internal/catalog"
	"github.com/desertthunder/crossfade/internal/shared"
)

const (
	baseURL = "https://api.tidal.com/v1"

	playlistsPageSize = 50
	itemsPageSize     = 100
)

type artist struct {
	Name string `json:"name"`
}

type track struct {
	ID       any      `json:"id"` // Tidal ids are returned as numbers but used as strings downstream
	Title    string   `json:"title"`
	Artists  []artist `json:"artists"`
	Duration int      `json:"duration"`
	ISRC     string   `json:"isrc"`
}

func (t track) id() string {
	switch v := t.ID.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return fmt.Sprint(v)
	}
}

func (t track) artistNames() []string {
	out := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		out = append(out, a.Name)
	}
	return out
}

type playlistItemWrapper struct {
	Item track `json:"item"`
}

type paginatedItems struct {
	Items              []playlistItemWrapper `json:"items"`
	Offset             int                   `json:"offset"`
	TotalNumberOfItems int                   `json:"totalNumberOfItems"`
}

type playlist struct {
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type paginatedPlaylists struct {
	Items              []playlist `json:"items"`
	Offset             int        `json:"offset"`
	TotalNumberOfItems int        `json:"totalNumberOfItems"`
}

type searchResponse struct {
	Tracks struct {
		Items []track `json:"items"`
	} `json:"tracks"`
}

// Catalog is a [catalog.TargetCatalog] backed by the Tidal API.
type Catalog struct {
	client   *http.Client
	logger   *log.Logger
	baseURL  string
	userID   string
	toolName string
	limiter  *rate.Limiter
}

// New builds a Catalog. client must already carry Tidal bearer
// authentication (see bearerTransport in the migrate command).
func New(client *http.Client, userID, toolName string) *Catalog {
	return &Catalog{
		client:   client,
		logger:   shared.NewLogger(nil),
		baseURL:  baseURL,
		userID:   userID,
		toolName: toolName,
		limiter:  rate.NewLimiter(rate.Limit(2), 1),
	}
}

// WithBaseURL overrides the API base URL, for pointing the client at a test
// server.
func (c *Catalog) WithBaseURL(url string) *Catalog {
	c.baseURL = url
	return c
}

func (c *Catalog) Name() string { return "Tidal" }

// request performs a request and optionally decodes the JSON body into
// result. It returns the response's ETag header verbatim.
func (c *Catalog) request(ctx context.Context, method, endpoint, ifNoneMatch string, body url.Values, result any) (etag string, err error) {
	var bodyReader *strings.Reader
	if body != nil {
		bodyReader = strings.NewReader(body.Encode())
	} else {
		bodyReader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return "", fmt.Errorf("build tidal request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tidal request: %w", err)
	}
	defer resp.Body.Close()

	etag = resp.Header.Get("ETag")

	if resp.StatusCode == http.StatusPreconditionFailed || resp.StatusCode == http.StatusConflict {
		return etag, fmt.Errorf("%w on %s", shared.ErrEntityTagMismatch, endpoint)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return etag, fmt.Errorf("%w: tidal returned 429", shared.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return etag, fmt.Errorf("%w: tidal status %d on %s", shared.ErrAPIRequest, resp.StatusCode, endpoint)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return etag, fmt.Errorf("decode tidal response: %w", err)
		}
	}

	return etag, nil
}

// ListPlaylists implements [catalog.TargetCatalog].
func (c *Catalog) ListPlaylists(ctx context.Context) ([]catalog.TargetPlaylist, error) {
	var out []catalog.TargetPlaylist
	offset := 0

	for {
		endpoint := fmt.Sprintf("/users/%s/playlists?limit=%d&offset=%d", c.userID, playlistsPageSize, offset)
		var page paginatedPlaylists
		if _, err := c.request(ctx, http.MethodGet, endpoint, "", nil, &page); err != nil {
			return nil, err
		}

		for _, p := range page.Items {
			out = append(out, catalog.TargetPlaylist{UUID: p.UUID, Title: p.Title, Description: p.Description})
		}

		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.TotalNumberOfItems {
			break
		}
	}

	return out, nil
}

// CreatePlaylist implements [catalog.TargetCatalog]. If the create response
// omits the uuid, falls back to listing playlists and matching by title.
func (c *Catalog) CreatePlaylist(ctx context.Context, title, description string) (*catalog.TargetPlaylist, error) {
	form := url.Values{"title": {title}, "description": {description}}
	endpoint := fmt.Sprintf("/users/%s/playlists", c.userID)

	var created playlist
	etag, err := c.request(ctx, http.MethodPost, endpoint, "", form, &created)
	if err != nil {
		return nil, fmt.Errorf("create playlist: %w", err)
	}

	if created.UUID != "" {
		return &catalog.TargetPlaylist{UUID: created.UUID, Title: created.Title, Description: created.Description, ETag: etag}, nil
	}

	c.logger.Warn("create playlist response omitted uuid, falling back to list", "title", title)
	playlists, err := c.ListPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("fallback list after create: %w", err)
	}
	for _, p := range playlists {
		if p.Title == title {
			return &p, nil
		}
	}

	return nil, fmt.Errorf("%w: created playlist %q not found on fallback list", shared.ErrPlaylistNotFound, title)
}

// GetPlaylist implements [catalog.TargetCatalog].
func (c *Catalog) GetPlaylist(ctx context.Context, uuid string) (*catalog.TargetPlaylist, error) {
	var p playlist
	etag, err := c.request(ctx, http.MethodGet, "/playlists/"+uuid, "", nil, &p)
	if err != nil {
		return nil, err
	}
	return &catalog.TargetPlaylist{UUID: p.UUID, Title: p.Title, Description: p.Description, ETag: etag}, nil
}

// PlaylistItems implements [catalog.TargetCatalog]: pages in 100s until
// offset reaches totalNumberOfItems.
func (c *Catalog) PlaylistItems(ctx context.Context, uuid string) ([]catalog.PlaylistItem, error) {
	var out []catalog.PlaylistItem
	offset := 0

	for {
		endpoint := fmt.Sprintf("/playlists/%s/items?limit=%d&offset=%d", uuid, itemsPageSize, offset)
		var page paginatedItems
		if _, err := c.request(ctx, http.MethodGet, endpoint, "", nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			out = append(out, catalog.PlaylistItem{
				TargetID:  item.Item.id(),
				Title:     item.Item.Title,
				Artists:   item.Item.artistNames(),
				DurationS: item.Item.Duration,
			})
		}

		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.TotalNumberOfItems {
			if offset != page.TotalNumberOfItems && page.TotalNumberOfItems > 0 {
				c.logger.Warn("playlist item count mismatch", "uuid", uuid, "fetched", offset, "reported", page.TotalNumberOfItems)
			}
			break
		}
	}

	return out, nil
}

// UpdatePlaylistDescription implements [catalog.TargetCatalog].
func (c *Catalog) UpdatePlaylistDescription(ctx context.Context, uuid, title, description string) error {
	form := url.Values{"title": {title}, "description": {description}}
	_, err := c.request(ctx, http.MethodPost, "/playlists/"+uuid, "", form, nil)
	return err
}

// AddItems implements [catalog.TargetCatalog]. On an entity-tag mismatch or
// any other non-2xx, the caller (the mutator package) falls back to adding
// ids one at a time.
func (c *Catalog) AddItems(ctx context.Context, uuid, etag string, targetIDs []string) (string, error) {
	form := url.Values{
		"trackIds":     {strings.Join(targetIDs, ",")},
		"onDuplicates": {"SKIP"},
	}
	return c.request(ctx, http.MethodPost, "/playlists/"+uuid+"/items", etag, form, nil)
}

// DeleteItems implements [catalog.TargetCatalog]. Indices are sent sorted
// descending; chunking them into batches is left to the caller.
func (c *Catalog) DeleteItems(ctx context.Context, uuid, etag string, indices []int) (string, error) {
	sorted := append([]int(nil), indices...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	strs := make([]string, len(sorted))
	for i, idx := range sorted {
		strs[i] = strconv.Itoa(idx)
	}

	endpoint := fmt.Sprintf("/playlists/%s/items/%s", uuid, strings.Join(strs, ","))
	return c.request(ctx, http.MethodDelete, endpoint, etag, nil, nil)
}

// SearchTracks implements [catalog.TargetCatalog].
func (c *Catalog) SearchTracks(ctx context.Context, query string, limit int) ([]catalog.TargetTrack, error) {
	endpoint := fmt.Sprintf("/search/tracks?query=%s&limit=%d", url.QueryEscape(query), limit)

	var resp searchResponse
	if _, err := c.request(ctx, http.MethodGet, endpoint, "", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]catalog.TargetTrack, 0, len(resp.Tracks.Items))
	for _, t := range resp.Tracks.Items {
		out = append(out, catalog.TargetTrack{
			ID:        t.id(),
			Title:     t.Title,
			Artists:   t.artistNames(),
			DurationS: t.Duration,
			ISRC:      t.ISRC,
		})
	}
	return out, nil
}
