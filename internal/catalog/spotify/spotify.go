// Package spotify implements [catalog.SourceCatalog] against the Spotify
// Web API.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/crossfade/internal/catalog"
	"github.com/desertthunder/crossfade/internal/shared"
)

const (
	authURL  = "https://accounts.spotify.com/authorize"
	tokenURL = "https://accounts.spotify.com/api/token"
	baseURL  = "https://api.spotify.com/v1"

	// refreshSkew is how far ahead of its expiry the token adopted by
	// Authenticate is treated as expired.
	refreshSkew = 60 * time.Second
)

type externalIDs struct {
	ISRC string `json:"isrc"`
}

type artist struct {
	Name string `json:"name"`
}

type album struct {
	Name string `json:"name"`
}

type track struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Artists     []artist    `json:"artists"`
	Album       album       `json:"album"`
	DurationMS  int         `json:"duration_ms"`
	TrackNumber int         `json:"track_number"`
	ExternalIDs externalIDs `json:"external_ids"`
}

type playlistTrackItem struct {
	Track *track `json:"track"` // nil when the underlying track was removed
}

type paginatedTracks struct {
	Items []playlistTrackItem `json:"items"`
	Next  *string             `json:"next"`
}

type simplePlaylist struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type paginatedPlaylists struct {
	Items []simplePlaylist `json:"items"`
	Next  *string          `json:"next"`
}

// Catalog is a [catalog.SourceCatalog] backed by the Spotify Web API.
type Catalog struct {
	config  *oauth2.Config
	token   *oauth2.Token
	client  *http.Client
	logger  *log.Logger
	baseURL string
}

// New builds a Catalog for the given OAuth2 client credentials. Call
// Authenticate before any other method.
func New(clientID, clientSecret, redirectURL string) *Catalog {
	if redirectURL == "" {
		redirectURL = "http://localhost:8080/callback"
	}

	return &Catalog{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"user-read-private",
				"playlist-read-private",
				"playlist-read-collaborative",
			},
			Endpoint: oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		},
		logger:  shared.NewLogger(nil),
		baseURL: baseURL,
	}
}

// WithBaseURL overrides the API base URL, for pointing the client at a test
// server.
func (c *Catalog) WithBaseURL(url string) *Catalog {
	c.baseURL = url
	return c
}

// WithHTTPClient installs an already-authenticated [http.Client] directly,
// bypassing the OAuth2 exchange. Used by tests and by callers restoring a
// previously persisted token via their own oauth2.TokenSource.
func (c *Catalog) WithHTTPClient(client *http.Client) *Catalog {
	c.client = client
	return c
}

// AuthURL returns the OAuth2 authorization URL for the given state token.
func (c *Catalog) AuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// OAuth2Config exposes the underlying OAuth2 config so a caller can drive
// its own callback server (see the server package's OAuthHandler).
func (c *Catalog) OAuth2Config() *oauth2.Config {
	return c.config
}

// Authenticate exchanges an authorization code for a token, or adopts an
// existing refresh token directly, and installs an [http.Client] that
// refreshes the token transparently. The adopted token's expiry is moved
// refreshSkew earlier; tokens obtained by later refreshes keep the oauth2
// package's own early-expiry window.
func (c *Catalog) Authenticate(ctx context.Context, authCode, refreshToken string) error {
	var tok *oauth2.Token
	var err error

	switch {
	case refreshToken != "":
		tok = &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Now().Add(-time.Second)}
	case authCode != "":
		tok, err = c.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("exchange auth code: %w", err)
		}
	default:
		return shared.ErrMissingCredentials
	}

	if !tok.Expiry.IsZero() {
		tok.Expiry = tok.Expiry.Add(-refreshSkew)
	}

	c.token = tok
	c.client = c.config.Client(ctx, tok)
	return nil
}

func (c *Catalog) Name() string { return "Spotify" }

func (c *Catalog) get(ctx context.Context, endpoint string, result any) error {
	if c.client == nil {
		return shared.ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("spotify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: spotify returned 429", shared.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: spotify status %d on %s", shared.ErrAPIRequest, resp.StatusCode, endpoint)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode spotify response: %w", err)
	}
	return nil
}

// ListPlaylists implements [catalog.SourceCatalog].
func (c *Catalog) ListPlaylists(ctx context.Context) ([]catalog.SourcePlaylist, error) {
	var out []catalog.SourcePlaylist
	endpoint := "/me/playlists?limit=50"

	for endpoint != "" {
		var page paginatedPlaylists
		if err := c.get(ctx, endpoint, &page); err != nil {
			return nil, err
		}

		for _, p := range page.Items {
			out = append(out, catalog.SourcePlaylist{ID: p.ID, Name: p.Name, TrackCount: p.Tracks.Total})
		}

		endpoint = c.nextEndpoint(page.Next)
	}

	return out, nil
}

// PlaylistTracks implements [catalog.SourceCatalog]. Items whose track
// field is null (a removed track) are skipped, per spec.
func (c *Catalog) PlaylistTracks(ctx context.Context, playlistID string) ([]catalog.SourceTrack, error) {
	var out []catalog.SourceTrack
	endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=100", playlistID)

	for endpoint != "" {
		var page paginatedTracks
		if err := c.get(ctx, endpoint, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" {
				continue
			}

			names := make([]string, 0, len(item.Track.Artists))
			for _, a := range item.Track.Artists {
				names = append(names, a.Name)
			}

			out = append(out, catalog.SourceTrack{
				ID:          item.Track.ID,
				Title:       item.Track.Name,
				Artists:     names,
				Album:       item.Track.Album.Name,
				DurationMS:  item.Track.DurationMS,
				TrackNumber: item.Track.TrackNumber,
				ISRC:        item.Track.ExternalIDs.ISRC,
			})
		}

		endpoint = c.nextEndpoint(page.Next)
	}

	return out, nil
}

// nextEndpoint strips the base URL off a Spotify "next" link so it can be
// handed straight back into get.
func (c *Catalog) nextEndpoint(next *string) string {
	if next == nil {
		return ""
	}
	if len(*next) > len(c.baseURL) {
		return (*next)[len(c.baseURL):]
	}
	return ""
}
