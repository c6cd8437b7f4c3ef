package spotify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCatalog_ListPlaylists_Paginates(t *testing.T) {
	calls := 0
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")

		if calls == 1 {
			json.NewEncoder(w).Encode(paginatedPlaylists{
				Items: []simplePlaylist{{ID: "p1", Name: "Running Mix"}},
				Next:  strPtr(serverURL + "/me/playlists?limit=50&offset=50"),
			})
			return
		}

		json.NewEncoder(w).Encode(paginatedPlaylists{
			Items: []simplePlaylist{{ID: "p2", Name: "Chill"}},
		})
	}))
	defer server.Close()
	serverURL = server.URL

	c := New("id", "secret", "").WithBaseURL(server.URL).WithHTTPClient(server.Client())

	got, err := c.ListPlaylists(context.Background())
	if err != nil {
		t.Fatalf("ListPlaylists: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 playlists across pages, got %d", len(got))
	}
	if calls != 2 {
		t.Errorf("expected 2 requests, got %d", calls)
	}
}

func strPtr(s string) *string { return &s }

func TestCatalog_PlaylistTracks_SkipsNullTrack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(paginatedTracks{
			Items: []playlistTrackItem{
				{Track: &track{ID: "t1", Name: "Harder Better Faster Stronger", Artists: []artist{{Name: "Daft Punk"}}, DurationMS: 224000, ExternalIDs: externalIDs{ISRC: "FR6V81300050"}}},
				{Track: nil}, // removed track, should be skipped
			},
		})
	}))
	defer server.Close()

	c := New("id", "secret", "").WithBaseURL(server.URL).WithHTTPClient(server.Client())

	got, err := c.PlaylistTracks(context.Background(), "pl1")
	if err != nil {
		t.Fatalf("PlaylistTracks: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 track after skipping the null entry, got %d", len(got))
	}
	if got[0].ISRC != "FR6V81300050" {
		t.Errorf("ISRC = %q, want FR6V81300050", got[0].ISRC)
	}
}

func TestCatalog_NotAuthenticated(t *testing.T) {
	c := New("id", "secret", "")
	if _, err := c.ListPlaylists(context.Background()); err == nil {
		t.Error("expected an error when no http client is configured")
	}
}
