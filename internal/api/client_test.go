package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abshelf/abs-offline/internal/config"
)

func testConfig(serverURL string) *config.Config {
	return &config.Config{
		ServerURL: serverURL,
		APIToken:  "test-token",
		DownloadSettings: config.DownloadConfig{
			MaxConcurrentDownloads: 1,
			MetadataTimeout:        config.DefaultMetadataTimeout,
			TrackTimeout:           config.DefaultTrackTimeout,
		},
	}
}

func TestFetchItemDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/items/book-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("unexpected Authorization header: %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ItemMetadata{
			ID:        "book-1",
			Title:     "A Book",
			Author:    "Someone",
			CoverPath: "/api/items/book-1/cover",
			Tracks:    []TrackRef{{Index: 0}, {Index: 1}},
		})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	metadata, err := client.FetchItemDetails(context.Background(), "book-1")
	if err != nil {
		t.Fatalf("FetchItemDetails: %v", err)
	}
	if metadata.Title != "A Book" {
		t.Errorf("Title: got %q", metadata.Title)
	}
	if len(metadata.Tracks) != 2 {
		t.Errorf("Tracks: want 2, got %d", len(metadata.Tracks))
	}
}

// Servers that skip the Content-Type header get their JSON sniffed as
// text/plain; the client must decode the body anyway.
func TestFetchItemDetailsWithoutContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"book-1","title":"A Book","tracks":[{"index":0},{"index":1}]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	metadata, err := client.FetchItemDetails(context.Background(), "book-1")
	if err != nil {
		t.Fatalf("FetchItemDetails: %v", err)
	}
	if metadata.Title != "A Book" {
		t.Errorf("Title: got %q", metadata.Title)
	}
	if len(metadata.Tracks) != 2 {
		t.Errorf("Tracks: want 2, got %d", len(metadata.Tracks))
	}
}

func TestFetchPlaybackSessionWithoutContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"id":"session-1","tracks":[{"index":0,"contentPath":"/public/session-1/track/0"}]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	session, err := client.FetchPlaybackSession(context.Background(), "book-1")
	if err != nil {
		t.Fatalf("FetchPlaybackSession: %v", err)
	}
	if session.ID != "session-1" {
		t.Errorf("ID: got %q", session.ID)
	}
	if len(session.Tracks) != 1 {
		t.Errorf("Tracks: want 1, got %d", len(session.Tracks))
	}
}

func TestFetchItemDetailsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.FetchItemDetails(context.Background(), "book-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if statusErr.Code != http.StatusUnauthorized {
		t.Errorf("Code: want 401, got %d", statusErr.Code)
	}
}

func TestFetchPlaybackSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/items/book-1/play" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode play request body: %v", err)
		}
		deviceInfo, ok := body["deviceInfo"].(map[string]any)
		if !ok || deviceInfo["deviceId"] == "" {
			t.Errorf("play request missing device id: %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(PlaybackSession{
			ID: "session-1",
			Tracks: []SessionTrack{
				{Index: 0, ContentPath: "/public/session-1/track/0"},
				{Index: 1, ContentPath: "/public/session-1/track/1"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	session, err := client.FetchPlaybackSession(context.Background(), "book-1")
	if err != nil {
		t.Fatalf("FetchPlaybackSession: %v", err)
	}
	if session.ID != "session-1" {
		t.Errorf("ID: got %q", session.ID)
	}
	if len(session.Tracks) != 2 {
		t.Errorf("Tracks: want 2, got %d", len(session.Tracks))
	}
}

func TestResolveContentURL(t *testing.T) {
	client := NewClient(testConfig("https://abs.example.com/"))

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"Relative with leading slash", "/public/track/0", "https://abs.example.com/public/track/0"},
		{"Relative without leading slash", "public/track/0", "https://abs.example.com/public/track/0"},
		{"Absolute passthrough", "https://cdn.example.com/t.mp3", "https://cdn.example.com/t.mp3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.ResolveContentURL(tt.path); got != tt.expected {
				t.Errorf("ResolveContentURL(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}

func TestAuthHeader(t *testing.T) {
	client := NewClient(testConfig("https://abs.example.com"))
	header := client.AuthHeader()
	if got := header.Get("Authorization"); got != "Bearer test-token" {
		t.Errorf("Authorization: got %q", got)
	}
}
