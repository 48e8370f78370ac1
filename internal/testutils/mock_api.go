package testutils

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/abshelf/abs-offline/internal/api"
)

// MockAPI implements api.API with canned per-item responses. Call counters
// let tests assert that no-op paths make no network calls.
type MockAPI struct {
	// MetadataErr / SessionErr, if set, fail the respective call.
	MetadataErr error
	SessionErr  error

	// BaseURL resolves relative content paths; point it at an httptest
	// server to exercise real transfers.
	BaseURL string
	Token   string

	mu            sync.Mutex
	items         map[string]*api.ItemMetadata
	sessions      map[string]*api.PlaybackSession
	metadataCalls int
	sessionCalls  int
}

var _ api.API = (*MockAPI)(nil)

// AddItem registers canned responses for one item id.
func (m *MockAPI) AddItem(metadata *api.ItemMetadata, session *api.PlaybackSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]*api.ItemMetadata)
		m.sessions = make(map[string]*api.PlaybackSession)
	}
	m.items[metadata.ID] = metadata
	if session != nil {
		m.sessions[metadata.ID] = session
	}
}

func (m *MockAPI) FetchItemDetails(_ context.Context, itemID string) (*api.ItemMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadataCalls++

	if m.MetadataErr != nil {
		return nil, m.MetadataErr
	}
	metadata, ok := m.items[itemID]
	if !ok {
		return nil, fmt.Errorf("no canned metadata for item %s", itemID)
	}
	copied := *metadata
	return &copied, nil
}

func (m *MockAPI) FetchPlaybackSession(_ context.Context, itemID string) (*api.PlaybackSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionCalls++

	if m.SessionErr != nil {
		return nil, m.SessionErr
	}
	session, ok := m.sessions[itemID]
	if !ok {
		return nil, fmt.Errorf("no canned session for item %s", itemID)
	}
	copied := *session
	return &copied, nil
}

func (m *MockAPI) ResolveContentURL(contentPath string) string {
	if strings.HasPrefix(contentPath, "http://") || strings.HasPrefix(contentPath, "https://") {
		return contentPath
	}
	return strings.TrimRight(m.BaseURL, "/") + "/" + strings.TrimLeft(contentPath, "/")
}

func (m *MockAPI) AuthHeader() http.Header {
	header := make(http.Header)
	if m.Token != "" {
		header.Set("Authorization", "Bearer "+m.Token)
	}
	return header
}

// Calls returns how many metadata and session fetches have been made.
func (m *MockAPI) Calls() (metadataCalls, sessionCalls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metadataCalls, m.sessionCalls
}
