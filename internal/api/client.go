package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/abshelf/abs-offline/internal/config"
	"github.com/abshelf/abs-offline/internal/logutils"
)

// MetadataProvider fetches descriptive item records.
type MetadataProvider interface {
	FetchItemDetails(ctx context.Context, itemID string) (*ItemMetadata, error)
}

// PlaybackProvider opens playback sessions and resolves the track URLs they
// yield. Only network-dependent operations need it; catalog queries and
// deletions work without any provider at all.
type PlaybackProvider interface {
	FetchPlaybackSession(ctx context.Context, itemID string) (*PlaybackSession, error)
	ResolveContentURL(contentPath string) string
	AuthHeader() http.Header
}

// API is the full remote collaborator contract consumed by the download
// manager.
type API interface {
	MetadataProvider
	PlaybackProvider
}

// StatusError reports a non-2xx response from the server. Callers can
// distinguish auth failures (401/403) from server-side failures by the code.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

type Client struct {
	client   *resty.Client
	baseURL  string
	token    string
	deviceID string
}

var _ API = (*Client)(nil)

func NewClient(cfg *config.Config) *Client {
	baseURL := strings.TrimRight(cfg.ServerURL, "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.DownloadSettings.MetadataTimeout).
		SetAuthToken(cfg.APIToken)

	return &Client{
		client:   client,
		baseURL:  baseURL,
		token:    cfg.APIToken,
		deviceID: uuid.NewString(),
	}
}

func (c *Client) FetchItemDetails(ctx context.Context, itemID string) (*ItemMetadata, error) {
	var metadata ItemMetadata

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&metadata).
		// Some servers omit or mislabel the content type on JSON bodies;
		// decode the result regardless.
		ForceContentType("application/json").
		Get(fmt.Sprintf("/api/items/%s", itemID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item details: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), URL: resp.Request.URL}
	}

	if metadata.ID == "" {
		metadata.ID = itemID
	}
	return &metadata, nil
}

func (c *Client) FetchPlaybackSession(ctx context.Context, itemID string) (*PlaybackSession, error) {
	var session PlaybackSession

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"deviceInfo": map[string]string{
				"deviceId":   c.deviceID,
				"clientName": "abs-offline",
			},
			"mediaPlayer": "offline",
		}).
		SetResult(&session).
		ForceContentType("application/json").
		Post(fmt.Sprintf("/api/items/%s/play", itemID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playback session: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), URL: resp.Request.URL}
	}

	logutils.Log.WithFields(map[string]any{
		"item_id":    itemID,
		"session_id": session.ID,
		"tracks":     len(session.Tracks),
	}).Debug("Opened playback session")

	return &session, nil
}

// ResolveContentURL turns a server-relative content path into an absolute URL.
// Absolute paths are returned unchanged.
func (c *Client) ResolveContentURL(contentPath string) string {
	if strings.HasPrefix(contentPath, "http://") || strings.HasPrefix(contentPath, "https://") {
		return contentPath
	}
	return c.baseURL + "/" + strings.TrimLeft(contentPath, "/")
}

func (c *Client) AuthHeader() http.Header {
	header := make(http.Header)
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	return header
}
