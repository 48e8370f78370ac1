package manager

import (
	"errors"
	"fmt"
)

var (
	ErrNoAPIClient   = errors.New("no API client configured")
	ErrMetadataFetch = errors.New("failed to fetch item metadata")
	ErrSessionFetch  = errors.New("failed to fetch playback session")
	ErrNoTracks      = errors.New("item has no tracks")
	ErrCancelled     = errors.New("download cancelled")
)

// TrackError reports which track transfer failed. A track failure aborts the
// whole item download.
type TrackError struct {
	Index int
	Err   error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("track %d download failed: %v", e.Index, e.Err)
}

func (e *TrackError) Unwrap() error {
	return e.Err
}
