package manager

import (
	"context"
	"sync"
	"time"
)

const (
	queueProcessingDelay    = 100 * time.Millisecond
	progressChannelBuffSize = 100
)

// Status is the lifecycle state of one in-flight download.
type Status int

const (
	StatusPending Status = iota
	StatusFetchingMetadata
	StatusDownloadingCover
	StatusDownloadingTracks
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFetchingMetadata:
		return "fetching_metadata"
	case StatusDownloadingCover:
		return "downloading_cover"
	case StatusDownloadingTracks:
		return "downloading_tracks"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Service is the external interface of the download manager. Consumers
// outside this package should depend on it rather than on DownloadManager.
type Service interface {
	Download(itemID string) (*Handle, error)
	Cancel(itemID string)
	CancelAll()
	Progress(itemID string) float64
	ActiveDownloads() []string
	DownloadCount() int
	QueueCount() int
}

// Handle observes one requested download. Progress carries the 0..1 fraction
// after each completed track; Done yields the terminal error (nil on
// success) and is closed when the download finishes either way.
type Handle struct {
	ItemID   string
	Progress <-chan float64
	Done     <-chan error
}

type downloadJob struct {
	itemID    string
	startTime time.Time

	progressChan chan float64
	doneChan     chan error

	ctx    context.Context
	cancel context.CancelFunc

	queued bool

	mu              sync.Mutex
	status          Status
	tracksCompleted int
	tracksTotal     int
}

func (j *downloadJob) setStatus(status Status) {
	j.mu.Lock()
	j.status = status
	j.mu.Unlock()
}

func (j *downloadJob) getStatus() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *downloadJob) setTracksTotal(total int) {
	j.mu.Lock()
	j.tracksTotal = total
	j.mu.Unlock()
}

// completeTrack bumps the completed counter and returns the new fraction.
func (j *downloadJob) completeTrack() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.tracksCompleted++
	return float64(j.tracksCompleted) / float64(j.tracksTotal)
}

func (j *downloadJob) progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.tracksTotal == 0 {
		return 0
	}
	return float64(j.tracksCompleted) / float64(j.tracksTotal)
}

// publishProgress never blocks; if the observer is not draining the channel,
// intermediate values are dropped. Values are monotone either way.
func (j *downloadJob) publishProgress(fraction float64) {
	select {
	case j.progressChan <- fraction:
	default:
	}
}
