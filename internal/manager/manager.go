package manager

import (
	"context"
	"sync"
	"time"

	"github.com/abshelf/abs-offline/internal/api"
	"github.com/abshelf/abs-offline/internal/catalog"
	"github.com/abshelf/abs-offline/internal/config"
	"github.com/abshelf/abs-offline/internal/logutils"
	"github.com/abshelf/abs-offline/internal/storage"
	"github.com/abshelf/abs-offline/internal/transfer"
)

// DownloadManager drives item downloads end-to-end: it enforces the global
// concurrency ceiling, guarantees at most one in-flight download per item
// id, aggregates progress, and registers completed items in the catalog.
type DownloadManager struct {
	downloadSettings config.DownloadConfig
	apiClient        api.API
	engine           *transfer.Engine
	layout           storage.Layout
	catalog          *catalog.Catalog

	mu        sync.RWMutex
	jobs      map[string]*downloadJob
	queue     []string
	semaphore chan struct{}
	stopChan  chan struct{}
	stopOnce  sync.Once
}

var _ Service = (*DownloadManager)(nil)

// NewDownloadManager creates a manager and starts its queue worker.
// apiClient may be nil for offline use; Download then fails with
// ErrNoAPIClient while all catalog-backed operations keep working.
func NewDownloadManager(cfg *config.Config, apiClient api.API, cat *catalog.Catalog) *DownloadManager {
	dm := &DownloadManager{
		downloadSettings: cfg.DownloadSettings,
		apiClient:        apiClient,
		engine:           transfer.NewEngine(),
		layout:           storage.NewLayout(cfg.DownloadPath),
		catalog:          cat,
		jobs:             make(map[string]*downloadJob),
		semaphore:        make(chan struct{}, cfg.DownloadSettings.MaxConcurrentDownloads),
		stopChan:         make(chan struct{}),
	}

	go dm.processQueue()

	return dm
}

// Download requests the item. Already-downloaded and already-in-flight items
// are a no-op: the returned handle is nil and no error is reported. The
// check against the catalog and the in-flight set and the insertion into the
// in-flight set happen under one lock hold, so two concurrent requests for
// the same id can never both start.
func (dm *DownloadManager) Download(itemID string) (*Handle, error) {
	if dm.apiClient == nil {
		return nil, ErrNoAPIClient
	}

	dm.mu.Lock()
	if dm.catalog.IsDownloaded(itemID) {
		dm.mu.Unlock()
		logutils.Log.WithField("item_id", itemID).Debug("Item already downloaded, nothing to do")
		return nil, nil
	}
	if _, inFlight := dm.jobs[itemID]; inFlight {
		dm.mu.Unlock()
		logutils.Log.WithField("item_id", itemID).Debug("Download already in progress")
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &downloadJob{
		itemID:       itemID,
		startTime:    time.Now(),
		progressChan: make(chan float64, progressChannelBuffSize),
		doneChan:     make(chan error, 1),
		ctx:          ctx,
		cancel:       cancel,
		status:       StatusPending,
	}
	dm.jobs[itemID] = job

	select {
	case dm.semaphore <- struct{}{}:
		dm.mu.Unlock()
		logutils.Log.WithField("item_id", itemID).Info("Starting download")
		go dm.runDownload(job)
	default:
		job.queued = true
		dm.queue = append(dm.queue, itemID)
		position := len(dm.queue)
		dm.mu.Unlock()
		logutils.Log.WithFields(map[string]any{
			"item_id":  itemID,
			"position": position,
		}).Info("Download queued")
	}

	return &Handle{ItemID: itemID, Progress: job.progressChan, Done: job.doneChan}, nil
}

// processQueue starts queued downloads in arrival order as slots free up.
func (dm *DownloadManager) processQueue() {
	ticker := time.NewTicker(queueProcessingDelay)
	defer ticker.Stop()

	for {
		select {
		case <-dm.stopChan:
			return
		case <-ticker.C:
		}

		dm.mu.Lock()
		if len(dm.queue) == 0 {
			dm.mu.Unlock()
			continue
		}

		select {
		case dm.semaphore <- struct{}{}:
			itemID := dm.queue[0]
			dm.queue = dm.queue[1:]
			job := dm.jobs[itemID]
			if job != nil {
				job.queued = false
			}
			dm.mu.Unlock()

			if job == nil {
				// Cancelled while queued.
				<-dm.semaphore
				continue
			}
			logutils.Log.WithField("item_id", itemID).Info("Starting queued download")
			go dm.runDownload(job)
		default:
			dm.mu.Unlock()
		}
	}
}

// runDownload owns a semaphore slot for the duration of one item download
// and funnels the terminal result to the job's channels.
func (dm *DownloadManager) runDownload(job *downloadJob) {
	monitorDone := make(chan struct{})
	go dm.monitorProgress(job, monitorDone)

	err := dm.downloadItem(job)

	dm.mu.Lock()
	delete(dm.jobs, job.itemID)
	dm.mu.Unlock()

	job.cancel()
	// The monitor must be gone before the progress channel closes.
	<-monitorDone
	if err != nil {
		logutils.Log.WithError(err).WithField("item_id", job.itemID).Error("Download failed")
		job.doneChan <- err
	} else {
		logutils.Log.WithFields(map[string]any{
			"item_id":  job.itemID,
			"duration": time.Since(job.startTime).Round(time.Millisecond).String(),
		}).Info("Download completed")
	}
	close(job.doneChan)
	close(job.progressChan)

	<-dm.semaphore
}

// monitorProgress periodically republishes the job's current fraction so
// observers polling the progress channel see updates even while a long track
// transfer is in flight. Exits when the job context ends.
func (dm *DownloadManager) monitorProgress(job *downloadJob, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(dm.downloadSettings.ProgressUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-job.ctx.Done():
			return
		case <-ticker.C:
			if job.getStatus() == StatusDownloadingTracks {
				job.publishProgress(job.progress())
			}
		}
	}
}

// Cancel stops an in-flight or queued download. Cancelling an unknown item
// is a no-op: the item may simply have finished already.
func (dm *DownloadManager) Cancel(itemID string) {
	dm.mu.Lock()
	job, exists := dm.jobs[itemID]
	if !exists {
		dm.mu.Unlock()
		logutils.Log.WithField("item_id", itemID).Debug("Cancel: download not found (likely finished)")
		return
	}

	if job.queued {
		for i, queuedID := range dm.queue {
			if queuedID == itemID {
				dm.queue = append(dm.queue[:i], dm.queue[i+1:]...)
				break
			}
		}
		delete(dm.jobs, itemID)
		dm.mu.Unlock()

		job.cancel()
		job.setStatus(StatusFailed)
		job.doneChan <- ErrCancelled
		close(job.doneChan)
		close(job.progressChan)
		logutils.Log.WithField("item_id", itemID).Info("Removed download from queue")
		return
	}
	dm.mu.Unlock()

	// The running goroutine observes the cancelled context, removes the
	// partial directory and reports the failure on its own channels.
	logutils.Log.WithField("item_id", itemID).Info("Cancelling active download")
	job.cancel()
}

// CancelAll cancels every queued and in-flight download.
func (dm *DownloadManager) CancelAll() {
	dm.mu.RLock()
	itemIDs := make([]string, 0, len(dm.jobs))
	for itemID := range dm.jobs {
		itemIDs = append(itemIDs, itemID)
	}
	dm.mu.RUnlock()

	for _, itemID := range itemIDs {
		dm.Cancel(itemID)
	}
}

// Shutdown stops the queue worker and cancels everything in flight.
func (dm *DownloadManager) Shutdown() {
	dm.stopOnce.Do(func() { close(dm.stopChan) })
	dm.CancelAll()
}

// Progress returns the item's download fraction in [0,1], 0 when the item is
// not in flight.
func (dm *DownloadManager) Progress(itemID string) float64 {
	dm.mu.RLock()
	job, exists := dm.jobs[itemID]
	dm.mu.RUnlock()

	if !exists {
		return 0
	}
	return job.progress()
}

// Status reports the lifecycle state of an in-flight download.
func (dm *DownloadManager) Status(itemID string) (Status, bool) {
	dm.mu.RLock()
	job, exists := dm.jobs[itemID]
	dm.mu.RUnlock()

	if !exists {
		return StatusPending, false
	}
	return job.getStatus(), true
}

// ActiveDownloads returns the ids of all running (non-queued) downloads.
func (dm *DownloadManager) ActiveDownloads() []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	var itemIDs []string
	for itemID, job := range dm.jobs {
		if !job.queued {
			itemIDs = append(itemIDs, itemID)
		}
	}
	return itemIDs
}

func (dm *DownloadManager) DownloadCount() int {
	return len(dm.ActiveDownloads())
}

func (dm *DownloadManager) QueueCount() int {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return len(dm.queue)
}
