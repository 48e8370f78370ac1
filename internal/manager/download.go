package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/abshelf/abs-offline/internal/api"
	"github.com/abshelf/abs-offline/internal/logutils"
	"github.com/abshelf/abs-offline/internal/storage"
)

// minFreeSpaceBytes is the advisory free-space floor checked before the
// track phase. The session does not declare byte sizes, so this is a
// warning threshold, not a hard limit.
const minFreeSpaceBytes = 100 << 20

// downloadItem performs the full sequence for one item. Any failure after
// the item directory is created removes the directory again: the catalog
// only ever sees all-or-nothing items.
func (dm *DownloadManager) downloadItem(job *downloadJob) error {
	itemID := job.itemID
	ctx := job.ctx

	if err := dm.layout.EnsureRoot(); err != nil {
		job.setStatus(StatusFailed)
		return err
	}
	if err := dm.layout.EnsureItemDir(itemID); err != nil {
		job.setStatus(StatusFailed)
		return err
	}

	job.setStatus(StatusFetchingMetadata)
	metadata, err := dm.apiClient.FetchItemDetails(ctx, itemID)
	if err != nil {
		dm.failAndCleanup(job)
		return fmt.Errorf("%w: %w", ErrMetadataFetch, err)
	}
	if len(metadata.Tracks) == 0 {
		dm.failAndCleanup(job)
		return fmt.Errorf("%w: %s", ErrNoTracks, itemID)
	}
	if metadata.ID == "" {
		metadata.ID = itemID
	}

	// Metadata goes to disk before any track bytes: the integrity checker
	// derives the expected file set from it, so a crash mid-download leaves
	// a directory that validation will recognize as incomplete and remove.
	if err := dm.persistMetadata(itemID, metadata); err != nil {
		dm.failAndCleanup(job)
		return err
	}

	if metadata.CoverPath != "" {
		job.setStatus(StatusDownloadingCover)
		coverURL := dm.apiClient.ResolveContentURL(metadata.CoverPath)
		coverErr := dm.engine.Transfer(ctx, coverURL, dm.apiClient.AuthHeader(),
			dm.layout.CoverPath(itemID), dm.downloadSettings.MetadataTimeout)
		if coverErr != nil {
			// Cover art is cosmetic; the item stays playable without it.
			logutils.Log.WithError(coverErr).WithField("item_id", itemID).Warn("Cover download failed, continuing")
		}
	}

	session, err := dm.apiClient.FetchPlaybackSession(ctx, itemID)
	if err != nil {
		dm.failAndCleanup(job)
		return fmt.Errorf("%w: %w", ErrSessionFetch, err)
	}
	contentPaths := make(map[int]string, len(session.Tracks))
	for _, track := range session.Tracks {
		contentPaths[track.Index] = track.ContentPath
	}

	if !storage.HasEnoughSpace(dm.layout.DownloadsDir(), minFreeSpaceBytes) {
		logutils.Log.WithField("item_id", itemID).Warn("Low disk space, download may fail")
	}

	job.setTracksTotal(len(metadata.Tracks))
	job.setStatus(StatusDownloadingTracks)

	for i := range metadata.Tracks {
		if ctxErr := ctx.Err(); ctxErr != nil {
			dm.failAndCleanup(job)
			return fmt.Errorf("%w: %w", ErrCancelled, ctxErr)
		}

		contentPath, ok := contentPaths[i]
		if !ok {
			dm.failAndCleanup(job)
			return &TrackError{Index: i, Err: fmt.Errorf("playback session has no content path for track %d", i)}
		}

		trackURL := dm.apiClient.ResolveContentURL(contentPath)
		if err := dm.engine.Transfer(ctx, trackURL, dm.apiClient.AuthHeader(),
			dm.layout.TrackPath(itemID, i), dm.downloadSettings.TrackTimeout); err != nil {
			dm.failAndCleanup(job)
			return &TrackError{Index: i, Err: err}
		}

		fraction := job.completeTrack()
		job.publishProgress(fraction)
		logutils.Log.WithFields(map[string]any{
			"item_id":  itemID,
			"track":    i,
			"progress": fraction,
		}).Debug("Track downloaded")
	}

	job.setStatus(StatusCompleted)

	// Registration must survive a cancel racing in after the last track, so
	// it does not run on the job context.
	if err := dm.catalog.Register(context.Background(), metadata); err != nil {
		return fmt.Errorf("failed to register downloaded item: %w", err)
	}
	return nil
}

func (dm *DownloadManager) persistMetadata(itemID string, metadata *api.ItemMetadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}
	if err := os.WriteFile(dm.layout.MetadataPath(itemID), data, 0o644); err != nil {
		return fmt.Errorf("failed to persist metadata: %w", err)
	}
	return nil
}

// failAndCleanup marks the job failed and removes the partial item
// directory. Removal failures are logged, not escalated, to avoid cascading
// failure loops.
func (dm *DownloadManager) failAndCleanup(job *downloadJob) {
	job.setStatus(StatusFailed)
	if err := dm.layout.RemoveItem(job.itemID); err != nil {
		logutils.Log.WithError(err).WithField("item_id", job.itemID).Warn("Failed to remove partial download directory")
	}
}
