package integrity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/abshelf/abs-offline/internal/api"
	"github.com/abshelf/abs-offline/internal/database"
	"github.com/abshelf/abs-offline/internal/logutils"
	"github.com/abshelf/abs-offline/internal/storage"
)

// ReadMetadata parses the persisted metadata.json for an item.
func ReadMetadata(layout storage.Layout, itemID string) (*api.ItemMetadata, error) {
	data, err := os.ReadFile(layout.MetadataPath(itemID))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var metadata api.ItemMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata file: %w", err)
	}
	return &metadata, nil
}

// Validate reports whether the item's download is complete: every track file
// the metadata declares must exist as a regular file. The cover is cosmetic
// and never required.
func Validate(layout storage.Layout, itemID string, metadata *api.ItemMetadata) bool {
	if metadata == nil || len(metadata.Tracks) == 0 {
		return false
	}
	for i := range metadata.Tracks {
		info, err := os.Stat(layout.TrackPath(itemID, i))
		if err != nil || !info.Mode().IsRegular() {
			return false
		}
	}
	return true
}

// CleanupIncomplete scans the downloads root and removes every item directory
// that is not a complete download: directories without parseable metadata are
// orphans from interrupted early-stage downloads, directories with metadata
// but missing tracks are partial transfers. Each removed directory also loses
// its row in the download index. Returns the ids of removed directories.
// Best-effort: removal failures are logged, not escalated.
func CleanupIncomplete(ctx context.Context, layout storage.Layout, db database.Database) []string {
	itemIDs, err := layout.ListItemDirs()
	if err != nil {
		logutils.Log.WithError(err).Error("Failed to scan downloads directory for cleanup")
		return nil
	}

	var removed []string
	for _, itemID := range itemIDs {
		metadata, err := ReadMetadata(layout, itemID)
		if err == nil && Validate(layout, itemID, metadata) {
			continue
		}

		if err != nil {
			logutils.Log.WithField("item_id", itemID).Info("Removing download directory without readable metadata")
		} else {
			logutils.Log.WithField("item_id", itemID).Info("Removing incomplete download directory")
		}

		if removeErr := layout.RemoveItem(itemID); removeErr != nil {
			logutils.Log.WithError(removeErr).WithField("item_id", itemID).Warn("Failed to remove download directory")
			continue
		}
		if dbErr := db.RemoveRecord(ctx, itemID); dbErr != nil {
			logutils.Log.WithError(dbErr).WithField("item_id", itemID).Warn("Failed to remove download record")
		}
		removed = append(removed, itemID)
	}
	return removed
}
