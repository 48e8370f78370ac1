package catalog

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/abshelf/abs-offline/internal/api"
	"github.com/abshelf/abs-offline/internal/database"
	"github.com/abshelf/abs-offline/internal/integrity"
	"github.com/abshelf/abs-offline/internal/logutils"
	"github.com/abshelf/abs-offline/internal/storage"
)

// Entry is one fully downloaded item. An entry exists iff the item's
// directory holds a readable metadata file and every track file that
// metadata declares.
type Entry struct {
	Metadata  *api.ItemMetadata
	SizeBytes int64
}

// Catalog is the authoritative registry of downloaded items. The in-memory
// map is rebuilt from the filesystem on every Load; the database is a
// persisted index that is corrected to match the filesystem, never trusted
// over it.
type Catalog struct {
	layout storage.Layout
	db     database.Database

	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

func NewCatalog(layout storage.Layout, db database.Database) *Catalog {
	return &Catalog{
		layout:  layout,
		db:      db,
		entries: make(map[string]*Entry),
	}
}

// Load scans the downloads root and materializes entries for complete
// downloads. Directories failing validation are removed from disk and from
// the database, making the catalog self-healing after crashes or corruption.
func (c *Catalog) Load(ctx context.Context) error {
	if err := c.layout.EnsureRoot(); err != nil {
		return fmt.Errorf("failed to prepare downloads root: %w", err)
	}

	itemIDs, err := c.layout.ListItemDirs()
	if err != nil {
		return fmt.Errorf("failed to scan downloads root: %w", err)
	}

	known := make(map[string]database.DownloadRecord)
	if records, recErr := c.db.GetRecords(ctx); recErr != nil {
		logutils.Log.WithError(recErr).Warn("Failed to read download records, rebuilding index from disk")
	} else {
		for _, record := range records {
			known[record.ItemID] = record
		}
	}

	entries := make(map[string]*Entry, len(itemIDs))
	order := make([]string, 0, len(itemIDs))

	for _, itemID := range itemIDs {
		metadata, readErr := integrity.ReadMetadata(c.layout, itemID)
		if readErr != nil || !integrity.Validate(c.layout, itemID, metadata) {
			logutils.Log.WithField("item_id", itemID).Info("Removing invalid download directory at load")
			if removeErr := c.layout.RemoveItem(itemID); removeErr != nil {
				logutils.Log.WithError(removeErr).WithField("item_id", itemID).Warn("Failed to remove invalid download directory")
			}
			if dbErr := c.db.RemoveRecord(ctx, itemID); dbErr != nil {
				logutils.Log.WithError(dbErr).WithField("item_id", itemID).Warn("Failed to remove stale download record")
			}
			delete(known, itemID)
			continue
		}

		entry := &Entry{
			Metadata:  metadata,
			SizeBytes: c.layout.ItemSize(itemID),
		}
		entries[itemID] = entry
		order = append(order, itemID)

		record, exists := known[itemID]
		if !exists {
			record = database.DownloadRecord{ItemID: itemID, DownloadedAt: time.Now()}
		}
		record.Title = metadata.Title
		record.Author = metadata.Author
		record.TrackCount = len(metadata.Tracks)
		record.SizeBytes = entry.SizeBytes
		if dbErr := c.db.SaveRecord(ctx, &record); dbErr != nil {
			logutils.Log.WithError(dbErr).WithField("item_id", itemID).Warn("Failed to index download record")
		}
		delete(known, itemID)
	}

	// Rows left over in the index have no directory behind them.
	for itemID := range known {
		if dbErr := c.db.RemoveRecord(ctx, itemID); dbErr != nil {
			logutils.Log.WithError(dbErr).WithField("item_id", itemID).Warn("Failed to remove orphaned download record")
		}
	}

	c.mu.Lock()
	c.entries = entries
	c.order = order
	c.mu.Unlock()

	logutils.Log.WithField("count", len(order)).Info("Catalog loaded")
	return nil
}

// Register records a completed download. Only the download manager calls
// this, after every transfer for the item has succeeded.
func (c *Catalog) Register(ctx context.Context, metadata *api.ItemMetadata) error {
	if metadata == nil || metadata.ID == "" {
		return fmt.Errorf("cannot register item without metadata")
	}

	entry := &Entry{
		Metadata:  metadata,
		SizeBytes: c.layout.ItemSize(metadata.ID),
	}

	c.mu.Lock()
	if _, exists := c.entries[metadata.ID]; !exists {
		c.order = append(c.order, metadata.ID)
	}
	c.entries[metadata.ID] = entry
	c.mu.Unlock()

	record := database.DownloadRecord{
		ItemID:       metadata.ID,
		Title:        metadata.Title,
		Author:       metadata.Author,
		TrackCount:   len(metadata.Tracks),
		SizeBytes:    entry.SizeBytes,
		DownloadedAt: time.Now(),
	}
	if err := c.db.SaveRecord(ctx, &record); err != nil {
		// The entry stands; the index row is rebuilt on next load.
		logutils.Log.WithError(err).WithField("item_id", metadata.ID).Warn("Failed to index download record")
	}
	return nil
}

func (c *Catalog) IsDownloaded(itemID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.entries[itemID]
	return exists
}

// Entries returns a snapshot in scan/registration order. Callers needing a
// user-facing sort must sort explicitly.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make([]Entry, 0, len(c.order))
	for _, itemID := range c.order {
		snapshot = append(snapshot, *c.entries[itemID])
	}
	return snapshot
}

// Delete removes the item's directory and catalog entry. Safe to call for
// items that are absent or partially deleted already.
func (c *Catalog) Delete(ctx context.Context, itemID string) error {
	if err := c.layout.RemoveItem(itemID); err != nil {
		return fmt.Errorf("failed to delete item files: %w", err)
	}

	c.mu.Lock()
	if _, exists := c.entries[itemID]; exists {
		delete(c.entries, itemID)
		for i, id := range c.order {
			if id == itemID {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()

	if err := c.db.RemoveRecord(ctx, itemID); err != nil {
		logutils.Log.WithError(err).WithField("item_id", itemID).Warn("Failed to remove download record")
	}

	logutils.Log.WithField("item_id", itemID).Info("Item deleted")
	return nil
}

// DeleteAll removes the entire downloads root, recreates it empty, and
// clears all entries.
func (c *Catalog) DeleteAll(ctx context.Context) error {
	if err := os.RemoveAll(c.layout.DownloadsDir()); err != nil {
		return fmt.Errorf("failed to delete downloads root: %w", err)
	}
	if err := c.layout.EnsureRoot(); err != nil {
		return fmt.Errorf("failed to recreate downloads root: %w", err)
	}

	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.order = nil
	c.mu.Unlock()

	if err := c.db.RemoveAllRecords(ctx); err != nil {
		logutils.Log.WithError(err).Warn("Failed to clear download records")
	}

	logutils.Log.Info("All downloads deleted")
	return nil
}

// TotalSize walks the downloads root and sums file sizes. O(total files).
func (c *Catalog) TotalSize() int64 {
	return c.layout.TotalSize()
}

// ItemSize walks one item directory. Returns 0 for unknown items.
func (c *Catalog) ItemSize(itemID string) int64 {
	return c.layout.ItemSize(itemID)
}

// LocalCoverPath returns the on-disk cover path if a cover was downloaded.
func (c *Catalog) LocalCoverPath(itemID string) (string, bool) {
	path := c.layout.CoverPath(itemID)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}
