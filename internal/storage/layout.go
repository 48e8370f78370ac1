package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/abshelf/abs-offline/internal/logutils"
)

const (
	downloadsDirName = "Downloads"
	MetadataFileName = "metadata.json"
	CoverFileName    = "cover.jpg"
)

// Layout maps item ids onto the fixed on-disk download structure:
//
//	<root>/Downloads/<itemID>/metadata.json
//	<root>/Downloads/<itemID>/cover.jpg
//	<root>/Downloads/<itemID>/chapter_<N>.mp3
//
// File names are fixed so integrity checking can reconstruct the expected
// set of files from metadata alone, without directory-matching heuristics.
type Layout struct {
	root string
}

func NewLayout(root string) Layout {
	return Layout{root: root}
}

func (l Layout) DownloadsDir() string {
	return filepath.Join(l.root, downloadsDirName)
}

func (l Layout) ItemDir(itemID string) string {
	return filepath.Join(l.DownloadsDir(), itemID)
}

func (l Layout) MetadataPath(itemID string) string {
	return filepath.Join(l.ItemDir(itemID), MetadataFileName)
}

func (l Layout) CoverPath(itemID string) string {
	return filepath.Join(l.ItemDir(itemID), CoverFileName)
}

func (l Layout) TrackPath(itemID string, index int) string {
	return filepath.Join(l.ItemDir(itemID), TrackFileName(index))
}

func TrackFileName(index int) string {
	return fmt.Sprintf("chapter_%d.mp3", index)
}

// EnsureRoot creates the downloads root if absent. Idempotent.
func (l Layout) EnsureRoot() error {
	if err := os.MkdirAll(l.DownloadsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create downloads directory: %w", err)
	}
	return nil
}

// EnsureItemDir creates the per-item directory if absent. Idempotent.
func (l Layout) EnsureItemDir(itemID string) error {
	if err := os.MkdirAll(l.ItemDir(itemID), 0o755); err != nil {
		return fmt.Errorf("failed to create item directory: %w", err)
	}
	return nil
}

// RemoveItem deletes the item directory recursively. A missing directory is
// treated as success so deletion stays idempotent.
func (l Layout) RemoveItem(itemID string) error {
	if err := os.RemoveAll(l.ItemDir(itemID)); err != nil {
		return fmt.Errorf("failed to remove item directory: %w", err)
	}
	return nil
}

// ListItemDirs returns the names of all subdirectories of the downloads root
// in directory-scan order. Non-directories are ignored.
func (l Layout) ListItemDirs() ([]string, error) {
	entries, err := os.ReadDir(l.DownloadsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read downloads directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// ItemSize walks the item directory and sums regular-file sizes. This is an
// O(files) operation. Filesystem errors degrade to 0: size reporting is
// advisory, not authoritative.
func (l Layout) ItemSize(itemID string) int64 {
	return dirSize(l.ItemDir(itemID))
}

// TotalSize sums the sizes of all files under the downloads root. O(total
// files); callers should not invoke it on a hot path.
func (l Layout) TotalSize() int64 {
	return dirSize(l.DownloadsDir())
}

func dirSize(dir string) int64 {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, infoErr := d.Info()
			if infoErr != nil {
				return infoErr
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		if !os.IsNotExist(err) {
			logutils.Log.WithError(err).WithField("directory", dir).Warn("Failed to compute directory size")
		}
		return 0
	}
	return total
}
