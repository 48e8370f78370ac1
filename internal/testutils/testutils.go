package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/abshelf/abs-offline/internal/catalog"
	"github.com/abshelf/abs-offline/internal/config"
	"github.com/abshelf/abs-offline/internal/database"
	"github.com/abshelf/abs-offline/internal/storage"
)

// TestConfig returns a config suitable for tests: short timeouts, downloads
// rooted at root.
func TestConfig(root string) *config.Config {
	return &config.Config{
		DownloadPath: root,
		LogLevel:     "error",
		DownloadSettings: config.DownloadConfig{
			MaxConcurrentDownloads: 3,
			MetadataTimeout:        2 * time.Second,
			TrackTimeout:           2 * time.Second,
			ProgressUpdateInterval: 10 * time.Millisecond,
		},
	}
}

// TestDatabase returns an in-memory download database, closed on cleanup.
func TestDatabase(t *testing.T) database.Database {
	t.Helper()
	db, err := database.NewInMemoryDatabase()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestCatalog returns an empty loaded catalog over root.
func TestCatalog(t *testing.T, root string) *catalog.Catalog {
	t.Helper()
	cat := catalog.NewCatalog(storage.NewLayout(root), TestDatabase(t))
	if err := cat.Load(context.Background()); err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}
	return cat
}
