package integrity

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/abshelf/abs-offline/internal/api"
	"github.com/abshelf/abs-offline/internal/database"
	"github.com/abshelf/abs-offline/internal/storage"
)

func testDatabase(t *testing.T) database.Database {
	t.Helper()
	db, err := database.NewInMemoryDatabase()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func writeItem(t *testing.T, layout storage.Layout, itemID string, trackCount, presentTracks int, withCover bool) *api.ItemMetadata {
	t.Helper()

	metadata := &api.ItemMetadata{
		ID:    itemID,
		Title: "Test Book",
	}
	for i := 0; i < trackCount; i++ {
		metadata.Tracks = append(metadata.Tracks, api.TrackRef{Index: i})
	}

	if err := layout.EnsureItemDir(itemID); err != nil {
		t.Fatalf("EnsureItemDir: %v", err)
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := os.WriteFile(layout.MetadataPath(itemID), data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	for i := 0; i < presentTracks; i++ {
		if err := os.WriteFile(layout.TrackPath(itemID, i), []byte("audio"), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	if withCover {
		if err := os.WriteFile(layout.CoverPath(itemID), []byte("img"), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return metadata
}

func TestValidate(t *testing.T) {
	layout := storage.NewLayout(t.TempDir())

	tests := []struct {
		name          string
		itemID        string
		trackCount    int
		presentTracks int
		withCover     bool
		expected      bool
	}{
		{"All tracks present", "book-1", 3, 3, true, true},
		{"All tracks no cover", "book-2", 3, 3, false, true},
		{"Missing last track", "book-3", 3, 2, true, false},
		{"No tracks present", "book-4", 2, 0, false, false},
		{"Single track complete", "book-5", 1, 1, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metadata := writeItem(t, layout, tt.itemID, tt.trackCount, tt.presentTracks, tt.withCover)
			if got := Validate(layout, tt.itemID, metadata); got != tt.expected {
				t.Errorf("Validate = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValidateEmptyTrackList(t *testing.T) {
	layout := storage.NewLayout(t.TempDir())
	metadata := &api.ItemMetadata{ID: "book-1", Title: "Empty"}
	if Validate(layout, "book-1", metadata) {
		t.Error("item without tracks must not validate")
	}
	if Validate(layout, "book-1", nil) {
		t.Error("nil metadata must not validate")
	}
}

func TestReadMetadata(t *testing.T) {
	layout := storage.NewLayout(t.TempDir())
	writeItem(t, layout, "book-1", 2, 2, false)

	metadata, err := ReadMetadata(layout, "book-1")
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if metadata.ID != "book-1" || len(metadata.Tracks) != 2 {
		t.Errorf("unexpected metadata: %+v", metadata)
	}
}

func TestReadMetadataCorrupt(t *testing.T) {
	layout := storage.NewLayout(t.TempDir())
	if err := layout.EnsureItemDir("book-1"); err != nil {
		t.Fatalf("EnsureItemDir: %v", err)
	}
	if err := os.WriteFile(layout.MetadataPath("book-1"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := ReadMetadata(layout, "book-1"); err == nil {
		t.Error("expected parse error for corrupt metadata")
	}
}

func TestCleanupIncomplete(t *testing.T) {
	layout := storage.NewLayout(t.TempDir())
	if err := layout.EnsureRoot(); err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}

	// Complete item: kept.
	writeItem(t, layout, "complete", 2, 2, true)
	// Partial item: metadata present, one of three tracks missing.
	writeItem(t, layout, "partial", 3, 2, false)
	// Orphan: directory without metadata at all.
	if err := layout.EnsureItemDir("orphan"); err != nil {
		t.Fatalf("EnsureItemDir: %v", err)
	}
	if err := os.WriteFile(layout.TrackPath("orphan", 0), []byte("audio"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// Index rows for all three items; cleanup must drop the rows of the
	// directories it removes and keep the rest.
	ctx := context.Background()
	db := testDatabase(t)
	for _, itemID := range []string{"complete", "partial", "orphan"} {
		if err := db.SaveRecord(ctx, &database.DownloadRecord{ItemID: itemID}); err != nil {
			t.Fatalf("SaveRecord: %v", err)
		}
	}

	removed := CleanupIncomplete(ctx, layout, db)
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed items, got %v", removed)
	}

	if _, err := os.Stat(layout.ItemDir("complete")); err != nil {
		t.Errorf("complete item was removed: %v", err)
	}
	if exists, err := db.RecordExists(ctx, "complete"); err != nil || !exists {
		t.Errorf("complete item record missing (exists=%v, err=%v)", exists, err)
	}
	for _, itemID := range []string{"partial", "orphan"} {
		if _, err := os.Stat(layout.ItemDir(itemID)); !os.IsNotExist(err) {
			t.Errorf("%s directory still present", itemID)
		}
		if exists, err := db.RecordExists(ctx, itemID); err != nil || exists {
			t.Errorf("%s record still present (exists=%v, err=%v)", itemID, exists, err)
		}
	}
}

func TestCleanupIgnoresUnknownFiles(t *testing.T) {
	layout := storage.NewLayout(t.TempDir())
	writeItem(t, layout, "book-1", 1, 1, false)

	// Extra content inside a valid item directory is ignored, not cleaned.
	extraPath := filepath.Join(layout.ItemDir("book-1"), "notes.txt")
	if err := os.WriteFile(extraPath, []byte("keep"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	removed := CleanupIncomplete(context.Background(), layout, testDatabase(t))
	if len(removed) != 0 {
		t.Fatalf("expected no removals, got %v", removed)
	}
	if _, err := os.Stat(extraPath); err != nil {
		t.Errorf("extra file was removed: %v", err)
	}
}
