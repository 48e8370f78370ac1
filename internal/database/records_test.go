package database

import (
	"context"
	"testing"
	"time"
)

func testDB(t *testing.T) *SQLiteDatabase {
	t.Helper()
	db, err := NewInMemoryDatabase()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSaveAndGetRecords(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first := &DownloadRecord{
		ItemID:       "book-1",
		Title:        "First Book",
		Author:       "Author A",
		TrackCount:   3,
		SizeBytes:    1024,
		DownloadedAt: time.Now().Add(-time.Hour),
	}
	second := &DownloadRecord{
		ItemID:       "book-2",
		Title:        "Second Book",
		TrackCount:   1,
		SizeBytes:    512,
		DownloadedAt: time.Now(),
	}

	if err := db.SaveRecord(ctx, first); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	if err := db.SaveRecord(ctx, second); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}

	records, err := db.GetRecords(ctx)
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ItemID != "book-1" || records[1].ItemID != "book-2" {
		t.Errorf("records not ordered by download time: %v", records)
	}
	if records[0].TrackCount != 3 {
		t.Errorf("TrackCount: want 3, got %d", records[0].TrackCount)
	}
}

func TestSaveRecordUpsert(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	record := &DownloadRecord{ItemID: "book-1", Title: "Old Title", SizeBytes: 100, DownloadedAt: time.Now()}
	if err := db.SaveRecord(ctx, record); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}

	record.Title = "New Title"
	record.SizeBytes = 200
	if err := db.SaveRecord(ctx, record); err != nil {
		t.Fatalf("SaveRecord (update): %v", err)
	}

	records, err := db.GetRecords(ctx)
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after upsert, got %d", len(records))
	}
	if records[0].Title != "New Title" || records[0].SizeBytes != 200 {
		t.Errorf("record not updated: %+v", records[0])
	}
}

func TestRecordExists(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	exists, err := db.RecordExists(ctx, "book-1")
	if err != nil {
		t.Fatalf("RecordExists: %v", err)
	}
	if exists {
		t.Error("record should not exist yet")
	}

	if err := db.SaveRecord(ctx, &DownloadRecord{ItemID: "book-1", DownloadedAt: time.Now()}); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}

	exists, err = db.RecordExists(ctx, "book-1")
	if err != nil {
		t.Fatalf("RecordExists: %v", err)
	}
	if !exists {
		t.Error("record should exist")
	}
}

func TestRemoveRecord(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.SaveRecord(ctx, &DownloadRecord{ItemID: "book-1", DownloadedAt: time.Now()}); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	if err := db.RemoveRecord(ctx, "book-1"); err != nil {
		t.Fatalf("RemoveRecord: %v", err)
	}
	// Removing a missing record is not an error.
	if err := db.RemoveRecord(ctx, "book-1"); err != nil {
		t.Fatalf("RemoveRecord (second call): %v", err)
	}

	records, err := db.GetRecords(ctx)
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestRemoveAllRecords(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, id := range []string{"book-1", "book-2", "book-3"} {
		if err := db.SaveRecord(ctx, &DownloadRecord{ItemID: id, DownloadedAt: time.Now()}); err != nil {
			t.Fatalf("SaveRecord(%s): %v", id, err)
		}
	}

	if err := db.RemoveAllRecords(ctx); err != nil {
		t.Fatalf("RemoveAllRecords: %v", err)
	}

	records, err := db.GetRecords(ctx)
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}
