package database

import "context"

// Database persists download records. It is an index and history of
// completed downloads; callers must treat the filesystem as the source of
// truth and use the catalog's load-time reconciliation to repair drift.
type Database interface {
	SaveRecord(ctx context.Context, record *DownloadRecord) error
	GetRecords(ctx context.Context) ([]DownloadRecord, error)
	RecordExists(ctx context.Context, itemID string) (bool, error)
	RemoveRecord(ctx context.Context, itemID string) error
	RemoveAllRecords(ctx context.Context) error
	Close() error
}
