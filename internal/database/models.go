package database

import "time"

// DownloadRecord is the persisted index row for one fully downloaded item.
// The filesystem stays authoritative: rows are reconciled against the
// on-disk layout at catalog load, so a stale row is corrected, never trusted.
type DownloadRecord struct {
	ItemID       string `gorm:"primaryKey"`
	Title        string
	Author       string
	TrackCount   int
	SizeBytes    int64
	DownloadedAt time.Time
}
