package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/abshelf/abs-offline/internal/logutils"
)

const databaseFileName = "downloads.db"

type SQLiteDatabase struct {
	db *gorm.DB
}

var _ Database = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens (or creates) the downloads database under root and
// runs migrations.
func NewSQLiteDatabase(root string) (*SQLiteDatabase, error) {
	dbPath := filepath.Join(root, databaseFileName)

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&DownloadRecord{}); err != nil {
		return nil, fmt.Errorf("auto migration failed: %w", err)
	}

	logutils.Log.WithField("path", dbPath).Debug("Database initialized")
	return &SQLiteDatabase{db: db}, nil
}

// NewInMemoryDatabase opens a private in-memory database, used in tests.
func NewInMemoryDatabase() (*SQLiteDatabase, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	if err := db.AutoMigrate(&DownloadRecord{}); err != nil {
		return nil, fmt.Errorf("auto migration failed: %w", err)
	}
	return &SQLiteDatabase{db: db}, nil
}

func (s *SQLiteDatabase) SaveRecord(ctx context.Context, record *DownloadRecord) error {
	if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("failed to save download record: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetRecords(ctx context.Context) ([]DownloadRecord, error) {
	var records []DownloadRecord
	if err := s.db.WithContext(ctx).Order("downloaded_at").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list download records: %w", err)
	}
	return records, nil
}

func (s *SQLiteDatabase) RecordExists(ctx context.Context, itemID string) (bool, error) {
	var record DownloadRecord
	err := s.db.WithContext(ctx).First(&record, "item_id = ?", itemID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query download record: %w", err)
	}
	return true, nil
}

func (s *SQLiteDatabase) RemoveRecord(ctx context.Context, itemID string) error {
	if err := s.db.WithContext(ctx).Delete(&DownloadRecord{}, "item_id = ?", itemID).Error; err != nil {
		return fmt.Errorf("failed to remove download record: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) RemoveAllRecords(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&DownloadRecord{}).Error; err != nil {
		return fmt.Errorf("failed to clear download records: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
