// Copyright (c) Microsoft. All rights reserved.

// Package sqlstore implements storage.Storage on a relational database
// through GORM. Any GORM dialector can be used; the caller opens the
// *gorm.DB and owns its lifecycle.
package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/microsoft/agents-sdk/go/storage"
)

const defaultTableName = "agent_state"

// Document is a JSON column value.
type Document []byte

// Value implements the driver.Valuer interface for database storage.
func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return string(d), nil
}

// Scan implements the sql.Scanner interface for database retrieval.
func (d *Document) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = nil
	case []byte:
		*d = append(Document(nil), v...)
	case string:
		*d = Document(v)
	default:
		return fmt.Errorf("cannot scan %T into Document", value)
	}
	return nil
}

// Record is the row layout of the state table.
type Record struct {
	Key       string    `gorm:"column:store_key;primaryKey;size:512"`
	Document  Document  `gorm:"column:document;type:text"`
	ETag      string    `gorm:"column:etag;size:64;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// Config holds configuration for [Storage].
type Config struct {
	DB          *gorm.DB
	TableName   string // Optional, defaults to "agent_state"
	CreateTable bool   // Run AutoMigrate in Initialize
}

// Storage is a storage.Storage backed by a SQL table.
type Storage struct {
	db          *gorm.DB
	tableName   string
	createTable bool
}

var _ storage.Storage = (*Storage)(nil)

// New creates a Storage from config.
func New(config Config) (*Storage, error) {
	if config.DB == nil {
		return nil, errors.New("sqlstore: database connection cannot be nil")
	}
	tableName := config.TableName
	if tableName == "" {
		tableName = defaultTableName
	}
	return &Storage{db: config.DB, tableName: tableName, createTable: config.CreateTable}, nil
}

// TableName returns the table rows are stored in.
func (s *Storage) TableName() string { return s.tableName }

// Initialize creates or migrates the table when CreateTable is set.
func (s *Storage) Initialize(ctx context.Context) error {
	if !s.createTable {
		return nil
	}
	if err := s.table(ctx).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("sqlstore: initialize: %w", err)
	}
	return nil
}

func (s *Storage) table(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.tableName)
}

func (s *Storage) Read(ctx context.Context, keys []string) (map[string]storage.Item, error) {
	if err := storage.ValidateKeys(keys...); err != nil {
		return nil, err
	}
	out := make(map[string]storage.Item, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var rows []Record
	if err := s.table(ctx).Where("store_key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlstore: read: %w", err)
	}
	for _, r := range rows {
		out[r.Key] = r.item()
	}
	return out, nil
}

// Write applies all changes in one transaction. A conflict on any key rolls
// back every change.
func (s *Storage) Write(ctx context.Context, changes map[string]storage.Item) (map[string]string, error) {
	for k := range changes {
		if k == "" {
			return nil, storage.ErrInvalidKey
		}
	}
	etags := make(map[string]string, len(changes))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for k, it := range changes {
			rec := newRecord(k, it)
			if err := s.writeRecord(tx, rec, it.ETag); err != nil {
				return err
			}
			etags[k] = rec.ETag
		}
		return nil
	})
	if err != nil {
		var ce *storage.ConflictError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlstore: write: %w", err)
	}
	return etags, nil
}

// writeRecord runs inside the Write transaction. Each statement starts from
// tx.Table so conditions do not accumulate across queries.
func (s *Storage) writeRecord(tx *gorm.DB, rec Record, expected string) error {
	if storage.IsWildcard(expected) {
		return tx.Table(s.tableName).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"document", "etag", "updated_at"}),
		}).Create(&rec).Error
	}

	res := tx.Table(s.tableName).Where("store_key = ? AND etag = ?", rec.Key, expected).
		Updates(map[string]any{"document": rec.Document, "etag": rec.ETag, "updated_at": rec.UpdatedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Find rather than Take: a missing row is the normal create path and
	// must not surface as ErrRecordNotFound in the GORM logger.
	var cur Record
	res = tx.Table(s.tableName).Where("store_key = ?", rec.Key).Limit(1).Find(&cur)
	switch {
	case res.Error != nil:
		return res.Error
	case res.RowsAffected == 0:
		return tx.Table(s.tableName).Create(&rec).Error
	default:
		return &storage.ConflictError{Key: rec.Key, Expected: expected, Current: cur.ETag}
	}
}

func (s *Storage) Delete(ctx context.Context, keys []string) error {
	if err := storage.ValidateKeys(keys...); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.table(ctx).Where("store_key IN ?", keys).Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("sqlstore: delete: %w", err)
	}
	return nil
}

func newRecord(key string, it storage.Item) Record {
	return Record{
		Key:       key,
		Document:  Document(append([]byte(nil), it.Document...)),
		ETag:      storage.NewETag(),
		UpdatedAt: time.Now().UTC(),
	}
}

func (r Record) item() storage.Item {
	return storage.Item{Document: append([]byte(nil), r.Document...), ETag: r.ETag}
}
