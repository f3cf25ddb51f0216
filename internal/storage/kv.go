package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Namespace keys for the persisted collections and counters.
const (
	KeyItems         = "items"
	KeyTrash         = "trash"
	KeyLogs          = "logs"
	KeySerialCounter = "serial_counter"
	KeyLogCounter    = "log_counter"
)

// ErrUnavailable indicates that the underlying store could not be read or written.
var ErrUnavailable = errors.New("storage: store unavailable")

// KV is a flat key/value store holding JSON-serialized collections and
// counter values under distinct namespace keys.
type KV interface {
	// Read returns the value stored under key. The second result is false
	// when the key has never been written.
	Read(ctx context.Context, key string) (string, bool, error)
	// Write stores value under key, replacing any previous value.
	Write(ctx context.Context, key, value string) error
}

// Record is the persisted shape of one namespace key.
type Record struct {
	Key   string `gorm:"column:key;primaryKey;size:190;not null"`
	Value string `gorm:"column:value;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "kv_records"
}

// SQLStore persists namespace keys in a SQLite-backed table.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps a GORM handle in a SQLStore.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database handle is required", ErrUnavailable)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Read(ctx context.Context, key string) (string, bool, error) {
	var record Record
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: reading %q: %v", ErrUnavailable, key, err)
	}
	return record.Value, true, nil
}

func (s *SQLStore) Write(ctx context.Context, key, value string) error {
	record := Record{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("%w: writing %q: %v", ErrUnavailable, key, err)
	}
	return nil
}
