package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

//go:embed sql/queries/get_entry.sql
var getEntryQuery string

//go:embed sql/queries/put_entry.sql
var putEntryQuery string

//go:embed sql/queries/delete_entry.sql
var deleteEntryQuery string

// Entry is a stored key-value pair
type Entry struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// KVRepository reads and writes key-value entries
type KVRepository struct {
	db     *SQLiteDB
	logger *zap.Logger
}

// NewKVRepository creates a new key-value repository
func NewKVRepository(db *SQLiteDB, logger *zap.Logger) *KVRepository {
	return &KVRepository{
		db:     db,
		logger: logger,
	}
}

// Get loads an entry by key. The bool is false when the key is absent.
func (r *KVRepository) Get(ctx context.Context, key string) (Entry, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Entry{}, false, fmt.Errorf("entry key is required")
	}

	var value string
	var updatedAt int64
	err := r.db.db.QueryRowContext(ctx, getEntryQuery, key).Scan(&value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to get entry: %w", err)
	}

	return Entry{
		Key:       key,
		Value:     []byte(value),
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}, true, nil
}

// Put upserts an entry
func (r *KVRepository) Put(ctx context.Context, key string, value []byte) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("entry key is required")
	}

	_, err := r.db.db.ExecContext(ctx, putEntryQuery, key, string(value), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put entry: %w", err)
	}

	r.logger.Debug("stored entry",
		zap.String("key", key),
		zap.Int("bytes", len(value)))

	return nil
}

// Delete removes an entry. Deleting a missing key is not an error.
func (r *KVRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.db.ExecContext(ctx, deleteEntryQuery, key); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	r.logger.Debug("deleted entry", zap.String("key", key))
	return nil
}
