// Package database provides the SQLite-backed local key-value cache.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteDB represents the local SQLite database
type SQLiteDB struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens (creating if needed) and migrates the database at path
func Open(path string, logger *zap.Logger) (*SQLiteDB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to ensure storage dir: %w", err)
		}
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteDB{db: db, path: cleanPath, logger: logger}
	applied, err := s.migrate(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("database opened",
		zap.String("path", cleanPath),
		zap.Int("migrations_applied", applied))

	return s, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.logger.Info("closing database connection")
	return s.db.Close()
}

// Path returns the database file path
func (s *SQLiteDB) Path() string {
	return s.path
}

// Ping checks if the database is reachable
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// HealthCheck performs a health check on the database
func (s *SQLiteDB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	stats := s.db.Stats()
	s.logger.Debug("database health check",
		zap.Int("open_connections", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle))

	return nil
}
