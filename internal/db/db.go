// Package db persists scanner snapshots and scan history in sqlite.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names
const (
	// DriverModernc is the pure Go driver and the default
	DriverModernc = "sqlite"

	// DriverCgo is the cgo driver (github.com/mattn/go-sqlite3)
	DriverCgo = "sqlite3"
)

// DB wraps the sql.DB handle
type DB struct {
	*sql.DB
}

// Open opens the database at path with the default driver and runs migrations
func Open(path string) (*DB, error) {
	return OpenWithDriver(DriverModernc, path)
}

// OpenWithDriver opens the database at path using the named driver and runs
// migrations. The parent directory is created if missing.
func OpenWithDriver(driver, path string) (*DB, error) {
	dsn, err := dsnFor(driver, path)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Snapshot writes are serialized by the engine; one connection avoids
	// SQLITE_BUSY between writers.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	database := &DB{DB: sqlDB}
	if err := database.Migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return database, nil
}

func dsnFor(driver, path string) (string, error) {
	switch driver {
	case DriverModernc:
		return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", nil
	case DriverCgo:
		return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}
