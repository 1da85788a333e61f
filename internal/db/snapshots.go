package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrSnapshotNotFound is returned when no snapshot is stored under a key
var ErrSnapshotNotFound = errors.New("snapshot not found")

// GetSnapshot returns the raw snapshot stored under key
func (db *DB) GetSnapshot(key string) ([]byte, error) {
	var value string
	err := db.QueryRow("SELECT value FROM snapshots WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// PutSnapshot replaces the snapshot stored under key
func (db *DB) PutSnapshot(key string, value []byte) error {
	_, err := db.Exec(`
		INSERT INTO snapshots (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().Unix(),
	)
	return err
}

// SaveSnapshot encodes v as JSON and stores it under key
func (db *DB) SaveSnapshot(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", key, err)
	}
	return db.PutSnapshot(key, data)
}

// LoadSnapshot decodes the JSON snapshot under key into v. It returns
// ErrSnapshotNotFound if nothing is stored.
func (db *DB) LoadSnapshot(key string, v any) error {
	data, err := db.GetSnapshot(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return nil
}
