package db

import (
	"database/sql"
	"encoding/json"
	"time"
)

// ScanRun queries

// CreateScanRun records the start of a scan run
func (db *DB) CreateScanRun(id string, paths []string) (*ScanRun, error) {
	if paths == nil {
		paths = []string{}
	}
	pathsJSON, _ := json.Marshal(paths)

	_, err := db.Exec(`
		INSERT INTO scan_runs (id, status, paths, started_at)
		VALUES (?, ?, ?, ?)`,
		id, ScanRunStatusRunning, string(pathsJSON), time.Now().Unix(),
	)
	if err != nil {
		return nil, err
	}

	return db.GetScanRun(id)
}

const scanRunColumns = `id, status, paths, started_at, completed_at,
	items_total, items_processed, items_failed, bytes_processed, error_message`

// GetScanRun retrieves a scan run by ID
func (db *DB) GetScanRun(id string) (*ScanRun, error) {
	row := db.QueryRow(`SELECT `+scanRunColumns+` FROM scan_runs WHERE id = ?`, id)
	return scanScanRun(row)
}

// ListScanRuns returns scan runs, newest first
func (db *DB) ListScanRuns(limit, offset int) ([]*ScanRun, error) {
	rows, err := db.Query(`
		SELECT `+scanRunColumns+` FROM scan_runs
		ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ScanRun
	for rows.Next() {
		r, err := scanScanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UpdateScanRunCounts updates the progress counters of a run
func (db *DB) UpdateScanRunCounts(id string, total, processed, failed, bytes int64) error {
	_, err := db.Exec(`
		UPDATE scan_runs SET
			items_total = ?, items_processed = ?, items_failed = ?, bytes_processed = ?
		WHERE id = ?`,
		total, processed, failed, bytes, id,
	)
	return err
}

// CompleteScanRun marks a scan run as finished
func (db *DB) CompleteScanRun(id string, status ScanRunStatus, errorMsg *string) error {
	_, err := db.Exec(`
		UPDATE scan_runs SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ?`,
		status, time.Now().Unix(), errorMsg, id,
	)
	return err
}

// MarkInterruptedRuns closes out runs left running by a previous process
func (db *DB) MarkInterruptedRuns() (int64, error) {
	result, err := db.Exec(`
		UPDATE scan_runs SET status = ?, completed_at = ?
		WHERE status = ?`,
		ScanRunStatusInterrupted, time.Now().Unix(), ScanRunStatusRunning,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScanRun(row rowScanner) (*ScanRun, error) {
	var r ScanRun
	var pathsJSON string
	var startedAt int64
	var completedAt sql.NullInt64
	var errorMsg sql.NullString

	err := row.Scan(&r.ID, &r.Status, &pathsJSON, &startedAt, &completedAt,
		&r.ItemsTotal, &r.ItemsProcessed, &r.ItemsFailed, &r.BytesProcessed, &errorMsg)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(pathsJSON), &r.Paths); err != nil {
		r.Paths = []string{}
	}
	r.StartedAt = time.Unix(startedAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		r.CompletedAt = &t
	}
	if errorMsg.Valid {
		r.ErrorMessage = &errorMsg.String
	}

	return &r, nil
}

// ScanError queries

// CreateScanError records a per-item failure for a run
func (db *DB) CreateScanError(runID, path, message string) error {
	_, err := db.Exec(`
		INSERT INTO scan_errors (scan_run_id, path, message, created_at)
		VALUES (?, ?, ?, ?)`,
		runID, path, message, time.Now().Unix(),
	)
	return err
}

// ListScanErrors returns the failures recorded for a run in insertion order
func (db *DB) ListScanErrors(runID string) ([]*ScanError, error) {
	rows, err := db.Query(`
		SELECT id, scan_run_id, path, message, created_at
		FROM scan_errors WHERE scan_run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var errs []*ScanError
	for rows.Next() {
		var e ScanError
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.ScanRunID, &e.Path, &e.Message, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		errs = append(errs, &e)
	}
	return errs, rows.Err()
}

// Settings queries

// GetSetting returns the value of a setting, or "" if unset
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting stores a setting value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Maintenance

// CleanupOldData removes finished runs (and their errors) older than
// retentionDays. Running runs are never removed.
func (db *DB) CleanupOldData(retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM scan_errors WHERE scan_run_id IN (
			SELECT id FROM scan_runs WHERE started_at < ? AND status != ?
		)`, cutoff, ScanRunStatusRunning); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		DELETE FROM scan_runs WHERE started_at < ? AND status != ?`,
		cutoff, ScanRunStatusRunning); err != nil {
		return err
	}

	return tx.Commit()
}
