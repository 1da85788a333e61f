package db

import "time"

// Snapshot keys
const (
	KeyScannerState  = "scanner_state"
	KeyScannerStatus = "scanner_status"
)

// ScanRunStatus represents the outcome of a scan run
type ScanRunStatus string

const (
	ScanRunStatusRunning     ScanRunStatus = "running"
	ScanRunStatusCompleted   ScanRunStatus = "completed"
	ScanRunStatusCancelled   ScanRunStatus = "cancelled"
	ScanRunStatusFailed      ScanRunStatus = "failed"
	ScanRunStatusInterrupted ScanRunStatus = "interrupted"
)

// ScanRun represents a single execution of the scanner
type ScanRun struct {
	ID             string
	Status         ScanRunStatus
	Paths          []string
	StartedAt      time.Time
	CompletedAt    *time.Time
	ItemsTotal     int64
	ItemsProcessed int64
	ItemsFailed    int64
	BytesProcessed int64
	ErrorMessage   *string
}

// ScanError is a non-fatal per-item failure recorded during a run
type ScanError struct {
	ID        int64
	ScanRunID string
	Path      string
	Message   string
	CreatedAt time.Time
}
