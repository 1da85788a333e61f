package types

import "github.com/lyallcooper/treescan/internal/tree"

// ScanStep is the phase of the scanner lifecycle reported in ScannerStatus
type ScanStep string

const (
	StepIdle     ScanStep = "Idle"
	StepCounting ScanStep = "Counting"
	StepScanning ScanStep = "Scanning"
	StepStopping ScanStep = "Stopping"
)

// ScannerState is the persisted explorer tree plus the running flag
type ScannerState struct {
	IsRunning        bool       `json:"is_running"`
	FileExplorerTree *tree.Node `json:"file_explorer_tree"`
}

// ScannerStatus describes the active scan. It is neutral while idle, except
// that a fatal failure is kept until the next scan starts.
type ScannerStatus struct {
	RunID           string   `json:"run_id,omitempty"`
	Step            ScanStep `json:"step"`
	Progress        float64  `json:"progress"`
	CurrentFilePath string   `json:"current_file_path"`
	TotalCount      int64    `json:"total_count"`
	ProcessedCount  int64    `json:"processed_count"`
	FailedCount     int64    `json:"failed_count"`
	Error           string   `json:"error,omitempty"`
}

// NeutralStatus is the status reported when no scan is running
func NeutralStatus() ScannerStatus {
	return ScannerStatus{Step: StepIdle}
}
