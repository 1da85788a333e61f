package services

import (
	"errors"
	"fmt"

	"github.com/lyallcooper/treescan/internal/tree"
)

var (
	// ErrNotFound is returned when an index path does not resolve
	ErrNotFound = tree.ErrNotFound

	// ErrInvalidState is returned for commands not allowed in the current
	// state, such as changing the selection while a scan runs
	ErrInvalidState = errors.New("invalid state")

	// ErrAlreadyRunning is returned by Start while a scan is active
	ErrAlreadyRunning = errors.New("scan already running")

	// ErrFatalScan aborts a scan run
	ErrFatalScan = errors.New("fatal scan failure")

	// errStopped ends a walk after a stop request
	errStopped = errors.New("scan stopped")
)

// ItemFailure is a non-fatal failure on a single path. The item is skipped.
type ItemFailure struct {
	Path string
	Err  error
}

func (e *ItemFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ItemFailure) Unwrap() error {
	return e.Err
}
