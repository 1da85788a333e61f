package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/lyallcooper/treescan/internal/db"
	"github.com/lyallcooper/treescan/internal/tree"
	"github.com/lyallcooper/treescan/internal/types"
)

// Scanner owns the explorer tree and runs at most one scan at a time.
//
// All state changes happen under mu. Each committed change is written to the
// snapshot store and then broadcast while mu is still held, so storage and
// every subscriber observe changes in the same order.
type Scanner struct {
	db        *db.DB
	lister    tree.Lister
	processor Processor
	rootPath  string

	mu       sync.Mutex
	tree     *tree.Tree
	running  bool
	status   types.ScannerStatus
	progress progressTracker
	done     chan struct{}

	stopRequested atomic.Bool

	// Lifetime context for per-file work, cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	// Notification subscribers
	subMu       sync.RWMutex
	subscribers []*subscriber
}

// NewScanner creates the scanner service, restoring the last persisted tree
// when it belongs to rootPath. A restored scanner is always idle.
func NewScanner(database *db.DB, rootPath string, lister tree.Lister, processor Processor) (*Scanner, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scanner{
		db:        database,
		lister:    lister,
		processor: processor,
		rootPath:  rootPath,
		status:    types.NeutralStatus(),
		ctx:       ctx,
		cancel:    cancel,
	}

	if err := s.restore(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// restore loads the persisted state, forces it idle and writes it back
func (s *Scanner) restore() error {
	var state types.ScannerState
	err := s.db.LoadSnapshot(db.KeyScannerState, &state)
	if err != nil && !errors.Is(err, db.ErrSnapshotNotFound) {
		log.Printf("scanner: failed to restore state, starting fresh: %v", err)
	}

	if err == nil && state.FileExplorerTree != nil && state.FileExplorerTree.Path == s.rootPath {
		s.tree = tree.Restore(state.FileExplorerTree, s.lister)
		if state.IsRunning {
			log.Printf("scanner: previous scan did not finish, resetting to idle")
		}
	} else {
		s.tree = tree.New(s.rootPath, s.lister)
	}

	if n, err := s.db.MarkInterruptedRuns(); err != nil {
		log.Printf("scanner: failed to mark interrupted runs: %v", err)
	} else if n > 0 {
		log.Printf("scanner: marked %d unfinished runs as interrupted", n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.status = types.NeutralStatus()

	if err := s.db.SaveSnapshot(db.KeyScannerState, s.stateSnapshot()); err != nil {
		return fmt.Errorf("failed to persist restored state: %w", err)
	}
	if err := s.db.SaveSnapshot(db.KeyScannerStatus, s.status); err != nil {
		return fmt.Errorf("failed to persist restored status: %w", err)
	}
	return nil
}

// Snapshot returns the current state and status without notifying anyone
func (s *Scanner) Snapshot() (types.ScannerState, types.ScannerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateSnapshot(), s.status
}

// LoadScannerState returns the current state and status and broadcasts both
// to subscribers
func (s *Scanner) LoadScannerState() (types.ScannerState, types.ScannerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateSnapshot()
	status := s.status
	s.broadcast(Event{Name: EventState, State: &state})
	s.broadcast(Event{Name: EventStatus, Status: &status})
	return state, status
}

// ToggleCheck flips the check state of the node at indexPath
func (s *Scanner) ToggleCheck(indexPath []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("%w: selection cannot change while a scan is running", ErrInvalidState)
	}
	if _, err := s.tree.ToggleCheck(indexPath); err != nil {
		return err
	}

	s.commitState()
	return nil
}

// ToggleExpand expands or collapses the directory at indexPath, listing it
// on first expansion
func (s *Scanner) ToggleExpand(indexPath []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("%w: tree cannot change while a scan is running", ErrInvalidState)
	}

	node, err := s.tree.ToggleExpand(indexPath)
	if errors.Is(err, tree.ErrNotDirectory) {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if err != nil {
		return err
	}
	if node.Error != "" {
		log.Printf("scanner: failed to list %s: %s", node.Path, node.Error)
	}

	s.commitState()
	return nil
}

// Start begins a scan of the current selection in the background and
// returns the run ID
func (s *Scanner) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return "", ErrAlreadyRunning
	}

	paths := slices.Collect(s.tree.SelectedPaths())
	runID := uuid.NewString()
	if _, err := s.db.CreateScanRun(runID, paths); err != nil {
		log.Printf("scanner: failed to record run %s: %v", runID, err)
	}

	s.running = true
	s.stopRequested.Store(false)
	s.progress.reset()
	s.status = types.ScannerStatus{RunID: runID, Step: types.StepCounting}
	s.commitState()
	s.commitStatus()

	done := make(chan struct{})
	s.done = done
	go s.run(runID, paths, done)

	log.Printf("scanner: started run %s with %d selected paths", runID, len(paths))
	return runID, nil
}

// Stop asks the active scan to stop after the item in progress. It is a
// no-op when idle or already stopping.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.status.Step == types.StepStopping {
		return
	}

	s.stopRequested.Store(true)
	s.status.Step = types.StepStopping
	s.commitStatus()
	log.Printf("scanner: stop requested for run %s", s.status.RunID)
}

// Running reports whether a scan is active
func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until the active scan, if any, has returned to idle
func (s *Scanner) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Close stops any active scan, cancels in-flight work and closes all
// subscriber channels
func (s *Scanner) Close() {
	s.Stop()
	s.cancel()
	s.Wait()
	s.closeSubscribers()
}

// run executes a scan: count, then process every file
func (s *Scanner) run(runID string, paths []string, done chan struct{}) {
	defer close(done)

	counter := &walker{
		lister:  s.lister,
		root:    s.rootPath,
		stopped: s.stopRequested.Load,
		onError: func(failure *ItemFailure) {
			log.Printf("scanner: counting skipped %v", failure)
		},
	}

	var total int64
	if err := counter.walk(paths, func(string) { total++ }); err != nil {
		s.finish(runID, err)
		return
	}

	s.mu.Lock()
	s.progress.setTotal(total)
	s.status.TotalCount = total
	if s.status.Step == types.StepCounting {
		s.status.Step = types.StepScanning
	}
	s.commitStatus()
	s.mu.Unlock()

	scanner := &walker{
		lister:  s.lister,
		root:    s.rootPath,
		stopped: s.stopRequested.Load,
		onError: func(failure *ItemFailure) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.recordFailure(runID, failure)
			s.progress.failed++
			s.status.FailedCount = s.progress.failed
			s.commitStatus()
		},
	}

	err := scanner.walk(paths, func(path string) {
		s.processItem(runID, path)
	})
	s.finish(runID, err)
}

// processItem runs the processor on one file. The lock is released while
// the processor works.
func (s *Scanner) processItem(runID, path string) {
	s.mu.Lock()
	s.status.CurrentFilePath = path
	s.commitStatus()
	s.mu.Unlock()

	result, err := s.processor.Process(s.ctx, path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.recordFailure(runID, &ItemFailure{Path: path, Err: err})
		result.Size = 0
	}
	s.status.Progress = s.progress.advance(result.Size, err != nil)
	s.status.ProcessedCount = s.progress.processed
	s.status.FailedCount = s.progress.failed
	s.commitStatus()
}

// recordFailure logs a skipped item and stores it with the run. Callers hold
// the lock.
func (s *Scanner) recordFailure(runID string, failure *ItemFailure) {
	log.Printf("scanner: skipping %v", failure)
	if err := s.db.CreateScanError(runID, failure.Path, failure.Err.Error()); err != nil {
		log.Printf("scanner: failed to record error for run %s: %v", runID, err)
	}
}

// finish returns the scanner to idle and closes out the run record
func (s *Scanner) finish(runID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runStatus := db.ScanRunStatusCompleted
	var errMsg *string

	s.status = types.NeutralStatus()
	switch {
	case errors.Is(err, ErrFatalScan):
		runStatus = db.ScanRunStatusFailed
		msg := err.Error()
		errMsg = &msg
		s.status.RunID = runID
		s.status.Error = msg
	case errors.Is(err, errStopped), err == nil && s.stopRequested.Load():
		runStatus = db.ScanRunStatusCancelled
		msg := "Scan cancelled"
		errMsg = &msg
	case err != nil:
		runStatus = db.ScanRunStatusFailed
		msg := err.Error()
		errMsg = &msg
	}

	s.running = false
	s.stopRequested.Store(false)
	s.commitState()
	s.commitStatus()

	p := s.progress
	if err := s.db.UpdateScanRunCounts(runID, p.total, p.processed, p.failed, p.bytes); err != nil {
		log.Printf("scanner: failed to update run %s: %v", runID, err)
	}
	if err := s.db.CompleteScanRun(runID, runStatus, errMsg); err != nil {
		log.Printf("scanner: failed to complete run %s: %v", runID, err)
	}

	if errMsg != nil && runStatus == db.ScanRunStatusFailed {
		log.Printf("scanner: run %s failed: %s", runID, *errMsg)
	}
	log.Printf("scanner: run %s %s: %d/%d items, %d failed, %s read",
		runID, runStatus, p.processed, p.total, p.failed, humanize.Bytes(uint64(p.bytes)))
}

// stateSnapshot returns a deep copy of the current state. Callers hold the
// lock.
func (s *Scanner) stateSnapshot() types.ScannerState {
	return types.ScannerState{
		IsRunning:        s.running,
		FileExplorerTree: s.tree.Snapshot(),
	}
}

// commitState persists and broadcasts the state. Callers hold the lock.
func (s *Scanner) commitState() {
	state := s.stateSnapshot()
	if err := s.db.SaveSnapshot(db.KeyScannerState, state); err != nil {
		log.Printf("scanner: failed to persist state: %v", err)
	}
	s.broadcast(Event{Name: EventState, State: &state})
}

// commitStatus persists and broadcasts the status. Callers hold the lock.
func (s *Scanner) commitStatus() {
	status := s.status
	if err := s.db.SaveSnapshot(db.KeyScannerStatus, status); err != nil {
		log.Printf("scanner: failed to persist status: %v", err)
	}
	s.broadcast(Event{Name: EventStatus, Status: &status})
}
