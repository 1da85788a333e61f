package db

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// testDB creates a temporary database for testing
func testDB(t *testing.T) *DB {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// ============================================================================
// Open / Migrate Tests
// ============================================================================

func TestOpenCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("query migrations failed: %v", err)
	}
	if count != 2 {
		t.Errorf("applied migrations = %d, want 2", count)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := OpenWithDriver("postgres", filepath.Join(t.TempDir(), "x.db")); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

// ============================================================================
// Snapshot Tests
// ============================================================================

func TestSnapshotRoundTrip(t *testing.T) {
	db := testDB(t)

	if _, err := db.GetSnapshot(KeyScannerState); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("GetSnapshot on empty db error = %v, want ErrSnapshotNotFound", err)
	}

	type payload struct {
		Running bool     `json:"running"`
		Items   []string `json:"items"`
	}

	if err := db.SaveSnapshot(KeyScannerState, payload{Running: true, Items: []string{"a"}}); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := db.SaveSnapshot(KeyScannerState, payload{Running: false, Items: []string{"a", "b"}}); err != nil {
		t.Fatalf("SaveSnapshot overwrite failed: %v", err)
	}

	var got payload
	if err := db.LoadSnapshot(KeyScannerState, &got); err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	want := payload{Running: false, Items: []string{"a", "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadSnapshot = %+v, want %+v", got, want)
	}

	// Keys are independent
	var other payload
	if err := db.LoadSnapshot(KeyScannerStatus, &other); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("status key error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestLoadSnapshotCorrupt(t *testing.T) {
	db := testDB(t)
	if err := db.PutSnapshot(KeyScannerStatus, []byte("{not json")); err != nil {
		t.Fatalf("PutSnapshot failed: %v", err)
	}

	var v map[string]any
	err := db.LoadSnapshot(KeyScannerStatus, &v)
	if err == nil || errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected decode error, got %v", err)
	}
}

// ============================================================================
// ScanRun Tests
// ============================================================================

func TestScanRunLifecycle(t *testing.T) {
	db := testDB(t)

	paths := []string{"/tmp/a", "/tmp/b"}
	created, err := db.CreateScanRun("run-1", paths)
	if err != nil {
		t.Fatalf("CreateScanRun failed: %v", err)
	}
	if created.Status != ScanRunStatusRunning {
		t.Errorf("Status = %s, want %s", created.Status, ScanRunStatusRunning)
	}
	if !reflect.DeepEqual(created.Paths, paths) {
		t.Errorf("Paths = %v, want %v", created.Paths, paths)
	}
	if created.CompletedAt != nil {
		t.Error("CompletedAt should be nil for a running scan")
	}

	if err := db.UpdateScanRunCounts("run-1", 10, 7, 2, 4096); err != nil {
		t.Fatalf("UpdateScanRunCounts failed: %v", err)
	}
	msg := "Scan cancelled"
	if err := db.CompleteScanRun("run-1", ScanRunStatusCancelled, &msg); err != nil {
		t.Fatalf("CompleteScanRun failed: %v", err)
	}

	got, err := db.GetScanRun("run-1")
	if err != nil {
		t.Fatalf("GetScanRun failed: %v", err)
	}
	if got.ItemsTotal != 10 || got.ItemsProcessed != 7 || got.ItemsFailed != 2 || got.BytesProcessed != 4096 {
		t.Errorf("counts = %d/%d/%d/%d", got.ItemsTotal, got.ItemsProcessed, got.ItemsFailed, got.BytesProcessed)
	}
	if got.Status != ScanRunStatusCancelled {
		t.Errorf("Status = %s, want %s", got.Status, ScanRunStatusCancelled)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != msg {
		t.Errorf("ErrorMessage = %v, want %q", got.ErrorMessage, msg)
	}
}

func TestCreateScanRunNilPaths(t *testing.T) {
	db := testDB(t)
	run, err := db.CreateScanRun("empty", nil)
	if err != nil {
		t.Fatalf("CreateScanRun failed: %v", err)
	}
	if run.Paths == nil || len(run.Paths) != 0 {
		t.Errorf("Paths = %#v, want empty slice", run.Paths)
	}
}

func TestListScanRunsNewestFirst(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"r1", "r2", "r3"} {
		if _, err := db.CreateScanRun(id, nil); err != nil {
			t.Fatalf("CreateScanRun(%s) failed: %v", id, err)
		}
	}

	runs, err := db.ListScanRuns(2, 0)
	if err != nil {
		t.Fatalf("ListScanRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "r3" || runs[1].ID != "r2" {
		t.Errorf("order = %s, %s; want r3, r2", runs[0].ID, runs[1].ID)
	}

	runs, _ = db.ListScanRuns(10, 2)
	if len(runs) != 1 || runs[0].ID != "r1" {
		t.Errorf("offset page = %v", runs)
	}
}

func TestMarkInterruptedRuns(t *testing.T) {
	db := testDB(t)
	db.CreateScanRun("done", nil)
	db.CompleteScanRun("done", ScanRunStatusCompleted, nil)
	db.CreateScanRun("stale", nil)

	n, err := db.MarkInterruptedRuns()
	if err != nil {
		t.Fatalf("MarkInterruptedRuns failed: %v", err)
	}
	if n != 1 {
		t.Errorf("marked %d runs, want 1", n)
	}

	stale, _ := db.GetScanRun("stale")
	if stale.Status != ScanRunStatusInterrupted {
		t.Errorf("stale status = %s, want %s", stale.Status, ScanRunStatusInterrupted)
	}
	done, _ := db.GetScanRun("done")
	if done.Status != ScanRunStatusCompleted {
		t.Errorf("done status = %s, want %s", done.Status, ScanRunStatusCompleted)
	}
}

// ============================================================================
// ScanError Tests
// ============================================================================

func TestScanErrors(t *testing.T) {
	db := testDB(t)
	db.CreateScanRun("run", nil)

	if err := db.CreateScanError("run", "/a", "permission denied"); err != nil {
		t.Fatalf("CreateScanError failed: %v", err)
	}
	db.CreateScanError("run", "/b", "i/o error")

	errs, err := db.ListScanErrors("run")
	if err != nil {
		t.Fatalf("ListScanErrors failed: %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2", len(errs))
	}
	if errs[0].Path != "/a" || errs[1].Message != "i/o error" {
		t.Errorf("unexpected errors: %+v, %+v", errs[0], errs[1])
	}

	if errs, _ := db.ListScanErrors("other"); len(errs) != 0 {
		t.Errorf("other run has %d errors, want 0", len(errs))
	}
}

// ============================================================================
// Settings / Cleanup Tests
// ============================================================================

func TestSettings(t *testing.T) {
	db := testDB(t)

	val, err := db.GetSetting("retention_days")
	if err != nil || val != "30" {
		t.Errorf("default retention_days = %q, %v", val, err)
	}

	if err := db.SetSetting("retention_days", "7"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	val, _ = db.GetSetting("retention_days")
	if val != "7" {
		t.Errorf("retention_days = %q, want 7", val)
	}

	val, err = db.GetSetting("missing")
	if err != nil || val != "" {
		t.Errorf("missing setting = %q, %v", val, err)
	}
}

func TestCleanupOldData(t *testing.T) {
	db := testDB(t)

	old := time.Now().AddDate(0, 0, -40).Unix()
	db.CreateScanRun("old", nil)
	db.CompleteScanRun("old", ScanRunStatusCompleted, nil)
	db.CreateScanError("old", "/x", "boom")
	db.Exec("UPDATE scan_runs SET started_at = ? WHERE id = ?", old, "old")

	db.CreateScanRun("old-running", nil)
	db.Exec("UPDATE scan_runs SET started_at = ? WHERE id = ?", old, "old-running")

	db.CreateScanRun("recent", nil)
	db.CompleteScanRun("recent", ScanRunStatusCompleted, nil)

	if err := db.CleanupOldData(30); err != nil {
		t.Fatalf("CleanupOldData failed: %v", err)
	}

	if _, err := db.GetScanRun("old"); err == nil {
		t.Error("old run should be deleted")
	}
	if errs, _ := db.ListScanErrors("old"); len(errs) != 0 {
		t.Errorf("old run errors not deleted: %d", len(errs))
	}
	if _, err := db.GetScanRun("old-running"); err != nil {
		t.Errorf("running run should be kept: %v", err)
	}
	if _, err := db.GetScanRun("recent"); err != nil {
		t.Errorf("recent run should be kept: %v", err)
	}
}
