package main

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/lyallcooper/treescan/internal/services"
	"github.com/lyallcooper/treescan/internal/types"
)

// fakeEngine serves events from a channel and records calls
type fakeEngine struct {
	events       chan services.Event
	unsubscribed chan struct{}
	checked      [][]int
	expanded     [][]int
	stopped      bool
	startErr     error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		events:       make(chan services.Event, 4),
		unsubscribed: make(chan struct{}),
	}
}

func (f *fakeEngine) LoadScannerState() (types.ScannerState, types.ScannerStatus) {
	return types.ScannerState{IsRunning: true}, types.ScannerStatus{Step: types.StepScanning}
}

func (f *fakeEngine) ToggleCheck(indexPath []int) error {
	f.checked = append(f.checked, indexPath)
	return nil
}

func (f *fakeEngine) ToggleExpand(indexPath []int) error {
	f.expanded = append(f.expanded, indexPath)
	return nil
}

func (f *fakeEngine) Start() (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return "run-1", nil
}

func (f *fakeEngine) Stop() {
	f.stopped = true
}

func (f *fakeEngine) Subscribe() <-chan services.Event {
	return f.events
}

func (f *fakeEngine) Unsubscribe(ch <-chan services.Event) {
	close(f.unsubscribed)
}

type emitted struct {
	name string
	data any
}

func newTestApp(engine *fakeEngine) (*App, chan emitted) {
	out := make(chan emitted, 4)
	a := NewApp(engine)
	a.emit = func(ctx context.Context, name string, data ...interface{}) {
		out <- emitted{name: name, data: data[0]}
	}
	return a, out
}

func waitEmit(t *testing.T, ch <-chan emitted) emitted {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for emit")
		return emitted{}
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for unsubscribe")
	}
}

func TestForwardEmitsEventsUntilShutdown(t *testing.T) {
	engine := newFakeEngine()
	a, out := newTestApp(engine)
	a.startup(context.Background())

	status := &types.ScannerStatus{Step: types.StepCounting, RunID: "run-1"}
	engine.events <- services.Event{Name: services.EventStatus, Status: status}
	state := &types.ScannerState{IsRunning: true}
	engine.events <- services.Event{Name: services.EventState, State: state}

	got := waitEmit(t, out)
	if got.name != services.EventStatus || got.data != status {
		t.Errorf("first emit = %+v, want status event", got)
	}
	got = waitEmit(t, out)
	if got.name != services.EventState || got.data != state {
		t.Errorf("second emit = %+v, want state event", got)
	}

	a.shutdown()
	waitClosed(t, engine.unsubscribed)
}

func TestForwardStopsWhenEventsClose(t *testing.T) {
	engine := newFakeEngine()
	a, _ := newTestApp(engine)
	a.startup(context.Background())

	close(engine.events)
	waitClosed(t, engine.unsubscribed)
}

func TestBindingsDelegate(t *testing.T) {
	engine := newFakeEngine()
	a, _ := newTestApp(engine)

	snap := a.LoadScannerState()
	if !snap.State.IsRunning || snap.Status.Step != types.StepScanning {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	if err := a.ToggleFileExplorerNodeCheck([]int{0, 1}); err != nil {
		t.Fatal(err)
	}
	if err := a.ToggleFileExplorerNodeExpansion([]int{2}); err != nil {
		t.Fatal(err)
	}
	if len(engine.checked) != 1 || !slices.Equal(engine.checked[0], []int{0, 1}) {
		t.Errorf("check calls = %v", engine.checked)
	}
	if len(engine.expanded) != 1 || !slices.Equal(engine.expanded[0], []int{2}) {
		t.Errorf("expand calls = %v", engine.expanded)
	}

	if runID, err := a.StartScanner(); err != nil || runID != "run-1" {
		t.Errorf("StartScanner = %q, %v", runID, err)
	}
	engine.startErr = services.ErrAlreadyRunning
	if _, err := a.StartScanner(); !errors.Is(err, services.ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	a.StopScanner()
	if !engine.stopped {
		t.Error("expected Stop to reach the engine")
	}
}
