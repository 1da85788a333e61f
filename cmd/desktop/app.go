package main

import (
	"context"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/lyallcooper/treescan/internal/services"
	"github.com/lyallcooper/treescan/internal/types"
)

// engine is the subset of the scanner the desktop bindings use
type engine interface {
	LoadScannerState() (types.ScannerState, types.ScannerStatus)
	ToggleCheck(indexPath []int) error
	ToggleExpand(indexPath []int) error
	Start() (string, error)
	Stop()
	Subscribe() <-chan services.Event
	Unsubscribe(ch <-chan services.Event)
}

// emitFunc sends an event to the frontend
type emitFunc func(ctx context.Context, name string, data ...interface{})

// App struct holds the Wails application context and provides
// methods that can be called from the frontend.
type App struct {
	ctx     context.Context
	scanner engine
	emit    emitFunc
	done    chan struct{}
}

// NewApp creates a new App instance.
func NewApp(scanner engine) *App {
	return &App{
		scanner: scanner,
		emit:    wailsruntime.EventsEmit,
		done:    make(chan struct{}),
	}
}

// startup is called when the app starts. It forwards scanner events to the
// frontend until shutdown.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	events := a.scanner.Subscribe()
	go a.forward(events)
}

// shutdown stops event forwarding
func (a *App) shutdown() {
	close(a.done)
}

func (a *App) forward(events <-chan services.Event) {
	defer a.scanner.Unsubscribe(events)
	for {
		select {
		case <-a.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.emit(a.ctx, ev.Name, ev.Payload())
		}
	}
}

// ScannerSnapshot is the reply of LoadScannerState
type ScannerSnapshot struct {
	State  types.ScannerState  `json:"state"`
	Status types.ScannerStatus `json:"status"`
}

// LoadScannerState returns the current state and status and re-emits both
// as events.
func (a *App) LoadScannerState() ScannerSnapshot {
	state, status := a.scanner.LoadScannerState()
	return ScannerSnapshot{State: state, Status: status}
}

// ToggleFileExplorerNodeCheck flips the check state of a node.
func (a *App) ToggleFileExplorerNodeCheck(indexPath []int) error {
	return a.scanner.ToggleCheck(indexPath)
}

// ToggleFileExplorerNodeExpansion expands or collapses a directory node.
func (a *App) ToggleFileExplorerNodeExpansion(indexPath []int) error {
	return a.scanner.ToggleExpand(indexPath)
}

// StartScanner starts a scan of the current selection.
func (a *App) StartScanner() (string, error) {
	return a.scanner.Start()
}

// StopScanner asks the running scan to stop after its current item.
func (a *App) StopScanner() {
	a.scanner.Stop()
}
