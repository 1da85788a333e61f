package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"net/http"

	"github.com/lyallcooper/treescan/internal/config"
	"github.com/lyallcooper/treescan/internal/db"
	"github.com/lyallcooper/treescan/internal/services"
)

// Handler holds all HTTP handlers
type Handler struct {
	db          *db.DB
	cfg         *config.Config
	scanner     *services.Scanner
	staticFS    fs.FS
	version     string
	disableCSRF bool
}

// New creates a new Handler. webFS must contain a static directory.
func New(database *db.DB, cfg *config.Config, scanner *services.Scanner, webFS fs.FS, version string, disableCSRF bool) (*Handler, error) {
	staticFS, err := fs.Sub(webFS, "static")
	if err != nil {
		return nil, err
	}

	return &Handler{
		db:          database,
		cfg:         cfg,
		scanner:     scanner,
		staticFS:    staticFS,
		version:     version,
		disableCSRF: disableCSRF,
	}, nil
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Static files and the explorer page
	mux.Handle("GET /", http.FileServer(http.FS(h.staticFS)))

	// Scanner commands
	mux.HandleFunc("GET /api/scanner/state", h.ScannerState)
	mux.HandleFunc("POST /api/scanner/check", h.ToggleCheck)
	mux.HandleFunc("POST /api/scanner/expand", h.ToggleExpand)
	mux.HandleFunc("POST /api/scanner/start", h.StartScanner)
	mux.HandleFunc("POST /api/scanner/stop", h.StopScanner)

	// Run history
	mux.HandleFunc("GET /api/scanner/runs", h.ListRuns)
	mux.HandleFunc("GET /api/scanner/runs/{id}", h.GetRun)

	// Settings
	mux.HandleFunc("GET /api/settings", h.Settings)
	mux.HandleFunc("POST /api/settings", h.UpdateSettings)

	// Misc
	mux.HandleFunc("GET /api/csrf", h.CSRFToken)
	mux.HandleFunc("GET /api/info", h.Info)

	// SSE
	mux.HandleFunc("GET /sse/scanner", h.ScannerSSE)
}

// InfoResponse describes the running instance
type InfoResponse struct {
	Version      string `json:"version"`
	RootPath     string `json:"root_path"`
	ShowHidden   bool   `json:"show_hidden"`
	ScanSchedule string `json:"scan_schedule,omitempty"`
	Processor    string `json:"processor"`
}

// Info handles GET /api/info
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	processor := "sha256"
	if h.cfg.ProcessCommand != "" {
		processor = h.cfg.ProcessCommand
	}
	writeJSON(w, http.StatusOK, InfoResponse{
		Version:      h.version,
		RootPath:     h.cfg.RootPath,
		ShowHidden:   h.cfg.ShowHidden,
		ScanSchedule: h.cfg.ScanSchedule,
		Processor:    processor,
	})
}

// errorResponse is the JSON body of every error reply
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("handlers: failed to encode response: %v", err)
	}
}

// writeError maps engine errors to HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidState), errors.Is(err, services.ErrAlreadyRunning):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Printf("handlers: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
