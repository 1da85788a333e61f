package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lyallcooper/treescan/internal/types"
)

// StateResponse is the reply of GET /api/scanner/state
type StateResponse struct {
	State  types.ScannerState  `json:"state"`
	Status types.ScannerStatus `json:"status"`
}

// nodeRequest addresses a tree node by its index path
type nodeRequest struct {
	IndexPath []int `json:"index_path"`
}

// ScannerState handles GET /api/scanner/state. It also re-emits both
// snapshots to every subscriber.
func (h *Handler) ScannerState(w http.ResponseWriter, r *http.Request) {
	state, status := h.scanner.LoadScannerState()
	writeJSON(w, http.StatusOK, StateResponse{State: state, Status: status})
}

// ToggleCheck handles POST /api/scanner/check
func (h *Handler) ToggleCheck(w http.ResponseWriter, r *http.Request) {
	if !h.requireCSRF(w, r) {
		return
	}
	req, ok := decodeNodeRequest(w, r)
	if !ok {
		return
	}
	if err := h.scanner.ToggleCheck(req.IndexPath); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleExpand handles POST /api/scanner/expand
func (h *Handler) ToggleExpand(w http.ResponseWriter, r *http.Request) {
	if !h.requireCSRF(w, r) {
		return
	}
	req, ok := decodeNodeRequest(w, r)
	if !ok {
		return
	}
	if err := h.scanner.ToggleExpand(req.IndexPath); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartScanner handles POST /api/scanner/start
func (h *Handler) StartScanner(w http.ResponseWriter, r *http.Request) {
	if !h.requireCSRF(w, r) {
		return
	}
	runID, err := h.scanner.Start()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// StopScanner handles POST /api/scanner/stop. Stopping an idle scanner is
// not an error.
func (h *Handler) StopScanner(w http.ResponseWriter, r *http.Request) {
	if !h.requireCSRF(w, r) {
		return
	}
	h.scanner.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func decodeNodeRequest(w http.ResponseWriter, r *http.Request) (nodeRequest, bool) {
	var req nodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return req, false
	}
	if req.IndexPath == nil {
		req.IndexPath = []int{}
	}
	return req, true
}
