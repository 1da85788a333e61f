package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/lyallcooper/treescan/internal/services"
)

// sseKeepAlive is how often a comment line is written to idle streams
const sseKeepAlive = 30 * time.Second

// ScannerSSE handles GET /sse/scanner. It sends the current state and status
// followed by every committed change, as scanner:state and scanner:status
// events.
func (h *Handler) ScannerSSE(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before reading the snapshot so no change is missed
	updates := h.scanner.Subscribe()
	defer h.scanner.Unsubscribe(updates)

	state, status := h.scanner.Snapshot()
	h.sendEvent(w, flusher, services.Event{Name: services.EventState, State: &state})
	h.sendEvent(w, flusher, services.Event{Name: services.EventStatus, Status: &status})

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-updates:
			if !ok {
				// Scanner shut down
				return
			}
			h.sendEvent(w, flusher, ev)
		}
	}
}

func (h *Handler) sendEvent(w http.ResponseWriter, flusher http.Flusher, ev services.Event) {
	data, err := json.Marshal(ev.Payload())
	if err != nil {
		log.Printf("handlers: failed to encode %s event: %v", ev.Name, err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	flusher.Flush()
}
