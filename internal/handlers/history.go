package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/treescan/internal/db"
)

const historyPageSize = 20

// RunView is a scan run as shown in the history
type RunView struct {
	ID             string           `json:"id"`
	Status         db.ScanRunStatus `json:"status"`
	Paths          []string         `json:"paths"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	Started        string           `json:"started"` // Relative, e.g. "3 hours ago"
	Duration       string           `json:"duration"`
	ItemsTotal     int64            `json:"items_total"`
	ItemsProcessed int64            `json:"items_processed"`
	ItemsFailed    int64            `json:"items_failed"`
	BytesProcessed int64            `json:"bytes_processed"`
	Bytes          string           `json:"bytes"`
	ErrorMessage   string           `json:"error_message,omitempty"`
}

// HistoryResponse is the reply of GET /api/scanner/runs
type HistoryResponse struct {
	Runs     []*RunView `json:"runs"`
	Page     int        `json:"page"`
	HasMore  bool       `json:"has_more"`
	NextPage int        `json:"next_page,omitempty"`
}

// ScanErrorView is a skipped item of a run
type ScanErrorView struct {
	Path      string    `json:"path"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// RunDetailResponse is the reply of GET /api/scanner/runs/{id}
type RunDetailResponse struct {
	Run    *RunView         `json:"run"`
	Errors []*ScanErrorView `json:"errors"`
}

// ListRuns handles GET /api/scanner/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page = n
		}
	}
	offset := (page - 1) * historyPageSize

	runs, err := h.db.ListScanRuns(historyPageSize+1, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	hasMore := len(runs) > historyPageSize
	if hasMore {
		runs = runs[:historyPageSize]
	}

	resp := HistoryResponse{
		Runs:    make([]*RunView, 0, len(runs)),
		Page:    page,
		HasMore: hasMore,
	}
	if hasMore {
		resp.NextPage = page + 1
	}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, newRunView(run))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetRun handles GET /api/scanner/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	run, err := h.db.GetScanRun(id)
	if err != nil {
		writeError(w, err)
		return
	}

	scanErrors, err := h.db.ListScanErrors(id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := RunDetailResponse{
		Run:    newRunView(run),
		Errors: make([]*ScanErrorView, 0, len(scanErrors)),
	}
	for _, e := range scanErrors {
		resp.Errors = append(resp.Errors, &ScanErrorView{Path: e.Path, Message: e.Message, CreatedAt: e.CreatedAt})
	}

	writeJSON(w, http.StatusOK, resp)
}

func newRunView(run *db.ScanRun) *RunView {
	view := &RunView{
		ID:             run.ID,
		Status:         run.Status,
		Paths:          run.Paths,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
		Started:        humanize.Time(run.StartedAt),
		ItemsTotal:     run.ItemsTotal,
		ItemsProcessed: run.ItemsProcessed,
		ItemsFailed:    run.ItemsFailed,
		BytesProcessed: run.BytesProcessed,
		Bytes:          humanize.Bytes(uint64(max(run.BytesProcessed, 0))),
	}
	if run.ErrorMessage != nil {
		view.ErrorMessage = *run.ErrorMessage
	}

	switch {
	case run.CompletedAt != nil:
		view.Duration = formatDuration(run.CompletedAt.Sub(run.StartedAt))
	case run.Status == db.ScanRunStatusRunning:
		view.Duration = "Running..."
	default:
		view.Duration = "-"
	}
	return view
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return strconv.Itoa(m) + "m " + strconv.Itoa(s) + "s"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return strconv.Itoa(h) + "h " + strconv.Itoa(m) + "m"
}
