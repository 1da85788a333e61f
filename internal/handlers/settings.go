package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// SettingRetentionDays is the settings key holding the history retention
const SettingRetentionDays = "retention_days"

// SettingsResponse is the reply of GET /api/settings
type SettingsResponse struct {
	RetentionDays   int  `json:"retention_days"`
	RetentionLocked bool `json:"retention_locked"` // Set by env var or config file
}

type settingsRequest struct {
	RetentionDays int `json:"retention_days"`
}

// Settings handles GET /api/settings
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SettingsResponse{
		RetentionDays:   h.retentionDays(),
		RetentionLocked: h.cfg.RetentionDaysFromEnv,
	})
}

// UpdateSettings handles POST /api/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if !h.requireCSRF(w, r) {
		return
	}

	if h.cfg.RetentionDaysFromEnv {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "retention is set by configuration"})
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.RetentionDays < 1 || req.RetentionDays > 365 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "retention must be between 1 and 365 days"})
		return
	}

	if err := h.db.SetSetting(SettingRetentionDays, strconv.Itoa(req.RetentionDays)); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SettingsResponse{RetentionDays: req.RetentionDays})
}

// retentionDays returns the stored retention, falling back to the config
func (h *Handler) retentionDays() int {
	return RetentionDays(h.cfg.RetentionDays, h.cfg.RetentionDaysFromEnv, h.db.GetSetting)
}

// RetentionDays resolves the effective retention: the configured value when
// it was set explicitly, otherwise a valid stored setting, otherwise the
// configured default
func RetentionDays(configured int, explicit bool, getSetting func(string) (string, error)) int {
	if explicit {
		return configured
	}
	if val, err := getSetting(SettingRetentionDays); err == nil && val != "" {
		if days, err := strconv.Atoi(val); err == nil && days >= 1 && days <= 365 {
			return days
		}
	}
	return configured
}
