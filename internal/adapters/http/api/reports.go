// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	service "panelgauge/internal/app"
	"panelgauge/internal/domain/model"
)

// ReportsHandler handles calibrated-metrics and quality report requests.
type ReportsHandler struct {
	deps Dependencies
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(deps Dependencies) *ReportsHandler {
	return &ReportsHandler{deps: deps}
}

// HandleMetricsReport handles GET /reports/metrics?day=YYYY-MM-DD requests.
// When day is omitted the report covers the current UTC day.
func (h *ReportsHandler) HandleMetricsReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	day := model.DayOf(time.Now())
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := model.ParseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", ErrBadRequest, err))
			return
		}
		day = parsed
	}

	rows, err := h.deps.MetricsReport(r.Context(), day)
	if err != nil {
		if errors.Is(err, service.ErrNotStarted) {
			writeError(w, http.StatusServiceUnavailable, "unavailable", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleQualityReport handles GET /reports/quality requests, returning the
// advisory report of the most recent collection run.
func (h *ReportsHandler) HandleQualityReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	row, err := h.deps.QualityReport(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoCompletedRun):
			writeError(w, http.StatusNotFound, "not_found", err)
		case errors.Is(err, service.ErrNotStarted):
			writeError(w, http.StatusServiceUnavailable, "unavailable", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, row)
}
