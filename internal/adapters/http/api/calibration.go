// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	service "panelgauge/internal/app"
	"panelgauge/internal/domain/calibrate"
	"panelgauge/internal/domain/model"
)

// calibrationRequest carries an operator-supplied ground-truth disclosure.
type calibrationRequest struct {
	Metric   string  `json:"metric"`
	Reported float64 `json:"reported"`
}

func (c calibrationRequest) validate() error {
	if strings.TrimSpace(c.Metric) == "" {
		return errors.New("missing metric")
	}
	if !model.Metric(c.Metric).Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMetric, c.Metric)
	}
	if c.Reported <= 0 {
		return errors.New("reported must be positive")
	}
	return nil
}

// calibrationResponse is the appended factor in report shape.
type calibrationResponse struct {
	Metric     string    `json:"metric"`
	Reported   float64   `json:"reported"`
	Proxy      float64   `json:"proxy"`
	Factor     float64   `json:"factor"`
	Confidence float64   `json:"confidence"`
	Cause      string    `json:"cause"`
	ComputedAt time.Time `json:"computed_at"`
}

// CalibrationHandler handles ground-truth submissions.
type CalibrationHandler struct {
	deps Dependencies
}

// NewCalibrationHandler creates a new calibration handler.
func NewCalibrationHandler(deps Dependencies) *CalibrationHandler {
	return &CalibrationHandler{deps: deps}
}

// HandlePostCalibration handles POST /calibration requests.
func (h *CalibrationHandler) HandlePostCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req calibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	factor, err := h.deps.SupplyGroundTruth(r.Context(), model.Metric(req.Metric), req.Reported)
	if err != nil {
		switch {
		case errors.Is(err, calibrate.ErrInvalidCalibrationInput):
			writeError(w, http.StatusBadRequest, "bad_request", err)
		case errors.Is(err, service.ErrNoProxy):
			writeError(w, http.StatusConflict, "no_proxy", err)
		case errors.Is(err, service.ErrNotStarted):
			writeError(w, http.StatusServiceUnavailable, "unavailable", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, calibrationResponse{
		Metric:     string(factor.Metric),
		Reported:   factor.Reported,
		Proxy:      factor.Proxy,
		Factor:     factor.Factor,
		Confidence: factor.Confidence,
		Cause:      string(factor.Cause),
		ComputedAt: factor.ComputedAt,
	})
}
