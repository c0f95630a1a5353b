// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"panelgauge/internal/domain/model"
	"panelgauge/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	// MetricsReport returns calibrated-report rows for a day.
	MetricsReport(ctx context.Context, day model.Day) ([]types.MetricRow, error)

	// QualityReport returns the advisory report of the most recent run.
	QualityReport(ctx context.Context) (types.QualityRow, error)

	// SupplyGroundTruth records an externally reported metric value and
	// computes a new calibration factor.
	SupplyGroundTruth(ctx context.Context, metric model.Metric, reported float64) (model.CalibrationFactor, error)

	// RegisterCommunity adds a community to the draft panel.
	RegisterCommunity(ctx context.Context, m model.PanelMember) error
}

// Server wires HTTP routes for the reporting API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	reportsHandler     *ReportsHandler
	calibrationHandler *CalibrationHandler
	panelHandler       *PanelHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		reportsHandler:     NewReportsHandler(deps),
		calibrationHandler: NewCalibrationHandler(deps),
		panelHandler:       NewPanelHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	_ = ctx

	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/reports/metrics", MetricsMiddleware(s.reportsHandler.HandleMetricsReport, "reports_metrics"))
	mux.HandleFunc("/reports/quality", MetricsMiddleware(s.reportsHandler.HandleQualityReport, "reports_quality"))
	mux.HandleFunc("/calibration", MetricsMiddleware(s.calibrationHandler.HandlePostCalibration, "calibration"))
	mux.HandleFunc("/panel", MetricsMiddleware(s.panelHandler.HandlePostPanel, "panel"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
