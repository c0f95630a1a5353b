package api

import (
	"net/http"

	"panelgauge/internal/domain/types"
)

// StatsProvider exposes a point-in-time snapshot of pipeline state.
type StatsProvider interface {
	GetStats() types.StatsRow
}

// StatsHandler serves the pipeline snapshot.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats())
}
