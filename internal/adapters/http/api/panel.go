// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"panelgauge/internal/domain/model"
	"panelgauge/internal/domain/panel"
)

// panelRequest registers one community into the draft panel.
type panelRequest struct {
	Community string `json:"community"`
	Category  string `json:"category"`
}

func (p panelRequest) validate() error {
	if strings.TrimSpace(p.Community) == "" {
		return errors.New("missing community")
	}
	return nil
}

// PanelHandler handles panel registration requests.
type PanelHandler struct {
	deps Dependencies
}

// NewPanelHandler creates a new panel handler.
func NewPanelHandler(deps Dependencies) *PanelHandler {
	return &PanelHandler{deps: deps}
}

// HandlePostPanel handles POST /panel requests. The registered community
// takes effect at the next snapshotted epoch, never retroactively.
func (h *PanelHandler) HandlePostPanel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req panelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	member := model.PanelMember{Community: req.Community, Category: req.Category}
	if err := h.deps.RegisterCommunity(r.Context(), member); err != nil {
		if errors.Is(err, panel.ErrDuplicateMember) {
			writeError(w, http.StatusConflict, "duplicate", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered", "community": req.Community})
}
