// README: Location handler serves the live position mirror of the current run.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridesim/internal/modules/location"
)

type LocationHandler struct {
	positions *location.Service
	runID     string
}

func NewLocationHandler(positions *location.Service, runID string) *LocationHandler {
	return &LocationHandler{positions: positions, runID: runID}
}

type liveResp struct {
	RunID     string              `json:"run_id"`
	Tick      int                 `json:"tick"`
	Positions []location.Position `json:"positions"`
}

func (h *LocationHandler) Live(c *gin.Context) {
	positions, tick, err := h.positions.Live(c.Request.Context(), h.runID)
	if err != nil {
		writeSimError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, liveResp{RunID: h.runID, Tick: tick, Positions: positions})
}
