// README: Simulation handlers for state, stats, stepping and request probability.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type SimHandler struct {
	runner SimRunner
}

func NewSimHandler(runner SimRunner) *SimHandler {
	return &SimHandler{runner: runner}
}

type statsResp struct {
	RunID             string  `json:"run_id"`
	Tick              int     `json:"tick"`
	CompletedTrips    int     `json:"completed_trips"`
	TotalWaitTime     int     `json:"total_wait_time"`
	TotalTripDuration int     `json:"total_trip_duration"`
	AvgWaitTime       float64 `json:"avg_wait_time"`
	AvgTripDuration   float64 `json:"avg_trip_duration"`
}

type requestProbReq struct {
	Prob *float64 `json:"prob"`
}

func (h *SimHandler) State(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.runner.Snapshot())
}

func (h *SimHandler) Stats(c *gin.Context) {
	snap := h.runner.Snapshot()
	st := snap.Stats
	writeJSON(c, http.StatusOK, statsResp{
		RunID:             snap.RunID,
		Tick:              snap.Tick,
		CompletedTrips:    st.CompletedTrips,
		TotalWaitTime:     st.TotalWaitTime,
		TotalTripDuration: st.TotalTripDuration,
		AvgWaitTime:       st.AvgWaitTime(),
		AvgTripDuration:   st.AvgTripDuration(),
	})
}

// Step advances the clock by ?n= ticks (default 1).
func (h *SimHandler) Step(c *gin.Context) {
	n := 1
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "n must be an integer")
			return
		}
		n = v
	}
	snap, err := h.runner.Step(c.Request.Context(), n)
	if err != nil {
		writeSimError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

func (h *SimHandler) SetRequestProb(c *gin.Context) {
	var req requestProbReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Prob == nil {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	if err := h.runner.SetRequestProb(*req.Prob); err != nil {
		writeSimError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"prob": *req.Prob})
}
