// README: Trip handler lists persisted trip records for the current run.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridesim/internal/modules/trip"
)

const defaultTripLimit = 50

type TripHandler struct {
	trips *trip.Service
	runID string
}

func NewTripHandler(trips *trip.Service, runID string) *TripHandler {
	return &TripHandler{trips: trips, runID: runID}
}

func (h *TripHandler) List(c *gin.Context) {
	limit := defaultTripLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = v
	}
	recs, err := h.trips.Recent(c.Request.Context(), h.runID, limit)
	if err != nil {
		writeSimError(c, err)
		return
	}
	sum, err := h.trips.Summary(c.Request.Context(), h.runID)
	if err != nil {
		writeSimError(c, err)
		return
	}
	if recs == nil {
		recs = []trip.Record{}
	}
	writeJSON(c, http.StatusOK, gin.H{"summary": sum, "trips": recs})
}
