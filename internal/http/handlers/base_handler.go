// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridesim/internal/modules/location"
	"ridesim/internal/modules/trip"
	"ridesim/internal/service"
	"ridesim/internal/sim"
)

// SimRunner is the slice of service.Runner the handlers use.
type SimRunner interface {
	RunID() string
	Snapshot() sim.Snapshot
	Stats() sim.Stats
	Step(ctx context.Context, n int) (sim.Snapshot, error)
	SetRequestProb(p float64) error
	Subscribe(buffer int) (<-chan sim.Snapshot, func())
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeSimError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sim.ErrInvalidProbability), errors.Is(err, service.ErrInvalidSteps), errors.Is(err, trip.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, trip.ErrNoStore), errors.Is(err, location.ErrNoLiveStore):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, sim.ErrInvariant):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusServiceUnavailable, "request cancelled")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
