// README: API gateway; registers gin routes and delegates to the simulation runner.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ridesim/internal/http/handlers"
	"ridesim/internal/http/middleware"
	"ridesim/internal/modules/location"
	"ridesim/internal/modules/trip"
)

type ServerDeps struct {
	Runner handlers.SimRunner
	// Trips may be nil or disabled; /api/sim/trips then answers 404.
	Trips *trip.Service
	// Positions may be nil or lack a live store; /api/sim/live then answers 404.
	Positions  *location.Service
	AdminToken string
	Logger     logrus.FieldLogger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Trips == nil {
		deps.Trips = trip.NewService(nil)
	}
	if deps.Positions == nil {
		deps.Positions = location.NewService(nil, nil, 0)
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.deps.Logger), middleware.Logging(s.deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	simHandler := handlers.NewSimHandler(s.deps.Runner)
	tripHandler := handlers.NewTripHandler(s.deps.Trips, s.deps.Runner.RunID())
	locationHandler := handlers.NewLocationHandler(s.deps.Positions, s.deps.Runner.RunID())
	streamHandler := handlers.NewStreamHandler(s.deps.Runner, s.deps.Logger)

	api := r.Group("/api/sim")
	api.GET("/state", simHandler.State)
	api.GET("/stats", simHandler.Stats)
	api.GET("/trips", tripHandler.List)
	api.GET("/live", locationHandler.Live)
	api.GET("/stream", streamHandler.Stream)

	admin := api.Group("", middleware.AdminToken(s.deps.AdminToken))
	admin.POST("/step", simHandler.Step)
	admin.PUT("/request-prob", simHandler.SetRequestProb)

	return r
}
