// README: Entry point; loads config, wires sinks, runs the simulation loop and the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ridesim/internal/config"
	httptransport "ridesim/internal/http"
	"ridesim/internal/infra"
	"ridesim/internal/modules/location"
	"ridesim/internal/modules/trip"
	"ridesim/internal/service"
	"ridesim/internal/sim"
)

func main() {
	configPath := flag.String("config", os.Getenv("RIDESIM_CONFIG"), "YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logrus.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := cfg.SimOptions()
	opts.Logger = log
	s, err := sim.New(opts)
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}
	runLog := log.WithField("run_id", s.RunID())

	trips, positions, cleanup, err := wireSinks(ctx, cfg, runLog)
	defer cleanup()
	if err != nil {
		return err
	}

	runnerOpts := service.RunnerOptions{
		Interval:        cfg.Sim.TickInterval,
		CheckInvariants: cfg.Sim.CheckInvariants,
		Logger:          log,
	}
	if trips.Enabled() {
		runnerOpts.Trips = trips
	}
	if positions != nil {
		runnerOpts.Positions = positions
	}
	runner := service.NewRunner(s, runnerOpts)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Runner:     runner,
		Trips:      trips,
		Positions:  positions,
		AdminToken: cfg.HTTP.AdminToken,
		Logger:     log,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runLog.WithField("addr", cfg.HTTP.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return runner.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	st := runner.Stats()
	runLog.WithFields(logrus.Fields{
		"completed_trips":   st.CompletedTrips,
		"avg_wait_time":     st.AvgWaitTime(),
		"avg_trip_duration": st.AvgTripDuration(),
	}).Info("stopped")
	return nil
}

// wireSinks connects the optional stores. Postgres takes precedence over
// SQLite for trip records; Redis and Postgres feed the location mirror.
// The returned cleanup closes whatever was opened, also on error.
func wireSinks(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*trip.Service, *location.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var tripStore trip.Repository
	var history location.HistoryStore
	var live location.LiveStore

	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, nil, cleanup, err
		}
		closers = append(closers, pool.Close)

		pgTrips := trip.NewPostgresStore(pool)
		if err := pgTrips.EnsureSchema(ctx); err != nil {
			return nil, nil, cleanup, err
		}
		tripStore = pgTrips

		pgHistory := location.NewPostgresStore(pool)
		if err := pgHistory.EnsureSchema(ctx); err != nil {
			return nil, nil, cleanup, err
		}
		history = pgHistory
		log.Info("postgres sinks enabled")
	} else if cfg.SQLite.Path != "" {
		db, err := infra.NewSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, cleanup, err
		}
		closers = append(closers, func() { _ = db.Close() })

		store := trip.NewSQLiteStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, cleanup, err
		}
		tripStore = store
		log.WithField("path", cfg.SQLite.Path).Info("sqlite trip store enabled")
	}

	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return nil, nil, cleanup, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		live = location.NewRedisStore(rdb)
		log.WithField("addr", cfg.Redis.Addr).Info("redis position mirror enabled")
	}

	var positions *location.Service
	if live != nil || history != nil {
		positions = location.NewService(live, history, cfg.Sim.SnapshotEvery)
	}
	return trip.NewService(tripStore), positions, cleanup, nil
}
