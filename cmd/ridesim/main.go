// README: Batch runner; advances a simulation N ticks and prints trip statistics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"ridesim/internal/config"
	"ridesim/internal/infra"
	"ridesim/internal/modules/trip"
	"ridesim/internal/service"
	"ridesim/internal/sim"
	"ridesim/internal/snapshot"
)

type flags struct {
	ConfigPath   string
	Steps        int
	Width        int
	Height       int
	Drivers      int
	POIs         int
	RequestProb  float64
	Strategy     string
	Seed         uint64
	SnapshotPath string
	ReplayPath   string
	TripsDB      string
	Check        bool
	Quiet        bool
}

func parseFlags() (flags, map[string]bool) {
	var f flags
	flag.StringVar(&f.ConfigPath, "config", os.Getenv("RIDESIM_CONFIG"), "YAML config file")
	flag.IntVar(&f.Steps, "steps", 100, "number of ticks to run")
	flag.IntVar(&f.Width, "width", 0, "grid width")
	flag.IntVar(&f.Height, "height", 0, "grid height")
	flag.IntVar(&f.Drivers, "drivers", 0, "number of drivers (0 draws from [3,10))")
	flag.IntVar(&f.POIs, "pois", 0, "number of points of interest")
	flag.Float64Var(&f.RequestProb, "prob", 0, "per-tick ride request probability")
	flag.StringVar(&f.Strategy, "strategy", "", "idle driver strategy: random or poi")
	flag.Uint64Var(&f.Seed, "seed", 0, "random seed (0 picks one)")
	flag.StringVar(&f.SnapshotPath, "snapshot", "", "write per-tick snapshots to this .jsonl.zst file")
	flag.StringVar(&f.ReplayPath, "replay", "", "print a recorded .jsonl.zst snapshot file instead of running")
	flag.StringVar(&f.TripsDB, "trips-db", "", "record completed trips into this SQLite file")
	flag.BoolVar(&f.Check, "check", false, "verify engine invariants after every tick")
	flag.BoolVar(&f.Quiet, "quiet", false, "only print final statistics")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set
}

// overlay applies explicitly passed flags on top of the loaded config.
func overlay(cfg *config.Config, f flags, set map[string]bool) {
	if set["width"] {
		cfg.Sim.Width = f.Width
	}
	if set["height"] {
		cfg.Sim.Height = f.Height
	}
	if set["drivers"] {
		cfg.Sim.Drivers = f.Drivers
	}
	if set["pois"] {
		cfg.Sim.POIs = f.POIs
	}
	if set["prob"] {
		cfg.Sim.RequestProb = f.RequestProb
	}
	if set["strategy"] {
		cfg.Sim.Strategy = f.Strategy
	}
	if set["seed"] {
		cfg.Sim.Seed = f.Seed
	}
	if set["check"] {
		cfg.Sim.CheckInvariants = f.Check
	}
	if set["trips-db"] {
		cfg.SQLite.Path = f.TripsDB
	}
}

func main() {
	f, set := parseFlags()
	if err := run(f, set, os.Stdout); err != nil {
		logrus.Fatal(err)
	}
}

// run executes one batch run, or a replay when f.ReplayPath is set, and
// writes the report to out.
func run(f flags, set map[string]bool, out io.Writer) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	overlay(&cfg, f, set)
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	if f.ReplayPath != "" {
		return replay(f.ReplayPath, f.Quiet, out, log)
	}
	if f.Steps < 1 {
		return errors.New("steps must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := cfg.SimOptions()
	opts.Logger = log
	s, err := sim.New(opts)
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}
	log.WithFields(logrus.Fields{
		"run_id":  s.RunID(),
		"seed":    opts.Seed,
		"width":   opts.Width,
		"height":  opts.Height,
		"drivers": len(s.Snapshot().Drivers()),
	}).Info("simulation created")

	runnerOpts := service.RunnerOptions{CheckInvariants: cfg.Sim.CheckInvariants, Logger: log}

	if cfg.SQLite.Path != "" {
		db, err := infra.NewSQLite(cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("open trips db: %w", err)
		}
		defer db.Close()
		store := trip.NewSQLiteStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("trips schema: %w", err)
		}
		runnerOpts.Trips = trip.NewService(store)
	}

	var snapshots *snapshot.Writer
	if f.SnapshotPath != "" {
		snapshots, err = snapshot.Create(f.SnapshotPath, snapshot.Header{RunID: s.RunID(), Width: opts.Width, Height: opts.Height})
		if err != nil {
			return fmt.Errorf("create snapshot file: %w", err)
		}
		runnerOpts.Positions = snapshotSink{w: snapshots}
	}

	runner := service.NewRunner(s, runnerOpts)
	completed := 0
	for i := 0; i < f.Steps; i++ {
		if !f.Quiet {
			fmt.Fprintf(out, "Step %d\n", i+1)
		}
		if _, err := runner.Step(ctx, 1); err != nil {
			log.WithError(err).Error("simulation stopped")
			break
		}
		completed++
	}

	if snapshots != nil {
		if err := snapshots.Close(); err != nil {
			return fmt.Errorf("close snapshot file: %w", err)
		}
		log.WithField("snapshots", snapshots.Count()).Info("snapshot file written")
	}

	printStats(out, runner.Stats(), completed == f.Steps)
	return nil
}

// replay prints a recorded snapshot file tick by tick and reports the
// statistics of its last tick.
func replay(path string, quiet bool, out io.Writer, log logrus.FieldLogger) error {
	h, snaps, err := snapshot.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot file: %w", err)
	}
	log.WithFields(logrus.Fields{
		"run_id":    h.RunID,
		"width":     h.Width,
		"height":    h.Height,
		"snapshots": len(snaps),
	}).Info("replaying snapshot file")

	if len(snaps) == 0 {
		fmt.Fprintln(out, "Snapshot file holds no ticks.")
		return nil
	}
	if !quiet {
		for _, snap := range snaps {
			fmt.Fprintf(out, "Step %d: %d drivers, %d riders, %d completed trips\n",
				snap.Tick, len(snap.Drivers()), len(snap.Riders()), snap.Stats.CompletedTrips)
		}
	}
	printStats(out, snaps[len(snaps)-1].Stats, true)
	return nil
}

func printStats(out io.Writer, st sim.Stats, finished bool) {
	if finished {
		fmt.Fprintln(out, "Simulation finished.")
	} else {
		fmt.Fprintln(out, "Simulation interrupted.")
	}
	fmt.Fprintln(out, "\n--- Simulation Statistics ---")
	fmt.Fprintf(out, "Completed Trips: %d\n", st.CompletedTrips)
	if st.CompletedTrips > 0 {
		fmt.Fprintf(out, "Average Rider Wait Time: %.2f steps\n", st.AvgWaitTime())
		fmt.Fprintf(out, "Average Trip Duration: %.2f steps\n", st.AvgTripDuration())
	} else {
		fmt.Fprintln(out, "No trips completed, so no average times to display.")
	}
}

// snapshotSink adapts a snapshot file to the runner's position sink.
type snapshotSink struct {
	w *snapshot.Writer
}

func (s snapshotSink) Publish(_ context.Context, snap sim.Snapshot) error {
	return s.w.Write(snap)
}
