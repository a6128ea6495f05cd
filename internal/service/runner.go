// README: Runner owns one simulation, serialises access to it and forwards each tick to the sinks.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ridesim/internal/modules/trip"
	"ridesim/internal/sim"
)

// MaxStepsPerCall bounds a single Step request.
const MaxStepsPerCall = 10000

var ErrInvalidSteps = fmt.Errorf("steps must be between 1 and %d", MaxStepsPerCall)

type TripRecorder interface {
	Record(ctx context.Context, recs []trip.Record) error
}

type PositionPublisher interface {
	Publish(ctx context.Context, snap sim.Snapshot) error
}

type RunnerOptions struct {
	// Interval between ticks for Run; zero disables the ticker loop.
	Interval time.Duration
	// Trips and Positions are optional sinks called after every tick.
	Trips     TripRecorder
	Positions PositionPublisher
	// CheckInvariants verifies the engine after every tick.
	CheckInvariants bool
	Logger          logrus.FieldLogger
}

type Runner struct {
	mu  sync.Mutex
	sim *sim.Simulation

	opts RunnerOptions
	log  logrus.FieldLogger

	subMu sync.Mutex
	subs  map[chan sim.Snapshot]struct{}
}

func NewRunner(s *sim.Simulation, opts RunnerOptions) *Runner {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		sim:  s,
		opts: opts,
		log:  log.WithField("run_id", s.RunID()),
		subs: make(map[chan sim.Snapshot]struct{}),
	}
}

func (r *Runner) RunID() string { return r.sim.RunID() }

// Step advances n ticks and returns the snapshot after the last one.
func (r *Runner) Step(ctx context.Context, n int) (sim.Snapshot, error) {
	if n < 1 || n > MaxStepsPerCall {
		return sim.Snapshot{}, ErrInvalidSteps
	}
	var snap sim.Snapshot
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return snap, err
		}
		var err error
		snap, err = r.tick(ctx)
		if err != nil {
			return snap, err
		}
	}
	return snap, nil
}

func (r *Runner) tick(ctx context.Context) (sim.Snapshot, error) {
	r.mu.Lock()
	r.sim.Step()
	var checkErr error
	if r.opts.CheckInvariants {
		checkErr = r.sim.CheckInvariants()
	}
	snap := r.sim.Snapshot()
	trips := r.sim.DrainTrips()
	r.mu.Unlock()

	r.flush(ctx, snap, trips)
	r.broadcast(snap)
	return snap, checkErr
}

// flush forwards one tick to the sinks. Sink failures are logged only.
func (r *Runner) flush(ctx context.Context, snap sim.Snapshot, trips []trip.Record) {
	if r.opts.Trips != nil && len(trips) > 0 {
		if err := r.opts.Trips.Record(ctx, trips); err != nil {
			r.log.WithError(err).WithField("tick", snap.Tick).Warn("record trips failed")
		}
	}
	if r.opts.Positions != nil {
		if err := r.opts.Positions.Publish(ctx, snap); err != nil {
			r.log.WithError(err).WithField("tick", snap.Tick).Warn("publish positions failed")
		}
	}
}

func (r *Runner) Snapshot() sim.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.Snapshot()
}

func (r *Runner) Stats() sim.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.Stats()
}

func (r *Runner) SetRequestProb(p float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.SetRequestProb(p)
}

// Run ticks every Interval until ctx is cancelled. Cancellation is not an
// error; a failed invariant check is.
func (r *Runner) Run(ctx context.Context) error {
	if r.opts.Interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.log.WithField("interval", r.opts.Interval).Info("simulation loop started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("simulation loop stopped")
			return nil
		case <-ticker.C:
			if _, err := r.tick(ctx); err != nil {
				if errors.Is(err, sim.ErrInvariant) {
					return err
				}
				r.log.WithError(err).Warn("tick failed")
			}
		}
	}
}

// Subscribe returns a channel receiving the snapshot of every tick and a
// cancel func. Slow subscribers miss snapshots rather than block the loop.
func (r *Runner) Subscribe(buffer int) (<-chan sim.Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan sim.Snapshot, buffer)
	r.subMu.Lock()
	r.subs[ch] = struct{}{}
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, ch)
			r.subMu.Unlock()
			close(ch)
		})
	}
}

func (r *Runner) broadcast(snap sim.Snapshot) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
