// README: Simulation clock; owns the grid and agents and advances them one tick at a time.
package sim

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ridesim/internal/modules/agent"
	"ridesim/internal/modules/grid"
	"ridesim/internal/modules/matching"
	"ridesim/internal/modules/trip"
	"ridesim/internal/types"
)

// Simulation is single-threaded. Callers that share one across goroutines
// must serialise access (see service.Runner).
type Simulation struct {
	runID       string
	grid        *grid.Grid
	rng         *rand.Rand
	log         logrus.FieldLogger
	matcher     *matching.Service
	requestProb float64
	strategy    agent.Strategy

	tick   int
	nextID int
	agents []agent.Agent
	stats  Stats
	trips  []trip.Record

	// retired riders are skipped for the rest of the current pass and
	// compacted out of agents once it ends.
	advancing bool
	retired   map[*agent.Rider]struct{}
}

var _ agent.World = (*Simulation)(nil)

func New(opts Options) (*Simulation, error) {
	if opts.RequestProb < 0 || opts.RequestProb > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProbability, opts.RequestProb)
	}
	if opts.Drivers < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDriverCount, opts.Drivers)
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = agent.StrategyRandom
	}
	if strategy != agent.StrategyRandom && strategy != agent.StrategyPOI {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, strategy)
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	base := opts.Logger
	if base == nil {
		base = logrus.StandardLogger()
	}

	var g *grid.Grid
	var err error
	if opts.POILocations != nil {
		g, err = grid.NewWithPOIs(opts.Width, opts.Height, opts.POILocations)
	} else {
		g, err = grid.New(opts.Width, opts.Height, opts.POIs, rng)
	}
	if err != nil {
		return nil, fmt.Errorf("building grid: %w", err)
	}

	log := base.WithField("run_id", runID)
	s := &Simulation{
		runID:       runID,
		grid:        g,
		rng:         rng,
		log:         log,
		matcher:     matching.NewService(log),
		requestProb: opts.RequestProb,
		strategy:    strategy,
		retired:     make(map[*agent.Rider]struct{}),
	}

	n := opts.Drivers
	if n == 0 {
		n = minRandomDrivers + rng.IntN(maxRandomDrivers-minRandomDrivers)
	}
	for range n {
		s.spawnDriver()
	}
	return s, nil
}

// spawnDriver places a new driver on a random POI, or on a random empty
// cell when the grid has none. Unplaceable drivers are not created.
func (s *Simulation) spawnDriver() {
	vehicle := agent.NewVehicle(s.newID("vehicle"))
	d := agent.NewDriver(s.newID("driver"), vehicle, s.strategy)

	var start types.Cell
	if pois := s.grid.POIs(); len(pois) > 0 {
		start = pois[s.rng.IntN(len(pois))]
	} else {
		c, ok := s.grid.FindEmpty(s.rng)
		if !ok {
			s.log.WithField("agent_id", d.ID).Warn("could not place driver, no suitable start position")
			return
		}
		start = c
	}
	if err := s.grid.Place(d, start); err != nil {
		s.log.WithError(err).WithField("agent_id", d.ID).Warn("could not place driver")
		return
	}
	s.agents = append(s.agents, d)
}

func (s *Simulation) newID(prefix string) types.ID {
	s.nextID++
	return types.ID(prefix + "-" + strconv.Itoa(s.nextID))
}

// ---------------------------------------------------------------------------
// agent.World
// ---------------------------------------------------------------------------

func (s *Simulation) Grid() *grid.Grid           { return s.grid }
func (s *Simulation) Tick() int                  { return s.tick }
func (s *Simulation) Rand() *rand.Rand           { return s.rng }
func (s *Simulation) Logger() logrus.FieldLogger { return s.log }

func (s *Simulation) RecordTrip(d *agent.Driver, r *agent.Rider, waitTicks, durationTicks int) {
	s.stats.CompletedTrips++
	s.stats.TotalWaitTime += waitTicks
	s.stats.TotalTripDuration += durationTicks

	s.trips = append(s.trips, trip.Record{
		RunID:         s.runID,
		RiderID:       r.ID,
		DriverID:      d.ID,
		Destination:   r.Destination,
		RequestTick:   *r.RequestTime,
		PickupTick:    *r.PickupTime,
		DropoffTick:   s.tick,
		WaitTicks:     waitTicks,
		DurationTicks: durationTicks,
	})
}

func (s *Simulation) Retire(r *agent.Rider) {
	s.grid.Remove(r)
	s.retired[r] = struct{}{}
	if !s.advancing {
		s.compact()
	}
}

// ---------------------------------------------------------------------------
// Clock
// ---------------------------------------------------------------------------

// Step advances the simulation exactly one tick: spawn, match, advance, tick++.
func (s *Simulation) Step() {
	s.maybeSpawnRider()
	s.MatchRiders()

	s.advancing = true
	for _, a := range s.agents {
		if r, ok := a.(*agent.Rider); ok {
			if _, gone := s.retired[r]; gone {
				continue
			}
		}
		a.Advance(s)
	}
	s.advancing = false
	s.compact()

	s.tick++
}

func (s *Simulation) maybeSpawnRider() {
	pois := s.grid.POIs()
	if len(pois) < 2 || s.rng.Float64() >= s.requestProb {
		return
	}
	i := s.rng.IntN(len(pois))
	j := s.rng.IntN(len(pois) - 1)
	if j >= i {
		j++
	}
	start, dest := pois[i], pois[j]

	r := agent.NewRider(s.newID("rider"), dest)
	if err := s.grid.Place(r, start); err != nil {
		s.log.WithError(err).WithField("agent_id", r.ID).Warn("could not place rider")
		return
	}
	if err := r.Request(s.tick); err != nil {
		s.grid.Remove(r)
		s.log.WithError(err).WithField("agent_id", r.ID).Warn("could not request trip")
		return
	}
	s.agents = append(s.agents, r)
}

// MatchRiders runs the matcher over the current idle drivers and requesting
// riders, both in collection order.
func (s *Simulation) MatchRiders() []matching.MatchResult {
	var idle []*agent.Driver
	var requesting []*agent.Rider
	for _, a := range s.agents {
		switch v := a.(type) {
		case *agent.Driver:
			if v.Status == agent.DriverIdle {
				idle = append(idle, v)
			}
		case *agent.Rider:
			if v.Status == agent.RiderRequesting {
				requesting = append(requesting, v)
			}
		}
	}
	if len(idle) == 0 || len(requesting) == 0 {
		return nil
	}
	return s.matcher.Match(idle, requesting)
}

func (s *Simulation) compact() {
	if len(s.retired) == 0 {
		return
	}
	live := s.agents[:0]
	for _, a := range s.agents {
		if r, ok := a.(*agent.Rider); ok {
			if _, gone := s.retired[r]; gone {
				continue
			}
		}
		live = append(live, a)
	}
	clear(s.agents[len(live):])
	s.agents = live
	clear(s.retired)
}

// ---------------------------------------------------------------------------
// Accessors and fixtures
// ---------------------------------------------------------------------------

func (s *Simulation) RunID() string { return s.runID }

func (s *Simulation) Stats() Stats { return s.stats }

func (s *Simulation) RequestProb() float64 { return s.requestProb }

func (s *Simulation) SetRequestProb(p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidProbability, p)
	}
	s.requestProb = p
	return nil
}

// Agents returns the live agents in collection order. The slice is a copy;
// the agents are not.
func (s *Simulation) Agents() []agent.Agent {
	out := make([]agent.Agent, len(s.agents))
	copy(out, s.agents)
	return out
}

// AddDriver places d at c and appends it to the collection.
func (s *Simulation) AddDriver(d *agent.Driver, c types.Cell) error {
	if err := s.grid.Place(d, c); err != nil {
		return err
	}
	s.agents = append(s.agents, d)
	return nil
}

// AddRider places r at c and appends it to the collection. The rider's
// status is left as the caller set it.
func (s *Simulation) AddRider(r *agent.Rider, c types.Cell) error {
	if err := s.grid.Place(r, c); err != nil {
		return err
	}
	s.agents = append(s.agents, r)
	return nil
}

// DrainTrips returns the trips completed since the previous call.
func (s *Simulation) DrainTrips() []trip.Record {
	out := s.trips
	s.trips = nil
	return out
}

func (s *Simulation) Snapshot() Snapshot {
	views := make([]agent.View, len(s.agents))
	for i, a := range s.agents {
		views[i] = a.View()
	}
	return Snapshot{
		RunID:       s.runID,
		Tick:        s.tick,
		Width:       s.grid.Width(),
		Height:      s.grid.Height(),
		POIs:        s.grid.POIs(),
		Agents:      views,
		Stats:       s.stats,
		RequestProb: s.requestProb,
	}
}

// CheckInvariants verifies that every placed agent is in bounds, that each
// driver's status agrees with its assignment fields and that no rider is
// held by two drivers.
func (s *Simulation) CheckInvariants() error {
	held := make(map[*agent.Rider]types.ID)
	for _, a := range s.agents {
		if c, ok := a.Placement().Cell(); ok && !s.grid.InBounds(c) {
			return fmt.Errorf("%w: %s at %s is out of bounds", ErrInvariant, a.AgentID(), c)
		}
		d, ok := a.(*agent.Driver)
		if !ok {
			continue
		}
		assigned := d.AssignedRider != nil && d.Target != nil
		unassigned := d.AssignedRider == nil && d.Target == nil
		switch {
		case d.Status == agent.DriverIdle && !unassigned:
			return fmt.Errorf("%w: idle driver %s holds an assignment", ErrInvariant, d.ID)
		case d.Status != agent.DriverIdle && !assigned:
			return fmt.Errorf("%w: %s driver %s lacks rider or target", ErrInvariant, d.Status, d.ID)
		}
		if d.AssignedRider != nil {
			if other, dup := held[d.AssignedRider]; dup {
				return fmt.Errorf("%w: rider %s held by %s and %s", ErrInvariant, d.AssignedRider.ID, other, d.ID)
			}
			held[d.AssignedRider] = d.ID
		}
	}
	return nil
}
