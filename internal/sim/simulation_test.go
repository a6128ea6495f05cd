// README: Simulation clock tests (scenarios, lifecycle statistics, spawning, determinism).
package sim

import (
	"errors"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"ridesim/internal/modules/agent"
	"ridesim/internal/modules/trip"
	"ridesim/internal/types"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func cell(x, y int) types.Cell { return types.Cell{X: x, Y: y} }

// newEmptySim returns a simulation without POIs or agents so tests can
// place everything by hand.
func newEmptySim(t *testing.T, w, h int) (*Simulation, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s, err := New(Options{
		Width:        w,
		Height:       h,
		Drivers:      1,
		POILocations: []types.Cell{},
		Seed:         7,
		Logger:       logger,
		RunID:        "test-run",
	})
	if err != nil {
		t.Fatalf("new simulation: %v", err)
	}
	for _, a := range s.Agents() {
		s.grid.Remove(a)
	}
	s.agents = nil
	hook.Reset()
	return s, hook
}

func addDriver(t *testing.T, s *Simulation, id string, c types.Cell) *agent.Driver {
	t.Helper()
	d := agent.NewDriver(types.ID(id), agent.NewVehicle(types.ID("v-"+id)), agent.StrategyRandom)
	if err := s.AddDriver(d, c); err != nil {
		t.Fatalf("add driver: %v", err)
	}
	return d
}

func addRequestingRider(t *testing.T, s *Simulation, id string, at, dest types.Cell) *agent.Rider {
	t.Helper()
	r := agent.NewRider(types.ID(id), dest)
	if err := s.AddRider(r, at); err != nil {
		t.Fatalf("add rider: %v", err)
	}
	if err := r.Request(s.Tick()); err != nil {
		t.Fatalf("request: %v", err)
	}
	return r
}

func containsCell(list []types.Cell, c types.Cell) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func posOf(t *testing.T, a agent.Agent) types.Cell {
	t.Helper()
	c, ok := a.Placement().Cell()
	if !ok {
		t.Fatalf("%s is not placed", a.AgentID())
	}
	return c
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name string
		opts func(o *Options)
		want error
	}{
		{"zero width", func(o *Options) { o.Width = 0 }, nil},
		{"negative height", func(o *Options) { o.Height = -1 }, nil},
		{"probability above one", func(o *Options) { o.RequestProb = 1.5 }, ErrInvalidProbability},
		{"negative probability", func(o *Options) { o.RequestProb = -0.1 }, ErrInvalidProbability},
		{"negative drivers", func(o *Options) { o.Drivers = -2 }, ErrInvalidDriverCount},
		{"unknown strategy", func(o *Options) { o.Strategy = "teleport" }, ErrInvalidStrategy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.opts(&opts)
			_, err := New(opts)
			if err == nil {
				t.Fatal("expected construction error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNew_DefaultDriverCountInRange(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		opts := DefaultOptions()
		opts.Seed = seed
		logger, _ := test.NewNullLogger()
		opts.Logger = logger
		s, err := New(opts)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		n := len(s.Snapshot().Drivers())
		if n < 3 || n >= 10 {
			t.Fatalf("seed %d: expected driver count in [3,10), got %d", seed, n)
		}
	}
}

func TestNew_DriversStartOnPOIs(t *testing.T) {
	pois := []types.Cell{cell(1, 1), cell(4, 6)}
	s, err := New(Options{Width: 8, Height: 8, Drivers: 6, POILocations: pois, Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range s.Snapshot().Drivers() {
		if v.Position == nil || (*v.Position != pois[0] && *v.Position != pois[1]) {
			t.Fatalf("driver %s should start on a POI, got %v", v.ID, v.Position)
		}
	}
	if got := len(s.Snapshot().Drivers()); got != 6 {
		t.Fatalf("expected 6 drivers, got %d", got)
	}
}

func TestNew_UnplaceableDriversAreNotCreated(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s, err := New(Options{Width: 1, Height: 1, Drivers: 3, POILocations: []types.Cell{}, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(s.Agents()); got != 1 {
		t.Fatalf("only one driver fits a 1x1 grid without POIs, got %d", got)
	}
	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	if warnings != 2 {
		t.Fatalf("expected 2 placement warnings, got %d", warnings)
	}
}

func TestNew_GeneratesRunID(t *testing.T) {
	s, err := New(Options{Width: 5, Height: 5, Drivers: 1})
	if err != nil {
		t.Fatal(err)
	}
	if s.RunID() == "" {
		t.Fatal("expected generated run id")
	}
}

// ---------------------------------------------------------------------------
// Matching through the clock
// ---------------------------------------------------------------------------

func TestConcreteScenario(t *testing.T) {
	s, _ := newEmptySim(t, 10, 10)
	d := addDriver(t, s, "d1", cell(0, 0))
	r := addRequestingRider(t, s, "r1", cell(0, 2), cell(5, 5))

	s.MatchRiders()

	if r.Status != agent.RiderAssigned {
		t.Fatalf("expected rider assigned, got %s", r.Status)
	}
	if d.Status != agent.DriverPickingUp || d.Target == nil || *d.Target != cell(0, 2) {
		t.Fatalf("expected picking_up toward (0,2), got %s %v", d.Status, d.Target)
	}

	d.Advance(s)
	d.Advance(s)

	if got := posOf(t, d); got != cell(0, 2) {
		t.Fatalf("expected driver at (0,2), got %s", got)
	}
	if d.Status != agent.DriverOnTrip || r.Status != agent.RiderInTransit {
		t.Fatalf("expected on_trip/in_transit, got %s/%s", d.Status, r.Status)
	}
	if *d.Target != cell(5, 5) {
		t.Fatalf("expected target (5,5), got %s", *d.Target)
	}
}

func TestMatchRiders_Idempotent(t *testing.T) {
	s, _ := newEmptySim(t, 10, 10)
	addDriver(t, s, "d1", cell(0, 0))
	addDriver(t, s, "d2", cell(9, 9))
	addRequestingRider(t, s, "r1", cell(1, 1), cell(5, 5))

	if got := s.MatchRiders(); len(got) != 1 {
		t.Fatalf("expected 1 match, got %+v", got)
	}
	if got := s.MatchRiders(); len(got) != 0 {
		t.Fatalf("second call must not assign again, got %+v", got)
	}
}

func TestMatchRiders_NearestWins(t *testing.T) {
	s, _ := newEmptySim(t, 10, 10)
	far := addDriver(t, s, "far", cell(9, 0))
	near := addDriver(t, s, "near", cell(2, 3))
	r := addRequestingRider(t, s, "r1", cell(2, 2), cell(5, 5))

	s.MatchRiders()

	if near.AssignedRider != r || far.Status != agent.DriverIdle {
		t.Fatalf("expected near driver matched, got near=%s far=%s", near.Status, far.Status)
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestRoundTripLifecycle(t *testing.T) {
	s, _ := newEmptySim(t, 10, 10)
	d := addDriver(t, s, "d1", cell(0, 0))
	r := addRequestingRider(t, s, "r1", cell(3, 0), cell(3, 4))

	// d1 = 3: pickup happens on the third tick.
	for i := 0; i < 3; i++ {
		s.Step()
	}
	if d.Status != agent.DriverOnTrip || r.Status != agent.RiderInTransit {
		t.Fatalf("expected pickup after 3 ticks, got %s/%s", d.Status, r.Status)
	}
	if *r.PickupTime != 2 {
		t.Fatalf("expected pickup tick 2, got %d", *r.PickupTime)
	}

	// d2 = 4 more ticks to the destination.
	for i := 0; i < 3; i++ {
		s.Step()
	}
	if s.Stats().CompletedTrips != 0 {
		t.Fatal("trip completed too early")
	}
	s.Step()

	st := s.Stats()
	if st.CompletedTrips != 1 || st.TotalWaitTime != 2 || st.TotalTripDuration != 4 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if d.Status != agent.DriverIdle || d.AssignedRider != nil || d.Target != nil {
		t.Fatalf("driver should reset to idle, got %+v", d)
	}
	if got := posOf(t, d); got != cell(3, 4) {
		t.Fatalf("driver should end at destination, got %s", got)
	}
	if len(s.Snapshot().Riders()) != 0 {
		t.Fatal("arrived rider must be removed from the collection")
	}
	if _, placed := r.Pos(); placed {
		t.Fatal("arrived rider must be removed from the grid")
	}
	if st.AvgWaitTime() != 2 || st.AvgTripDuration() != 4 {
		t.Fatalf("unexpected averages %v %v", st.AvgWaitTime(), st.AvgTripDuration())
	}

	trips := s.DrainTrips()
	if len(trips) != 1 {
		t.Fatalf("expected 1 trip record, got %d", len(trips))
	}
	want := trip.Record{
		RunID:         "test-run",
		RiderID:       "r1",
		DriverID:      "d1",
		Destination:   cell(3, 4),
		RequestTick:   0,
		PickupTick:    2,
		DropoffTick:   6,
		WaitTicks:     2,
		DurationTicks: 4,
	}
	if trips[0] != want {
		t.Fatalf("trip record mismatch:\n got %+v\nwant %+v", trips[0], want)
	}
	if len(s.DrainTrips()) != 0 {
		t.Fatal("drain should empty the queue")
	}
}

func TestRetireOutsidePassCompactsImmediately(t *testing.T) {
	s, _ := newEmptySim(t, 10, 10)
	d := addDriver(t, s, "d1", cell(0, 0))
	r := addRequestingRider(t, s, "r1", cell(0, 0), cell(0, 1))

	s.MatchRiders()
	d.Advance(s) // pickup in place
	d.Advance(s) // drop-off at (0,1)

	if len(s.Agents()) != 1 {
		t.Fatalf("expected only the driver to remain, got %d agents", len(s.Agents()))
	}
	if r.Status != agent.RiderArrived {
		t.Fatalf("expected arrived, got %s", r.Status)
	}
}

func TestStatsAveragesWithoutTrips(t *testing.T) {
	var st Stats
	if st.AvgWaitTime() != 0 || st.AvgTripDuration() != 0 {
		t.Fatal("averages must be zero without completed trips")
	}
}

// ---------------------------------------------------------------------------
// Spawning
// ---------------------------------------------------------------------------

func TestStep_SpawnsRiderBetweenDistinctPOIs(t *testing.T) {
	pois := []types.Cell{cell(0, 0), cell(9, 9), cell(4, 5)}
	s, err := New(Options{Width: 10, Height: 10, Drivers: 1, POILocations: pois, RequestProb: 1, Seed: 11})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		before := map[types.ID]bool{}
		for _, v := range s.Snapshot().Riders() {
			before[v.ID] = true
		}
		tick := s.Tick()
		s.Step()

		spawned := 0
		for _, a := range s.Agents() {
			r, ok := a.(*agent.Rider)
			if !ok || before[r.ID] {
				continue
			}
			spawned++
			if *r.RequestTime != tick {
				t.Fatalf("expected request tick %d, got %d", tick, *r.RequestTime)
			}
			if !containsCell(pois, r.Destination) {
				t.Fatalf("destination %s is not a POI", r.Destination)
			}
		}
		// A rider spawned this tick cannot finish in the same tick.
		if spawned != 1 {
			t.Fatalf("tick %d: expected exactly one spawn with p=1, got %d", tick, spawned)
		}
	}
}

func TestStep_SpawnStartDiffersFromDestination(t *testing.T) {
	s, err := New(Options{Width: 10, Height: 10, Drivers: 1, POILocations: []types.Cell{cell(0, 0), cell(9, 9)}, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range s.Agents() {
		s.grid.Remove(a)
	}
	s.agents = nil
	if err := s.SetRequestProb(1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		s.maybeSpawnRider()
	}
	for _, a := range s.Agents() {
		r := a.(*agent.Rider)
		if posOf(t, r) == r.Destination {
			t.Fatalf("rider %s spawned at its own destination", r.ID)
		}
	}
	if len(s.Agents()) != 20 {
		t.Fatalf("expected 20 riders, got %d", len(s.Agents()))
	}
}

func TestStep_NoSpawn(t *testing.T) {
	cases := []struct {
		name string
		pois []types.Cell
		prob float64
	}{
		{"probability zero", []types.Cell{cell(0, 0), cell(3, 3)}, 0},
		{"single POI", []types.Cell{cell(2, 2)}, 1},
		{"no POIs", []types.Cell{}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(Options{Width: 5, Height: 5, Drivers: 2, POILocations: tc.pois, RequestProb: tc.prob, Seed: 5})
			if err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 25; i++ {
				s.Step()
			}
			if n := len(s.Snapshot().Riders()); n != 0 {
				t.Fatalf("expected no riders, got %d", n)
			}
			if s.Tick() != 25 {
				t.Fatalf("expected tick 25, got %d", s.Tick())
			}
		})
	}
}

func TestSetRequestProb(t *testing.T) {
	s, _ := newEmptySim(t, 3, 3)
	if err := s.SetRequestProb(0.75); err != nil || s.RequestProb() != 0.75 {
		t.Fatalf("expected 0.75, got %v (%v)", s.RequestProb(), err)
	}
	for _, p := range []float64{-0.01, 1.01} {
		if err := s.SetRequestProb(p); !errors.Is(err, ErrInvalidProbability) {
			t.Fatalf("p=%v: expected ErrInvalidProbability, got %v", p, err)
		}
	}
	if s.RequestProb() != 0.75 {
		t.Fatal("rejected value must not be stored")
	}
}

// ---------------------------------------------------------------------------
// Properties over long runs
// ---------------------------------------------------------------------------

func TestLongRunKeepsInvariants(t *testing.T) {
	for _, strategy := range []agent.Strategy{agent.StrategyRandom, agent.StrategyPOI} {
		t.Run(string(strategy), func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			s, err := New(Options{
				Width: 15, Height: 12, Drivers: 6, POIs: 8,
				RequestProb: 0.6, Strategy: strategy, Seed: 42, Logger: logger,
			})
			if err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 400; i++ {
				s.Step()
				if err := s.CheckInvariants(); err != nil {
					t.Fatalf("tick %d: %v", s.Tick(), err)
				}
			}
			st := s.Stats()
			if st.CompletedTrips > 0 && (st.TotalWaitTime < 0 || st.TotalTripDuration < st.CompletedTrips) {
				t.Fatalf("implausible stats %+v", st)
			}
		})
	}
}

func TestDeterministicForSeed(t *testing.T) {
	run := func() Snapshot {
		logger, _ := test.NewNullLogger()
		s, err := New(Options{
			Width: 20, Height: 20, POIs: 6, RequestProb: 0.5,
			Strategy: agent.StrategyPOI, Seed: 99, Logger: logger, RunID: "fixed",
		})
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 150; i++ {
			s.Step()
		}
		return s.Snapshot()
	}
	a, b := run(), run()
	if !reflect.DeepEqual(a, b) {
		t.Fatal("two runs with the same seed diverged")
	}
}

func TestCheckInvariants_DetectsBrokenDriver(t *testing.T) {
	s, _ := newEmptySim(t, 5, 5)
	d := addDriver(t, s, "d1", cell(1, 1))
	d.Status = agent.DriverOnTrip

	if err := s.CheckInvariants(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}

	d.Status = agent.DriverIdle
	tgt := cell(2, 2)
	d.Target = &tgt
	if err := s.CheckInvariants(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant for idle driver with target, got %v", err)
	}
}

func TestCheckInvariants_DetectsSharedRider(t *testing.T) {
	s, _ := newEmptySim(t, 5, 5)
	d1 := addDriver(t, s, "d1", cell(0, 0))
	d2 := addDriver(t, s, "d2", cell(4, 4))
	r := addRequestingRider(t, s, "r1", cell(2, 2), cell(3, 3))
	if err := d1.Assign(r); err != nil {
		t.Fatal(err)
	}
	if err := d2.Assign(r); !errors.Is(err, agent.ErrInvalidTransition) {
		t.Fatalf("second assignment should be refused, got %v", err)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("refused assignment left the sim inconsistent: %v", err)
	}
	d2.Status = agent.DriverPickingUp
	d2.AssignedRider = r
	tgt := cell(2, 2)
	d2.Target = &tgt

	if err := s.CheckInvariants(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	s, _ := newEmptySim(t, 6, 4)
	addDriver(t, s, "d1", cell(0, 0))
	addRequestingRider(t, s, "r1", cell(5, 3), cell(1, 1))

	snap := s.Snapshot()
	if snap.Width != 6 || snap.Height != 4 || snap.RunID != "test-run" || snap.Tick != 0 {
		t.Fatalf("unexpected header %+v", snap)
	}
	if len(snap.Agents) != 2 || snap.Agents[0].ID != "d1" || snap.Agents[1].ID != "r1" {
		t.Fatalf("agents must follow collection order, got %+v", snap.Agents)
	}
	if snap.Agents[1].Status != string(agent.RiderRequesting) || *snap.Agents[1].Position != cell(5, 3) {
		t.Fatalf("unexpected rider view %+v", snap.Agents[1])
	}
}
