// README: Simulation options, statistics and the read-only state snapshot.
package sim

import (
	"errors"
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"ridesim/internal/modules/agent"
	"ridesim/internal/types"
)

var (
	ErrInvalidProbability = errors.New("request probability must be within [0, 1]")
	ErrInvalidDriverCount = errors.New("driver count must not be negative")
	ErrInvalidStrategy    = errors.New("unknown driver search strategy")
	ErrInvariant          = errors.New("simulation invariant violated")
)

const (
	DefaultWidth       = 100
	DefaultHeight      = 100
	DefaultPOIs        = 10
	DefaultRequestProb = 0.3

	minRandomDrivers = 3
	maxRandomDrivers = 10
)

// Options configures a Simulation. Start from DefaultOptions; the zero
// value describes an empty request stream on an invalid grid.
type Options struct {
	Width  int
	Height int
	// Drivers is the number of drivers to create; 0 draws from [3, 10).
	Drivers int
	POIs    int
	// POILocations, when non-nil, replaces random POI generation.
	POILocations []types.Cell
	RequestProb  float64
	Strategy     agent.Strategy

	// Seed feeds a PCG source when Rand is nil.
	Seed   uint64
	Rand   *rand.Rand
	Logger logrus.FieldLogger
	// RunID labels trip records and logs; a UUID is generated when empty.
	RunID string
}

func DefaultOptions() Options {
	return Options{
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		POIs:        DefaultPOIs,
		RequestProb: DefaultRequestProb,
		Strategy:    agent.StrategyRandom,
	}
}

// Stats are running aggregates in tick units.
type Stats struct {
	CompletedTrips    int `json:"completed_trips"`
	TotalWaitTime     int `json:"total_wait_time"`
	TotalTripDuration int `json:"total_trip_duration"`
}

func (s Stats) AvgWaitTime() float64 {
	if s.CompletedTrips == 0 {
		return 0
	}
	return float64(s.TotalWaitTime) / float64(s.CompletedTrips)
}

func (s Stats) AvgTripDuration() float64 {
	if s.CompletedTrips == 0 {
		return 0
	}
	return float64(s.TotalTripDuration) / float64(s.CompletedTrips)
}

// Snapshot is the renderer-facing view of one simulation at a tick boundary.
type Snapshot struct {
	RunID       string       `json:"run_id"`
	Tick        int          `json:"tick"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	POIs        []types.Cell `json:"pois"`
	Agents      []agent.View `json:"agents"`
	Stats       Stats        `json:"stats"`
	RequestProb float64      `json:"request_prob"`
}

// Drivers returns the driver views in collection order.
func (s Snapshot) Drivers() []agent.View { return s.filter(agent.KindDriver) }

// Riders returns the rider views in collection order.
func (s Snapshot) Riders() []agent.View { return s.filter(agent.KindRider) }

func (s Snapshot) filter(k agent.Kind) []agent.View {
	var out []agent.View
	for _, v := range s.Agents {
		if v.Kind == k {
			out = append(out, v)
		}
	}
	return out
}
