// README: Agent kinds, status definitions and the world contract agents advance against.
package agent

import (
	"errors"
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"ridesim/internal/modules/grid"
	"ridesim/internal/types"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnplaced          = errors.New("agent is not on the grid")
)

type Kind string

const (
	KindDriver Kind = "driver"
	KindRider  Kind = "rider"
)

type DriverStatus string

const (
	DriverIdle      DriverStatus = "idle"
	DriverPickingUp DriverStatus = "picking_up"
	DriverOnTrip    DriverStatus = "on_trip"
)

type RiderStatus string

const (
	RiderWaitingForRequest RiderStatus = "waiting_for_request"
	RiderRequesting        RiderStatus = "requesting"
	RiderAssigned          RiderStatus = "assigned"
	RiderInTransit         RiderStatus = "in_transit"
	RiderArrived           RiderStatus = "arrived"
)

// Strategy controls how an idle driver roams.
type Strategy string

const (
	StrategyRandom Strategy = "random"
	StrategyPOI    Strategy = "poi"
)

// AllowedDriverTransitions represents the driver cycle as code. The
// picking_up -> idle edge is the self-heal path for a lost assignment.
var AllowedDriverTransitions = map[DriverStatus][]DriverStatus{
	DriverIdle:      {DriverPickingUp},
	DriverPickingUp: {DriverOnTrip, DriverIdle},
	DriverOnTrip:    {DriverIdle},
}

// AllowedRiderTransitions represents the rider lifecycle as code. Every
// status write on a rider goes through it.
var AllowedRiderTransitions = map[RiderStatus][]RiderStatus{
	RiderWaitingForRequest: {RiderRequesting},
	RiderRequesting:        {RiderAssigned},
	RiderAssigned:          {RiderInTransit},
	RiderInTransit:         {RiderArrived},
}

func CanDriverTransition(from, to DriverStatus) bool {
	return contains(AllowedDriverTransitions[from], to)
}

func CanRiderTransition(from, to RiderStatus) bool {
	return contains(AllowedRiderTransitions[from], to)
}

func contains[T comparable](list []T, v T) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Vehicle is carried by a driver. Speed and capacity are informational;
// movement is always one cell per tick with a single rider.
type Vehicle struct {
	ID       types.ID `json:"id"`
	Speed    int      `json:"speed"`
	Capacity int      `json:"capacity"`
}

func NewVehicle(id types.ID) Vehicle {
	return Vehicle{ID: id, Speed: 1, Capacity: 1}
}

// World is the slice of simulation state an agent sees while advancing.
type World interface {
	Grid() *grid.Grid
	Tick() int
	Rand() *rand.Rand
	Logger() logrus.FieldLogger
	// RecordTrip adds a completed trip to the running statistics.
	RecordTrip(d *Driver, r *Rider, waitTicks, durationTicks int)
	// Retire removes an arrived rider from the grid and the live collection.
	Retire(r *Rider)
}

// Agent is the per-tick capability shared by drivers and riders.
type Agent interface {
	grid.Occupant
	AgentID() types.ID
	Kind() Kind
	Advance(w World)
	View() View
}

// View is a read-only snapshot of one agent for renderers.
type View struct {
	ID       types.ID    `json:"id"`
	Kind     Kind        `json:"kind"`
	Position *types.Cell `json:"position,omitempty"`
	Status   string      `json:"status"`
	Target   *types.Cell `json:"target,omitempty"`
}

func cellPtr(c types.Cell, ok bool) *types.Cell {
	if !ok {
		return nil
	}
	return &c
}
