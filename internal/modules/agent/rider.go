// README: Rider agent; a passive state machine driven by the matcher and its driver.
package agent

import (
	"fmt"

	"ridesim/internal/modules/grid"
	"ridesim/internal/types"
)

type Rider struct {
	ID          types.ID
	Destination types.Cell
	Status      RiderStatus
	// RequestTime and PickupTime are ticks; nil until the event happens.
	RequestTime *int
	PickupTime  *int
	WaitTime    int

	placement grid.Placement
}

func NewRider(id types.ID, destination types.Cell) *Rider {
	return &Rider{ID: id, Destination: destination, Status: RiderWaitingForRequest}
}

// Request marks the rider as requesting a trip at tick. A rider requests
// at most once.
func (r *Rider) Request(tick int) error {
	if err := r.transition(RiderRequesting); err != nil {
		return err
	}
	r.RequestTime = &tick
	return nil
}

func (r *Rider) transition(to RiderStatus) error {
	if !CanRiderTransition(r.Status, to) {
		return fmt.Errorf("%w: rider %s %s -> %s", ErrInvalidTransition, r.ID, r.Status, to)
	}
	r.Status = to
	return nil
}

func (r *Rider) Placement() *grid.Placement { return &r.placement }
func (r *Rider) AgentID() types.ID          { return r.ID }
func (r *Rider) Kind() Kind                 { return KindRider }

// Pos returns the rider's cell and whether it is placed.
func (r *Rider) Pos() (types.Cell, bool) { return r.placement.Cell() }

// Advance counts a tick of waiting while the rider has not been picked up.
func (r *Rider) Advance(_ World) {
	if r.Status == RiderRequesting || r.Status == RiderAssigned {
		r.WaitTime++
	}
}

func (r *Rider) View() View {
	dest := r.Destination
	return View{
		ID:       r.ID,
		Kind:     KindRider,
		Position: cellPtr(r.Pos()),
		Status:   string(r.Status),
		Target:   &dest,
	}
}
