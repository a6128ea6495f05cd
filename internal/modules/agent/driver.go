// README: Driver agent state machine (idle -> picking_up -> on_trip -> idle).
package agent

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"ridesim/internal/modules/grid"
	"ridesim/internal/types"
)

type Driver struct {
	ID       types.ID
	Vehicle  Vehicle
	Strategy Strategy
	Status   DriverStatus
	// AssignedRider and Target are set iff Status is not idle.
	AssignedRider *Rider
	Target        *types.Cell
	WaitingTime   int
	WorkingTime   int

	placement grid.Placement
}

func NewDriver(id types.ID, vehicle Vehicle, strategy Strategy) *Driver {
	if strategy == "" {
		strategy = StrategyRandom
	}
	return &Driver{ID: id, Vehicle: vehicle, Strategy: strategy, Status: DriverIdle}
}

func (d *Driver) Placement() *grid.Placement { return &d.placement }
func (d *Driver) AgentID() types.ID          { return d.ID }
func (d *Driver) Kind() Kind                 { return KindDriver }

// Pos returns the driver's cell and whether it is placed.
func (d *Driver) Pos() (types.Cell, bool) { return d.placement.Cell() }

// Assign hands a placed, requesting rider to an idle driver and points the
// driver at the rider's cell. Nothing changes when either side refuses.
func (d *Driver) Assign(r *Rider) error {
	if !CanDriverTransition(d.Status, DriverPickingUp) {
		return fmt.Errorf("%w: driver %s %s -> %s", ErrInvalidTransition, d.ID, d.Status, DriverPickingUp)
	}
	pickup, ok := r.Pos()
	if !ok {
		return fmt.Errorf("%w: rider %s", ErrUnplaced, r.ID)
	}
	if err := r.transition(RiderAssigned); err != nil {
		return err
	}
	d.Status = DriverPickingUp
	d.AssignedRider = r
	d.Target = &pickup
	return nil
}

func (d *Driver) Advance(w World) {
	switch d.Status {
	case DriverIdle:
		d.WaitingTime++
		d.roam(w)
	case DriverPickingUp:
		d.WorkingTime++
		if !d.hasAssignment() {
			d.selfHeal(w)
			return
		}
		d.approach(w)
		if d.atTarget() {
			d.pickUp(w)
		}
	case DriverOnTrip:
		d.WorkingTime++
		if !d.hasAssignment() {
			d.selfHeal(w)
			return
		}
		d.approach(w)
		if d.atTarget() {
			d.dropOff(w)
		}
	}
}

func (d *Driver) hasAssignment() bool {
	return d.AssignedRider != nil && d.Target != nil
}

func (d *Driver) atTarget() bool {
	pos, ok := d.Pos()
	return ok && d.Target != nil && pos == *d.Target
}

func (d *Driver) approach(w World) {
	if !d.atTarget() {
		d.moveTowards(w, *d.Target)
	}
}

// selfHeal drops a half-formed assignment and goes back to idle.
func (d *Driver) selfHeal(w World) {
	w.Logger().WithFields(logrus.Fields{
		"agent_id": d.ID,
		"status":   d.Status,
		"tick":     w.Tick(),
	}).Debug("driver lost its assignment, reverting to idle")
	d.reset()
}

func (d *Driver) reset() {
	d.Status = DriverIdle
	d.AssignedRider = nil
	d.Target = nil
}

// abandon drops an assignment the state machine refuses to advance.
func (d *Driver) abandon(w World, err error) {
	w.Logger().WithError(err).WithFields(logrus.Fields{
		"agent_id": d.ID,
		"status":   d.Status,
		"tick":     w.Tick(),
	}).Warn("driver dropping assignment")
	d.reset()
}

func (d *Driver) pickUp(w World) {
	r := d.AssignedRider
	if !CanDriverTransition(d.Status, DriverOnTrip) {
		d.abandon(w, fmt.Errorf("%w: driver %s %s -> %s", ErrInvalidTransition, d.ID, d.Status, DriverOnTrip))
		return
	}
	if err := r.transition(RiderInTransit); err != nil {
		d.abandon(w, err)
		return
	}
	dest := r.Destination
	tick := w.Tick()
	d.Status = DriverOnTrip
	d.Target = &dest
	r.PickupTime = &tick
}

func (d *Driver) dropOff(w World) {
	r := d.AssignedRider
	if !CanDriverTransition(d.Status, DriverIdle) {
		d.abandon(w, fmt.Errorf("%w: driver %s %s -> %s", ErrInvalidTransition, d.ID, d.Status, DriverIdle))
		return
	}
	if err := r.transition(RiderArrived); err != nil {
		d.abandon(w, err)
		return
	}

	tick := w.Tick()
	if r.PickupTime != nil && r.RequestTime != nil {
		w.RecordTrip(d, r, *r.PickupTime-*r.RequestTime, tick-*r.PickupTime)
	} else {
		w.Logger().WithFields(logrus.Fields{
			"agent_id": r.ID,
			"driver":   d.ID,
			"tick":     tick,
		}).Warn("rider missing time data for completed trip")
	}

	w.Retire(r)
	d.reset()
}

// roam moves an idle driver according to its search strategy.
func (d *Driver) roam(w World) {
	if d.Strategy == StrategyPOI {
		pois := w.Grid().POIs()
		if len(pois) > 0 {
			d.moveTowards(w, pois[w.Rand().IntN(len(pois))])
			return
		}
	}
	d.randomMove(w)
}

func (d *Driver) randomMove(w World) {
	pos, ok := d.Pos()
	if !ok {
		return
	}
	g := w.Grid()
	var open []types.Cell
	for _, c := range g.Neighbors8(pos) {
		if g.IsEmpty(c) {
			open = append(open, c)
		}
	}
	if len(open) == 0 {
		return
	}
	d.step(w, open[w.Rand().IntN(len(open))])
}

func (d *Driver) View() View {
	v := View{
		ID:       d.ID,
		Kind:     KindDriver,
		Position: cellPtr(d.Pos()),
		Status:   string(d.Status),
	}
	if d.Target != nil {
		t := *d.Target
		v.Target = &t
	}
	return v
}
