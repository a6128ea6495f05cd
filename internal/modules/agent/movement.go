// README: Greedy axis-aligned movement, one cell per tick, x before y.
package agent

import (
	"github.com/sirupsen/logrus"

	"ridesim/internal/modules/grid"
	"ridesim/internal/types"
)

// moveTowards takes at most one unit step toward target. A blocked x step
// falls through to the y axis; a blocked y step leaves the driver in place.
func (d *Driver) moveTowards(w World, target types.Cell) {
	cur, ok := d.Pos()
	if !ok || cur == target {
		return
	}
	if cur.X != target.X {
		next := types.Cell{X: grid.StepToward(cur.X, target.X), Y: cur.Y}
		if d.tryStep(w, next) {
			return
		}
	}
	if cur.Y != target.Y {
		next := types.Cell{X: cur.X, Y: grid.StepToward(cur.Y, target.Y)}
		d.tryStep(w, next)
	}
}

func (d *Driver) tryStep(w World, next types.Cell) bool {
	g := w.Grid()
	if !g.InBounds(next) || !d.canEnter(g, next) {
		return false
	}
	if !d.step(w, next) {
		return false
	}
	if d.Status == DriverOnTrip && d.AssignedRider != nil {
		if err := g.Move(d.AssignedRider, next); err != nil {
			w.Logger().WithError(err).WithFields(logrus.Fields{
				"agent_id": d.AssignedRider.ID,
				"driver":   d.ID,
			}).Warn("rider could not follow driver")
		}
	}
	return true
}

// step moves the driver alone into next. A failed move is logged and
// leaves the driver where it was.
func (d *Driver) step(w World, next types.Cell) bool {
	if err := w.Grid().Move(d, next); err != nil {
		w.Logger().WithError(err).WithFields(logrus.Fields{
			"agent_id": d.ID,
			"to":       next.String(),
			"tick":     w.Tick(),
		}).Warn("driver move failed")
		return false
	}
	return true
}

// canEnter allows empty cells, or a cell whose sole occupant is the
// driver's own rider.
func (d *Driver) canEnter(g *grid.Grid, c types.Cell) bool {
	contents := g.Contents(c)
	if len(contents) == 0 {
		return true
	}
	return d.AssignedRider != nil && len(contents) == 1 && contents[0] == grid.Occupant(d.AssignedRider)
}
