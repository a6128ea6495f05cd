// README: Grid occupancy model; occupants carry a Placement the grid maintains.
package grid

import (
	"errors"

	"ridesim/internal/types"
)

var (
	ErrInvalidSize     = errors.New("grid dimensions must be positive")
	ErrInvalidPOICount = errors.New("poi count must not be negative")
	ErrOutOfBounds     = errors.New("cell out of bounds")
	ErrNotPlaced       = errors.New("occupant is not placed on the grid")
	ErrDuplicatePOI    = errors.New("duplicate poi")
)

// Placement records where an occupant sits. Only the Grid writes it.
type Placement struct {
	cell   types.Cell
	placed bool
}

// Cell returns the occupant's current cell and whether it is placed at all.
func (p *Placement) Cell() (types.Cell, bool) {
	return p.cell, p.placed
}

// Occupant is anything that can be indexed by the grid. Identity is the
// interface value itself, so occupants must be pointer types.
type Occupant interface {
	Placement() *Placement
}
