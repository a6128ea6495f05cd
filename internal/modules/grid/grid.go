// README: Bounded 2D grid with a non-owning cell -> occupants index and fixed POIs.
package grid

import (
	"fmt"
	"math/rand/v2"

	"ridesim/internal/types"
)

type Grid struct {
	width  int
	height int
	pois   []types.Cell
	cells  map[types.Cell][]Occupant
}

// New builds a grid and samples poiCount uniform coordinates as POIs.
// Duplicate samples are dropped, not retried, so the POI set may come out
// smaller than requested.
func New(width, height, poiCount int, rng *rand.Rand) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if poiCount < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPOICount, poiCount)
	}
	g := newGrid(width, height)
	seen := make(map[types.Cell]bool, poiCount)
	for i := 0; i < poiCount; i++ {
		c := types.Cell{X: rng.IntN(width), Y: rng.IntN(height)}
		if seen[c] {
			continue
		}
		seen[c] = true
		g.pois = append(g.pois, c)
	}
	return g, nil
}

// NewWithPOIs builds a grid with an explicit POI list.
func NewWithPOIs(width, height int, pois []types.Cell) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	g := newGrid(width, height)
	seen := make(map[types.Cell]bool, len(pois))
	for _, c := range pois {
		if !g.InBounds(c) {
			return nil, fmt.Errorf("poi %s: %w", c, ErrOutOfBounds)
		}
		if seen[c] {
			return nil, fmt.Errorf("poi %s: %w", c, ErrDuplicatePOI)
		}
		seen[c] = true
		g.pois = append(g.pois, c)
	}
	return g, nil
}

func newGrid(width, height int) *Grid {
	return &Grid{
		width:  width,
		height: height,
		cells:  make(map[types.Cell][]Occupant),
	}
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

// POIs returns a copy of the POI list.
func (g *Grid) POIs() []types.Cell {
	out := make([]types.Cell, len(g.pois))
	copy(out, g.pois)
	return out
}

func (g *Grid) InBounds(c types.Cell) bool {
	return c.X >= 0 && c.X < g.width && c.Y >= 0 && c.Y < g.height
}

func (g *Grid) IsEmpty(c types.Cell) bool {
	return len(g.cells[c]) == 0
}

// Contents returns the occupants of c. The slice is a copy.
func (g *Grid) Contents(c types.Cell) []Occupant {
	src := g.cells[c]
	if len(src) == 0 {
		return nil
	}
	out := make([]Occupant, len(src))
	copy(out, src)
	return out
}

// Neighbors8 returns the in-bounds Moore neighborhood of c, center excluded.
func (g *Grid) Neighbors8(c types.Cell) []types.Cell {
	out := make([]types.Cell, 0, len(mooreOffsets))
	for _, off := range mooreOffsets {
		n := types.Cell{X: c.X + off.X, Y: c.Y + off.Y}
		if g.InBounds(n) {
			out = append(out, n)
		}
	}
	return out
}

// Place puts o on c. An already placed occupant is moved instead.
func (g *Grid) Place(o Occupant, c types.Cell) error {
	if !g.InBounds(c) {
		return fmt.Errorf("place at %s: %w", c, ErrOutOfBounds)
	}
	p := o.Placement()
	if p.placed {
		g.detach(o, p.cell)
	}
	g.attach(o, c)
	return nil
}

// Move relocates a placed occupant to c.
func (g *Grid) Move(o Occupant, c types.Cell) error {
	if !g.InBounds(c) {
		return fmt.Errorf("move to %s: %w", c, ErrOutOfBounds)
	}
	p := o.Placement()
	if !p.placed {
		return ErrNotPlaced
	}
	g.detach(o, p.cell)
	g.attach(o, c)
	return nil
}

// Remove takes o off the grid. Removing an unplaced occupant is a no-op.
func (g *Grid) Remove(o Occupant) {
	p := o.Placement()
	if !p.placed {
		return
	}
	g.detach(o, p.cell)
	p.placed = false
	p.cell = types.Cell{}
}

// FindEmpty picks a uniformly random empty cell.
func (g *Grid) FindEmpty(rng *rand.Rand) (types.Cell, bool) {
	empty := make([]types.Cell, 0, g.width*g.height-len(g.cells))
	for x := 0; x < g.width; x++ {
		for y := 0; y < g.height; y++ {
			c := types.Cell{X: x, Y: y}
			if g.IsEmpty(c) {
				empty = append(empty, c)
			}
		}
	}
	if len(empty) == 0 {
		return types.Cell{}, false
	}
	return empty[rng.IntN(len(empty))], true
}

func (g *Grid) attach(o Occupant, c types.Cell) {
	g.cells[c] = append(g.cells[c], o)
	p := o.Placement()
	p.cell = c
	p.placed = true
}

func (g *Grid) detach(o Occupant, c types.Cell) {
	list := g.cells[c]
	for i, other := range list {
		if other == o {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(g.cells, c)
		return
	}
	g.cells[c] = list
}
