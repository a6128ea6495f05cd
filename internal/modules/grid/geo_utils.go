// README: Pure neighborhood and stepping helpers for grid movement.
package grid

import "ridesim/internal/types"

// mooreOffsets lists the 8 neighbor offsets in a fixed dx-major order so that
// random choices over neighbors are reproducible for a given seed.
var mooreOffsets = [...]types.Cell{
	{X: -1, Y: -1}, {X: -1, Y: 0}, {X: -1, Y: 1},
	{X: 0, Y: -1}, {X: 0, Y: 1},
	{X: 1, Y: -1}, {X: 1, Y: 0}, {X: 1, Y: 1},
}

// StepToward returns the coordinate one unit closer to target along a single
// axis, or from unchanged when already aligned.
func StepToward(from, target int) int {
	switch {
	case target > from:
		return from + 1
	case target < from:
		return from - 1
	default:
		return from
	}
}
