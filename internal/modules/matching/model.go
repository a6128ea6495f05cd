// README: Matching results produced by one matcher pass.
package matching

import "ridesim/internal/types"

type MatchResult struct {
	RiderID  types.ID `json:"rider_id"`
	DriverID types.ID `json:"driver_id"`
	// Distance is the Manhattan distance from driver to rider at match time.
	Distance int `json:"distance"`
}
