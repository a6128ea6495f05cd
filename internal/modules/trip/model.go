// README: Completed trip record and per-run summary.
package trip

import (
	"time"

	"ridesim/internal/types"
)

// Record is one completed trip as observed by the simulation clock.
type Record struct {
	RunID         string     `json:"run_id"`
	RiderID       types.ID   `json:"rider_id"`
	DriverID      types.ID   `json:"driver_id"`
	Destination   types.Cell `json:"destination"`
	RequestTick   int        `json:"request_tick"`
	PickupTick    int        `json:"pickup_tick"`
	DropoffTick   int        `json:"dropoff_tick"`
	WaitTicks     int        `json:"wait_ticks"`
	DurationTicks int        `json:"duration_ticks"`
	RecordedAt    time.Time  `json:"recorded_at"`
}

type Summary struct {
	RunID            string  `json:"run_id"`
	Trips            int     `json:"trips"`
	AvgWaitTicks     float64 `json:"avg_wait_ticks"`
	AvgDurationTicks float64 `json:"avg_duration_ticks"`
}
