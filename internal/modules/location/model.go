// README: Agent position records for the live mirror and the snapshot history.
package location

import (
	"time"

	"ridesim/internal/modules/agent"
	"ridesim/internal/types"
)

// Position is the latest known cell of one agent in a run.
type Position struct {
	AgentID types.ID   `json:"agent_id"`
	Kind    agent.Kind `json:"kind"`
	Status  string     `json:"status"`
	Cell    types.Cell `json:"cell"`
	Tick    int        `json:"tick"`
}

// Snapshot is one persisted history row.
type Snapshot struct {
	RunID      string
	Position   Position
	RecordedAt time.Time
}
