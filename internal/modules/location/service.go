// README: Location service mirrors simulation positions live and samples them into history.
package location

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"ridesim/internal/sim"
	"ridesim/internal/types"
)

var ErrNoLiveStore = errors.New("live position store not configured")

type LiveStore interface {
	ReplaceLive(ctx context.Context, runID string, tick int, positions []Position) error
	Live(ctx context.Context, runID string) (map[types.ID]Position, int, error)
}

type HistoryStore interface {
	AppendSnapshots(ctx context.Context, snaps []Snapshot) error
}

// Service accepts nil stores; the corresponding half is then skipped.
type Service struct {
	live          LiveStore
	history       HistoryStore
	snapshotEvery int
	now           func() time.Time
}

// NewService samples history every snapshotEvery ticks; values below 1
// disable history.
func NewService(live LiveStore, history HistoryStore, snapshotEvery int) *Service {
	return &Service{live: live, history: history, snapshotEvery: snapshotEvery, now: time.Now}
}

// Positions flattens the placed agents of a snapshot.
func Positions(snap sim.Snapshot) []Position {
	out := make([]Position, 0, len(snap.Agents))
	for _, v := range snap.Agents {
		if v.Position == nil {
			continue
		}
		out = append(out, Position{
			AgentID: v.ID,
			Kind:    v.Kind,
			Status:  v.Status,
			Cell:    *v.Position,
			Tick:    snap.Tick,
		})
	}
	return out
}

// Publish mirrors snap to the live store and, on sampled ticks, appends it
// to history. Both halves are attempted; errors are joined.
func (s *Service) Publish(ctx context.Context, snap sim.Snapshot) error {
	positions := Positions(snap)

	var errs []error
	if s.live != nil {
		if err := s.live.ReplaceLive(ctx, snap.RunID, snap.Tick, positions); err != nil {
			errs = append(errs, err)
		}
	}
	if s.history != nil && s.snapshotEvery > 0 && snap.Tick%s.snapshotEvery == 0 {
		now := s.now().UTC()
		rows := make([]Snapshot, len(positions))
		for i, p := range positions {
			rows[i] = Snapshot{RunID: snap.RunID, Position: p, RecordedAt: now}
		}
		if err := s.history.AppendSnapshots(ctx, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Live returns the mirrored positions of runID ordered by agent ID, and the
// tick they were taken at.
func (s *Service) Live(ctx context.Context, runID string) ([]Position, int, error) {
	if s == nil || s.live == nil {
		return nil, 0, ErrNoLiveStore
	}
	byID, tick, err := s.live.Live(ctx, runID)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Position, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Position) int { return cmp.Compare(a.AgentID, b.AgentID) })
	return out, tick, nil
}
