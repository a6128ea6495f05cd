// README: Trip service persists completed trips drained from a running simulation.
package trip

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoStore    = errors.New("trip store not configured")
	ErrBadRequest = errors.New("bad request")
)

const maxListLimit = 500

// Repository is implemented by PostgresStore and SQLiteStore.
type Repository interface {
	EnsureSchema(ctx context.Context) error
	SaveBatch(ctx context.Context, recs []Record) error
	ListRecent(ctx context.Context, runID string, limit int) ([]Record, error)
	Summarize(ctx context.Context, runID string) (Summary, error)
}

type Service struct {
	store Repository
	now   func() time.Time
}

// NewService accepts a nil store; every call then reports ErrNoStore so
// callers can treat persistence as optional.
func NewService(store Repository) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Enabled() bool { return s != nil && s.store != nil }

// Record stamps RecordedAt where missing and writes the batch.
func (s *Service) Record(ctx context.Context, recs []Record) error {
	if !s.Enabled() {
		return ErrNoStore
	}
	if len(recs) == 0 {
		return nil
	}
	now := s.now().UTC()
	for i := range recs {
		if recs[i].RecordedAt.IsZero() {
			recs[i].RecordedAt = now
		}
	}
	return s.store.SaveBatch(ctx, recs)
}

func (s *Service) Recent(ctx context.Context, runID string, limit int) ([]Record, error) {
	if !s.Enabled() {
		return nil, ErrNoStore
	}
	if runID == "" || limit <= 0 {
		return nil, ErrBadRequest
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.store.ListRecent(ctx, runID, limit)
}

func (s *Service) Summary(ctx context.Context, runID string) (Summary, error) {
	if !s.Enabled() {
		return Summary{}, ErrNoStore
	}
	if runID == "" {
		return Summary{}, ErrBadRequest
	}
	return s.store.Summarize(ctx, runID)
}
