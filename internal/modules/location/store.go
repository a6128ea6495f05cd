// README: Location store backed by a Redis hash for live positions and Postgres for history.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"ridesim/internal/types"
)

const (
	positionsKeyPrefix = "sim:%s:positions"
	tickKeyPrefix      = "sim:%s:tick"
	// Live keys outlive an abandoned run by a day at most.
	keyTTL = 24 * time.Hour
)

const historySchema = `
CREATE TABLE IF NOT EXISTS sim_agent_positions (
    id          BIGSERIAL PRIMARY KEY,
    run_id      TEXT        NOT NULL,
    agent_id    TEXT        NOT NULL,
    kind        TEXT        NOT NULL,
    status      TEXT        NOT NULL,
    x           INTEGER     NOT NULL,
    y           INTEGER     NOT NULL,
    tick        INTEGER     NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sim_agent_positions_run_idx ON sim_agent_positions (run_id, tick);
`

type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redis *redis.Client) *RedisStore {
	return &RedisStore{redis: redis}
}

// ReplaceLive swaps the run's position hash for positions in one pipeline,
// so agents that left the grid disappear from the mirror.
func (s *RedisStore) ReplaceLive(ctx context.Context, runID string, tick int, positions []Position) error {
	key := positionsKey(runID)
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, key)
	if len(positions) > 0 {
		fields := make([]interface{}, 0, 2*len(positions))
		for _, p := range positions {
			b, err := json.Marshal(p)
			if err != nil {
				return err
			}
			fields = append(fields, string(p.AgentID), string(b))
		}
		pipe.HSet(ctx, key, fields...)
		pipe.Expire(ctx, key, keyTTL)
	}
	pipe.Set(ctx, tickKey(runID), tick, keyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Live(ctx context.Context, runID string) (map[types.ID]Position, int, error) {
	raw, err := s.redis.HGetAll(ctx, positionsKey(runID)).Result()
	if err != nil {
		return nil, 0, err
	}
	out := make(map[types.ID]Position, len(raw))
	for id, v := range raw {
		var p Position
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, 0, fmt.Errorf("decode position %s: %w", id, err)
		}
		out[types.ID(id)] = p
	}

	tick, err := s.redis.Get(ctx, tickKey(runID)).Int()
	if err == redis.Nil {
		return out, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return out, tick, nil
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, historySchema)
	return err
}

func (s *PostgresStore) AppendSnapshots(ctx context.Context, snaps []Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	_, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"sim_agent_positions"},
		[]string{"run_id", "agent_id", "kind", "status", "x", "y", "tick", "recorded_at"},
		pgx.CopyFromSlice(len(snaps), func(i int) ([]any, error) {
			sn := snaps[i]
			p := sn.Position
			return []any{sn.RunID, string(p.AgentID), string(p.Kind), p.Status, p.Cell.X, p.Cell.Y, p.Tick, sn.RecordedAt}, nil
		}),
	)
	return err
}

func positionsKey(runID string) string {
	return fmt.Sprintf(positionsKeyPrefix, runID)
}

func tickKey(runID string) string {
	return fmt.Sprintf(tickKeyPrefix, runID)
}
