// README: Trip store backed by PostgreSQL.
package trip

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridesim/internal/types"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS sim_trips (
    id             BIGSERIAL PRIMARY KEY,
    run_id         TEXT        NOT NULL,
    rider_id       TEXT        NOT NULL,
    driver_id      TEXT        NOT NULL,
    dest_x         INTEGER     NOT NULL,
    dest_y         INTEGER     NOT NULL,
    request_tick   INTEGER     NOT NULL,
    pickup_tick    INTEGER     NOT NULL,
    dropoff_tick   INTEGER     NOT NULL,
    wait_ticks     INTEGER     NOT NULL,
    duration_ticks INTEGER     NOT NULL,
    recorded_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sim_trips_run_idx ON sim_trips (run_id, dropoff_tick);
`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, pgSchema)
	return err
}

func (s *PostgresStore) SaveBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(`
            INSERT INTO sim_trips (
                run_id, rider_id, driver_id, dest_x, dest_y,
                request_tick, pickup_tick, dropoff_tick,
                wait_ticks, duration_ticks, recorded_at
            ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			r.RunID, string(r.RiderID), string(r.DriverID), r.Destination.X, r.Destination.Y,
			r.RequestTick, r.PickupTick, r.DropoffTick,
			r.WaitTicks, r.DurationTicks, r.RecordedAt,
		)
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert %d trips: %w", len(recs), err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, runID string, limit int) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
        SELECT run_id, rider_id, driver_id, dest_x, dest_y,
               request_tick, pickup_tick, dropoff_tick,
               wait_ticks, duration_ticks, recorded_at
        FROM sim_trips
        WHERE run_id = $1
        ORDER BY dropoff_tick DESC, id DESC
        LIMIT $2`, runID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var riderID, driverID string
		if err := rows.Scan(
			&r.RunID, &riderID, &driverID, &r.Destination.X, &r.Destination.Y,
			&r.RequestTick, &r.PickupTick, &r.DropoffTick,
			&r.WaitTicks, &r.DurationTicks, &r.RecordedAt,
		); err != nil {
			return nil, err
		}
		r.RiderID = types.ID(riderID)
		r.DriverID = types.ID(driverID)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Summarize(ctx context.Context, runID string) (Summary, error) {
	sum := Summary{RunID: runID}
	row := s.db.QueryRow(ctx, `
        SELECT COUNT(*), COALESCE(AVG(wait_ticks), 0), COALESCE(AVG(duration_ticks), 0)
        FROM sim_trips
        WHERE run_id = $1`, runID,
	)
	if err := row.Scan(&sum.Trips, &sum.AvgWaitTicks, &sum.AvgDurationTicks); err != nil {
		return Summary{}, err
	}
	return sum, nil
}
