// README: Trip store backed by a local SQLite file for batch CLI runs.
package trip

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ridesim/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sim_trips (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id         TEXT    NOT NULL,
    rider_id       TEXT    NOT NULL,
    driver_id      TEXT    NOT NULL,
    dest_x         INTEGER NOT NULL,
    dest_y         INTEGER NOT NULL,
    request_tick   INTEGER NOT NULL,
    pickup_tick    INTEGER NOT NULL,
    dropoff_tick   INTEGER NOT NULL,
    wait_ticks     INTEGER NOT NULL,
    duration_ticks INTEGER NOT NULL,
    recorded_at    TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS sim_trips_run_idx ON sim_trips (run_id, dropoff_tick);
`

// SQLiteStore expects a *sql.DB opened with the modernc "sqlite" driver
// (see infra.NewSQLite).
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteStore) SaveBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO sim_trips (
            run_id, rider_id, driver_id, dest_x, dest_y,
            request_tick, pickup_tick, dropoff_tick,
            wait_ticks, duration_ticks, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			r.RunID, string(r.RiderID), string(r.DriverID), r.Destination.X, r.Destination.Y,
			r.RequestTick, r.PickupTick, r.DropoffTick,
			r.WaitTicks, r.DurationTicks, r.RecordedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert trip for rider %s: %w", r.RiderID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListRecent(ctx context.Context, runID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, rider_id, driver_id, dest_x, dest_y,
               request_tick, pickup_tick, dropoff_tick,
               wait_ticks, duration_ticks, recorded_at
        FROM sim_trips
        WHERE run_id = ?
        ORDER BY dropoff_tick DESC, id DESC
        LIMIT ?`, runID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var riderID, driverID, recordedAt string
		if err := rows.Scan(
			&r.RunID, &riderID, &driverID, &r.Destination.X, &r.Destination.Y,
			&r.RequestTick, &r.PickupTick, &r.DropoffTick,
			&r.WaitTicks, &r.DurationTicks, &recordedAt,
		); err != nil {
			return nil, err
		}
		r.RiderID = types.ID(riderID)
		r.DriverID = types.ID(driverID)
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			r.RecordedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Summarize(ctx context.Context, runID string) (Summary, error) {
	sum := Summary{RunID: runID}
	row := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*), COALESCE(AVG(wait_ticks), 0), COALESCE(AVG(duration_ticks), 0)
        FROM sim_trips
        WHERE run_id = ?`, runID,
	)
	if err := row.Scan(&sum.Trips, &sum.AvgWaitTicks, &sum.AvgDurationTicks); err != nil {
		return Summary{}, err
	}
	return sum, nil
}
