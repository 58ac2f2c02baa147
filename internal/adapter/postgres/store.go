// Package postgres persists normalized batches. Each flush is one
// transaction: trip upserts first so the breadcrumb foreign key holds, then
// a bulk COPY of the breadcrumb rows.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/whimsydata/breadcrumb-etl/internal/domain"
)

// ErrMissingTripID marks a batch that reached the store with a row lacking
// a trip id. The batch is rejected before any statement runs.
var ErrMissingTripID = errors.New("batch contains a row without a trip id")

// StorageError wraps a database failure during a batch write. The
// transaction has been rolled back and nothing from the batch persisted.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

const schema = `
CREATE TABLE IF NOT EXISTS trip (
	trip_id     BIGINT PRIMARY KEY,
	route_id    INTEGER,
	vehicle_id  BIGINT,
	service_key TEXT,
	direction   TEXT
);

CREATE TABLE IF NOT EXISTS breadcrumb (
	tstamp    TIMESTAMP,
	latitude  DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	speed     DOUBLE PRECISION,
	trip_id   BIGINT REFERENCES trip(trip_id)
);
`

const upsertTrip = `
INSERT INTO trip (trip_id, route_id, vehicle_id, service_key, direction)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (trip_id) DO NOTHING
`

var breadcrumbColumns = []string{"tstamp", "latitude", "longitude", "speed", "trip_id"}

// Store writes batches through a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects the pool and verifies the database is reachable.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// EnsureSchema creates the trip and breadcrumb tables when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return &StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

// SaveBatch writes trips and breadcrumb rows in a single transaction.
// Either everything commits or the transaction rolls back and the error is
// surfaced as a StorageError.
func (s *Store) SaveBatch(ctx context.Context, trips []domain.Trip, rows []domain.NormalizedBreadcrumb) error {
	if err := checkIntegrity(trips, rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &StorageError{Op: "begin", Err: err}
	}
	defer tx.Rollback(ctx)

	if err := upsertTrips(ctx, tx, trips); err != nil {
		return &StorageError{Op: "upsert trips", Err: err}
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"breadcrumb"},
		breadcrumbColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.Timestamp, r.Latitude, r.Longitude, r.Speed, r.TripID}, nil
		}),
	)
	if err != nil {
		return &StorageError{Op: "copy breadcrumbs", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &StorageError{Op: "commit", Err: err}
	}
	s.logger.Debug("batch committed", "rows", copied, "trips", len(trips))
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func upsertTrips(ctx context.Context, tx pgx.Tx, trips []domain.Trip) error {
	batch := &pgx.Batch{}
	for _, t := range trips {
		batch.Queue(upsertTrip, t.TripID, t.RouteID, t.VehicleID, string(t.ServiceKey), t.Direction)
	}
	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range trips {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

// checkIntegrity rejects a batch whose rows or trips carry a zero trip id
// before any statement runs.
func checkIntegrity(trips []domain.Trip, rows []domain.NormalizedBreadcrumb) error {
	for i, t := range trips {
		if t.TripID == 0 {
			return fmt.Errorf("trip %d: %w", i, ErrMissingTripID)
		}
	}
	for i, r := range rows {
		if r.TripID == 0 {
			return fmt.Errorf("row %d: %w", i, ErrMissingTripID)
		}
	}
	return nil
}
