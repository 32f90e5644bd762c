package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voxnote/voxnote/internal/store"
)

// Reserver atomically reserves quota seconds for an in-flight submission so
// that concurrent submissions cannot both pass admission against the same
// remaining budget.
//
// Reservations are scoped to a (user, month) pair. budget is the remaining
// allowance computed from the derived fold at admission time; Reserve must
// admit only if the user's total outstanding reservations including this
// one fit within budget.
type Reserver interface {
	Reserve(ctx context.Context, userID string, period time.Time, seconds, budget int64) (bool, error)
	Release(ctx context.Context, userID string, period time.Time, seconds int64) error
}

// ReservationsSchema is the SQL DDL for the reservation counter table used
// by [PostgresReserver].
const ReservationsSchema = `
CREATE TABLE IF NOT EXISTS quota_reservations (
    user_id  TEXT NOT NULL,
    period   DATE NOT NULL,
    reserved BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, period)
);
`

// PostgresReserver implements [Reserver] with a conditional upsert on a
// per-user monthly counter row. The condition runs inside the statement, so
// two competing reservations serialise on the row and at most one can
// exceed the budget.
type PostgresReserver struct {
	db store.DB
}

// Compile-time interface check.
var _ Reserver = (*PostgresReserver)(nil)

// NewPostgresReserver creates a reserver backed by the given database
// connection or pool.
func NewPostgresReserver(db store.DB) *PostgresReserver {
	return &PostgresReserver{db: db}
}

// Migrate executes the [ReservationsSchema] DDL.
func (r *PostgresReserver) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, ReservationsSchema); err != nil {
		return fmt.Errorf("quota: migrate reservations: %w", err)
	}
	return nil
}

// Reserve adds seconds to the user's outstanding reservations iff the total
// stays within budget. Returns false without error when the budget would be
// exceeded.
func (r *PostgresReserver) Reserve(ctx context.Context, userID string, period time.Time, seconds, budget int64) (bool, error) {
	const query = `
		INSERT INTO quota_reservations (user_id, period, reserved)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, period) DO UPDATE
		SET reserved = quota_reservations.reserved + EXCLUDED.reserved
		WHERE quota_reservations.reserved + EXCLUDED.reserved <= $4
		RETURNING reserved`

	var reserved int64
	err := r.db.QueryRow(ctx, query, userID, period, seconds, budget).Scan(&reserved)
	if err != nil {
		// No row returned means the conditional update declined: budget full.
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("quota: reserve upsert: %w", err)
	}
	return true, nil
}

// Release subtracts seconds from the user's outstanding reservations,
// flooring at zero.
func (r *PostgresReserver) Release(ctx context.Context, userID string, period time.Time, seconds int64) error {
	const query = `
		UPDATE quota_reservations
		SET reserved = GREATEST(0, reserved - $3)
		WHERE user_id = $1 AND period = $2`

	if _, err := r.db.Exec(ctx, query, userID, period, seconds); err != nil {
		return fmt.Errorf("quota: release: %w", err)
	}
	return nil
}

// MemReserver is an in-memory [Reserver] for tests and single-process use.
type MemReserver struct {
	mu       sync.Mutex
	reserved map[string]int64
}

// Compile-time interface check.
var _ Reserver = (*MemReserver)(nil)

// NewMemReserver returns an initialised [MemReserver].
func NewMemReserver() *MemReserver {
	return &MemReserver{reserved: make(map[string]int64)}
}

// Reserve implements [Reserver.Reserve].
func (r *MemReserver) Reserve(ctx context.Context, userID string, period time.Time, seconds, budget int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := reservationKey(userID, period)
	if r.reserved[key]+seconds > budget {
		return false, nil
	}
	r.reserved[key] += seconds
	return true, nil
}

// Release implements [Reserver.Release].
func (r *MemReserver) Release(ctx context.Context, userID string, period time.Time, seconds int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := reservationKey(userID, period)
	r.reserved[key] = max(0, r.reserved[key]-seconds)
	return nil
}

func reservationKey(userID string, period time.Time) string {
	return userID + "/" + period.Format("2006-01")
}
