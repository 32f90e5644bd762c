// Package billing exposes the read-only billing history of a user. The
// payment flow (handled by the external payment provider's webhooks) owns
// writes; this service only lists what happened.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voxnote/voxnote/internal/store"
)

// HistorySchema is the SQL DDL for the billing_history table consumed by
// [PostgresHistory].
const HistorySchema = `
CREATE TABLE IF NOT EXISTS billing_history (
    id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    user_id     TEXT NOT NULL,
    plan        TEXT NOT NULL,
    amount_cents BIGINT NOT NULL,
    currency    TEXT NOT NULL DEFAULT 'usd',
    status      TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_billing_history_user ON billing_history(user_id, created_at DESC);
`

// Entry is one billing event (a charge, refund, or plan change).
type Entry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	Plan        string    `json:"plan"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// History lists a user's billing events, newest first.
type History interface {
	ListByOwner(ctx context.Context, userID string) ([]Entry, error)
}

// PostgresHistory implements History over the billing_history table.
type PostgresHistory struct {
	db store.DB
}

// Compile-time interface check.
var _ History = (*PostgresHistory)(nil)

// NewPostgresHistory creates a history reading from the given database
// connection or pool.
func NewPostgresHistory(db store.DB) *PostgresHistory {
	return &PostgresHistory{db: db}
}

// Migrate executes the [HistorySchema] DDL.
func (h *PostgresHistory) Migrate(ctx context.Context) error {
	if _, err := h.db.Exec(ctx, HistorySchema); err != nil {
		return fmt.Errorf("billing: migrate: %w", err)
	}
	return nil
}

// ListByOwner implements History.
func (h *PostgresHistory) ListByOwner(ctx context.Context, userID string) ([]Entry, error) {
	const query = `
		SELECT id, user_id, plan, amount_cents, currency, status, created_at
		FROM billing_history
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := h.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("billing: list %q: %w", userID, err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.UserID, &e.Plan, &e.AmountCents, &e.Currency, &e.Status, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("billing: scan rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
