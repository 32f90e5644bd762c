package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/voxnote/voxnote/internal/store"
)

// SubscriptionsSchema is the SQL DDL for the subscriptions table consumed by
// [PostgresResolver]. The payment flow owns writes to this table; the
// resolver only reads it.
const SubscriptionsSchema = `
CREATE TABLE IF NOT EXISTS subscriptions (
    id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    user_id    TEXT NOT NULL,
    plan       TEXT NOT NULL DEFAULT 'FREE',
    status     TEXT NOT NULL DEFAULT 'active',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id, created_at DESC);
`

// PostgresResolver resolves plan tiers from the subscriptions table.
type PostgresResolver struct {
	db store.DB
}

// Compile-time interface check.
var _ Resolver = (*PostgresResolver)(nil)

// NewPostgresResolver creates a resolver reading from the given database
// connection or pool.
func NewPostgresResolver(db store.DB) *PostgresResolver {
	return &PostgresResolver{db: db}
}

// Migrate executes the [SubscriptionsSchema] DDL.
func (r *PostgresResolver) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, SubscriptionsSchema); err != nil {
		return fmt.Errorf("plan: migrate: %w", err)
	}
	return nil
}

// Resolve returns the tier of the user's newest active subscription.
// A user with no active subscription is on TierFree. Unrecognised plan
// values also resolve to TierFree rather than failing the quota check.
func (r *PostgresResolver) Resolve(ctx context.Context, userID string) (Tier, error) {
	const query = `
		SELECT plan FROM subscriptions
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1`

	var raw string
	err := r.db.QueryRow(ctx, query, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TierFree, nil
		}
		return TierFree, fmt.Errorf("plan: resolve %q: %w", userID, err)
	}

	tier := Tier(strings.ToUpper(raw))
	if !tier.IsValid() {
		return TierFree, nil
	}
	return tier, nil
}
