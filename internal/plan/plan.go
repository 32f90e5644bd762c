// Package plan defines subscription plan tiers and the Resolver used to
// look up a user's current tier.
//
// Plan resolution is an external collaborator concern: the authoritative
// data lives in the hosted subscriptions table, written by the payment
// flow. Everything here is read-only.
package plan

import "context"

// Tier is a subscription plan tier.
type Tier string

const (
	TierFree       Tier = "FREE"
	TierPro        Tier = "PRO"
	TierEnterprise Tier = "ENTERPRISE"
)

// IsValid reports whether t is a recognised tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}

// Resolver looks up the plan tier for a user. Implementations must be safe
// for concurrent use.
//
// Callers treat a resolution failure as "unresolved" and fall back to
// TierFree; a resolver error must never grant a paid tier.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (Tier, error)
}

// Static is a Resolver that returns the same tier for every user. Useful in
// tests and for single-tenant deployments.
type Static Tier

// Resolve implements [Resolver].
func (s Static) Resolve(ctx context.Context, userID string) (Tier, error) {
	return Tier(s), nil
}
