// Package quota implements the monthly usage ledger and admission control
// for transcription submissions.
//
// The ledger is derived: usage is recomputed on every query as a fold over
// the caller's persisted Transcription records for the current calendar
// month. There is no separately-mutable counter to drift out of sync. The
// cost is an O(n) scan per check, acceptable at this scale.
//
// The derived read is not safe against concurrent submissions by itself —
// two submissions can both pass the check before either persists. When a
// [Reserver] is configured, [Ledger.Admit] additionally takes an atomic
// server-side reservation that closes this race.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxnote/voxnote/internal/plan"
	"github.com/voxnote/voxnote/internal/store"
)

// Monthly allowances in seconds per plan tier.
const (
	AllowanceFree int64 = 1800  // 30 minutes
	AllowancePro  int64 = 18000 // 5 hours

	// Unlimited is the sentinel limit for the ENTERPRISE tier. Any
	// comparison against it short-circuits to "admitted"; no finite
	// arithmetic is performed on it.
	Unlimited int64 = -1
)

// Allowance returns the monthly allowance in seconds for the given tier.
// Unknown tiers get the free allowance.
func Allowance(t plan.Tier) int64 {
	switch t {
	case plan.TierPro:
		return AllowancePro
	case plan.TierEnterprise:
		return Unlimited
	default:
		return AllowanceFree
	}
}

// Quota is a point-in-time snapshot of a user's monthly usage. It has no
// independent lifecycle; it is computed fresh on every query.
type Quota struct {
	Used      int64     `json:"used"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	Plan      plan.Tier `json:"plan"`
}

// IsUnlimited reports whether the quota's plan has no finite limit.
func (q Quota) IsUnlimited() bool {
	return q.Limit == Unlimited
}

// Admission is the result of an admission check, carrying the quota
// snapshot so callers can surface exact remaining/limit numbers.
type Admission struct {
	Admitted bool
	Quota    Quota

	// release undoes the reservation taken for this admission, if any.
	release func(ctx context.Context) error
}

// Release undoes the reservation taken by [Ledger.Admit]. Call it when the
// admitted submission fails before its row is committed. Safe to call when
// no reservation was taken.
func (a Admission) Release(ctx context.Context) error {
	if a.release == nil {
		return nil
	}
	return a.release(ctx)
}

// ExceededError is returned when a requested duration does not fit in the
// remaining monthly allowance.
type ExceededError struct {
	Quota     Quota
	Requested int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: requested %ds with %ds of %ds remaining (plan %s)",
		e.Requested, e.Quota.Remaining, e.Quota.Limit, e.Quota.Plan)
}

// Ledger answers "can this user consume N more seconds this month?".
type Ledger struct {
	records  store.RecordStore
	resolver plan.Resolver

	// reserver, when non-nil, backs Admit with atomic reservations.
	reserver Reserver

	// now is the wall clock; injectable for tests.
	now func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithReserver enables atomic admission reservations via r.
func WithReserver(r Reserver) Option {
	return func(l *Ledger) {
		l.reserver = r
	}
}

// WithClock overrides the wall clock used to compute the month boundary.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a Ledger folding usage over records, resolving plan
// tiers via resolver.
func NewLedger(records store.RecordStore, resolver plan.Resolver, opts ...Option) *Ledger {
	l := &Ledger{
		records:  records,
		resolver: resolver,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Get computes the user's quota snapshot for the calendar month containing
// now. Usage is the sum of DurationSeconds over the user's records created
// on or after the first of the month (local calendar, 00:00:00 inclusive).
//
// A record-fetch failure is returned as an error so callers fail closed; a
// plan-resolution failure only degrades the tier to FREE.
func (l *Ledger) Get(ctx context.Context, userID string) (Quota, error) {
	tier, err := l.resolver.Resolve(ctx, userID)
	if err != nil {
		slog.Warn("quota: plan resolution failed, defaulting to FREE",
			"user_id", userID, "err", err)
		tier = plan.TierFree
	}

	records, err := l.records.ListByOwner(ctx, userID, store.ListOptions{
		Since: firstOfMonth(l.now()),
	})
	if err != nil {
		return Quota{}, fmt.Errorf("quota: fetch usage: %w", err)
	}

	var used int64
	for _, r := range records {
		used += r.DurationSeconds
	}

	limit := Allowance(tier)
	q := Quota{Used: used, Limit: limit, Plan: tier}
	if limit == Unlimited {
		q.Remaining = Unlimited
	} else {
		q.Remaining = max(0, limit-used)
	}
	return q, nil
}

// CheckAdmission reports whether the user may consume requested more
// seconds this month. It is a pure function of [Ledger.Get]: no side
// effects, no reservation. Unlimited plans always admit.
func (l *Ledger) CheckAdmission(ctx context.Context, userID string, requested int64) (Admission, error) {
	q, err := l.Get(ctx, userID)
	if err != nil {
		return Admission{}, err
	}
	if q.IsUnlimited() {
		return Admission{Admitted: true, Quota: q}, nil
	}
	return Admission{Admitted: requested <= q.Remaining, Quota: q}, nil
}

// Admit is CheckAdmission plus, when a [Reserver] is configured, an atomic
// reservation of the requested seconds against the remaining budget. The
// returned Admission's Release must be called if the admitted submission
// later fails; on success the committed row itself covers the usage and the
// reservation is released by the caller after the commit.
//
// Without a reserver, Admit behaves exactly like CheckAdmission.
func (l *Ledger) Admit(ctx context.Context, userID string, requested int64) (Admission, error) {
	adm, err := l.CheckAdmission(ctx, userID, requested)
	if err != nil || !adm.Admitted {
		return adm, err
	}
	if l.reserver == nil || adm.Quota.IsUnlimited() {
		return adm, nil
	}

	period := firstOfMonth(l.now())
	ok, err := l.reserver.Reserve(ctx, userID, period, requested, adm.Quota.Remaining)
	if err != nil {
		return Admission{}, fmt.Errorf("quota: reserve: %w", err)
	}
	if !ok {
		adm.Admitted = false
		return adm, nil
	}

	adm.release = func(ctx context.Context) error {
		return l.reserver.Release(ctx, userID, period, requested)
	}
	return adm, nil
}

// firstOfMonth returns midnight on day 1 of the month containing t, in t's
// location.
func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
