package quota_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxnote/voxnote/internal/plan"
	"github.com/voxnote/voxnote/internal/quota"
	"github.com/voxnote/voxnote/internal/store"
)

// fixedClock pins the ledger to mid-March so month boundaries are
// predictable.
var fixedNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// failingResolver always errors.
type failingResolver struct{}

func (failingResolver) Resolve(ctx context.Context, userID string) (plan.Tier, error) {
	return "", errors.New("subscriptions table unavailable")
}

// failingRecords errors on every list.
type failingRecords struct {
	store.RecordStore
}

func (failingRecords) ListByOwner(ctx context.Context, userID string, opts store.ListOptions) ([]store.Transcription, error) {
	return nil, errors.New("connection refused")
}

// seedRecord inserts a completed transcription with the given duration and
// creation time.
func seedRecord(t *testing.T, ms *store.MemStore, userID string, seconds int64, createdAt time.Time) {
	t.Helper()
	old := ms.Now
	ms.Now = func() time.Time { return createdAt }
	defer func() { ms.Now = old }()

	_, err := ms.Create(context.Background(), store.Transcription{
		UserID:          userID,
		FileName:        "meeting.wav",
		Status:          store.StatusCompleted,
		DurationSeconds: seconds,
	})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func TestGet_SumsOnlyCurrentMonth(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	seedRecord(t, ms, "u1", 600, fixedNow.AddDate(0, 0, -1))          // this month
	seedRecord(t, ms, "u1", 300, fixedNow.AddDate(0, 0, -5))          // this month
	seedRecord(t, ms, "u1", 900, time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)) // last month
	seedRecord(t, ms, "u2", 1200, fixedNow)                           // other user

	l := quota.NewLedger(ms, plan.Static(plan.TierFree), quota.WithClock(fixedClock))
	q, err := l.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.Used != 900 {
		t.Errorf("Used = %d, want 900", q.Used)
	}
	if q.Limit != quota.AllowanceFree {
		t.Errorf("Limit = %d, want %d", q.Limit, quota.AllowanceFree)
	}
	if q.Remaining != 900 {
		t.Errorf("Remaining = %d, want 900", q.Remaining)
	}
}

func TestGet_FirstOfMonthBoundaryInclusive(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	first := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	seedRecord(t, ms, "u1", 100, first)
	seedRecord(t, ms, "u1", 50, first.Add(-time.Second)) // Feb 28 23:59:59

	l := quota.NewLedger(ms, plan.Static(plan.TierFree), quota.WithClock(fixedClock))
	q, err := l.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.Used != 100 {
		t.Errorf("Used = %d, want 100 (midnight on the 1st counts, the second before does not)", q.Used)
	}
}

func TestGet_IsIdempotent(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	seedRecord(t, ms, "u1", 700, fixedNow)

	l := quota.NewLedger(ms, plan.Static(plan.TierFree), quota.WithClock(fixedClock))
	first, err := l.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for range 5 {
		q, err := l.Get(context.Background(), "u1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if q != first {
			t.Fatalf("Get not idempotent: %+v then %+v", first, q)
		}
	}
}

func TestGet_OverconsumptionClampsRemainingToZero(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	seedRecord(t, ms, "u1", quota.AllowanceFree+500, fixedNow)

	l := quota.NewLedger(ms, plan.Static(plan.TierFree), quota.WithClock(fixedClock))
	q, err := l.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", q.Remaining)
	}
}

func TestGet_ResolverFailureDegradesToFree(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	l := quota.NewLedger(ms, failingResolver{}, quota.WithClock(fixedClock))

	q, err := l.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.Plan != plan.TierFree {
		t.Errorf("Plan = %s, want FREE on resolver failure", q.Plan)
	}
	if q.Limit != quota.AllowanceFree {
		t.Errorf("Limit = %d, want free allowance", q.Limit)
	}
}

func TestCheckAdmission_FailsClosedOnRecordFetchError(t *testing.T) {
	t.Parallel()
	l := quota.NewLedger(failingRecords{}, plan.Static(plan.TierFree), quota.WithClock(fixedClock))

	_, err := l.CheckAdmission(context.Background(), "u1", 10)
	if err == nil {
		t.Fatal("expected error when usage cannot be fetched, got admission")
	}
}

func TestCheckAdmission_ExactFitAdmits(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	seedRecord(t, ms, "u1", quota.AllowanceFree-60, fixedNow)

	l := quota.NewLedger(ms, plan.Static(plan.TierFree), quota.WithClock(fixedClock))

	adm, err := l.CheckAdmission(context.Background(), "u1", 60)
	if err != nil {
		t.Fatalf("CheckAdmission: %v", err)
	}
	if !adm.Admitted {
		t.Error("requested == remaining should be admitted")
	}

	adm, err = l.CheckAdmission(context.Background(), "u1", 61)
	if err != nil {
		t.Fatalf("CheckAdmission: %v", err)
	}
	if adm.Admitted {
		t.Error("requested > remaining should be rejected")
	}
}

func TestCheckAdmission_ZeroDurationAtExhaustedQuota(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	seedRecord(t, ms, "u1", quota.AllowanceFree, fixedNow)

	l := quota.NewLedger(ms, plan.Static(plan.TierFree), quota.WithClock(fixedClock))
	adm, err := l.CheckAdmission(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("CheckAdmission: %v", err)
	}
	if !adm.Admitted {
		t.Error("zero seconds fits in zero remaining")
	}
}

func TestCheckAdmission_EnterpriseShortCircuits(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	seedRecord(t, ms, "u1", 1<<40, fixedNow) // absurd usage

	l := quota.NewLedger(ms, plan.Static(plan.TierEnterprise), quota.WithClock(fixedClock))
	adm, err := l.CheckAdmission(context.Background(), "u1", 1<<40)
	if err != nil {
		t.Fatalf("CheckAdmission: %v", err)
	}
	if !adm.Admitted {
		t.Error("unlimited plan must always admit")
	}
	if !adm.Quota.IsUnlimited() {
		t.Errorf("Quota.Limit = %d, want Unlimited sentinel", adm.Quota.Limit)
	}
	if adm.Quota.Remaining != quota.Unlimited {
		t.Errorf("Remaining = %d, want Unlimited sentinel", adm.Quota.Remaining)
	}
}

func TestAdmit_ReservationBlocksConcurrentOveradmission(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	seedRecord(t, ms, "u1", quota.AllowanceFree-1000, fixedNow) // 1000s remaining

	l := quota.NewLedger(ms, plan.Static(plan.TierFree),
		quota.WithClock(fixedClock), quota.WithReserver(quota.NewMemReserver()))

	// First submission reserves 800 of the 1000 remaining but has not yet
	// committed its row.
	first, err := l.Admit(context.Background(), "u1", 800)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !first.Admitted {
		t.Fatal("first admission should pass")
	}

	// A concurrent 800s submission passes the derived check but must be
	// blocked by the outstanding reservation.
	second, err := l.Admit(context.Background(), "u1", 800)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if second.Admitted {
		t.Error("second admission should be blocked by the reservation")
	}

	// After the first submission fails and releases, the second fits again.
	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	third, err := l.Admit(context.Background(), "u1", 800)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !third.Admitted {
		t.Error("admission should pass after the reservation is released")
	}
}

func TestAdmit_RejectedAdmissionCarriesSnapshot(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	seedRecord(t, ms, "u1", 1700, fixedNow)

	l := quota.NewLedger(ms, plan.Static(plan.TierFree), quota.WithClock(fixedClock))
	adm, err := l.Admit(context.Background(), "u1", 500)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if adm.Admitted {
		t.Fatal("expected rejection")
	}
	if adm.Quota.Used != 1700 || adm.Quota.Remaining != 100 {
		t.Errorf("snapshot = %+v, want Used 1700 Remaining 100", adm.Quota)
	}
}

func TestRelease_WithoutReservationIsNoop(t *testing.T) {
	t.Parallel()
	var adm quota.Admission
	if err := adm.Release(context.Background()); err != nil {
		t.Fatalf("Release on zero Admission: %v", err)
	}
}
