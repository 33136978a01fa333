package store

import (
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/crmdesk/internal/model"
)

func createTestSubscription(t *testing.T, us *UserStore, ss *SubscriptionStore) *model.Subscription {
	t.Helper()
	u, err := us.Create("alice@example.com", "Alice", "", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub, err := ss.Create(u.ID, "professional", start, start.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

func TestSubscriptionCreate(t *testing.T) {
	us, ss := setupUserTestDB(t)

	sub := createTestSubscription(t, us, ss)
	if sub.ID == "" {
		t.Error("expected non-empty ID")
	}
	if sub.Status != model.SubscriptionActive {
		t.Errorf("status = %q, want active", sub.Status)
	}
	if sub.StripeSubscriptionID != nil {
		t.Error("expected nil stripe subscription id")
	}
	if sub.CancelAtPeriodEnd {
		t.Error("expected cancel_at_period_end false")
	}
}

func TestSubscriptionCreateRejectsInvertedPeriod(t *testing.T) {
	us, ss := setupUserTestDB(t)

	u, _ := us.Create("alice@example.com", "Alice", "", "")
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := ss.Create(u.ID, "starter", start, start)
	if !errors.Is(err, model.ErrInvalidPeriod) {
		t.Fatalf("err = %v, want ErrInvalidPeriod", err)
	}
}

func TestSubscriptionOnePerUser(t *testing.T) {
	us, ss := setupUserTestDB(t)

	sub := createTestSubscription(t, us, ss)
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	if _, err := ss.Create(sub.UserID, "starter", start, start.AddDate(0, 1, 0)); err == nil {
		t.Fatal("expected error for second subscription")
	}
}

func TestSubscriptionGetByUserID(t *testing.T) {
	us, ss := setupUserTestDB(t)

	sub := createTestSubscription(t, us, ss)
	got, err := ss.GetByUserID(sub.UserID)
	if err != nil {
		t.Fatalf("get by user: %v", err)
	}
	if got == nil || got.ID != sub.ID {
		t.Fatalf("got %+v, want %s", got, sub.ID)
	}

	missing, err := ss.GetByUserID("nobody")
	if err != nil {
		t.Fatalf("get by user: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown user")
	}
}

func TestSubscriptionStripeID(t *testing.T) {
	us, ss := setupUserTestDB(t)

	sub := createTestSubscription(t, us, ss)
	if err := ss.UpdateStripeID(sub.ID, "sub_123"); err != nil {
		t.Fatalf("update stripe id: %v", err)
	}
	got, err := ss.GetByStripeID("sub_123")
	if err != nil {
		t.Fatalf("get by stripe id: %v", err)
	}
	if got == nil || got.ID != sub.ID {
		t.Fatalf("got %+v, want %s", got, sub.ID)
	}
	if got.StripeSubscriptionID == nil || *got.StripeSubscriptionID != "sub_123" {
		t.Errorf("stripe id = %v, want sub_123", got.StripeSubscriptionID)
	}
}

func TestSubscriptionUpdates(t *testing.T) {
	us, ss := setupUserTestDB(t)

	sub := createTestSubscription(t, us, ss)
	if err := ss.UpdateStatus(sub.ID, model.SubscriptionPastDue); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := ss.UpdatePlan(sub.ID, "business"); err != nil {
		t.Fatalf("update plan: %v", err)
	}
	if err := ss.SetCancelAtPeriodEnd(sub.ID, true); err != nil {
		t.Fatalf("set cancel: %v", err)
	}

	got, _ := ss.GetByID(sub.ID)
	if got.Status != model.SubscriptionPastDue {
		t.Errorf("status = %q, want past_due", got.Status)
	}
	if got.PlanID != "business" {
		t.Errorf("plan = %q, want business", got.PlanID)
	}
	if !got.CancelAtPeriodEnd {
		t.Error("expected cancel_at_period_end true")
	}
}

func TestSubscriptionUpdatePeriodValidates(t *testing.T) {
	us, ss := setupUserTestDB(t)

	sub := createTestSubscription(t, us, ss)
	end := sub.CurrentPeriodStart.Add(-time.Hour)
	if err := ss.UpdatePeriod(sub.ID, sub.CurrentPeriodStart, end); !errors.Is(err, model.ErrInvalidPeriod) {
		t.Fatalf("err = %v, want ErrInvalidPeriod", err)
	}
}

func TestSubscriptionExtend(t *testing.T) {
	us, ss := setupUserTestDB(t)

	sub := createTestSubscription(t, us, ss)
	_ = ss.UpdateStatus(sub.ID, model.SubscriptionExpired)

	got, err := ss.Extend(sub.ID, 30)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	want := sub.CurrentPeriodEnd.AddDate(0, 0, 30)
	if !got.CurrentPeriodEnd.Equal(want) {
		t.Errorf("period end = %v, want %v", got.CurrentPeriodEnd, want)
	}
	if got.Status != model.SubscriptionActive {
		t.Errorf("status = %q, want active", got.Status)
	}

	if _, err := ss.Extend("missing", 30); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSubscriptionDelete(t *testing.T) {
	us, ss := setupUserTestDB(t)

	sub := createTestSubscription(t, us, ss)
	if err := ss.Delete(sub.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := ss.GetByID(sub.ID)
	if got != nil {
		t.Error("expected nil after delete")
	}
}
