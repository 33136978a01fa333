package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/crmdesk/internal/model"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func sub(plan string, status model.SubscriptionStatus, end time.Time) *model.Subscription {
	return &model.Subscription{
		ID:                 "sub_" + plan,
		PlanID:             plan,
		Status:             status,
		CurrentPeriodStart: end.AddDate(0, -1, 0),
		CurrentPeriodEnd:   end,
	}
}

func daysFromNow(n int) time.Time {
	return testNow.Add(time.Duration(n) * day)
}

func TestClassifyNilSubscription(t *testing.T) {
	e := New(DefaultPolicy())

	want := Classification{
		IsActive:        false,
		IsExpired:       true,
		DaysUntilExpiry: 0,
		ShouldSuspend:   true,
		ShouldNotify:    false,
		Status:          model.SubscriptionExpired,
	}
	assert.Equal(t, want, e.Classify(nil, testNow))
	assert.Equal(t, want, e.Classify(nil, testNow.AddDate(5, 0, 0)))
}

func TestClassifyActiveHealthy(t *testing.T) {
	e := New(DefaultPolicy())

	c := e.Classify(sub("starter", model.SubscriptionActive, daysFromNow(40)), testNow)
	assert.True(t, c.IsActive)
	assert.False(t, c.IsExpired)
	assert.Equal(t, 40, c.DaysUntilExpiry)
	assert.Equal(t, 40, c.SignedDays)
	assert.False(t, c.ShouldSuspend)
	assert.False(t, c.ShouldNotify)
	assert.Equal(t, model.SubscriptionActive, c.Status)
}

func TestClassifyRoundsPartialDaysUp(t *testing.T) {
	e := New(DefaultPolicy())

	c := e.Classify(sub("starter", model.SubscriptionActive, testNow.Add(2*day+time.Hour)), testNow)
	assert.Equal(t, 3, c.DaysUntilExpiry)
	assert.True(t, c.ShouldNotify)
}

func TestClassifyExpiredCorrectsStaleStatus(t *testing.T) {
	e := New(DefaultPolicy())

	c := e.Classify(sub("pro", model.SubscriptionActive, daysFromNow(-20)), testNow)
	assert.False(t, c.IsActive)
	assert.True(t, c.IsExpired)
	assert.Equal(t, 0, c.DaysUntilExpiry)
	assert.Equal(t, -20, c.SignedDays)
	assert.True(t, c.ShouldSuspend)
	assert.False(t, c.ShouldNotify)
	assert.Equal(t, model.SubscriptionExpired, c.Status)
}

func TestClassifyExpiresExactlyNow(t *testing.T) {
	e := New(DefaultPolicy())

	c := e.Classify(sub("starter", model.SubscriptionActive, testNow), testNow)
	assert.True(t, c.IsExpired)
	assert.False(t, c.ShouldNotify)
	assert.Equal(t, 0, c.SignedDays)
}

func TestClassifyKeepsNonActiveStatus(t *testing.T) {
	e := New(DefaultPolicy())

	c := e.Classify(sub("starter", model.SubscriptionPastDue, daysFromNow(-2)), testNow)
	assert.Equal(t, model.SubscriptionPastDue, c.Status)
	assert.True(t, c.ShouldSuspend)

	c = e.Classify(sub("starter", model.SubscriptionPastDue, daysFromNow(5)), testNow)
	assert.False(t, c.IsActive)
	assert.True(t, c.ShouldNotify)
}

func TestClassifyCancelledNeverSuspends(t *testing.T) {
	e := New(DefaultPolicy())

	for _, d := range []int{-400, -30, -1, 0, 1, 7, 8, 90} {
		c := e.Classify(sub("business", model.SubscriptionCancelled, daysFromNow(d)), testNow)
		assert.False(t, c.ShouldSuspend, "days=%d", d)
		assert.Equal(t, model.SubscriptionCancelled, c.Status, "days=%d", d)
	}
}

func TestClassifyNotifyWindow(t *testing.T) {
	e := New(DefaultPolicy())

	for d := 1; d <= 7; d++ {
		c := e.Classify(sub("starter", model.SubscriptionActive, daysFromNow(d)), testNow)
		assert.True(t, c.ShouldNotify, "days=%d", d)
	}
	for _, d := range []int{8, 9, 30, 365} {
		c := e.Classify(sub("starter", model.SubscriptionActive, daysFromNow(d)), testNow)
		assert.False(t, c.ShouldNotify, "days=%d", d)
	}
	for _, d := range []int{0, -1, -7} {
		c := e.Classify(sub("starter", model.SubscriptionActive, daysFromNow(d)), testNow)
		assert.False(t, c.ShouldNotify, "days=%d", d)
	}
}

func TestClassifyCustomNotifyWindow(t *testing.T) {
	p := DefaultPolicy()
	p.NotifyWindowDays = 14
	e := New(p)

	c := e.Classify(sub("starter", model.SubscriptionActive, daysFromNow(10)), testNow)
	assert.True(t, c.ShouldNotify)
}

func TestClassifyZeroPeriodEndIsExpired(t *testing.T) {
	e := New(DefaultPolicy())

	c := e.Classify(&model.Subscription{PlanID: "starter", Status: model.SubscriptionActive}, testNow)
	assert.True(t, c.IsExpired)
	assert.True(t, c.ShouldSuspend)
	assert.Equal(t, model.SubscriptionExpired, c.Status)
}

func TestShouldAutoSuspend(t *testing.T) {
	e := New(DefaultPolicy())

	assert.True(t, e.ShouldAutoSuspend(model.User{ID: "u1"}, testNow))
	assert.False(t, e.ShouldAutoSuspend(model.User{
		ID:           "u2",
		Subscription: sub("starter", model.SubscriptionActive, daysFromNow(10)),
	}, testNow))
}

func TestDaysUntil(t *testing.T) {
	tests := []struct {
		name string
		end  time.Time
		want int
	}{
		{"same instant", testNow, 0},
		{"one second ahead", testNow.Add(time.Second), 1},
		{"exactly one day", testNow.Add(day), 1},
		{"one day and a bit", testNow.Add(day + time.Minute), 2},
		{"half a day ago", testNow.Add(-12 * time.Hour), 0},
		{"a day and a half ago", testNow.Add(-36 * time.Hour), -1},
		{"twenty days ago", testNow.Add(-20 * day), -20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntil(tt.end, testNow))
		})
	}
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.NotifyWindowDays = 0
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.UrgentWindowDays = 10
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.GraceDays["business"] = -1
	assert.Error(t, p.Validate())
}

func TestParseGraceDays(t *testing.T) {
	got, err := ParseGraceDays("enterprise=14, business=10,")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"enterprise": 14, "business": 10}, got)

	got, err = ParseGraceDays("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseGraceDays("enterprise")
	assert.Error(t, err)

	_, err = ParseGraceDays("enterprise=two")
	assert.Error(t, err)
}
