package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dukerupert/crmdesk/internal/model"
)

func TestGracePeriod(t *testing.T) {
	e := New(DefaultPolicy())

	assert.Equal(t, 14, e.GracePeriod(&model.Subscription{PlanID: "enterprise"}))
	assert.Equal(t, 10, e.GracePeriod(&model.Subscription{PlanID: "business"}))
	assert.Equal(t, 7, e.GracePeriod(&model.Subscription{PlanID: "pro"}))
	assert.Equal(t, 7, e.GracePeriod(&model.Subscription{PlanID: "starter"}))
	assert.Equal(t, 0, e.GracePeriod(nil))
}

func TestInGracePeriod(t *testing.T) {
	e := New(DefaultPolicy())

	assert.True(t, e.InGracePeriod(sub("starter", model.SubscriptionActive, daysFromNow(-7)), testNow))
	assert.False(t, e.InGracePeriod(sub("starter", model.SubscriptionActive, daysFromNow(-8)), testNow))
	assert.True(t, e.InGracePeriod(sub("enterprise", model.SubscriptionActive, daysFromNow(-14)), testNow))
	assert.False(t, e.InGracePeriod(sub("starter", model.SubscriptionActive, daysFromNow(3)), testNow))
	assert.False(t, e.InGracePeriod(nil, testNow))
}

func TestRecommendSuspendAfterGrace(t *testing.T) {
	e := New(DefaultPolicy())

	u := model.User{ID: "u1", Subscription: sub("pro", model.SubscriptionActive, daysFromNow(-20))}
	assert.Equal(t, Recommendation{
		Action:   ActionSuspend,
		Priority: PriorityCritical,
		Reason:   "Subscription expired and grace period exceeded",
	}, e.Recommend(u, testNow))
}

func TestRecommendNotifyWithinGrace(t *testing.T) {
	e := New(DefaultPolicy())

	u := model.User{ID: "u1", Subscription: sub("business", model.SubscriptionActive, daysFromNow(-5))}
	assert.Equal(t, Recommendation{
		Action:   ActionNotify,
		Priority: PriorityHigh,
		Reason:   "Subscription expired but within grace period",
	}, e.Recommend(u, testNow))
}

func TestRecommendNotifyBeforeExpiry(t *testing.T) {
	e := New(DefaultPolicy())

	u := model.User{ID: "u1", Subscription: sub("starter", model.SubscriptionActive, daysFromNow(5))}
	assert.Equal(t, Recommendation{
		Action:   ActionNotify,
		Priority: PriorityMedium,
		Reason:   "Subscription expires in 5 days",
	}, e.Recommend(u, testNow))
}

func TestRecommendHealthy(t *testing.T) {
	e := New(DefaultPolicy())

	u := model.User{ID: "u1", Subscription: sub("starter", model.SubscriptionActive, daysFromNow(40))}
	assert.Equal(t, Recommendation{
		Action:   ActionNone,
		Priority: PriorityLow,
		Reason:   "Subscription is active and healthy",
	}, e.Recommend(u, testNow))
}

func TestRecommendDefault(t *testing.T) {
	e := New(DefaultPolicy())

	u := model.User{ID: "u1", Subscription: sub("starter", model.SubscriptionActive, daysFromNow(20))}
	assert.Equal(t, Recommendation{
		Action:   ActionNone,
		Priority: PriorityLow,
		Reason:   "No action required",
	}, e.Recommend(u, testNow))

	cancelled := model.User{ID: "u2", Subscription: sub("starter", model.SubscriptionCancelled, daysFromNow(40))}
	assert.Equal(t, ActionNone, e.Recommend(cancelled, testNow).Action)
	assert.Equal(t, "No action required", e.Recommend(cancelled, testNow).Reason)
}

func TestRecommendWithoutSubscription(t *testing.T) {
	e := New(DefaultPolicy())

	r := e.Recommend(model.User{ID: "u1"}, testNow)
	assert.Equal(t, ActionSuspend, r.Action)
	assert.Equal(t, PriorityCritical, r.Priority)
}

func TestHealthScore(t *testing.T) {
	e := New(DefaultPolicy())

	tests := []struct {
		name string
		sub  *model.Subscription
		want int
	}{
		{"active long", sub("starter", model.SubscriptionActive, daysFromNow(45)), 100},
		{"active month", sub("starter", model.SubscriptionActive, daysFromNow(20)), 80},
		{"active fortnight", sub("starter", model.SubscriptionActive, daysFromNow(10)), 60},
		{"active week", sub("starter", model.SubscriptionActive, daysFromNow(3)), 40},
		{"expired recently", sub("starter", model.SubscriptionActive, daysFromNow(-5)), 20},
		{"expired weeks ago", sub("starter", model.SubscriptionExpired, daysFromNow(-25)), 10},
		{"expired long ago", sub("starter", model.SubscriptionExpired, daysFromNow(-90)), 0},
		{"cancelled not yet ended", sub("starter", model.SubscriptionCancelled, daysFromNow(10)), 0},
		{"missing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.HealthScore(tt.sub, testNow))
		})
	}
}
