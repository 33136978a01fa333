package subscription

import (
	"time"

	"github.com/dukerupert/crmdesk/internal/model"
)

const day = 24 * time.Hour

// Classification is the derived state of one subscription at one instant.
type Classification struct {
	IsActive  bool `json:"isActive"`
	IsExpired bool `json:"isExpired"`
	// DaysUntilExpiry is floored at zero for display.
	DaysUntilExpiry int `json:"daysUntilExpiry"`
	// SignedDays is negative once the period has ended.
	SignedDays    int                      `json:"signedDays"`
	ShouldSuspend bool                     `json:"shouldSuspend"`
	ShouldNotify  bool                     `json:"shouldNotify"`
	Status        model.SubscriptionStatus `json:"status"`
}

// Evaluator applies a Policy to subscription records.
type Evaluator struct {
	policy Policy
}

// New returns an Evaluator for the given policy.
func New(p Policy) *Evaluator {
	if p.GraceDays == nil {
		p.GraceDays = map[string]int{}
	}
	return &Evaluator{policy: p}
}

// Policy returns the evaluator's policy.
func (e *Evaluator) Policy() Policy {
	return e.policy
}

// Classify derives the lifecycle state of sub at now. A nil subscription
// means no paid plan and classifies as expired and suspendable.
func (e *Evaluator) Classify(sub *model.Subscription, now time.Time) Classification {
	if sub == nil {
		return Classification{
			IsActive:        false,
			IsExpired:       true,
			DaysUntilExpiry: 0,
			SignedDays:      0,
			ShouldSuspend:   true,
			ShouldNotify:    false,
			Status:          model.SubscriptionExpired,
		}
	}

	days := DaysUntil(sub.CurrentPeriodEnd, now)
	expired := days <= 0

	status := sub.Status
	if expired && sub.Status == model.SubscriptionActive {
		// Billing status lags the clock.
		status = model.SubscriptionExpired
	}

	return Classification{
		IsActive:        sub.Status == model.SubscriptionActive && !expired,
		IsExpired:       expired,
		DaysUntilExpiry: max(0, days),
		SignedDays:      days,
		ShouldSuspend:   expired && sub.Status != model.SubscriptionCancelled,
		ShouldNotify:    days > 0 && days <= e.policy.NotifyWindowDays,
		Status:          status,
	}
}

// ShouldAutoSuspend reports whether the user's subscription state alone
// calls for suspension.
func (e *Evaluator) ShouldAutoSuspend(u model.User, now time.Time) bool {
	return e.Classify(u.Subscription, now).ShouldSuspend
}

// DaysUntil returns the whole days from now until end, rounded up. The result
// is negative when end has passed. A zero end time counts as long expired.
func DaysUntil(end, now time.Time) int {
	d := end.Sub(now)
	days := d / day
	if d%day > 0 {
		days++
	}
	return int(days)
}
