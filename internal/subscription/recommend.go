package subscription

import (
	"fmt"
	"time"

	"github.com/dukerupert/crmdesk/internal/model"
)

type Action string

const (
	ActionNone    Action = "none"
	ActionNotify  Action = "notify"
	ActionSuspend Action = "suspend"
	ActionExtend  Action = "extend"
	ActionUpgrade Action = "upgrade"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Recommendation is the single administrative action suggested for a user.
type Recommendation struct {
	Action   Action   `json:"action"`
	Priority Priority `json:"priority"`
	Reason   string   `json:"reason"`
}

// GracePeriod returns the grace period in days for sub's plan.
func (e *Evaluator) GracePeriod(sub *model.Subscription) int {
	if sub == nil {
		return 0
	}
	if days, ok := e.policy.GraceDays[sub.PlanID]; ok {
		return days
	}
	return e.policy.DefaultGraceDays
}

// InGracePeriod reports whether sub has expired but not by more than its
// plan's grace period. A missing subscription has no grace period.
func (e *Evaluator) InGracePeriod(sub *model.Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	c := e.Classify(sub, now)
	return c.IsExpired && c.SignedDays >= -e.GracePeriod(sub)
}

// Recommend resolves the action for u. Rules are checked in order and the
// first match wins.
func (e *Evaluator) Recommend(u model.User, now time.Time) Recommendation {
	c := e.Classify(u.Subscription, now)
	inGrace := e.InGracePeriod(u.Subscription, now)

	switch {
	case c.IsExpired && !inGrace:
		return Recommendation{
			Action:   ActionSuspend,
			Priority: PriorityCritical,
			Reason:   "Subscription expired and grace period exceeded",
		}
	case c.IsExpired && inGrace:
		return Recommendation{
			Action:   ActionNotify,
			Priority: PriorityHigh,
			Reason:   "Subscription expired but within grace period",
		}
	case c.ShouldNotify:
		return Recommendation{
			Action:   ActionNotify,
			Priority: PriorityMedium,
			Reason:   fmt.Sprintf("Subscription expires in %d days", c.DaysUntilExpiry),
		}
	case c.IsActive && c.DaysUntilExpiry > e.policy.HealthyDays:
		return Recommendation{
			Action:   ActionNone,
			Priority: PriorityLow,
			Reason:   "Subscription is active and healthy",
		}
	}
	return Recommendation{
		Action:   ActionNone,
		Priority: PriorityLow,
		Reason:   "No action required",
	}
}
