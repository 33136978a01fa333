package subscription

import (
	"time"

	"github.com/dukerupert/crmdesk/internal/model"
)

// HealthScore rates a subscription from 0 to 100 for dashboards. Active
// subscriptions score by remaining time, expired ones by how long ago they
// lapsed.
func (e *Evaluator) HealthScore(sub *model.Subscription, now time.Time) int {
	c := e.Classify(sub, now)

	if c.IsActive {
		switch {
		case c.DaysUntilExpiry > 30:
			return 100
		case c.DaysUntilExpiry > 14:
			return 80
		case c.DaysUntilExpiry > 7:
			return 60
		}
		return 40
	}

	if c.IsExpired && sub != nil {
		daysExpired := -c.SignedDays
		switch {
		case daysExpired <= 7:
			return 20
		case daysExpired <= 30:
			return 10
		}
	}
	return 0
}
