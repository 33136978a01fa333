package subscription

import (
	"time"

	"github.com/dukerupert/crmdesk/internal/model"
)

// Partition groups users by the action their subscription calls for. The
// groups may overlap and keep the input order.
type Partition struct {
	ToSuspend []model.User
	ToNotify  []model.User
	Expired   []model.User
}

// Partition classifies every user once and sorts them into the suspend,
// notify and expired groups. Only accounts that are currently active are
// candidates for suspension.
func (e *Evaluator) Partition(users []model.User, now time.Time) Partition {
	var p Partition
	for _, u := range users {
		c := e.Classify(u.Subscription, now)
		if c.ShouldSuspend && u.Status == model.AccountActive {
			p.ToSuspend = append(p.ToSuspend, u)
		}
		if c.ShouldNotify {
			p.ToNotify = append(p.ToNotify, u)
		}
		if c.IsExpired {
			p.Expired = append(p.Expired, u)
		}
	}
	return p
}
