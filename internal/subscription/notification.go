package subscription

import (
	"fmt"
	"time"

	"github.com/dukerupert/crmdesk/internal/model"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Notification is the content of an expiry notice.
type Notification struct {
	Subject string  `json:"subject"`
	Message string  `json:"message"`
	Urgency Urgency `json:"urgency"`
}

// Notification builds the expiry notice for u. Callers normally only send it
// to users inside the notify window.
func (e *Evaluator) Notification(u model.User, now time.Time) Notification {
	c := e.Classify(u.Subscription, now)
	days := c.DaysUntilExpiry

	switch {
	case days == 0:
		return Notification{
			Subject: "Your subscription has expired",
			Message: fmt.Sprintf("Dear %s, your subscription has expired. Please renew to continue accessing our services.", u.Name),
			Urgency: UrgencyHigh,
		}
	case days <= e.policy.UrgentWindowDays:
		return Notification{
			Subject: "Your subscription expires soon",
			Message: fmt.Sprintf("Dear %s, your subscription expires in %d days. Please renew to avoid service interruption.", u.Name, days),
			Urgency: UrgencyHigh,
		}
	default:
		return Notification{
			Subject: "Subscription renewal reminder",
			Message: fmt.Sprintf("Dear %s, your subscription will expire in %d days. Consider renewing to maintain uninterrupted access.", u.Name, days),
			Urgency: UrgencyMedium,
		}
	}
}
