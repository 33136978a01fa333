package checker

import (
	"time"

	"github.com/dukerupert/crmdesk/internal/subscription"
)

// Action names used in ActionError and metrics.
const (
	ActionSuspend = "suspend"
	ActionNotify  = "notify"
)

// Report describes one subscription check run.
type Report struct {
	RunID     string    `json:"runId"`
	Timestamp time.Time `json:"timestamp"`
	Summary   Summary   `json:"summary"`
	Actions   Actions   `json:"actions"`
}

type Summary struct {
	TotalUsers int `json:"totalUsers"`
	ToSuspend  int `json:"toSuspend"`
	ToNotify   int `json:"toNotify"`
	Expired    int `json:"expired"`
}

type Actions struct {
	Suspended []SuspendedUser `json:"suspended"`
	Notified  []NotifiedUser  `json:"notified"`
	Errors    []ActionError   `json:"errors"`
}

type SuspendedUser struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type NotifiedUser struct {
	UserID  string               `json:"userId"`
	Email   string               `json:"email"`
	Subject string               `json:"subject"`
	Urgency subscription.Urgency `json:"urgency"`
}

type ActionError struct {
	UserID string `json:"userId"`
	Action string `json:"action"`
	Error  string `json:"error"`
}

func newReport(runID string, now time.Time, total int, p subscription.Partition) *Report {
	return &Report{
		RunID:     runID,
		Timestamp: now,
		Summary: Summary{
			TotalUsers: total,
			ToSuspend:  len(p.ToSuspend),
			ToNotify:   len(p.ToNotify),
			Expired:    len(p.Expired),
		},
		Actions: Actions{
			Suspended: []SuspendedUser{},
			Notified:  []NotifiedUser{},
			Errors:    []ActionError{},
		},
	}
}
