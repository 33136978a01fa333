package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
)

// ErrInvalidPeriod is returned when a billing period does not end after it starts.
var ErrInvalidPeriod = errors.New("current period end must be after current period start")

// ParseSubscriptionStatus normalizes a status string. Billing providers spell
// the cancelled state "canceled"; both map to SubscriptionCancelled.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return SubscriptionActive, nil
	case "cancelled", "canceled":
		return SubscriptionCancelled, nil
	case "expired":
		return SubscriptionExpired, nil
	case "past_due":
		return SubscriptionPastDue, nil
	}
	return "", fmt.Errorf("unknown subscription status %q", s)
}

// Subscription is one tenant's billing cycle. It is owned by the billing
// system; evaluators only read it.
type Subscription struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"userId"`
	PlanID               string             `json:"planId"`
	Status               SubscriptionStatus `json:"status"`
	StripeSubscriptionID *string            `json:"stripeSubscriptionId,omitempty"`
	CurrentPeriodStart   time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd     time.Time          `json:"currentPeriodEnd"`
	CancelAtPeriodEnd    bool               `json:"cancelAtPeriodEnd"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}

// Validate checks the period invariant.
func (s *Subscription) Validate() error {
	if !s.CurrentPeriodEnd.After(s.CurrentPeriodStart) {
		return ErrInvalidPeriod
	}
	return nil
}
