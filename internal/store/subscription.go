package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/crmdesk/internal/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var status string
	var stripeSubID sql.NullString
	var cancelAtPeriodEnd int
	err := scanner.Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &status, &stripeSubID,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &cancelAtPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = model.SubscriptionStatus(status)
	if stripeSubID.Valid {
		sub.StripeSubscriptionID = &stripeSubID.String
	}
	sub.CancelAtPeriodEnd = cancelAtPeriodEnd != 0
	return &sub, nil
}

const subscriptionCols = `id, user_id, plan_id, status, stripe_subscription_id, current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at`

// Create starts a subscription for the user. A user holds at most one
// subscription row.
func (s *SubscriptionStore) Create(userID, planID string, periodStart, periodEnd time.Time) (*model.Subscription, error) {
	candidate := model.Subscription{CurrentPeriodStart: periodStart, CurrentPeriodEnd: periodEnd}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO subscriptions (id, user_id, plan_id, current_period_start, current_period_end) VALUES (?, ?, ?, ?, ?)`,
		id, userID, planID, periodStart.UTC(), periodEnd.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return s.GetByID(id)
}

func (s *SubscriptionStore) GetByID(id string) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetByUserID(userID string) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE user_id = ?`, userID)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by user: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetByStripeID(stripeSubID string) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE stripe_subscription_id = ?`,
		stripeSubID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by stripe id: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) UpdateStatus(id string, status model.SubscriptionStatus) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET status = ? WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	return nil
}

// UpdatePeriod replaces the billing period after checking its invariant.
func (s *SubscriptionStore) UpdatePeriod(id string, start, end time.Time) error {
	candidate := model.Subscription{CurrentPeriodStart: start, CurrentPeriodEnd: end}
	if err := candidate.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`UPDATE subscriptions SET current_period_start = ?, current_period_end = ? WHERE id = ?`,
		start.UTC(), end.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update period: %w", err)
	}
	return nil
}

// Extend pushes the period end out by the given number of days and marks the
// subscription active.
func (s *SubscriptionStore) Extend(id string, days int) (*model.Subscription, error) {
	sub, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound
	}
	end := sub.CurrentPeriodEnd.AddDate(0, 0, days)
	if err := s.UpdatePeriod(id, sub.CurrentPeriodStart, end); err != nil {
		return nil, err
	}
	if err := s.UpdateStatus(id, model.SubscriptionActive); err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

func (s *SubscriptionStore) UpdatePlan(id, planID string) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET plan_id = ? WHERE id = ?`,
		planID, id,
	)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) UpdateStripeID(id, stripeSubID string) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET stripe_subscription_id = ? WHERE id = ?`,
		stripeSubID, id,
	)
	if err != nil {
		return fmt.Errorf("update stripe subscription id: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) SetCancelAtPeriodEnd(id string, cancel bool) error {
	var v int
	if cancel {
		v = 1
	}
	_, err := s.db.Exec(
		`UPDATE subscriptions SET cancel_at_period_end = ? WHERE id = ?`,
		v, id,
	)
	if err != nil {
		return fmt.Errorf("set cancel at period end: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}
