// Package subscription classifies subscription records and derives the
// administrative actions that follow from them. Everything here is a pure
// function of its inputs: the caller supplies the current time and owns all
// persistence and delivery.
package subscription

import (
	"fmt"
	"strconv"
	"strings"
)

// Policy holds the business constants the evaluator works with.
type Policy struct {
	// NotifyWindowDays is the upper bound of the pre-expiry reminder window.
	NotifyWindowDays int
	// UrgentWindowDays is the upper bound of the high-urgency reminder tier.
	UrgentWindowDays int
	// DefaultGraceDays applies to plans without an entry in GraceDays.
	DefaultGraceDays int
	// GraceDays maps a plan ID to its grace period length.
	GraceDays map[string]int
	// HealthyDays is the remaining-days threshold above which an active
	// subscription needs no attention.
	HealthyDays int
}

// DefaultPolicy returns the stock constants: a 7 day notify window, 3 day
// urgent tier, 14/10/7 day grace periods and a 30 day healthy threshold.
func DefaultPolicy() Policy {
	return Policy{
		NotifyWindowDays: 7,
		UrgentWindowDays: 3,
		DefaultGraceDays: 7,
		GraceDays: map[string]int{
			"enterprise": 14,
			"business":   10,
		},
		HealthyDays: 30,
	}
}

// Validate rejects policies that would make the tiers overlap or go negative.
func (p Policy) Validate() error {
	if p.NotifyWindowDays < 1 {
		return fmt.Errorf("notify window must be at least 1 day, got %d", p.NotifyWindowDays)
	}
	if p.UrgentWindowDays < 0 || p.UrgentWindowDays > p.NotifyWindowDays {
		return fmt.Errorf("urgent window must be between 0 and %d days, got %d", p.NotifyWindowDays, p.UrgentWindowDays)
	}
	if p.DefaultGraceDays < 0 {
		return fmt.Errorf("default grace period must not be negative, got %d", p.DefaultGraceDays)
	}
	for plan, days := range p.GraceDays {
		if days < 0 {
			return fmt.Errorf("grace period for plan %q must not be negative, got %d", plan, days)
		}
	}
	if p.HealthyDays < 0 {
		return fmt.Errorf("healthy threshold must not be negative, got %d", p.HealthyDays)
	}
	return nil
}

// ParseGraceDays parses a "plan=days,plan=days" list.
func ParseGraceDays(s string) (map[string]int, error) {
	out := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		plan, days, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("grace period entry %q: want plan=days", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(days))
		if err != nil {
			return nil, fmt.Errorf("grace period entry %q: %w", part, err)
		}
		out[strings.TrimSpace(plan)] = n
	}
	return out, nil
}
