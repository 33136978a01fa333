package model

import "time"

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountPending   AccountStatus = "pending"
)

// ValidAccountStatus reports whether s is a known account status.
func ValidAccountStatus(s AccountStatus) bool {
	switch s {
	case AccountActive, AccountSuspended, AccountPending:
		return true
	}
	return false
}

type User struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	Role         string        `json:"role"`
	Status       AccountStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Subscription *Subscription `json:"subscription,omitempty"`
}
