package model

import "time"

type APIKey struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	Hash       string     `json:"-"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	RevokedAt  *time.Time `json:"revokedAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type JobRun struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	TotalUsers int       `json:"totalUsers"`
	ToSuspend  int       `json:"toSuspend"`
	ToNotify   int       `json:"toNotify"`
	Expired    int       `json:"expired"`
	Suspended  int       `json:"suspended"`
	Notified   int       `json:"notified"`
	Errors     int       `json:"errors"`
	Report     string    `json:"-"`
}
