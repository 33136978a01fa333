// Package adminapi calls the admin user-management endpoint of a running
// crmdesk (or compatible) deployment.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/crmdesk/internal/auth"
)

// ServiceSubject identifies the checker in the tokens it presents.
const ServiceSubject = "subscription-checker"

// StatusError reports a non-2xx response from the admin API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("admin API error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("admin API error: status %d", e.StatusCode)
}

func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// UserAction is the PATCH body understood by /api/admin/users.
type UserAction struct {
	UserID        string `json:"userId"`
	Action        string `json:"action"`
	PlanID        string `json:"planId,omitempty"`
	ExtensionDays int    `json:"extensionDays,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type Client struct {
	baseURL    string
	issuer     *auth.Issuer
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(baseURL string, issuer *auth.Issuer, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		issuer:     issuer,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Suspend asks the admin API to suspend a user's account.
func (c *Client) Suspend(ctx context.Context, userID, reason string) error {
	return c.Do(ctx, UserAction{UserID: userID, Action: "suspend", Reason: reason})
}

func (c *Client) Do(ctx context.Context, action UserAction) error {
	token, err := c.issuer.Issue(ServiceSubject, auth.RoleAdmin)
	if err != nil {
		return fmt.Errorf("issue service token: %w", err)
	}

	body, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/api/admin/users", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s user %s: %w", action.Action, action.UserID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &StatusError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}
	return nil
}
