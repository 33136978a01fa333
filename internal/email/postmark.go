package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/dukerupert/crmdesk/internal/model"
	"github.com/dukerupert/crmdesk/internal/subscription"
)

const postmarkURL = "https://api.postmarkapp.com/email"

var ErrNotConfigured = errors.New("email client not configured: missing server token")

// StatusError reports a non-2xx response from Postmark.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("postmark API error: status %d", e.StatusCode)
}

// Retryable reports whether sending again could succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// SendSubscriptionNotice emails an expiry notice. High urgency notices are
// tagged so they can be filtered in Postmark.
func (c *Client) SendSubscriptionNotice(ctx context.Context, toEmail, subject, message string, urgency subscription.Urgency) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	billingLink := c.baseURL + "/billing"
	textBody := fmt.Sprintf("%s\n\nManage your subscription: %s", message, billingLink)
	htmlBody := fmt.Sprintf(
		`<p>%s</p><p><a href="%s">Manage your subscription</a></p>`,
		html.EscapeString(message), billingLink,
	)

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
		Tag:      "subscription-" + string(urgency),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode}
	}

	return nil
}

// Notify delivers a generated notification to the user's address.
func (c *Client) Notify(ctx context.Context, u model.User, n subscription.Notification) error {
	return c.SendSubscriptionNotice(ctx, u.Email, n.Subject, n.Message, n.Urgency)
}
