package stripe

import (
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/crmdesk/internal/model"
)

// Client verifies Stripe webhook deliveries.
type Client struct {
	webhookSecret string
}

func NewClient(secretKey, webhookSecret string) *Client {
	if secretKey != "" {
		stripe.Key = secretKey
	}
	return &Client{webhookSecret: webhookSecret}
}

func (c *Client) Configured() bool {
	return c.webhookSecret != ""
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.webhookSecret)
}

// MapStatus converts a Stripe subscription status to the local one.
func MapStatus(s stripe.SubscriptionStatus) model.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return model.SubscriptionActive
	case stripe.SubscriptionStatusCanceled:
		return model.SubscriptionCancelled
	case stripe.SubscriptionStatusIncompleteExpired:
		return model.SubscriptionExpired
	default:
		// past_due, unpaid, incomplete, paused
		return model.SubscriptionPastDue
	}
}
