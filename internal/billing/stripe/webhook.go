package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/crmdesk/internal/billing"
	"github.com/dukerupert/crmdesk/internal/metrics"
	"github.com/dukerupert/crmdesk/internal/model"
	"github.com/dukerupert/crmdesk/internal/websocket"
)

const maxWebhookBody = 65536

var errUnknownSubscription = errors.New("unknown stripe subscription")

// SubscriptionStore is the subset of store.SubscriptionStore the webhook
// needs.
type SubscriptionStore interface {
	GetByStripeID(stripeSubID string) (*model.Subscription, error)
	GetByUserID(userID string) (*model.Subscription, error)
	UpdateStripeID(id, stripeSubID string) error
	UpdateStatus(id string, status model.SubscriptionStatus) error
	UpdatePeriod(id string, start, end time.Time) error
	UpdatePlan(id, planID string) error
	SetCancelAtPeriodEnd(id string, cancel bool) error
}

type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

type WebhookHandler struct {
	client *Client
	subs   SubscriptionStore
	hub    Broadcaster
	logger *slog.Logger
}

func NewWebhookHandler(c *Client, subs SubscriptionStore, hub Broadcaster, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		client: c,
		subs:   subs,
		hub:    hub,
		logger: logger.With("component", "stripe_webhook"),
	}
}

// HandleStripeWebhook verifies and applies a Stripe event. Checkout sessions
// and subscription events carrying a user_id link the Stripe subscription to
// that user's local row. Events for subscriptions we cannot resolve are
// acknowledged and ignored; store failures return 500 so Stripe redelivers.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.respond(w, "unknown", http.StatusBadRequest)
		return
	}

	event, err := h.client.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("invalid webhook signature", "error", err)
		h.respond(w, "unknown", http.StatusBadRequest)
		return
	}
	eventType := string(event.Type)

	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(event)
	case "customer.subscription.created", "customer.subscription.updated":
		err = h.handleSubscriptionUpdated(event)
	case "customer.subscription.deleted":
		err = h.handleSubscriptionDeleted(event)
	case "invoice.paid":
		err = h.handleInvoice(event, model.SubscriptionActive)
	case "invoice.payment_failed":
		err = h.handleInvoice(event, model.SubscriptionPastDue)
	default:
		h.logger.Debug("ignoring webhook event", "type", eventType)
	}

	switch {
	case errors.Is(err, errUnknownSubscription):
		h.logger.Info("webhook for untracked subscription", "type", eventType, "event_id", event.ID)
		h.respond(w, eventType, http.StatusOK)
	case err != nil:
		h.logger.Error("apply webhook event", "type", eventType, "event_id", event.ID, "error", err)
		h.respond(w, eventType, http.StatusInternalServerError)
	default:
		h.respond(w, eventType, http.StatusOK)
	}
}

func (h *WebhookHandler) respond(w http.ResponseWriter, eventType string, status int) {
	metrics.WebhookEventsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
	w.WriteHeader(status)
}

// lookup resolves the local subscription for a Stripe subscription ID. When
// no row carries that ID yet and userID is known, the user's subscription is
// linked to it.
func (h *WebhookHandler) lookup(stripeSubID, userID string) (*model.Subscription, error) {
	if stripeSubID == "" {
		return nil, errUnknownSubscription
	}
	sub, err := h.subs.GetByStripeID(stripeSubID)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		return sub, nil
	}
	if userID == "" {
		return nil, errUnknownSubscription
	}
	return h.link(userID, stripeSubID)
}

func (h *WebhookHandler) link(userID, stripeSubID string) (*model.Subscription, error) {
	sub, err := h.subs.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errUnknownSubscription
	}
	if sub.StripeSubscriptionID != nil && *sub.StripeSubscriptionID == stripeSubID {
		return sub, nil
	}
	if err := h.subs.UpdateStripeID(sub.ID, stripeSubID); err != nil {
		return nil, err
	}
	h.logger.Info("linked stripe subscription", "user_id", userID, "subscription_id", sub.ID, "stripe_subscription_id", stripeSubID)
	sub.StripeSubscriptionID = &stripeSubID
	return sub, nil
}

// handleCheckoutCompleted links the session's subscription to the user named
// by client_reference_id (or metadata user_id) and marks it active.
func (h *WebhookHandler) handleCheckoutCompleted(event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}
	if sess.Subscription == nil {
		return errUnknownSubscription
	}
	userID := sess.ClientReferenceID
	if userID == "" {
		userID = sess.Metadata["user_id"]
	}
	if userID == "" {
		return errUnknownSubscription
	}

	sub, err := h.link(userID, sess.Subscription.ID)
	if err != nil {
		return err
	}
	if err := h.subs.UpdateStatus(sub.ID, model.SubscriptionActive); err != nil {
		return err
	}
	h.broadcast(sub, model.SubscriptionActive)
	return nil
}

func (h *WebhookHandler) handleSubscriptionUpdated(event stripe.Event) error {
	var ss stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}
	sub, err := h.lookup(ss.ID, ss.Metadata["user_id"])
	if err != nil {
		return err
	}

	status := MapStatus(ss.Status)
	if err := h.subs.UpdateStatus(sub.ID, status); err != nil {
		return err
	}
	if err := h.subs.SetCancelAtPeriodEnd(sub.ID, ss.CancelAtPeriodEnd); err != nil {
		return err
	}
	if ss.Items != nil && len(ss.Items.Data) > 0 {
		item := ss.Items.Data[0]
		if item.CurrentPeriodStart > 0 && item.CurrentPeriodEnd > item.CurrentPeriodStart {
			start := time.Unix(item.CurrentPeriodStart, 0).UTC()
			end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			if err := h.subs.UpdatePeriod(sub.ID, start, end); err != nil {
				return err
			}
		}
	}
	if planID := ss.Metadata["plan_id"]; planID != "" && planID != sub.PlanID {
		if !billing.ValidPlan(planID) {
			h.logger.Warn("ignoring unknown plan from stripe metadata", "plan_id", planID, "subscription_id", sub.ID)
		} else if err := h.subs.UpdatePlan(sub.ID, planID); err != nil {
			return err
		}
	}

	h.broadcast(sub, status)
	return nil
}

func (h *WebhookHandler) handleSubscriptionDeleted(event stripe.Event) error {
	var ss stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}
	sub, err := h.lookup(ss.ID, "")
	if err != nil {
		return err
	}
	if err := h.subs.UpdateStatus(sub.ID, model.SubscriptionCancelled); err != nil {
		return err
	}
	h.broadcast(sub, model.SubscriptionCancelled)
	return nil
}

// subscriptionFromInvoice extracts the subscription ID and the subscription's
// user_id metadata from an invoice's parent.
func subscriptionFromInvoice(invoice stripe.Invoice) (stripeSubID, userID string) {
	if invoice.Parent == nil || invoice.Parent.SubscriptionDetails == nil {
		return "", ""
	}
	details := invoice.Parent.SubscriptionDetails
	if details.Subscription != nil {
		stripeSubID = details.Subscription.ID
	}
	return stripeSubID, details.Metadata["user_id"]
}

func (h *WebhookHandler) handleInvoice(event stripe.Event, status model.SubscriptionStatus) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("unmarshal invoice: %w", err)
	}
	sub, err := h.lookup(subscriptionFromInvoice(invoice))
	if err != nil {
		return err
	}
	if err := h.subs.UpdateStatus(sub.ID, status); err != nil {
		return err
	}
	h.broadcast(sub, status)
	return nil
}

func (h *WebhookHandler) broadcast(sub *model.Subscription, status model.SubscriptionStatus) {
	if h.hub == nil {
		return
	}
	h.hub.Broadcast(websocket.NewMessage(websocket.EventSubscriptionUpdated, "", map[string]string{
		"userId":         sub.UserID,
		"subscriptionId": sub.ID,
		"status":         string(status),
	}))
}
