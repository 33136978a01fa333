package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/dukerupert/crmdesk/internal/auth"
	"github.com/dukerupert/crmdesk/internal/billing"
	"github.com/dukerupert/crmdesk/internal/model"
	"github.com/dukerupert/crmdesk/internal/store"
	"github.com/dukerupert/crmdesk/internal/subscription"
	"github.com/dukerupert/crmdesk/internal/websocket"
)

// Length of the billing period given to accounts created from the console.
const trialPeriodDays = 30

const (
	actionActivate           = "activate"
	actionSuspend            = "suspend"
	actionExtendSubscription = "extend_subscription"
	actionUpdatePlan         = "update_plan"
)

type UserRepository interface {
	CreateWithSubscription(email, name, role string, status model.AccountStatus, planID string, periodStart, periodEnd time.Time) (*model.User, error)
	GetByID(id string) (*model.User, error)
	GetByEmail(email string) (*model.User, error)
	ListWithSubscriptions(f store.UserFilter) ([]model.User, error)
	UpdateStatus(id string, status model.AccountStatus) error
	Stats() (store.UserStats, error)
}

type SubscriptionRepository interface {
	Create(userID, planID string, periodStart, periodEnd time.Time) (*model.Subscription, error)
	Extend(id string, days int) (*model.Subscription, error)
	UpdatePlan(id, planID string) error
}

type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

type AdminHandler struct {
	users  UserRepository
	subs   SubscriptionRepository
	eval   *subscription.Evaluator
	hub    Broadcaster
	now    func() time.Time
	logger *slog.Logger
}

func NewAdminHandler(users UserRepository, subs SubscriptionRepository, eval *subscription.Evaluator, hub Broadcaster, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		users:  users,
		subs:   subs,
		eval:   eval,
		hub:    hub,
		now:    time.Now,
		logger: logger,
	}
}

func (h *AdminHandler) broadcast(u *model.User) {
	if h.hub == nil {
		return
	}
	h.hub.Broadcast(websocket.NewMessage(websocket.EventUserUpdated, "", u))
}

// ListUsers returns users matching the status, subscriptionStatus and search
// query parameters. "all" disables a filter.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.UserFilter

	if v := q.Get("status"); v != "" && v != "all" {
		status := model.AccountStatus(v)
		if !model.ValidAccountStatus(status) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		f.Status = status
	}
	if v := q.Get("subscriptionStatus"); v != "" && v != "all" {
		status, err := model.ParseSubscriptionStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid subscriptionStatus")
			return
		}
		f.SubscriptionStatus = status
	}
	f.Search = q.Get("search")

	users, err := h.users.ListWithSubscriptions(f)
	if err != nil {
		h.logger.Error("failed to list users", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	if users == nil {
		users = []model.User{}
	}

	stats, err := h.users.Stats()
	if err != nil {
		h.logger.Error("failed to compute user stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"total": len(users),
		"stats": stats,
	})
}

type userDetail struct {
	User           *model.User                 `json:"user"`
	Classification subscription.Classification `json:"classification"`
	Recommendation subscription.Recommendation `json:"recommendation"`
	HealthScore    int                         `json:"healthScore"`
	GracePeriod    int                         `json:"gracePeriod"`
	InGracePeriod  bool                        `json:"inGracePeriod"`
	Notification   *subscription.Notification  `json:"notification,omitempty"`
}

// GetUser returns one user with the evaluator's view of their subscription.
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("failed to get user", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch user")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	now := h.now().UTC()
	c := h.eval.Classify(u.Subscription, now)
	detail := userDetail{
		User:           u,
		Classification: c,
		Recommendation: h.eval.Recommend(*u, now),
		HealthScore:    h.eval.HealthScore(u.Subscription, now),
		GracePeriod:    h.eval.GracePeriod(u.Subscription),
		InGracePeriod:  h.eval.InGracePeriod(u.Subscription, now),
	}
	if c.ShouldNotify {
		n := h.eval.Notification(*u, now)
		detail.Notification = &n
	}
	writeJSON(w, http.StatusOK, detail)
}

type updateUserRequest struct {
	UserID        string `json:"userId"`
	Action        string `json:"action"`
	PlanID        string `json:"planId"`
	ExtensionDays int    `json:"extensionDays"`
	Reason        string `json:"reason"`
}

func (req updateUserRequest) validate() error {
	if strings.TrimSpace(req.UserID) == "" {
		return errors.New("userId is required")
	}
	switch req.Action {
	case actionActivate, actionSuspend:
	case actionExtendSubscription:
		if req.ExtensionDays <= 0 {
			return errors.New("extensionDays must be positive")
		}
	case actionUpdatePlan:
		if !billing.ValidPlan(req.PlanID) {
			return errors.New("invalid planId")
		}
	default:
		return errors.New("Invalid action")
	}
	return nil
}

// UpdateUser applies one administrative action to a user. The subscription
// checker calls this endpoint to suspend lapsed accounts.
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := h.users.GetByID(req.UserID)
	if err != nil {
		h.logger.Error("failed to get user", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update user")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	status, err := h.apply(u, req)
	if err != nil {
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to update user", "user_id", u.ID, "action", req.Action, "error", err)
			writeError(w, status, "Failed to update user")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	updated, err := h.users.GetByID(u.ID)
	if err != nil || updated == nil {
		h.logger.Error("failed to reload user", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update user")
		return
	}

	h.logger.Info("user updated",
		"user_id", u.ID,
		"action", req.Action,
		"reason", req.Reason,
		"by", auth.Subject(r.Context()),
	)
	h.broadcast(updated)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("User %s successful", req.Action),
		"user":    updated,
	})
}

// apply performs the action and returns the HTTP status to report when it
// fails.
func (h *AdminHandler) apply(u *model.User, req updateUserRequest) (int, error) {
	switch req.Action {
	case actionActivate:
		if err := h.users.UpdateStatus(u.ID, model.AccountActive); err != nil {
			return http.StatusInternalServerError, err
		}
	case actionSuspend:
		if err := h.users.UpdateStatus(u.ID, model.AccountSuspended); err != nil {
			return http.StatusInternalServerError, err
		}
	case actionExtendSubscription:
		if u.Subscription == nil {
			return http.StatusBadRequest, errors.New("user has no subscription")
		}
		if _, err := h.subs.Extend(u.Subscription.ID, req.ExtensionDays); err != nil {
			return http.StatusInternalServerError, err
		}
	case actionUpdatePlan:
		if u.Subscription == nil {
			start := h.now().UTC()
			if _, err := h.subs.Create(u.ID, req.PlanID, start, start.AddDate(0, 0, trialPeriodDays)); err != nil {
				return http.StatusInternalServerError, err
			}
			break
		}
		if err := h.subs.UpdatePlan(u.Subscription.ID, req.PlanID); err != nil {
			return http.StatusInternalServerError, err
		}
	}
	return http.StatusOK, nil
}

type createUserRequest struct {
	Email            string `json:"email"`
	Name             string `json:"name"`
	Role             string `json:"role"`
	Status           string `json:"status"`
	SubscriptionPlan string `json:"subscriptionPlan"`
	AutoActivate     bool   `json:"autoActivate"`
}

// CreateUser opens an account with a fresh billing period on the chosen plan.
// Accounts stay pending until activated unless autoActivate is set.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" || req.SubscriptionPlan == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: email, name, and subscriptionPlan are required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}
	plan := billing.PlanByID(req.SubscriptionPlan)
	if plan == nil {
		writeError(w, http.StatusBadRequest, "Invalid subscription plan")
		return
	}

	status := model.AccountPending
	if req.AutoActivate {
		status = model.AccountActive
	} else if req.Status != "" {
		status = model.AccountStatus(req.Status)
		if !model.ValidAccountStatus(status) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}

	existing, err := h.users.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("failed to check email", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "User with this email already exists")
		return
	}

	start := h.now().UTC()
	created, err := h.users.CreateWithSubscription(req.Email, req.Name, req.Role, status, plan.ID, start, start.AddDate(0, 0, trialPeriodDays))
	if err != nil {
		h.logger.Error("failed to create user", "email", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	h.logger.Info("user created", "user_id", created.ID, "plan", plan.ID, "status", status)
	h.broadcast(created)

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "User created successfully",
		"user":    created,
		"plan":    plan,
	})
}
