package checker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukerupert/crmdesk/internal/model"
	"github.com/dukerupert/crmdesk/internal/store"
	"github.com/dukerupert/crmdesk/internal/subscription"
	"github.com/dukerupert/crmdesk/internal/websocket"
)

// UserSource loads users joined with their current subscription.
type UserSource interface {
	ListWithSubscriptions(f store.UserFilter) ([]model.User, error)
}

// Suspender suspends a user's account.
type Suspender interface {
	Suspend(ctx context.Context, userID, reason string) error
}

// Notifier delivers an expiry notice to a user.
type Notifier interface {
	Notify(ctx context.Context, u model.User, n subscription.Notification) error
}

// RunRecorder persists finished runs.
type RunRecorder interface {
	Record(r model.JobRun) error
}

// Broadcaster pushes run events to connected dashboards.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

// IsRetryable reports whether an action failure may succeed on another
// attempt. Errors that expose Retryable() decide for themselves; context
// cancellation and unknown users are permanent; anything else is treated as
// a transient transport failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

type statusUpdater interface {
	UpdateStatus(id string, status model.AccountStatus) error
}

// StoreSuspender suspends accounts directly in the local database.
type StoreSuspender struct {
	users  statusUpdater
	logger *slog.Logger
}

func NewStoreSuspender(users statusUpdater, logger *slog.Logger) *StoreSuspender {
	return &StoreSuspender{users: users, logger: logger}
}

func (s *StoreSuspender) Suspend(ctx context.Context, userID, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.users.UpdateStatus(userID, model.AccountSuspended); err != nil {
		return err
	}
	s.logger.Info("user suspended", "user_id", userID, "reason", reason)
	return nil
}

// LogNotifier writes notices to the log instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, u model.User, note subscription.Notification) error {
	n.logger.Info("subscription notice",
		"user_id", u.ID,
		"email", u.Email,
		"subject", note.Subject,
		"urgency", string(note.Urgency),
	)
	return nil
}
