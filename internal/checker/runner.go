// Package checker runs the daily subscription check: it partitions every
// account, suspends lapsed ones, sends expiry notices and records the run.
package checker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/crmdesk/internal/metrics"
	"github.com/dukerupert/crmdesk/internal/model"
	"github.com/dukerupert/crmdesk/internal/store"
	"github.com/dukerupert/crmdesk/internal/subscription"
	"github.com/dukerupert/crmdesk/internal/websocket"
)

// SuspendReason is recorded with every automatic suspension.
const SuspendReason = "Subscription expired"

// ErrRunInProgress is returned by Run while another run on the same Runner
// has not finished.
var ErrRunInProgress = errors.New("subscription check already in progress")

type Runner struct {
	eval      *subscription.Evaluator
	users     UserSource
	suspender Suspender
	notifier  Notifier
	runs      RunRecorder
	hub       Broadcaster
	logger    *slog.Logger
	now       func() time.Time
	running   atomic.Bool

	concurrency int
	attempts    int
	baseDelay   time.Duration
}

type Option func(*Runner)

func WithRunRecorder(rr RunRecorder) Option {
	return func(r *Runner) { r.runs = rr }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(r *Runner) { r.hub = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock overrides the source of the evaluation time.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRetry sets the total attempts per action and the first backoff delay.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(r *Runner) {
		if attempts > 0 {
			r.attempts = attempts
		}
		if baseDelay > 0 {
			r.baseDelay = baseDelay
		}
	}
}

func NewRunner(eval *subscription.Evaluator, users UserSource, suspender Suspender, notifier Notifier, opts ...Option) *Runner {
	r := &Runner{
		eval:        eval,
		users:       users,
		suspender:   suspender,
		notifier:    notifier,
		logger:      slog.Default(),
		now:         time.Now,
		concurrency: 4,
		attempts:    3,
		baseDelay:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "checker")
	return r
}

// Run evaluates every account once. Only failing to load the account list
// is fatal; individual action failures are collected in the report. A call
// made while a run is active returns ErrRunInProgress without doing work.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		metrics.CheckRunsTotal.WithLabelValues("skipped").Inc()
		r.logger.Info("subscription check skipped, another run is in progress")
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	started := time.Now()
	now := r.now().UTC()
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)

	r.broadcast(websocket.NewMessage(websocket.EventRunStarted, runID, nil))
	logger.Info("subscription check started")

	users, err := r.users.ListWithSubscriptions(store.UserFilter{})
	if err != nil {
		metrics.CheckRunsTotal.WithLabelValues("failed").Inc()
		r.broadcast(websocket.NewMessage(websocket.EventRunFailed, runID, map[string]string{"error": err.Error()}))
		logger.Error("load users", "error", err)
		return nil, fmt.Errorf("load users: %w", err)
	}

	part := r.eval.Partition(users, now)
	report := newReport(runID, now, len(users), part)

	suspendErrs := make([]error, len(part.ToSuspend))
	notifyErrs := make([]error, len(part.ToNotify))
	notices := make([]subscription.Notification, len(part.ToNotify))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, u := range part.ToSuspend {
		g.Go(func() error {
			suspendErrs[i] = r.withRetry(ctx, func(ctx context.Context) error {
				return r.suspender.Suspend(ctx, u.ID, SuspendReason)
			})
			return nil
		})
	}
	for i, u := range part.ToNotify {
		notices[i] = r.eval.Notification(u, now)
		g.Go(func() error {
			notifyErrs[i] = r.withRetry(ctx, func(ctx context.Context) error {
				return r.notifier.Notify(ctx, u, notices[i])
			})
			return nil
		})
	}
	_ = g.Wait()

	for i, u := range part.ToSuspend {
		if err := suspendErrs[i]; err != nil {
			report.Actions.Errors = append(report.Actions.Errors, ActionError{UserID: u.ID, Action: ActionSuspend, Error: err.Error()})
			metrics.ActionsTotal.WithLabelValues(ActionSuspend, "error").Inc()
			logger.Warn("suspend failed", "user_id", u.ID, "error", err)
			continue
		}
		su := SuspendedUser{UserID: u.ID, Email: u.Email, Reason: SuspendReason}
		report.Actions.Suspended = append(report.Actions.Suspended, su)
		metrics.ActionsTotal.WithLabelValues(ActionSuspend, "ok").Inc()
		r.broadcast(websocket.NewMessage(websocket.EventUserSuspended, runID, su))
	}
	for i, u := range part.ToNotify {
		if err := notifyErrs[i]; err != nil {
			report.Actions.Errors = append(report.Actions.Errors, ActionError{UserID: u.ID, Action: ActionNotify, Error: err.Error()})
			metrics.ActionsTotal.WithLabelValues(ActionNotify, "error").Inc()
			logger.Warn("notify failed", "user_id", u.ID, "error", err)
			continue
		}
		nu := NotifiedUser{UserID: u.ID, Email: u.Email, Subject: notices[i].Subject, Urgency: notices[i].Urgency}
		report.Actions.Notified = append(report.Actions.Notified, nu)
		metrics.ActionsTotal.WithLabelValues(ActionNotify, "ok").Inc()
		r.broadcast(websocket.NewMessage(websocket.EventUserNotified, runID, nu))
	}

	finished := time.Now()
	r.observe(report, started, finished)
	r.record(logger, report, finished)
	r.broadcast(websocket.NewMessage(websocket.EventRunFinished, runID, report.Summary))

	logger.Info("subscription check finished",
		"users", report.Summary.TotalUsers,
		"suspended", len(report.Actions.Suspended),
		"notified", len(report.Actions.Notified),
		"errors", len(report.Actions.Errors),
		"duration", finished.Sub(started),
	)
	return report, nil
}

func (r *Runner) withRetry(ctx context.Context, fn retry.RetryFunc) error {
	b := retry.NewExponential(r.baseDelay)
	b = retry.WithJitterPercent(10, b)
	b = retry.WithMaxRetries(uint64(r.attempts-1), b)
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r *Runner) observe(report *Report, started, finished time.Time) {
	metrics.CheckRunsTotal.WithLabelValues("ok").Inc()
	metrics.CheckRunDuration.Observe(finished.Sub(started).Seconds())
	metrics.LastRunTimestamp.Set(float64(finished.Unix()))
	metrics.LastRunUsers.WithLabelValues("total").Set(float64(report.Summary.TotalUsers))
	metrics.LastRunUsers.WithLabelValues("to_suspend").Set(float64(report.Summary.ToSuspend))
	metrics.LastRunUsers.WithLabelValues("to_notify").Set(float64(report.Summary.ToNotify))
	metrics.LastRunUsers.WithLabelValues("expired").Set(float64(report.Summary.Expired))
}

func (r *Runner) record(logger *slog.Logger, report *Report, finished time.Time) {
	if r.runs == nil {
		return
	}
	body, err := json.Marshal(report)
	if err != nil {
		logger.Error("marshal report", "error", err)
		return
	}
	run := model.JobRun{
		ID:         report.RunID,
		StartedAt:  report.Timestamp,
		FinishedAt: finished.UTC(),
		TotalUsers: report.Summary.TotalUsers,
		ToSuspend:  report.Summary.ToSuspend,
		ToNotify:   report.Summary.ToNotify,
		Expired:    report.Summary.Expired,
		Suspended:  len(report.Actions.Suspended),
		Notified:   len(report.Actions.Notified),
		Errors:     len(report.Actions.Errors),
		Report:     string(body),
	}
	if err := r.runs.Record(run); err != nil {
		logger.Error("record run", "error", err)
	}
}

func (r *Runner) broadcast(msg websocket.Message) {
	if r.hub != nil {
		r.hub.Broadcast(msg)
	}
}
