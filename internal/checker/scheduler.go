package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the check daily at 09:00 UTC.
const DefaultSchedule = "0 9 * * *"

// runTimeout bounds a single scheduled run.
const runTimeout = 10 * time.Minute

// Scheduler triggers the runner on a cron schedule. A trigger that fires
// while the previous run is still going is skipped.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	runner *Runner
	spec   string
	entry  cron.EntryID
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule checks a five-field cron expression or @descriptor.
func ValidateSchedule(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return nil
}

func NewScheduler(runner *Runner, spec string, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if err := ValidateSchedule(spec); err != nil {
		return nil, err
	}
	logger = logger.With("component", "scheduler")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))

	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner: runner,
		spec:   spec,
		logger: logger,
	}
	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("add schedule: %w", err)
	}
	s.entry = id
	return s, nil
}

// Start begins firing on schedule. Runs are cancelled when ctx is done or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.spec, "next", s.Next())
}

// Stop halts the schedule and waits for a running check to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) Schedule() string {
	return s.spec
}

// Next returns the next activation time, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithTimeout(parent, runTimeout)
	defer cancel()

	_, err := s.runner.Run(ctx)
	if err != nil && !errors.Is(err, ErrRunInProgress) {
		s.logger.Error("scheduled check failed", "error", err)
	}
}
