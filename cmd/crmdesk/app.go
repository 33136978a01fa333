package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukerupert/crmdesk/internal/adminapi"
	"github.com/dukerupert/crmdesk/internal/auth"
	"github.com/dukerupert/crmdesk/internal/checker"
	"github.com/dukerupert/crmdesk/internal/config"
	"github.com/dukerupert/crmdesk/internal/database"
	"github.com/dukerupert/crmdesk/internal/email"
	"github.com/dukerupert/crmdesk/internal/logging"
	"github.com/dukerupert/crmdesk/internal/store"
	"github.com/dukerupert/crmdesk/internal/subscription"
	ws "github.com/dukerupert/crmdesk/internal/websocket"
)

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	eval   *subscription.Evaluator
	issuer *auth.Issuer
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		eval:   subscription.New(policy),
		issuer: auth.NewIssuer(cfg.JWTSecret, 0),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// runner wires the batch job. Suspensions go through the admin API when one
// is configured and straight to the database otherwise; notices go through
// Postmark when it is configured and to the log otherwise.
func (a *app) runner(hub *ws.Hub) *checker.Runner {
	users := store.NewUserStore(a.db)

	var suspender checker.Suspender
	if a.cfg.AdminAPIURL != "" {
		suspender = adminapi.NewClient(a.cfg.AdminAPIURL, a.issuer)
		a.logger.Info("suspending through admin API", "url", a.cfg.AdminAPIURL)
	} else {
		suspender = checker.NewStoreSuspender(users, a.logger.With("component", "suspender"))
	}

	var notifier checker.Notifier
	emailClient := email.NewClient(a.cfg.PostmarkToken, a.cfg.FromEmail, a.cfg.BaseURL)
	if emailClient.Configured() {
		notifier = emailClient
	} else {
		a.logger.Warn("postmark not configured, expiry notices will only be logged")
		notifier = checker.NewLogNotifier(a.logger.With("component", "notifier"))
	}

	opts := []checker.Option{
		checker.WithRunRecorder(store.NewRunStore(a.db)),
		checker.WithLogger(a.logger),
		checker.WithConcurrency(a.cfg.Concurrency),
		checker.WithRetry(a.cfg.RetryAttempts, a.cfg.RetryBaseDelay),
	}
	if hub != nil {
		opts = append(opts, checker.WithBroadcaster(hub))
	}
	return checker.NewRunner(a.eval, users, suspender, notifier, opts...)
}
