package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/crmdesk/internal/billing/stripe"
	"github.com/dukerupert/crmdesk/internal/checker"
	"github.com/dukerupert/crmdesk/internal/server"
	ws "github.com/dukerupert/crmdesk/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the daily subscription check",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return runServer(cmd.Context(), a)
	},
}

func runServer(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := a.logger
	hub := ws.NewHub(logger.With("component", "websocket"))
	runner := a.runner(hub)

	srv := server.New(a.db, runner, a.eval, hub, a.issuer,
		stripe.NewClient(a.cfg.StripeSecretKey, a.cfg.StripeWebhookSecret),
		server.Config{
			CronSecret:     a.cfg.CronSecret,
			Schedule:       a.cfg.CheckSchedule,
			RateLimit:      a.cfg.RateLimit,
			OriginPatterns: a.cfg.Origins(),
		}, logger)

	if a.cfg.CronSecret == "" {
		logger.Warn("cron_secret not set, the check endpoint accepts unauthenticated requests")
	}

	if a.cfg.SchedulerEnabled {
		sched, err := checker.NewScheduler(runner, a.cfg.CheckSchedule, logger)
		if err != nil {
			return err
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup(10 * time.Minute)
			}
		}
	}()

	// No write timeout: check runs and websocket streams are long-lived.
	httpServer := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("crmdesk listening", "addr", httpServer.Addr, "version", Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
