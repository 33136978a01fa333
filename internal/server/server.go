package server

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/crmdesk/internal/auth"
	"github.com/dukerupert/crmdesk/internal/billing/stripe"
	"github.com/dukerupert/crmdesk/internal/handler"
	"github.com/dukerupert/crmdesk/internal/middleware"
	"github.com/dukerupert/crmdesk/internal/store"
	"github.com/dukerupert/crmdesk/internal/subscription"
	ws "github.com/dukerupert/crmdesk/internal/websocket"
)

type Config struct {
	CronSecret string
	Schedule   string
	// RateLimit is the per-client request budget per minute on API routes.
	RateLimit int
	// OriginPatterns are the extra origins allowed to open /ws.
	OriginPatterns []string
}

type Server struct {
	hub         *ws.Hub
	issuer      *auth.Issuer
	apiKeys     *store.APIKeyStore
	adminH      *handler.AdminHandler
	cronH       *handler.CronHandler
	healthH     *handler.HealthHandler
	webhookH    *stripe.WebhookHandler
	rateLimiter *middleware.RateLimiter
	cfg         Config
	logger      *slog.Logger
}

// New builds the HTTP surface. stripeClient may be nil or unconfigured, in
// which case the webhook route is not registered.
func New(db *sql.DB, runner handler.CheckRunner, eval *subscription.Evaluator, hub *ws.Hub, issuer *auth.Issuer, stripeClient *stripe.Client, cfg Config, logger *slog.Logger) *Server {
	userStore := store.NewUserStore(db)
	subStore := store.NewSubscriptionStore(db)
	runStore := store.NewRunStore(db)

	var webhookH *stripe.WebhookHandler
	if stripeClient != nil && stripeClient.Configured() {
		webhookH = stripe.NewWebhookHandler(stripeClient, subStore, hub, logger)
	}

	return &Server{
		hub:         hub,
		issuer:      issuer,
		apiKeys:     store.NewAPIKeyStore(db),
		adminH:      handler.NewAdminHandler(userStore, subStore, eval, hub, logger.With("component", "admin")),
		cronH:       handler.NewCronHandler(runner, runStore, cfg.Schedule, logger.With("component", "cron")),
		healthH:     handler.NewHealthHandler(db),
		webhookH:    webhookH,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimit),
		cfg:         cfg,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthH.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/cron/check-subscriptions", s.cronH.Describe)
	if s.webhookH != nil {
		mux.HandleFunc("POST /webhooks/stripe", s.webhookH.HandleStripeWebhook)
	}

	// Cron trigger, guarded by the shared secret
	cronAuth := middleware.RequireCronSecret(s.cfg.CronSecret)
	mux.Handle("POST /api/cron/check-subscriptions", s.rateLimited(cronAuth(http.HandlerFunc(s.cronH.CheckSubscriptions))))

	// Admin routes
	mux.Handle("GET /api/cron/runs", s.admin(s.cronH.ListRuns))
	mux.Handle("GET /api/cron/runs/{id}", s.admin(s.cronH.GetRun))
	mux.Handle("GET /api/admin/users", s.admin(s.adminH.ListUsers))
	mux.Handle("POST /api/admin/users", s.admin(s.adminH.CreateUser))
	mux.Handle("PATCH /api/admin/users", s.admin(s.adminH.UpdateUser))
	mux.Handle("GET /api/admin/users/{id}", s.admin(s.adminH.GetUser))
	mux.Handle("GET /ws", s.admin(ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), s.cfg.OriginPatterns...)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) rateLimited(h http.Handler) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.RealIP)(h)
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.rateLimited(middleware.RequireAdmin(s.issuer, s.apiKeys)(h))
}
