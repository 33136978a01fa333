package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/crmdesk/internal/auth"
	"github.com/dukerupert/crmdesk/internal/billing/stripe"
	"github.com/dukerupert/crmdesk/internal/checker"
	"github.com/dukerupert/crmdesk/internal/database"
	"github.com/dukerupert/crmdesk/internal/metrics"
	"github.com/dukerupert/crmdesk/internal/model"
	"github.com/dukerupert/crmdesk/internal/store"
	"github.com/dukerupert/crmdesk/internal/subscription"
	ws "github.com/dukerupert/crmdesk/internal/websocket"
)

const testCronSecret = "cron-secret"

type fixture struct {
	handler http.Handler
	users   *store.UserStore
	subs    *store.SubscriptionStore
	keys    *store.APIKeyStore
	issuer  *auth.Issuer
}

func setup(t *testing.T, stripeClient *stripe.Client) fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := store.NewUserStore(db)
	eval := subscription.New(subscription.DefaultPolicy())
	hub := ws.NewHub(logger)
	runner := checker.NewRunner(eval, users,
		checker.NewStoreSuspender(users, logger),
		checker.NewLogNotifier(logger),
		checker.WithRunRecorder(store.NewRunStore(db)),
		checker.WithBroadcaster(hub),
		checker.WithLogger(logger),
	)
	issuer := auth.NewIssuer("test-jwt-secret", time.Minute)

	srv := New(db, runner, eval, hub, issuer, stripeClient, Config{
		CronSecret: testCronSecret,
		Schedule:   checker.DefaultSchedule,
		RateLimit:  1000,
	}, logger)

	return fixture{
		handler: srv.Router(),
		users:   users,
		subs:    store.NewSubscriptionStore(db),
		keys:    store.NewAPIKeyStore(db),
		issuer:  issuer,
	}
}

func (f fixture) request(method, target, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	f := setup(t, nil)

	assert.Equal(t, http.StatusOK, f.request("GET", "/health", "").Code)
	assert.Equal(t, http.StatusOK, f.request("GET", "/metrics", "").Code)
	assert.Equal(t, http.StatusOK, f.request("GET", "/api/cron/check-subscriptions?test=true", "").Code)
}

func TestAdminRoutesRequireCredentials(t *testing.T) {
	f := setup(t, nil)

	for _, target := range []string{"/api/admin/users", "/api/admin/users/some-id", "/api/cron/runs", "/ws"} {
		rec := f.request("GET", target, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}

	rec := f.request("GET", "/api/admin/users", "not-a-key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesAcceptServiceToken(t *testing.T) {
	f := setup(t, nil)

	token, err := f.issuer.Issue("subscription-checker", auth.RoleAdmin)
	require.NoError(t, err)
	rec := f.request("GET", "/api/admin/users", token)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	userToken, err := f.issuer.Issue("someone", "user")
	require.NoError(t, err)
	rec = f.request("GET", "/api/admin/users", userToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminRoutesAcceptAPIKey(t *testing.T) {
	f := setup(t, nil)

	_, plaintext, err := f.keys.Create("dashboard")
	require.NoError(t, err)
	rec := f.request("GET", "/api/cron/runs", plaintext)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCronTriggerRunsCheck(t *testing.T) {
	f := setup(t, nil)

	u, err := f.users.Create("lapsed@example.com", "Lapsed", "", "")
	require.NoError(t, err)
	start := time.Now().UTC().AddDate(0, -2, 0)
	_, err = f.subs.Create(u.ID, "starter", start, start.AddDate(0, 1, 0))
	require.NoError(t, err)

	rec := f.request("POST", "/api/cron/check-subscriptions", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	suspendedBefore := testutil.ToFloat64(metrics.ActionsTotal.WithLabelValues(checker.ActionSuspend, "ok"))
	rec = f.request("POST", "/api/cron/check-subscriptions", testCronSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, suspendedBefore+1, testutil.ToFloat64(metrics.ActionsTotal.WithLabelValues(checker.ActionSuspend, "ok")))

	var resp struct {
		Success bool           `json:"success"`
		Results checker.Report `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Results.Summary.ToSuspend)
	require.Len(t, resp.Results.Actions.Suspended, 1)
	assert.Equal(t, u.ID, resp.Results.Actions.Suspended[0].UserID)

	got, err := f.users.GetByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountSuspended, got.Status)

	token, err := f.issuer.Issue("ops", auth.RoleAdmin)
	require.NoError(t, err)
	rec = f.request("GET", "/api/cron/runs/"+resp.Results.RunID, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.request("GET", "/metrics", "")
	assert.Contains(t, rec.Body.String(), "crmdesk_checker_runs_total")
}

func TestStripeWebhookRouteOnlyWhenConfigured(t *testing.T) {
	f := setup(t, nil)
	assert.Equal(t, http.StatusNotFound, f.request("POST", "/webhooks/stripe", "").Code)

	f = setup(t, stripe.NewClient("", "whsec_test"))
	rec := f.request("POST", "/webhooks/stripe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unsigned payloads are rejected")
}
