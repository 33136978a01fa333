package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/crmdesk/internal/checker"
	"github.com/dukerupert/crmdesk/internal/model"
)

// A triggered run outlives the request that started it so a cron client
// hanging up does not abort suspensions halfway.
const checkTimeout = 10 * time.Minute

type CheckRunner interface {
	Run(ctx context.Context) (*checker.Report, error)
}

type RunLister interface {
	ListRecent(limit int) ([]model.JobRun, error)
	GetByID(id string) (*model.JobRun, error)
}

type CronHandler struct {
	runner   CheckRunner
	runs     RunLister
	schedule string
	now      func() time.Time
	logger   *slog.Logger
}

func NewCronHandler(runner CheckRunner, runs RunLister, schedule string, logger *slog.Logger) *CronHandler {
	return &CronHandler{
		runner:   runner,
		runs:     runs,
		schedule: schedule,
		now:      time.Now,
		logger:   logger,
	}
}

func (h *CronHandler) CheckSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), checkTimeout)
	defer cancel()

	report, err := h.runner.Run(ctx)
	if errors.Is(err, checker.ErrRunInProgress) {
		writeError(w, http.StatusConflict, "Subscription check already in progress")
		return
	}
	if err != nil {
		h.logger.Error("subscription check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to process subscription check",
			"details": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Subscription check completed",
		"results": report,
	})
}

// Describe answers GET on the check endpoint. With ?test=true it is a
// liveness probe; otherwise it documents the endpoint.
func (h *CronHandler) Describe(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("test") == "true" {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"message":   "Subscription check endpoint is working",
			"timestamp": h.now().UTC(),
			"test":      true,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"endpoint":    "/api/cron/check-subscriptions",
		"method":      http.MethodPost,
		"description": "Cron job endpoint for checking subscription expiry",
		"schedule":    h.schedule,
		"actions": []string{
			"Suspend users with expired subscriptions",
			"Send expiry notifications",
			"Record the run report",
		},
	})
}

func (h *CronHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRecent(limit)
	if err != nil {
		h.logger.Error("failed to list job runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list job runs")
		return
	}
	if runs == nil {
		runs = []model.JobRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun returns one run with its full report.
func (h *CronHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("failed to get job run", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get job run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		model.JobRun
		Report json.RawMessage `json:"report"`
	}{JobRun: *run, Report: json.RawMessage(run.Report)})
}
