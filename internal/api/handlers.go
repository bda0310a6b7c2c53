package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/seed-price-scraper/internal/jobs"
	"github.com/maltedev/seed-price-scraper/internal/scraper"
)

const (
	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

// Runner is implemented by *jobs.Manager.
type Runner interface {
	Seedbanks() []scraper.Seedbank
	Enqueue(slugs []string, trigger string) ([]jobs.Run, error)
	ListRuns() []jobs.Run
	GetRun(id string) (jobs.Run, error)
	Running() []string
	CheckAlerts(ctx context.Context) (int, error)
	SweepAlerts(ctx context.Context) (int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// OutboxStats is implemented by *database.OutboxRepository.
type OutboxStats interface {
	PendingCount(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	runner Runner
	store  Pinger
	outbox OutboxStats
	logger *slog.Logger
}

// NewHandlers wires the HTTP surface. outbox may be nil when events do not
// go through the transactional outbox.
func NewHandlers(runner Runner, store Pinger, outbox OutboxStats, logger *slog.Logger) *Handlers {
	return &Handlers{
		runner: runner,
		store:  store,
		outbox: outbox,
		logger: logger.With("component", "api"),
	}
}

type HealthResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Storage string        `json:"storage"`
	Outbox  *OutboxHealth `json:"outbox,omitempty"`
	Running []string      `json:"running"`
}

type OutboxHealth struct {
	Pending    int64 `json:"pending"`
	DeadLetter int64 `json:"dead_letter"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:  "ok",
		Storage: "ok",
		Running: h.runner.Running(),
	}
	status := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("storage health check failed", "error", err)
		resp.Status = "error"
		resp.Storage = "unreachable"
		resp.Message = "storage is unreachable"
		h.respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if h.outbox != nil {
		pending, _ := h.outbox.PendingCount(ctx)
		deadLetter, _ := h.outbox.DeadLetterCount(ctx)
		resp.Outbox = &OutboxHealth{Pending: pending, DeadLetter: deadLetter}

		if pending > pendingWarnThreshold {
			resp.Status = "warning"
			resp.Message = "High number of pending outbox events"
		}
		if deadLetter > deadLetterFailThreshold {
			resp.Status = "error"
			resp.Message = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, resp)
}

func (h *Handlers) ListSeedbanks(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.runner.Seedbanks())
}

type RunRequest struct {
	Seedbanks []string `json:"seedbanks"`
}

type RunResponse struct {
	Runs    []jobs.Run `json:"runs"`
	Message string     `json:"message"`
}

// RunAll enqueues the seedbanks named in the optional body, or all of them.
func (h *Handlers) RunAll(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.enqueue(w, req.Seedbanks)
}

func (h *Handlers) RunSeedbank(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		h.respondError(w, http.StatusBadRequest, "seedbank slug is required")
		return
	}

	h.enqueue(w, []string{slug})
}

func (h *Handlers) enqueue(w http.ResponseWriter, slugs []string) {
	runs, err := h.runner.Enqueue(slugs, jobs.TriggerAPI)
	switch {
	case errors.Is(err, jobs.ErrUnknownSeedbank):
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, jobs.ErrQueueFull):
		h.respondError(w, http.StatusTooManyRequests, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to enqueue runs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to enqueue runs")
		return
	}

	h.respondJSON(w, http.StatusAccepted, RunResponse{
		Runs:    runs,
		Message: "Runs enqueued",
	})
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.runner.ListRuns())
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runner.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) CheckAlerts(w http.ResponseWriter, r *http.Request) {
	triggered, err := h.runner.CheckAlerts(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "alert check failed")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]int{"triggered": triggered})
}

func (h *Handlers) SweepAlerts(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.runner.SweepAlerts(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "alert sweep failed")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
