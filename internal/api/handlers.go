// Package api exposes the crawl job queue over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maltedev/product-ranker/internal/crawler"
	"github.com/maltedev/product-ranker/internal/database"
	"github.com/maltedev/product-ranker/internal/export"
	"github.com/maltedev/product-ranker/internal/models"
	"github.com/maltedev/product-ranker/internal/scoring"
)

// JobService is the job-queue surface the handlers need; implemented
// by jobs.Manager.
type JobService interface {
	Create(ctx context.Context, searchURL string, pageLimit int, method string) (*database.CrawlJob, error)
	Get(ctx context.Context, id uuid.UUID) (*database.CrawlJob, error)
	List(ctx context.Context, limit int) ([]*database.CrawlJob, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// SessionLoader fetches the snapshot a finished job points at;
// implemented by database.SessionRepository.
type SessionLoader interface {
	LoadSession(ctx context.Context, id string) (*crawler.SessionSnapshot, error)
}

type Handlers struct {
	jobs     JobService
	sessions SessionLoader
	logger   *slog.Logger
}

func NewHandlers(jobs JobService, sessions SessionLoader) *Handlers {
	return &Handlers{
		jobs:     jobs,
		sessions: sessions,
		logger:   slog.Default().With("component", "api"),
	}
}

// Routes mounts all job endpoints.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/jobs", h.CreateJob)
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{jobID}", h.GetJob)
	r.Post("/jobs/{jobID}/cancel", h.CancelJob)
	r.Get("/jobs/{jobID}/items", h.GetJobItems)
	r.Get("/jobs/{jobID}/stats", h.GetJobStats)
	r.Get("/methods", h.ListMethods)
	return r
}

// CreateJobRequest is a new crawl request.
type CreateJobRequest struct {
	SearchURL string `json:"search_url"`
	PageLimit int    `json:"page_limit"`
	Method    string `json:"method"`
}

type jobResponse struct {
	ID         string  `json:"id"`
	SearchURL  string  `json:"search_url"`
	PageLimit  int     `json:"page_limit"`
	Method     string  `json:"method"`
	Status     string  `json:"status"`
	SessionID  *string `json:"session_id,omitempty"`
	StopReason *string `json:"stop_reason,omitempty"`
	ItemCount  int     `json:"item_count"`
	Error      *string `json:"error,omitempty"`
}

func toJobResponse(job *database.CrawlJob) jobResponse {
	return jobResponse{
		ID:         job.ID.String(),
		SearchURL:  job.SearchURL,
		PageLimit:  job.PageLimit,
		Method:     job.Method,
		Status:     job.Status,
		SessionID:  job.SessionID,
		StopReason: job.StopReason,
		ItemCount:  job.ItemCount,
		Error:      job.ErrorMessage,
	}
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SearchURL == "" {
		h.respondError(w, http.StatusBadRequest, "search_url is required")
		return
	}

	job, err := h.jobs.Create(r.Context(), req.SearchURL, req.PageLimit, req.Method)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusCreated, toJobResponse(job))
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, database.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get job", "job_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toJobResponse(job))
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	err := h.jobs.Cancel(r.Context(), id)
	if errors.Is(err, database.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "job not found or already finished")
		return
	}
	if err != nil {
		h.logger.Error("failed to cancel job", "job_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

// GetJobItems returns the collected items of a job's session, best
// score first. ?format=csv streams the same data as a CSV download.
func (h *Handlers) GetJobItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, database.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if job.SessionID == nil {
		h.respondError(w, http.StatusConflict, "job has no results yet")
		return
	}

	snap, err := h.sessions.LoadSession(r.Context(), *job.SessionID)
	if errors.Is(err, database.ErrSessionNotFound) {
		h.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load session", "session_id", *job.SessionID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="products.csv"`)
		if err := export.WriteCSV(w, snap.Items); err != nil {
			h.logger.Error("failed to write csv", "error", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := export.WriteJSON(w, snap.Items); err != nil {
		h.logger.Error("failed to write json", "error", err)
	}
}

// GetJobStats summarizes a job's collected batch: totals, review
// spread and average rating.
func (h *Handlers) GetJobStats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, database.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if job.SessionID == nil {
		h.respondError(w, http.StatusConflict, "job has no results yet")
		return
	}

	snap, err := h.sessions.LoadSession(r.Context(), *job.SessionID)
	if errors.Is(err, database.ErrSessionNotFound) {
		h.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load session", "session_id", *job.SessionID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	h.respondJSON(w, http.StatusOK, models.ComputeBatchStats(snap.Items))
}

func (h *Handlers) ListMethods(w http.ResponseWriter, r *http.Request) {
	methods := scoring.Methods()
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		out = append(out, string(m))
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"methods": out})
}

func (h *Handlers) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "jobID")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid job ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
