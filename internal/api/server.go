// Package api exposes the HTTP interface for the crawl orchestrator.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robowatch/crawler/internal/crawl"
	"github.com/robowatch/crawler/internal/dedup"
	"github.com/robowatch/crawler/internal/telemetry"
)

// Trigger is the scheduler surface the API drives. Satisfied by
// *scheduler.Scheduler.
type Trigger interface {
	TriggerTarget(ctx context.Context, targetID string) (string, error)
	TriggerAll(ctx context.Context) (int, error)
	CancelJob(jobID string) error
}

// Config controls server behavior.
type Config struct {
	RequestTimeout time.Duration
	DefaultCron    string
}

// Server wires HTTP handlers to the stores and the scheduler.
type Server struct {
	router  chi.Router
	targets crawl.TargetStore
	jobs    crawl.JobStore
	errs    crawl.ErrorStore
	trigger Trigger
	dedup   *dedup.Deduplicator
	idGen   crawl.IDGenerator
	clock   crawl.Clock
	cfg     Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	targets crawl.TargetStore,
	jobs crawl.JobStore,
	errs crawl.ErrorStore,
	trigger Trigger,
	deduplicator *dedup.Deduplicator,
	idGen crawl.IDGenerator,
	clock crawl.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.DefaultCron == "" {
		cfg.DefaultCron = "0 0 * * 0"
	}
	s := &Server{
		targets: targets,
		jobs:    jobs,
		errs:    errs,
		trigger: trigger,
		dedup:   deduplicator,
		idGen:   idGen,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/crawl", func(r chi.Router) {
			r.Post("/trigger-all", s.triggerAll)
			r.Route("/targets", func(r chi.Router) {
				r.Post("/", s.createTarget)
				r.Get("/", s.listTargets)
				r.Route("/{target_id}", func(r chi.Router) {
					r.Patch("/", s.updateTarget)
					r.Delete("/", s.deleteTarget)
					r.Patch("/enable", s.enableTarget)
					r.Patch("/disable", s.disableTarget)
					r.Post("/trigger", s.triggerTarget)
				})
			})
			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", s.listJobs)
				r.Get("/{job_id}", s.getJob)
				r.Post("/{job_id}/cancel", s.cancelJob)
			})
			r.Route("/errors", func(r chi.Router) {
				r.Get("/", s.listErrors)
				r.Get("/stats", s.errorStats)
			})
		})
		r.Post("/articles/check-duplicate", s.checkDuplicate)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.targets.ListTargets(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createTargetRequest struct {
	Domain         string                `json:"domain"`
	URLs           []string              `json:"urls"`
	Patterns       []crawl.Pattern       `json:"patterns"`
	CronExpression string                `json:"cron_expression"`
	RateLimit      crawl.RateLimitConfig `json:"rate_limit"`
	Enabled        *bool                 `json:"enabled"`
}

func (s *Server) createTarget(w http.ResponseWriter, r *http.Request) {
	var req createTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain required")
		return
	}
	cronExpr := req.CronExpression
	if cronExpr == "" {
		cronExpr = s.cfg.DefaultCron
	}
	if _, err := crawl.ParseCron(cronExpr); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}
	now := s.clock.Now()
	target := crawl.Target{
		ID:             id,
		Domain:         req.Domain,
		URLs:           req.URLs,
		Patterns:       req.Patterns,
		CronExpression: cronExpr,
		RateLimit:      req.RateLimit,
		Enabled:        req.Enabled == nil || *req.Enabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := s.targets.CreateTarget(r.Context(), target)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create target failed")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type updateTargetRequest struct {
	Domain         *string                `json:"domain"`
	URLs           *[]string              `json:"urls"`
	Patterns       *[]crawl.Pattern       `json:"patterns"`
	CronExpression *string                `json:"cron_expression"`
	RateLimit      *crawl.RateLimitConfig `json:"rate_limit"`
	Enabled        *bool                  `json:"enabled"`
}

// updateTarget applies a partial update. Absent fields keep their stored
// values, so a rate-limit tune does not have to restate the URL list.
func (s *Server) updateTarget(w http.ResponseWriter, r *http.Request) {
	var req updateTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	target, err := s.targets.GetTarget(r.Context(), chi.URLParam(r, "target_id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	if req.Domain != nil {
		if *req.Domain == "" {
			writeError(w, http.StatusBadRequest, "domain required")
			return
		}
		target.Domain = *req.Domain
	}
	if req.URLs != nil {
		target.URLs = *req.URLs
	}
	if req.Patterns != nil {
		target.Patterns = *req.Patterns
	}
	if req.CronExpression != nil {
		if _, err := crawl.ParseCron(*req.CronExpression); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		target.CronExpression = *req.CronExpression
	}
	if req.RateLimit != nil {
		target.RateLimit = *req.RateLimit
	}
	if req.Enabled != nil {
		target.Enabled = *req.Enabled
	}
	target.UpdatedAt = s.clock.Now()

	updated, err := s.targets.UpdateTarget(r.Context(), target)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.targets.ListTargets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list targets failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": targets})
}

func (s *Server) deleteTarget(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "target_id")
	if err := s.targets.DeleteTarget(r.Context(), targetID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": targetID})
}

func (s *Server) enableTarget(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, true)
}

func (s *Server) disableTarget(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, false)
}

// setEnabled flips the flag; running jobs are unaffected, only future
// scheduler ticks observe the change.
func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	targetID := chi.URLParam(r, "target_id")
	if err := s.targets.SetEnabled(r.Context(), targetID, enabled); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": targetID, "enabled": enabled})
}

func (s *Server) triggerTarget(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "target_id")
	jobID, err := s.trigger.TriggerTarget(r.Context(), targetID)
	if err != nil {
		switch {
		case errors.Is(err, crawl.ErrTargetNotFound):
			writeError(w, http.StatusNotFound, "target not found")
		case errors.Is(err, crawl.ErrJobRunning):
			writeError(w, http.StatusConflict, "target already has a running job")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) triggerAll(w http.ResponseWriter, r *http.Request) {
	triggered, err := s.trigger.TriggerAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"triggered": triggered})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	filter := crawl.JobFilter{
		Status: crawl.JobStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	jobs, total, err := s.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list jobs failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": jobs, "total": total})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.trigger.CancelJob(jobID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) listErrors(w http.ResponseWriter, r *http.Request) {
	filter := crawl.ErrorFilter{
		JobID:  r.URL.Query().Get("job_id"),
		Kind:   crawl.ErrorKind(r.URL.Query().Get("error_type")),
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}
	rows, total, err := s.errs.ListErrors(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list errors failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": rows, "total": total})
}

func (s *Server) errorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.errs.Stats(r.Context(), s.clock.Now().Add(-24*time.Hour))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type checkDuplicateRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// checkDuplicate reports the dedup verdict for raw content without
// reserving anything, so manual article entry shares the crawler's key
// space.
func (s *Server) checkDuplicate(w http.ResponseWriter, r *http.Request) {
	var req checkDuplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" && req.Content == "" {
		writeError(w, http.StatusBadRequest, "title or content required")
		return
	}
	hash, isDup, err := s.dedup.CheckContent(r.Context(), req.Title, req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "duplicate check failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"content_hash": hash,
		"is_duplicate": isDup,
	})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, crawl.ErrTargetNotFound), errors.Is(err, crawl.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		telemetry.ObserveHTTPRequest(r.Method, r.URL.Path, elapsed)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
