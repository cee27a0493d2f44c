package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/askmysite/askmysite/internal/config"
	"github.com/askmysite/askmysite/internal/dispatcher"
	"github.com/askmysite/askmysite/internal/metrics"
	"github.com/askmysite/askmysite/internal/pipeline"
	"github.com/askmysite/askmysite/internal/rag"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// statusErrorLimit caps how many job errors a status response carries.
const statusErrorLimit = 10

// Server wires HTTP handlers to the dispatcher, job store, and pipeline.
type Server struct {
	router     chi.Router
	jobs       rag.JobStore
	dispatcher *dispatcher.Dispatcher
	pipe       *pipeline.Pipeline
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobs rag.JobStore,
	dispatcher *dispatcher.Dispatcher,
	pipe *pipeline.Pipeline,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobs:       jobs,
		dispatcher: dispatcher,
		pipe:       pipe,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/ingest", s.ingest)
	r.Get("/status/{job_id}", s.status)
	r.Post("/ask", s.ask)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

type ingestRequest struct {
	SeedURLs        []string `json:"seed_urls"`
	DomainAllowlist []string `json:"domain_allowlist"`
	MaxPages        *int     `json:"max_pages"`
	MaxDepth        *int     `json:"max_depth"`
}

type ingestResponse struct {
	JobID         string `json:"job_id"`
	AcceptedPages int    `json:"accepted_pages"`
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.SeedURLs) == 0 {
		writeError(w, http.StatusBadRequest, "seed_urls must not be empty")
		return
	}
	if len(req.DomainAllowlist) == 0 {
		writeError(w, http.StatusBadRequest, "domain_allowlist must not be empty")
		return
	}

	maxPages := clamp(valueOrDefault(req.MaxPages, s.cfg.Crawler.MaxPagesDefault), 1, s.cfg.Crawler.MaxPagesLimit)
	maxDepth := clamp(valueOrDefault(req.MaxDepth, s.cfg.Crawler.MaxDepthDefault), 0, s.cfg.Crawler.MaxDepthLimit)

	job, err := s.jobs.Create(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	metrics.ObserveJob(string(rag.JobStateQueued))

	ingest := rag.IngestRequest{
		JobID:           job.ID,
		SeedURLs:        req.SeedURLs,
		DomainAllowlist: req.DomainAllowlist,
		MaxPages:        maxPages,
		MaxDepth:        maxDepth,
	}
	if err := s.dispatcher.Enqueue(r.Context(), ingest); err != nil {
		s.logger.Error("enqueue ingest failed", zap.String("job_id", job.ID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "ingest queue unavailable")
		return
	}

	// accepted_pages echoes how many seed URLs were accepted for crawling.
	writeJSON(w, http.StatusAccepted, ingestResponse{
		JobID:         job.ID,
		AcceptedPages: len(req.SeedURLs),
	})
}

type statusResponse struct {
	JobID        string         `json:"job_id"`
	State        string         `json:"state"`
	PagesFetched int            `json:"pages_fetched"`
	PagesIndexed int            `json:"pages_indexed"`
	Errors       []string       `json:"errors"`
	Result       map[string]any `json:"result,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, rag.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	errs := job.Errors
	if len(errs) > statusErrorLimit {
		errs = errs[:statusErrorLimit]
	}
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		JobID:        job.ID,
		State:        string(job.State),
		PagesFetched: job.PagesFetched,
		PagesIndexed: job.PagesIndexed,
		Errors:       errs,
		Result:       job.Result,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	})
}

type askRequest struct {
	JobID    string `json:"job_id"`
	Question string `json:"question"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	question := strings.TrimSpace(req.Question)
	if !pipeline.ValidQuestion(question) {
		writeError(w, http.StatusBadRequest, "question must be at least 3 characters")
		return
	}

	job, err := s.jobs.Get(r.Context(), req.JobID)
	if err != nil {
		if errors.Is(err, rag.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job.State != rag.JobStateDone {
		writeError(w, http.StatusConflict, "job is not finished; current state: "+string(job.State))
		return
	}

	answer, err := s.pipe.Answer(r.Context(), req.JobID, question)
	if err != nil {
		s.logger.Error("answer failed", zap.String("job_id", req.JobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "answer generation failed")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func valueOrDefault(ptr *int, def int) int {
	if ptr == nil {
		return def
	}
	return *ptr
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
