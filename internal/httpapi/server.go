// Package httpapi exposes scans, the timeline and the policy doctor over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/policy"
	"github.com/scan-io-git/cloudsentinel/internal/scanner"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
	"github.com/scan-io-git/cloudsentinel/internal/timeline"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
)

const (
	timelineListLimit = 200
	maxBodyBytes      = 1 << 20
)

type Scanner interface {
	Run(ctx context.Context) (*model.Snapshot, error)
}

type Simulator interface {
	Run(ctx context.Context, scenario string) (timeline.SimulateResponse, error)
}

type PolicyValidator interface {
	Validate(ctx context.Context, policyJSON, policyType string) (policy.Response, error)
}

// Server holds the handlers' dependencies. Handlers only translate between HTTP and these.
type Server struct {
	scanner   Scanner
	store     storage.Store
	simulator Simulator
	doctor    PolicyValidator
	logger    hclog.Logger
	version   string
}

func New(scanner Scanner, store storage.Store, simulator Simulator, doctor PolicyValidator, logger hclog.Logger, version string) *Server {
	return &Server{
		scanner:   scanner,
		store:     store,
		simulator: simulator,
		doctor:    doctor,
		logger:    logger,
		version:   version,
	}
}

// Routes returns the router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/scan", s.runScan)
		r.Get("/scans", s.listScans)
		r.Get("/scans/{id}", s.getScan)
		r.Get("/score/latest", s.latestScore)
		r.Post("/simulate/{scenario}", s.simulate)
		r.Get("/timeline", s.timeline)
		r.Post("/policy/validate", s.validatePolicy)
	})
	return r
}

// Serve listens on cfg.ListenAddr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, cfg config.Server) error {
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: cfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", cfg.ListenAddr)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start).Round(time.Millisecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Health{Status: "ok", Version: s.version, Backend: s.store.Backend()})
}

func (s *Server) runScan(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.scanner.Run(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	limit := storage.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > storage.MaxListLimit {
			s.writeError(w, badRequest("limit must be an integer between 1 and %d", storage.MaxListLimit))
			return
		}
		limit = n
	}

	metas, err := s.store.ListScans(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metas)
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	meta, snapshot, err := s.store.GetScan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScanDetail{Meta: meta, Snapshot: snapshot})
}

func (s *Server) latestScore(w http.ResponseWriter, r *http.Request) {
	meta, err := scanner.Latest(r.Context(), s.store)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if meta == nil {
		writeJSON(w, http.StatusOK, LatestScore{})
		return
	}
	writeJSON(w, http.StatusOK, LatestScore{
		Score:        &meta.Score,
		ScanID:       &meta.ScanID,
		CreatedAt:    &meta.CreatedAt,
		DomainScores: meta.DomainScores,
	})
}

func (s *Server) simulate(w http.ResponseWriter, r *http.Request) {
	resp, err := s.simulator.Run(r.Context(), chi.URLParam(r, "scenario"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) timeline(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			s.writeError(w, badRequest("since must be an RFC 3339 timestamp: %q", raw))
			return
		}
		since = t
	}

	events, err := s.store.ListTimeline(r.Context(), since, timelineListLimit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TimelineResponse{Items: events})
}

func (s *Server) validatePolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, badRequest("invalid request body: %v", err))
		return
	}
	resp, err := s.doctor.Validate(r.Context(), req.PolicyJSON, req.PolicyType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...interface{}) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	var (
		reqErr      *requestError
		scenarioErr *timeline.ScenarioError
		inputErr    *policy.InputError
	)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &reqErr), errors.As(err, &scenarioErr), errors.As(err, &inputErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, ErrorResponse{Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
