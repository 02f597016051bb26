// Package api exposes the HTTP interface for the pipeline service: health
// probes, Prometheus metrics, and read-only run status.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mboyd/paperflow/internal/pipeline"
	"github.com/mboyd/paperflow/internal/progress/sinks"
)

// StateReporter exposes the current pipeline stage.
type StateReporter interface {
	State() string
}

// Server wires HTTP handlers to the snapshot store and persisted reports.
type Server struct {
	router    chi.Router
	snapshots *sinks.SnapshotStore
	runner    StateReporter
	stateDir  string
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The registry
// backs /metrics; nil snapshots or runner degrade the matching endpoints
// to 503.
func NewServer(
	snapshots *sinks.SnapshotStore,
	runner StateReporter,
	stateDir string,
	reg *prometheus.Registry,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		snapshots: snapshots,
		runner:    runner,
		stateDir:  stateDir,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", s.getState)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/latest", s.getLatestRun)
			r.Get("/{date}", s.getRun)
		})
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

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getState(w http.ResponseWriter, _ *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "runner unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.runner.State()})
}

func (s *Server) getLatestRun(w http.ResponseWriter, _ *http.Request) {
	if s.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "run snapshots unavailable")
		return
	}
	snap, ok := s.snapshots.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}
	s.writeRun(w, snap.Date, &snap)
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// getRun serves GET /v1/runs/{date}. The live snapshot covers the current
// process; the persisted report survives restarts, so either alone is
// enough for a 200.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if !datePattern.MatchString(date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	var snap *sinks.RunSnapshot
	if s.snapshots != nil {
		if found, ok := s.snapshots.Snapshot(date); ok {
			snap = &found
		}
	}
	s.writeRun(w, date, snap)
}

func (s *Server) writeRun(w http.ResponseWriter, date string, snap *sinks.RunSnapshot) {
	report, err := pipeline.ReadReport(s.stateDir, date)
	if err != nil {
		report = nil
	}
	if snap == nil && report == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Date: date, Run: snap, Report: report})
}

type runResponse struct {
	Date   string              `json:"date"`
	Run    *sinks.RunSnapshot  `json:"run,omitempty"`
	Report *pipeline.RunReport `json:"report,omitempty"`
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
