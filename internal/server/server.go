// Package server exposes the game pass service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/caesar700/roblox-donation-proxy/pkg/gamepass"
	"github.com/caesar700/roblox-donation-proxy/pkg/metrics"
	"github.com/caesar700/roblox-donation-proxy/pkg/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamepass_http_requests_total",
		Help: "Total HTTP requests served by route and status",
	}, []string{"route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gamepass_http_request_duration_seconds",
		Help:    "HTTP handler latency in seconds by route",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 45},
	}, []string{"route"})
)

// PassService serves game pass lookups.
type PassService interface {
	UserPasses(ctx context.Context, userID string) (service.Result, error)
	PlacePasses(ctx context.Context, placeID string) (service.Result, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Envelope is the success response body.
type Envelope struct {
	Data   []gamepass.Item `json:"data"`
	Cached bool            `json:"cached"`
}

// ErrorBody is the error response body.
type ErrorBody struct {
	Error string `json:"error"`
}

// Server routes HTTP requests to the service.
type Server struct {
	passes PassService
	ready  Pinger
	logger zerolog.Logger
}

// New creates a server. ready is optional; without it /ready always
// succeeds.
func New(passes PassService, ready Pinger) *Server {
	return &Server{
		passes: passes,
		ready:  ready,
		logger: log.With().Str("component", "server").Logger(),
	}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /gamepasses", s.handleUserPasses)
	mux.HandleFunc("GET /gamepasses/{placeId}", s.handlePlacePasses)

	return s.logRequests(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "cache backend unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleUserPasses(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if err := service.ValidateSubject(userID); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "Missing or invalid userId"})
		return
	}

	result, err := s.passes.UserPasses(r.Context(), userID)
	s.respond(w, result, err, "userId")
}

func (s *Server) handlePlacePasses(w http.ResponseWriter, r *http.Request) {
	placeID := r.PathValue("placeId")
	if err := service.ValidateSubject(placeID); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "Missing or invalid placeId"})
		return
	}

	result, err := s.passes.PlacePasses(r.Context(), placeID)
	s.respond(w, result, err, "placeId")
}

// respond writes the envelope or maps err to a status.
func (s *Server) respond(w http.ResponseWriter, result service.Result, err error, param string) {
	if err != nil {
		if errors.Is(err, service.ErrInvalidSubject) {
			writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "Missing or invalid " + param})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: err.Error()})
		return
	}

	items := result.Items
	if items == nil {
		items = []gamepass.Item{}
	}
	writeJSON(w, http.StatusOK, Envelope{Data: items, Cached: result.Cached})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests logs every request and records HTTP metrics by route pattern.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())

		event := s.logger.Info()
		if rec.status >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("query", r.URL.RawQuery).
			Int("status_code", rec.status).
			Dur("duration", duration).
			Msg("Request served")
	})
}
