// Package chi exposes the gateway over HTTP: the JSON search API, the
// cache lifecycle endpoints, and the catch-all page handler that routes
// every other GET through the offline controller.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tryandromeda/sitegate/internal/domain"
	healthuc "github.com/tryandromeda/sitegate/internal/usecase/health"
	"github.com/tryandromeda/sitegate/internal/usecase/offline"
	"github.com/tryandromeda/sitegate/internal/usecase/preload"
	searchuc "github.com/tryandromeda/sitegate/internal/usecase/search"
)

// Server wires the gateway's usecases into HTTP handlers.
type Server struct {
	search  *searchuc.Service
	gateway *offline.Controller
	preload *preload.Service
	health  *healthuc.Service
	logger  *zap.Logger
}

// NewServer creates an HTTP API server. preload can be nil.
func NewServer(
	search *searchuc.Service,
	gateway *offline.Controller,
	pre *preload.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		search:  search,
		gateway: gateway,
		preload: pre,
		health:  health,
		logger:  logger,
	}
}

// Routes registers all handlers on the given router. The catch-all page
// handler must be registered last so API routes keep precedence.
func (s *Server) Routes(r chi.Router) {
	r.Get("/api/search", s.SearchDocuments)
	r.Get("/api/suggestions", s.GetSuggestions)
	r.Post("/api/lifecycle/install", s.Install)
	r.Post("/api/lifecycle/activate", s.Activate)
	r.Post("/api/lifecycle/preload", s.Preload)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.NotFound(s.ServePage)
	r.MethodNotAllowed(s.ServePage)
}

// SearchDocuments handles GET /api/search.
func (s *Server) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !query.Has("q") {
		writeError(w, http.StatusBadRequest, "Query parameter \"q\" is required")
		return
	}
	q := query.Get("q")
	limit := parseLimit(query.Get("limit"))

	results := s.search.Search(q, limit)

	writeJSON(w, http.StatusOK, searchResponse{
		Query:      q,
		Results:    results,
		Total:      len(results),
		SearchMode: "keyword",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

// GetSuggestions handles GET /api/suggestions.
func (s *Server) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !query.Has("q") {
		writeJSON(w, http.StatusBadRequest, suggestionsError{
			Error:       "Query parameter \"q\" is required",
			Suggestions: []string{},
		})
		return
	}
	q := query.Get("q")
	limit := parseLimit(query.Get("limit"))

	writeJSON(w, http.StatusOK, suggestionsResponse{
		Query:       q,
		Suggestions: s.search.Suggest(q, limit),
	})
}

// Install handles POST /api/lifecycle/install: seed the static partition
// and warm discovered content pages.
func (s *Server) Install(w http.ResponseWriter, r *http.Request) {
	report, err := s.gateway.Install(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrSeedingDisabled) {
			writeError(w, http.StatusConflict, "cache seeding is disabled in dev mode")
			return
		}
		s.logger.Error("Install failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Activate handles POST /api/lifecycle/activate: sweep stale-version
// partitions so the new deployment takes over immediately.
func (s *Server) Activate(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.gateway.Activate(r.Context())
	if err != nil {
		s.logger.Error("Activate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if deleted == nil {
		deleted = []string{}
	}
	writeJSON(w, http.StatusOK, activateResponse{Deleted: deleted})
}

// Preload handles POST /api/lifecycle/preload.
func (s *Server) Preload(w http.ResponseWriter, r *http.Request) {
	if s.preload == nil {
		writeError(w, http.StatusNotFound, "preload is not enabled")
		return
	}
	warmed, err := s.preload.Preload(r.Context())
	if err != nil {
		s.logger.Error("Preload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, preloadResponse{Warmed: warmed})
}

// ServePage routes everything not claimed by the API through the offline
// controller.
func (s *Server) ServePage(w http.ResponseWriter, r *http.Request) {
	req := &offline.Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Header:     r.Header,
		Body:       r.Body,
		Navigation: strings.Contains(r.Header.Get("Accept"), "text/html"),
	}

	resp, err := s.gateway.Handle(r.Context(), req)
	if err != nil {
		s.logger.Warn("Gateway request failed",
			zap.String("path", req.Path), zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}

	if s.preload != nil && req.Navigation && resp.OK() {
		s.preload.Record(r.Context(), req.Path)
	}

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

type searchResponse struct {
	Query      string          `json:"query"`
	Results    []domain.Result `json:"results"`
	Total      int             `json:"total"`
	SearchMode string          `json:"searchMode"`
	Timestamp  string          `json:"timestamp"`
}

type suggestionsResponse struct {
	Query       string   `json:"query"`
	Suggestions []string `json:"suggestions"`
}

type suggestionsError struct {
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions"`
}

type activateResponse struct {
	Deleted []string `json:"deleted"`
}

type preloadResponse struct {
	Warmed int `json:"warmed"`
}

type healthResponse struct {
	Status string                          `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// parseLimit is permissive: malformed or missing limits fall back to the
// service default (signalled as 0).
func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
