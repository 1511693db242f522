// Package api provides the read-only HTTP API over stored deployment runs.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/chainhost/internal/core/domain"
	"github.com/artpar/chainhost/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// Config holds handler dependencies. Gatherer is optional; without it
// /metrics is not mounted.
type Config struct {
	Store    store.Store
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	// Network is used by the address lookup when the request names none.
	Network string
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	store    store.Store
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	network  string
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		store:    cfg.Store,
		gatherer: cfg.Gatherer,
		logger:   l,
		network:  cfg.Network,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)

		// Health endpoints
		r.Get("/health", h.handleHealth)
		r.Get("/ready", h.handleReady)

		// API v1 routes
		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/runs", func(r chi.Router) {
				r.Get("/", h.handleListRuns)
				r.Get("/{id}", h.handleGetRun)
			})
			r.Get("/units/{unit}/address", h.handleUnitAddress)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if _, err := h.store.ListRuns(r.Context(), store.ListOptions{Limit: 1}); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		checks["database"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["database"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Run Handlers
// =============================================================================

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s, err := domain.ParseRunStatus(status)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "unknown run status: "+status, "invalid_status")
			return
		}
		opts.Status = s
	}
	opts = opts.Normalize()

	runs, err := h.store.ListRuns(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list runs", "internal_error")
		return
	}
	total, err := h.store.CountRuns(r.Context(), opts.Status)
	if err != nil {
		h.logger.Error("failed to count runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list runs", "internal_error")
		return
	}

	resp := ListRunsResponse{
		Runs:   make([]RunResponse, 0, len(runs)),
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, runToResponse(&run))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "run not found", "run_not_found")
			return
		}
		h.logger.Error("failed to get run", "run_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get run", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, runToResponse(run))
}

func (h *Handler) handleUnitAddress(w http.ResponseWriter, r *http.Request) {
	unit := chi.URLParam(r, "unit")
	network := r.URL.Query().Get("network")
	if network == "" {
		network = h.network
	}

	rec, err := h.store.LatestRecord(r.Context(), network, unit)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "no successful deployment of "+unit+" on "+network, "unit_not_deployed")
			return
		}
		h.logger.Error("failed to look up unit", "unit", unit, "network", network, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to look up unit", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, AddressResponse{
		Unit:    rec.Unit,
		Network: network,
		Address: rec.Address.Hex(),
		RunID:   rec.RunID,
		TxHash:  rec.TxHash.Hex(),
	})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func runToResponse(run *domain.Run) RunResponse {
	resp := RunResponse{
		ID:         run.ID,
		Plan:       run.Plan,
		Network:    run.Network,
		Status:     string(run.Status),
		Error:      run.Error,
		FailedStep: run.FailedStep,
		Records:    make([]RecordResponse, 0, len(run.Records)),
		Grants:     make([]GrantResponse, 0, len(run.Grants)),
		CreatedAt:  run.CreatedAt,
		UpdatedAt:  run.UpdatedAt,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	for _, rec := range run.Records {
		resp.Records = append(resp.Records, RecordResponse{
			Step:    rec.Step,
			Unit:    rec.Unit,
			Kind:    string(rec.Kind),
			Address: rec.Address.Hex(),
			TxHash:  rec.TxHash.Hex(),
		})
	}
	for _, g := range run.Grants {
		resp.Grants = append(resp.Grants, GrantResponse{
			Step:           g.Step,
			Storage:        g.Storage,
			StorageAddress: g.StorageAddress.Hex(),
			Grantee:        g.Grantee,
			GranteeAddress: g.GranteeAddress.Hex(),
			Method:         g.Method,
			TxHash:         g.TxHash.Hex(),
		})
	}
	return resp
}

// isNotFound checks if an error is a not found error.
func isNotFound(err error) bool {
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errors.Is(storeErr.Unwrap(), store.ErrNotFound)
	}
	return false
}
