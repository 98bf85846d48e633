package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/coverage"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
	"github.com/jandy1990/wwfm-platform-sub006/internal/worker"
)

const (
	defaultNextGoals = 10
	maxNextGoals     = 100
	defaultWindow    = 24 * time.Hour
)

// StatusStore is the subset of the store read by the ops surface.
type StatusStore interface {
	GetStats(ctx context.Context) (*types.StoreStats, error)
	AuditSummary(ctx context.Context, since time.Time) ([]audit.Summary, error)
}

// CoverageService reports coverage and previews goal selection.
// Implemented by coverage.Selector.
type CoverageService interface {
	Current(ctx context.Context) (types.CoverageSummary, error)
	Select(ctx context.Context, strategy coverage.Strategy, n int) ([]types.GoalCoverage, error)
}

// QualityControl drives the quality orchestrator.
// Implemented by worker.QualityOrchestrator.
type QualityControl interface {
	Trigger()
	Stop()
	Status() worker.QualityStatus
}

// Handler implements the API handlers.
type Handler struct {
	store           StatusStore
	coverage        CoverageService
	quality         QualityControl
	defaultStrategy coverage.Strategy
	apiKey          string
	version         string
	model           string
}

// HandlerConfig carries the non-service Handler settings.
type HandlerConfig struct {
	APIKey          string
	Version         string
	Model           string
	DefaultStrategy coverage.Strategy
}

// NewHandler creates a Handler. quality may be nil when the orchestrator
// is disabled; its routes then answer 503.
func NewHandler(s StatusStore, cov CoverageService, quality QualityControl, cfg HandlerConfig) *Handler {
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = coverage.BreadthFirst
	}
	return &Handler{
		store:           s,
		coverage:        cov,
		quality:         quality,
		defaultStrategy: cfg.DefaultStrategy,
		apiKey:          cfg.APIKey,
		version:         cfg.Version,
		model:           cfg.Model,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		slog.Error("health check failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		Model:         h.model,
		GoalCount:     stats.GoalCount,
		SolutionCount: stats.SolutionCount,
		PendingItems:  stats.PendingCount,
	})
}

// Coverage handles GET /api/v1/coverage
func (h *Handler) Coverage(w http.ResponseWriter, r *http.Request) {
	sum, err := h.coverage.Current(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// NextGoalsResponse is the body of GET /api/v1/coverage/next.
type NextGoalsResponse struct {
	Strategy coverage.Strategy    `json:"strategy"`
	Goals    []types.GoalCoverage `json:"goals"`
}

// NextGoals handles GET /api/v1/coverage/next?strategy=&n=
func (h *Handler) NextGoals(w http.ResponseWriter, r *http.Request) {
	strategy := h.defaultStrategy
	if raw := r.URL.Query().Get("strategy"); raw != "" {
		s, err := coverage.ParseStrategy(raw)
		if err != nil {
			MapError(w, r, err)
			return
		}
		strategy = s
	}

	n := defaultNextGoals
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxNextGoals {
			WriteProblem(w, r, http.StatusBadRequest, "n must be an integer between 1 and 100")
			return
		}
		n = v
	}

	goals, err := h.coverage.Select(r.Context(), strategy, n)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if goals == nil {
		goals = []types.GoalCoverage{}
	}
	writeJSON(w, http.StatusOK, NextGoalsResponse{Strategy: strategy, Goals: goals})
}

// QualityStatus handles GET /api/v1/quality/status
func (h *Handler) QualityStatus(w http.ResponseWriter, r *http.Request) {
	if h.quality == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Quality orchestrator is disabled")
		return
	}
	writeJSON(w, http.StatusOK, h.quality.Status())
}

// QualityTrigger handles POST /api/v1/quality/trigger
func (h *Handler) QualityTrigger(w http.ResponseWriter, r *http.Request) {
	if h.quality == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Quality orchestrator is disabled")
		return
	}
	h.quality.Trigger()
	slog.Info("quality run requested", "component", "api", "request_id", GetRequestID(r.Context()))
	writeJSON(w, http.StatusAccepted, h.quality.Status())
}

// QualityStop handles POST /api/v1/quality/stop
func (h *Handler) QualityStop(w http.ResponseWriter, r *http.Request) {
	if h.quality == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Quality orchestrator is disabled")
		return
	}
	h.quality.Stop()
	slog.Info("quality stop requested", "component", "api", "request_id", GetRequestID(r.Context()))
	writeJSON(w, http.StatusAccepted, h.quality.Status())
}

// AuditSummaryResponse is the body of GET /api/v1/audit/summary.
type AuditSummaryResponse struct {
	Since   time.Time       `json:"since"`
	Summary []audit.Summary `json:"summary"`
}

// AuditSummary handles GET /api/v1/audit/summary?since=RFC3339
func (h *Handler) AuditSummary(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-defaultWindow)
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteProblem(w, r, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		since = t.UTC()
	}

	sum, err := h.store.AuditSummary(r.Context(), since)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if sum == nil {
		sum = []audit.Summary{}
	}
	writeJSON(w, http.StatusOK, AuditSummaryResponse{Since: since, Summary: sum})
}
