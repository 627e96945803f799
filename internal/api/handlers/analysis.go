package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/pkg/database"
	"github.com/wonny/taxico2/pkg/logger"
)

// Analyzer is the read-only query surface the API serves
type Analyzer interface {
	Scope() contracts.Scope
	LargestTrip(ctx context.Context, table string) (*contracts.LargestTrip, error)
	BucketExtremes(ctx context.Context, table string, dim contracts.Dimension, agg contracts.Aggregate) (*contracts.BucketExtremes, error)
	MonthlySeries(ctx context.Context, yellow, green string, scope contracts.Scope) ([]contracts.MonthPoint, error)
}

// HealthChecker reports store health
type HealthChecker interface {
	HealthCheck(ctx context.Context, tables ...string) (*database.HealthStatus, error)
}

// AnalysisHandler serves analyzer results as JSON
// ⭐ SSOT: analysis API handlers live only in this struct
type AnalysisHandler struct {
	analyzer Analyzer
	health   HealthChecker
	logger   *logger.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(a Analyzer, health HealthChecker, log *logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer: a,
		health:   health,
		logger:   log,
	}
}

// Health returns store connectivity and transformed table sizes
// GET /health
func (h *AnalysisHandler) Health(w http.ResponseWriter, r *http.Request) {
	scope := h.analyzer.Scope()
	tables := make([]string, 0, len(contracts.CabTypes))
	for _, cab := range contracts.CabTypes {
		tables = append(tables, scope.TransformedTable(cab))
	}

	status, err := h.health.HealthCheck(r.Context(), tables...)
	if err != nil {
		h.logger.WithError(err).Error("Health check failed")
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"scope":  scope.Name,
		"store":  status,
	})
}

// GetLargest returns the largest CO2 trip of a fleet
// GET /api/largest/{cab}
func (h *AnalysisHandler) GetLargest(w http.ResponseWriter, r *http.Request) {
	cab, ok := contracts.ParseCabType(mux.Vars(r)["cab"])
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid cab type (valid: yellow, green)")
		return
	}

	table := h.analyzer.Scope().TransformedTable(cab)
	trip, err := h.analyzer.LargestTrip(r.Context(), table)
	if err != nil {
		h.logger.WithError(err).WithField("table", table).Error("Failed to get largest trip")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve largest trip")
		return
	}
	if trip == nil {
		respondError(w, http.StatusNotFound, "No trips with CO2 data")
		return
	}

	respondJSON(w, http.StatusOK, trip)
}

// GetBuckets returns the heaviest and lightest bucket of one dimension.
// The aggregate defaults to the scope's and can be overridden with ?agg=sum|mean.
// GET /api/buckets/{cab}/{dimension}
func (h *AnalysisHandler) GetBuckets(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	cab, ok := contracts.ParseCabType(vars["cab"])
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid cab type (valid: yellow, green)")
		return
	}
	dim, ok := contracts.ParseDimension(vars["dimension"])
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid dimension (valid: hour, dow, week, month)")
		return
	}

	scope := h.analyzer.Scope()
	agg := scope.Aggregate
	switch strings.ToLower(r.URL.Query().Get("agg")) {
	case "":
	case string(contracts.AggregateSum):
		agg = contracts.AggregateSum
	case string(contracts.AggregateMean):
		agg = contracts.AggregateMean
	default:
		respondError(w, http.StatusBadRequest, "Invalid aggregate (valid: sum, mean)")
		return
	}

	table := scope.TransformedTable(cab)
	ext, err := h.analyzer.BucketExtremes(r.Context(), table, dim, agg)
	if err != nil {
		h.logger.WithError(err).WithField("table", table).Error("Failed to get bucket extremes")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve bucket extremes")
		return
	}
	if ext == nil {
		respondError(w, http.StatusNotFound, "No trips with CO2 data")
		return
	}
	ext.CabType = cab

	respondJSON(w, http.StatusOK, ext)
}

// GetMonthly returns the monthly CO2 series of both fleets
// GET /api/monthly
func (h *AnalysisHandler) GetMonthly(w http.ResponseWriter, r *http.Request) {
	scope := h.analyzer.Scope()
	series, err := h.analyzer.MonthlySeries(r.Context(),
		scope.TransformedTable(contracts.CabYellow),
		scope.TransformedTable(contracts.CabGreen),
		scope,
	)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get monthly series")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve monthly series")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scope":  scope.Name,
		"months": series,
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
