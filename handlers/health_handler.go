package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/llm-access-gate/services/resolver"
	"github.com/upb/llm-access-gate/utils"
	"go.uber.org/zap"
)

// StoreChecker reports whether the backing store is reachable.
type StoreChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string               `json:"status"`
	Timestamp string               `json:"timestamp"`
	Backend   string               `json:"backend,omitempty"`
	Checks    map[string]string    `json:"checks,omitempty"`
	Cache     *resolver.CacheStats `json:"cache,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	store    StoreChecker
	backend  string
	resolver *resolver.Service
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. store may be nil for
// backends without an external dependency.
func NewHealthHandler(store StoreChecker, backend string, resolverSvc *resolver.Service, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:    store,
		backend:  backend,
		resolver: resolverSvc,
		logger:   logger,
	}
}

// HandleHealth handles GET /health
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /health/ready
// Readiness check - validates that the storage backend is reachable
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.store != nil {
		if err := h.store.HealthCheck(ctx); err != nil {
			h.logger.Warn("store health check failed", zap.Error(err))
			checks["store"] = "unhealthy"
			allHealthy = false
		} else {
			checks["store"] = "healthy"
		}
	} else {
		checks["store"] = "healthy"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Backend:   h.backend,
		Checks:    checks,
	}
	if h.resolver != nil {
		stats := h.resolver.CacheStats()
		response.Cache = &stats
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
