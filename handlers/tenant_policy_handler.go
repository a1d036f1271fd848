package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/upb/llm-access-gate/middleware"
	"github.com/upb/llm-access-gate/models"
	"github.com/upb/llm-access-gate/services/resolver"
	"github.com/upb/llm-access-gate/services/tenantpolicy"
	"github.com/upb/llm-access-gate/utils"
	"go.uber.org/zap"
)

// UpdateTenantPolicyRequest represents a partial update of a tenant policy
// override. Omitted fields keep their stored value.
type UpdateTenantPolicyRequest struct {
	AllowedProviders *[]string               `json:"allowed_providers,omitempty"`
	AllowedModels    *map[string][]string    `json:"allowed_models,omitempty"`
	DefaultFallback  *models.ModelRef        `json:"default_fallback,omitempty"`
	RegistryModels   *[]models.RegistryModel `json:"model_registry_models,omitempty" validate:"omitempty,dive"`
}

// TenantPolicyResponse represents a tenant policy override in API responses
type TenantPolicyResponse struct {
	TenantID         string                 `json:"tenant_id"`
	AllowedProviders []string               `json:"allowed_providers,omitempty"`
	AllowedModels    map[string][]string    `json:"allowed_models,omitempty"`
	DefaultFallback  *models.ModelRef       `json:"default_fallback,omitempty"`
	RegistryModels   []models.RegistryModel `json:"model_registry_models,omitempty"`
	UpdatedAt        string                 `json:"updated_at"`
}

// EffectivePolicyResponse represents a merged, effective policy gate.
// DenyAllProviders distinguishes a gate whose provider narrowing
// eliminated everything from an unrestricted one; both have an empty
// provider list.
type EffectivePolicyResponse struct {
	AllowedProviders []string            `json:"allowed_providers"`
	DenyAllProviders bool                `json:"deny_all_providers,omitempty"`
	ModelPatterns    map[string][]string `json:"model_patterns,omitempty"`
	DefaultFallback  *models.ModelRef    `json:"default_fallback,omitempty"`
}

// TenantPolicyHandler handles tenant policy override HTTP requests
type TenantPolicyHandler struct {
	policies *tenantpolicy.Service
	resolver *resolver.Service
	logger   *zap.Logger
}

// NewTenantPolicyHandler creates a new TenantPolicyHandler
func NewTenantPolicyHandler(policies *tenantpolicy.Service, resolverSvc *resolver.Service, logger *zap.Logger) *TenantPolicyHandler {
	return &TenantPolicyHandler{
		policies: policies,
		resolver: resolverSvc,
		logger:   logger,
	}
}

// HandleGetPolicy handles GET /v1/tenants/{tenantID}/policy
func (h *TenantPolicyHandler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := middleware.GetTenantIDFromContext(ctx)

	policy, err := h.policies.GetPolicy(ctx, tenantID)
	if err != nil {
		h.logger.Error("failed to fetch tenant policy",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}
	if policy == nil {
		_ = utils.WriteNotFound(w, "No policy override for tenant")
		return
	}

	_ = utils.WriteOK(w, tenantPolicyToResponse(policy))
}

// HandleUpsertPolicy handles PUT /v1/tenants/{tenantID}/policy
func (h *TenantPolicyHandler) HandleUpsertPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := middleware.GetTenantIDFromContext(ctx)

	var req UpdateTenantPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	update := models.TenantPolicyUpdate{
		AllowedProviders: req.AllowedProviders,
		AllowedModels:    req.AllowedModels,
		DefaultFallback:  req.DefaultFallback,
		RegistryModels:   req.RegistryModels,
	}

	policy, err := h.policies.UpsertPolicy(ctx, tenantID, update)
	if err != nil {
		h.logger.Error("failed to upsert tenant policy",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	// Cached gates for this tenant are stale now
	h.resolver.InvalidateTenant(tenantID)

	h.logger.Info("tenant policy updated",
		zap.String("request_id", requestID),
		zap.String("tenant_id", tenantID.String()))

	_ = utils.WriteOK(w, tenantPolicyToResponse(policy))
}

// HandleDeletePolicy handles DELETE /v1/tenants/{tenantID}/policy
func (h *TenantPolicyHandler) HandleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := middleware.GetTenantIDFromContext(ctx)

	if err := h.policies.DeletePolicy(ctx, tenantID); err != nil {
		h.logger.Error("failed to delete tenant policy",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.resolver.InvalidateTenant(tenantID)

	h.logger.Info("tenant policy deleted",
		zap.String("request_id", requestID),
		zap.String("tenant_id", tenantID.String()))

	utils.WriteNoContent(w)
}

// HandleGetEffectivePolicy handles GET /v1/tenants/{tenantID}/policy/effective
// It returns the merged gate a caller from this tenant is subject to.
func (h *TenantPolicyHandler) HandleGetEffectivePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := middleware.GetTenantIDFromContext(ctx)
	userID := middleware.GetUserIDFromContext(ctx)

	gate, err := h.resolver.GetEffectivePolicyGate(ctx, tenantID, userID)
	if err != nil {
		h.logger.Error("failed to resolve effective policy",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	snapshot := gate.Snapshot()
	_ = utils.WriteOK(w, EffectivePolicyResponse{
		AllowedProviders: snapshot.AllowedProviders,
		DenyAllProviders: snapshot.DenyAllProviders,
		ModelPatterns:    snapshot.AllowedModels,
		DefaultFallback:  snapshot.DefaultFallback,
	})
}

// HandleListModels handles GET /v1/tenants/{tenantID}/models
// It returns the tenant's registry entries filtered through the gate.
func (h *TenantPolicyHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := middleware.GetTenantIDFromContext(ctx)
	userID := middleware.GetUserIDFromContext(ctx)

	entries, err := h.resolver.ListTenantModels(ctx, tenantID, userID)
	if err != nil {
		h.logger.Error("failed to list tenant models",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, entries)
}

// tenantPolicyToResponse converts a TenantPolicy model to a response
func tenantPolicyToResponse(p *models.TenantPolicy) TenantPolicyResponse {
	return TenantPolicyResponse{
		TenantID:         p.TenantID.String(),
		AllowedProviders: p.AllowedProviders,
		AllowedModels:    p.AllowedModels,
		DefaultFallback:  p.DefaultFallback,
		RegistryModels:   p.RegistryModels,
		UpdatedAt:        p.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
