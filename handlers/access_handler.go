package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/upb/llm-access-gate/internal/policy"
	"github.com/upb/llm-access-gate/middleware"
	"github.com/upb/llm-access-gate/services/resolver"
	"github.com/upb/llm-access-gate/utils"
	"go.uber.org/zap"
)

// CheckAccessRequest asks whether a provider/model pair may be used
type CheckAccessRequest struct {
	Provider string `json:"provider" validate:"required"`
	Model    string `json:"model"`
}

// CheckAccessResponse carries the gate's decision
type CheckAccessResponse struct {
	Allowed         bool   `json:"allowed"`
	ProviderAllowed bool   `json:"provider_allowed"`
	Reason          string `json:"reason,omitempty"`
}

// FilterFavoritesRequest carries a user's favorite model IDs to filter
type FilterFavoritesRequest struct {
	ModelIDs []string `json:"model_ids" validate:"required"`
}

// FilterFavoritesResponse carries the surviving model IDs in input order
type FilterFavoritesResponse struct {
	ModelIDs []string `json:"model_ids"`
}

// ResolveKeysRequest asks for credentials for a set of providers. Used by
// the inference gateway service-to-service; providers without any stored
// key are omitted from the response.
type ResolveKeysRequest struct {
	Providers []string `json:"providers" validate:"required,min=1"`
}

// AccessHandler answers access-control questions for the inference path
type AccessHandler struct {
	resolver *resolver.Service
	logger   *zap.Logger
}

// NewAccessHandler creates a new AccessHandler
func NewAccessHandler(resolverSvc *resolver.Service, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{
		resolver: resolverSvc,
		logger:   logger,
	}
}

// HandleCheckAccess handles POST /v1/tenants/{tenantID}/access/check
func (h *AccessHandler) HandleCheckAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := middleware.GetTenantIDFromContext(ctx)
	userID := middleware.GetUserIDFromContext(ctx)

	var req CheckAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	gate, err := h.resolver.GetEffectivePolicyGate(ctx, tenantID, userID)
	if err != nil {
		h.logger.Error("failed to resolve policy gate",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	resp := CheckAccessResponse{
		ProviderAllowed: gate.IsProviderAllowed(req.Provider),
	}
	switch {
	case !resp.ProviderAllowed:
		resp.Reason = "provider not allowed by policy"
	case !gate.IsModelAllowed(req.Provider, req.Model):
		resp.Reason = "model not allowed by policy"
	default:
		resp.Allowed = true
	}

	h.logger.Debug("access check",
		zap.String("request_id", requestID),
		zap.String("tenant_id", tenantID.String()),
		zap.String("provider", req.Provider),
		zap.String("model", req.Model),
		zap.Bool("allowed", resp.Allowed))

	_ = utils.WriteOK(w, resp)
}

// HandleFilterFavorites handles POST /v1/tenants/{tenantID}/access/favorites
func (h *AccessHandler) HandleFilterFavorites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := middleware.GetTenantIDFromContext(ctx)
	userID := middleware.GetUserIDFromContext(ctx)

	var req FilterFavoritesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	gate, err := h.resolver.GetEffectivePolicyGate(ctx, tenantID, userID)
	if err != nil {
		h.logger.Error("failed to resolve policy gate",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	filtered := gate.FilterFavoriteModels(req.ModelIDs)

	_ = utils.WriteOK(w, FilterFavoritesResponse{ModelIDs: filtered})
}

// HandleResolveKeys handles POST /v1/tenants/{tenantID}/access/keys
func (h *AccessHandler) HandleResolveKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := middleware.GetTenantIDFromContext(ctx)
	userID := middleware.GetUserIDFromContext(ctx)

	var req ResolveKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	keys, err := h.resolver.ResolveAPIKeysMap(ctx, tenantID, userID, req.Providers)
	if err != nil {
		h.logger.Error("failed to resolve API keys",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("resolved API keys",
		zap.String("request_id", requestID),
		zap.String("tenant_id", tenantID.String()),
		zap.Int("requested", len(req.Providers)),
		zap.Int("resolved", len(keys)))

	_ = utils.WriteOK(w, keys)
}

// HandleInferProvider handles GET /v1/access/infer-provider?model=...
// Small utility for clients that track model IDs without a provider.
func (h *AccessHandler) HandleInferProvider(w http.ResponseWriter, r *http.Request) {
	modelID := r.URL.Query().Get("model")
	if modelID == "" {
		_ = utils.WriteBadRequest(w, "Missing model query parameter", nil)
		return
	}

	_ = utils.WriteOK(w, map[string]string{
		"model":    modelID,
		"provider": policy.InferProvider(modelID),
	})
}
