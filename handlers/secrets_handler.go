package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/llm-access-gate/middleware"
	"github.com/upb/llm-access-gate/services/tenantpolicy"
	"github.com/upb/llm-access-gate/services/usersecret"
	"github.com/upb/llm-access-gate/utils"
	"go.uber.org/zap"
)

// SetSecretRequest carries an API key to store. The key is accepted on
// write only and is never echoed back in any response.
type SetSecretRequest struct {
	APIKey string `json:"api_key" validate:"required"`
}

// SecretStatusResponse confirms a secret write without exposing material
type SecretStatusResponse struct {
	Provider string `json:"provider"`
	Stored   bool   `json:"stored"`
}

// SecretsHandler handles tenant and user credential HTTP requests
type SecretsHandler struct {
	tenantPolicies *tenantpolicy.Service
	userSecrets    *usersecret.Service
	logger         *zap.Logger
}

// NewSecretsHandler creates a new SecretsHandler
func NewSecretsHandler(tenantPolicies *tenantpolicy.Service, userSecrets *usersecret.Service, logger *zap.Logger) *SecretsHandler {
	return &SecretsHandler{
		tenantPolicies: tenantPolicies,
		userSecrets:    userSecrets,
		logger:         logger,
	}
}

// HandleSetTenantSecret handles PUT /v1/tenants/{tenantID}/secrets/{provider}
func (h *SecretsHandler) HandleSetTenantSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := middleware.GetTenantIDFromContext(ctx)
	provider := chi.URLParam(r, "provider")

	var req SetSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.tenantPolicies.SetSecret(ctx, tenantID, provider, req.APIKey); err != nil {
		h.logger.Error("failed to store tenant secret",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenantID.String()),
			zap.String("provider", provider),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("tenant secret stored",
		zap.String("request_id", requestID),
		zap.String("tenant_id", tenantID.String()),
		zap.String("provider", provider))

	_ = utils.WriteOK(w, SecretStatusResponse{Provider: provider, Stored: true})
}

// HandleDeleteTenantSecret handles DELETE /v1/tenants/{tenantID}/secrets/{provider}
func (h *SecretsHandler) HandleDeleteTenantSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := middleware.GetTenantIDFromContext(ctx)
	provider := chi.URLParam(r, "provider")

	if err := h.tenantPolicies.DeleteSecret(ctx, tenantID, provider); err != nil {
		h.logger.Error("failed to delete tenant secret",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenantID.String()),
			zap.String("provider", provider),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("tenant secret deleted",
		zap.String("request_id", requestID),
		zap.String("tenant_id", tenantID.String()),
		zap.String("provider", provider))

	utils.WriteNoContent(w)
}

// HandleSetUserSecret handles PUT /v1/tenants/{tenantID}/users/{userID}/secrets/{provider}
func (h *SecretsHandler) HandleSetUserSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := middleware.GetTenantIDFromContext(ctx)
	provider := chi.URLParam(r, "provider")

	userID, ok := parseUserParam(w, r)
	if !ok {
		return
	}

	var req SetSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.userSecrets.Upsert(ctx, tenantID, userID, provider, req.APIKey); err != nil {
		h.logger.Error("failed to store user secret",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenantID.String()),
			zap.String("user_id", userID.String()),
			zap.String("provider", provider),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("user secret stored",
		zap.String("request_id", requestID),
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", userID.String()),
		zap.String("provider", provider))

	_ = utils.WriteOK(w, SecretStatusResponse{Provider: provider, Stored: true})
}

// HandleDeleteUserSecret handles DELETE /v1/tenants/{tenantID}/users/{userID}/secrets/{provider}
func (h *SecretsHandler) HandleDeleteUserSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := middleware.GetTenantIDFromContext(ctx)
	provider := chi.URLParam(r, "provider")

	userID, ok := parseUserParam(w, r)
	if !ok {
		return
	}

	if err := h.userSecrets.Delete(ctx, tenantID, userID, provider); err != nil {
		h.logger.Error("failed to delete user secret",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenantID.String()),
			zap.String("user_id", userID.String()),
			zap.String("provider", provider),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// HandleListUserSecretProviders handles GET /v1/tenants/{tenantID}/users/{userID}/secrets
// It lists the providers a user has keys for, never the keys themselves.
func (h *SecretsHandler) HandleListUserSecretProviders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantIDFromContext(ctx)

	userID, ok := parseUserParam(w, r)
	if !ok {
		return
	}

	providers := h.userSecrets.ListConfiguredProviders(ctx, tenantID, userID)
	if providers == nil {
		providers = []string{}
	}

	_ = utils.WriteOK(w, providers)
}

// parseUserParam parses the {userID} URL parameter, writing a 400 on failure
func parseUserParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid user ID format", nil)
		return uuid.Nil, false
	}
	return userID, true
}
