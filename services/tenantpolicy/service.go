// Package tenantpolicy implements the tenant policy store: tenant-level
// policy overrides plus tenant-scoped encrypted credentials.
package tenantpolicy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/llm-access-gate/internal/secrets"
	"github.com/upb/llm-access-gate/models"
	"github.com/upb/llm-access-gate/repositories"
	"github.com/upb/llm-access-gate/services"
	"go.uber.org/zap"
)

// Service persists tenant policy overrides and tenant secrets.
type Service struct {
	policies      repositories.TenantPolicyRepository
	tenantSecrets repositories.TenantSecretRepository
	cipher        *secrets.Cipher
	logger        *zap.Logger
}

// NewService creates a new tenant policy service.
func NewService(
	policies repositories.TenantPolicyRepository,
	tenantSecrets repositories.TenantSecretRepository,
	cipher *secrets.Cipher,
	logger *zap.Logger,
) *Service {
	return &Service{
		policies:      policies,
		tenantSecrets: tenantSecrets,
		cipher:        cipher,
		logger:        logger,
	}
}

// GetPolicy retrieves the tenant's policy override. A tenant without an
// override returns (nil, nil); a store failure is returned so the caller
// chooses its own failure posture (the resolver fails open to the system
// policy, the admin API reports 503).
func (s *Service) GetPolicy(ctx context.Context, tenantID uuid.UUID) (*models.TenantPolicy, error) {
	policy, err := s.policies.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, services.WrapStoreUnavailable("failed to read tenant policy", err)
	}
	return policy, nil
}

// UpsertPolicy applies a partial update: only the update's non-nil fields
// replace stored values, the rest are kept. The first call for a tenant
// creates the record.
func (s *Service) UpsertPolicy(ctx context.Context, tenantID uuid.UUID, update models.TenantPolicyUpdate) (*models.TenantPolicy, error) {
	current, err := s.policies.Get(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, services.WrapStoreUnavailable("failed to read tenant policy", err)
		}
		current = models.NewTenantPolicy(tenantID)
	}

	if update.AllowedProviders != nil {
		current.AllowedProviders = append([]string(nil), (*update.AllowedProviders)...)
	}
	if update.AllowedModels != nil {
		allowed := make(map[string][]string, len(*update.AllowedModels))
		for provider, patterns := range *update.AllowedModels {
			allowed[provider] = append([]string(nil), patterns...)
		}
		current.AllowedModels = allowed
	}
	if update.DefaultFallback != nil {
		ref := *update.DefaultFallback
		current.DefaultFallback = &ref
	}
	if update.RegistryModels != nil {
		current.RegistryModels = append([]models.RegistryModel(nil), (*update.RegistryModels)...)
	}
	current.UpdatedAt = time.Now().UTC()

	if err := s.policies.Upsert(ctx, current); err != nil {
		return nil, services.WrapStoreUnavailable("failed to write tenant policy", err)
	}

	s.logger.Info("tenant policy updated",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("allowed_providers", len(current.AllowedProviders)),
		zap.Int("registry_models", len(current.RegistryModels)))
	return current, nil
}

// DeletePolicy removes the tenant's override entirely.
func (s *Service) DeletePolicy(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.policies.Delete(ctx, tenantID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrTenantPolicyNotFound
		}
		return services.WrapStoreUnavailable("failed to delete tenant policy", err)
	}
	s.logger.Info("tenant policy deleted", zap.String("tenant_id", tenantID.String()))
	return nil
}

// SetSecret encrypts and stores a provider credential for the tenant.
func (s *Service) SetSecret(ctx context.Context, tenantID uuid.UUID, provider, apiKey string) error {
	if provider == "" {
		return services.ErrInvalidProvider
	}
	if apiKey == "" {
		return services.ErrEmptyAPIKey
	}

	encrypted, err := s.cipher.Encrypt(apiKey)
	if err != nil {
		return services.WrapError(services.ErrorTypeInternal, "failed to encrypt secret", err)
	}

	secret := &models.TenantSecret{
		TenantID:        tenantID,
		Provider:        provider,
		EncryptedAPIKey: encrypted,
		UpdatedAt:       time.Now().UTC(),
	}
	if err := s.tenantSecrets.Upsert(ctx, secret); err != nil {
		return services.WrapStoreUnavailable("failed to write tenant secret", err)
	}

	s.logger.Info("tenant secret stored",
		zap.String("tenant_id", tenantID.String()),
		zap.String("provider", provider))
	return nil
}

// GetSecret retrieves and decrypts a tenant credential. Absence and store
// failures both yield ("", nil): when the store is down there is no
// credential, never a fallback to a different one. Decryption failures
// are returned; they can mean tampering or a key rotation problem and
// must never look like "not found".
func (s *Service) GetSecret(ctx context.Context, tenantID uuid.UUID, provider string) (string, error) {
	secret, err := s.tenantSecrets.Get(ctx, tenantID, provider)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", nil
		}
		s.logger.Error("tenant secret store unavailable, treating as no credential",
			zap.String("tenant_id", tenantID.String()),
			zap.String("provider", provider),
			zap.Error(err))
		return "", nil
	}

	apiKey, err := s.cipher.Decrypt(secret.EncryptedAPIKey)
	if err != nil {
		return "", services.NewDomainError(services.ErrorTypeDecryption, "failed to decrypt tenant secret", err).
			WithDetail("tenant_id", tenantID.String()).
			WithDetail("provider", provider)
	}
	return apiKey, nil
}

// DeleteSecret removes a tenant credential.
func (s *Service) DeleteSecret(ctx context.Context, tenantID uuid.UUID, provider string) error {
	if err := s.tenantSecrets.Delete(ctx, tenantID, provider); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrSecretNotFound
		}
		return services.WrapStoreUnavailable("failed to delete tenant secret", err)
	}
	s.logger.Info("tenant secret deleted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("provider", provider))
	return nil
}
