// Package usersecret implements the user secret store: per-user provider
// credentials scoped by (tenant_id, user_id, provider).
package usersecret

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

// Service persists user-scoped encrypted credentials.
type Service struct {
	userSecrets repositories.UserSecretRepository
	cipher      *secrets.Cipher
	logger      *zap.Logger
}

// NewService creates a new user secret service.
func NewService(userSecrets repositories.UserSecretRepository, cipher *secrets.Cipher, logger *zap.Logger) *Service {
	return &Service{
		userSecrets: userSecrets,
		cipher:      cipher,
		logger:      logger,
	}
}

// Upsert encrypts and stores a provider credential for the user.
func (s *Service) Upsert(ctx context.Context, tenantID, userID uuid.UUID, provider, apiKey string) error {
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

	secret := &models.UserSecret{
		TenantID:        tenantID,
		UserID:          userID,
		Provider:        provider,
		EncryptedAPIKey: encrypted,
		UpdatedAt:       time.Now().UTC(),
	}
	if err := s.userSecrets.Upsert(ctx, secret); err != nil {
		return services.WrapStoreUnavailable("failed to write user secret", err)
	}

	s.logger.Info("user secret stored",
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", userID.String()),
		zap.String("provider", provider))
	return nil
}

// Delete removes a user credential.
func (s *Service) Delete(ctx context.Context, tenantID, userID uuid.UUID, provider string) error {
	if err := s.userSecrets.Delete(ctx, tenantID, userID, provider); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrSecretNotFound
		}
		return services.WrapStoreUnavailable("failed to delete user secret", err)
	}
	s.logger.Info("user secret deleted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", userID.String()),
		zap.String("provider", provider))
	return nil
}

// GetAPIKey retrieves and decrypts a user credential. Absence and store
// failures both yield ("", nil): no credential rather than a wrong one.
// Decryption failures are returned, distinguishable from absence.
func (s *Service) GetAPIKey(ctx context.Context, tenantID, userID uuid.UUID, provider string) (string, error) {
	secret, err := s.userSecrets.Get(ctx, tenantID, userID, provider)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", nil
		}
		s.logger.Error("user secret store unavailable, treating as no credential",
			zap.String("tenant_id", tenantID.String()),
			zap.String("user_id", userID.String()),
			zap.String("provider", provider),
			zap.Error(err))
		return "", nil
	}

	apiKey, err := s.cipher.Decrypt(secret.EncryptedAPIKey)
	if err != nil {
		return "", services.NewDomainError(services.ErrorTypeDecryption, "failed to decrypt user secret", err).
			WithDetail("tenant_id", tenantID.String()).
			WithDetail("user_id", userID.String()).
			WithDetail("provider", provider)
	}
	return apiKey, nil
}

// ListConfiguredProviders returns the set of providers the user has
// credentials for. A store failure yields an empty set with a logged
// error, matching the fail-closed posture of secret reads.
func (s *Service) ListConfiguredProviders(ctx context.Context, tenantID, userID uuid.UUID) []string {
	providers, err := s.userSecrets.ListProviders(ctx, tenantID, userID)
	if err != nil {
		s.logger.Error("failed to list user secret providers",
			zap.String("tenant_id", tenantID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil
	}
	return providers
}
