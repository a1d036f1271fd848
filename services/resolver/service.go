// Package resolver implements the config resolver: it merges the system
// policy with tenant overrides under the non-escalation rule, builds
// effective policy gates, and resolves provider credentials with
// user-over-tenant precedence.
package resolver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/llm-access-gate/internal/policy"
	"github.com/upb/llm-access-gate/models"
	"github.com/upb/llm-access-gate/services/tenantpolicy"
	"github.com/upb/llm-access-gate/services/usersecret"
	"go.uber.org/zap"
)

// Service resolves effective policy gates and credentials per request.
type Service struct {
	system         SystemPolicyProvider
	tenantPolicies *tenantpolicy.Service
	userSecrets    *usersecret.Service
	cache          *GateCache
	logger         *zap.Logger
}

// NewService creates a new config resolver.
func NewService(
	system SystemPolicyProvider,
	tenantPolicies *tenantpolicy.Service,
	userSecrets *usersecret.Service,
	cache *GateCache,
	logger *zap.Logger,
) *Service {
	return &Service{
		system:         system,
		tenantPolicies: tenantPolicies,
		userSecrets:    userSecrets,
		cache:          cache,
		logger:         logger,
	}
}

// GetEffectivePolicyGate returns the gate for (tenant, user): the system
// policy merged with the tenant's override, which can only narrow it.
//
// A tenant policy store failure is absorbed here as "no override": the
// request proceeds under the system policy, which is never wider than
// what the override would have produced. userID is accepted for future
// per-user narrowing; this core deliberately has no user-level policy
// layer, so a gate is cached per tenant.
func (s *Service) GetEffectivePolicyGate(ctx context.Context, tenantID, userID uuid.UUID) (*policy.Gate, error) {
	if gate := s.cache.Get(tenantID); gate != nil {
		return gate, nil
	}

	system := s.system.Get()

	override, err := s.tenantPolicies.GetPolicy(ctx, tenantID)
	if err != nil {
		s.logger.Warn("tenant policy unavailable, falling back to system policy",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		override = nil
	}

	merged := policy.Merge(system, override)
	gate := policy.NewGate(merged)
	s.cache.Set(tenantID, gate)

	s.logger.Debug("effective policy gate built",
		zap.String("tenant_id", tenantID.String()),
		zap.Bool("tenant_override", override != nil),
		zap.Strings("allowed_providers", merged.AllowedProviders))
	return gate, nil
}

// ResolveAPIKey returns the credential to use for the provider: the
// user's own secret when present, else the tenant's, else "". An empty
// result means the provider cannot be served; callers must never
// substitute a different provider's credential. The only error returned
// is a decryption failure, which is always propagated.
func (s *Service) ResolveAPIKey(ctx context.Context, tenantID, userID uuid.UUID, provider string) (string, error) {
	userKey, err := s.userSecrets.GetAPIKey(ctx, tenantID, userID, provider)
	if err != nil {
		return "", err
	}
	if userKey != "" {
		return userKey, nil
	}

	tenantKey, err := s.tenantPolicies.GetSecret(ctx, tenantID, provider)
	if err != nil {
		return "", err
	}
	return tenantKey, nil
}

// ResolveAPIKeysMap resolves a credential per provider, omitting
// providers with no resolved key.
func (s *Service) ResolveAPIKeysMap(ctx context.Context, tenantID, userID uuid.UUID, providers []string) (map[string]string, error) {
	keys := make(map[string]string, len(providers))
	for _, provider := range providers {
		key, err := s.ResolveAPIKey(ctx, tenantID, userID, provider)
		if err != nil {
			return nil, err
		}
		if key == "" {
			continue
		}
		keys[provider] = key
	}
	return keys, nil
}

// ListTenantModels returns the tenant's model registry entries filtered
// through the effective gate. Stored entries grant nothing; the gate is
// applied here, at use time.
func (s *Service) ListTenantModels(ctx context.Context, tenantID, userID uuid.UUID) ([]models.RegistryModel, error) {
	gate, err := s.GetEffectivePolicyGate(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	override, err := s.tenantPolicies.GetPolicy(ctx, tenantID)
	if err != nil || override == nil {
		return nil, err
	}

	allowed := make([]models.RegistryModel, 0, len(override.RegistryModels))
	for _, entry := range override.RegistryModels {
		provider := entry.Provider
		if provider == "" {
			provider = policy.InferProvider(entry.ID)
		}
		if !gate.IsModelAllowed(provider, entry.ID) {
			continue
		}
		allowed = append(allowed, entry)
	}
	return allowed, nil
}

// InvalidateTenant drops the cached gate for a tenant. Called after the
// tenant's override changes.
func (s *Service) InvalidateTenant(tenantID uuid.UUID) {
	s.cache.Invalidate(tenantID)
	s.logger.Debug("invalidated gate cache", zap.String("tenant_id", tenantID.String()))
}

// ReloadSystemPolicy re-reads the system policy when the provider
// supports it and clears every cached gate, so the new policy takes
// effect immediately instead of after the cache TTL. Returns
// ErrNotReloadable when the provider is static.
func (s *Service) ReloadSystemPolicy() error {
	reloader, ok := s.system.(Reloader)
	if !ok {
		return ErrNotReloadable
	}
	if err := reloader.Reload(); err != nil {
		return err
	}
	s.cache.Clear()
	s.logger.Info("system policy reloaded, gate cache cleared")
	return nil
}

// CacheStats returns gate cache statistics.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

// StartCacheCleanup starts the cache cleanup worker.
func (s *Service) StartCacheCleanup(interval time.Duration, stopCh <-chan struct{}) {
	s.cache.StartCleanupWorker(interval, stopCh)
	s.logger.Info("started gate cache cleanup worker",
		zap.Duration("interval", interval))
}
