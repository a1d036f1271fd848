// Package memory provides mutex-guarded in-memory implementations of the
// repository interfaces. The backend is selected once at construction via
// configuration; persistence never silently degrades to memory at
// runtime.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/upb/llm-access-gate/models"
	"github.com/upb/llm-access-gate/repositories"
)

// NewRepositories creates in-memory instances of all repositories.
func NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		TenantPolicies: NewTenantPolicyRepository(),
		TenantSecrets:  NewTenantSecretRepository(),
		UserSecrets:    NewUserSecretRepository(),
	}
}

// TenantPolicyRepository is an in-memory repositories.TenantPolicyRepository
type TenantPolicyRepository struct {
	mu       sync.RWMutex
	policies map[uuid.UUID]*models.TenantPolicy
}

// NewTenantPolicyRepository creates an empty in-memory policy repository
func NewTenantPolicyRepository() *TenantPolicyRepository {
	return &TenantPolicyRepository{
		policies: make(map[uuid.UUID]*models.TenantPolicy),
	}
}

// Get retrieves the override for a tenant
func (r *TenantPolicyRepository) Get(ctx context.Context, tenantID uuid.UUID) (*models.TenantPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	policy, ok := r.policies[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant policy %s: %w", tenantID, repositories.ErrNotFound)
	}
	return clonePolicy(policy), nil
}

// Upsert writes the full override record
func (r *TenantPolicyRepository) Upsert(ctx context.Context, policy *models.TenantPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.policies[policy.TenantID] = clonePolicy(policy)
	return nil
}

// Delete removes the override
func (r *TenantPolicyRepository) Delete(ctx context.Context, tenantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[tenantID]; !ok {
		return fmt.Errorf("tenant policy %s: %w", tenantID, repositories.ErrNotFound)
	}
	delete(r.policies, tenantID)
	return nil
}

// clonePolicy copies a record so callers never share mutable state with
// the store.
func clonePolicy(p *models.TenantPolicy) *models.TenantPolicy {
	out := &models.TenantPolicy{
		TenantID:  p.TenantID,
		UpdatedAt: p.UpdatedAt,
	}
	if p.AllowedProviders != nil {
		out.AllowedProviders = append([]string(nil), p.AllowedProviders...)
	}
	if p.AllowedModels != nil {
		out.AllowedModels = make(map[string][]string, len(p.AllowedModels))
		for provider, patterns := range p.AllowedModels {
			out.AllowedModels[provider] = append([]string(nil), patterns...)
		}
	}
	if p.DefaultFallback != nil {
		ref := *p.DefaultFallback
		out.DefaultFallback = &ref
	}
	if p.RegistryModels != nil {
		out.RegistryModels = append([]models.RegistryModel(nil), p.RegistryModels...)
	}
	return out
}

type tenantSecretKey struct {
	tenantID uuid.UUID
	provider string
}

// TenantSecretRepository is an in-memory repositories.TenantSecretRepository
type TenantSecretRepository struct {
	mu      sync.RWMutex
	secrets map[tenantSecretKey]models.TenantSecret
}

// NewTenantSecretRepository creates an empty in-memory tenant secret repository
func NewTenantSecretRepository() *TenantSecretRepository {
	return &TenantSecretRepository{
		secrets: make(map[tenantSecretKey]models.TenantSecret),
	}
}

// Get retrieves a tenant secret
func (r *TenantSecretRepository) Get(ctx context.Context, tenantID uuid.UUID, provider string) (*models.TenantSecret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	secret, ok := r.secrets[tenantSecretKey{tenantID, provider}]
	if !ok {
		return nil, fmt.Errorf("tenant secret %s/%s: %w", tenantID, provider, repositories.ErrNotFound)
	}
	return &secret, nil
}

// Upsert writes the secret record; last write wins
func (r *TenantSecretRepository) Upsert(ctx context.Context, secret *models.TenantSecret) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.secrets[tenantSecretKey{secret.TenantID, secret.Provider}] = *secret
	return nil
}

// Delete removes a tenant secret
func (r *TenantSecretRepository) Delete(ctx context.Context, tenantID uuid.UUID, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := tenantSecretKey{tenantID, provider}
	if _, ok := r.secrets[key]; !ok {
		return fmt.Errorf("tenant secret %s/%s: %w", tenantID, provider, repositories.ErrNotFound)
	}
	delete(r.secrets, key)
	return nil
}

type userSecretKey struct {
	tenantID uuid.UUID
	userID   uuid.UUID
	provider string
}

// UserSecretRepository is an in-memory repositories.UserSecretRepository
type UserSecretRepository struct {
	mu      sync.RWMutex
	secrets map[userSecretKey]models.UserSecret
}

// NewUserSecretRepository creates an empty in-memory user secret repository
func NewUserSecretRepository() *UserSecretRepository {
	return &UserSecretRepository{
		secrets: make(map[userSecretKey]models.UserSecret),
	}
}

// Get retrieves a user secret
func (r *UserSecretRepository) Get(ctx context.Context, tenantID, userID uuid.UUID, provider string) (*models.UserSecret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	secret, ok := r.secrets[userSecretKey{tenantID, userID, provider}]
	if !ok {
		return nil, fmt.Errorf("user secret %s/%s/%s: %w", tenantID, userID, provider, repositories.ErrNotFound)
	}
	return &secret, nil
}

// Upsert writes the secret record; last write wins
func (r *UserSecretRepository) Upsert(ctx context.Context, secret *models.UserSecret) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.secrets[userSecretKey{secret.TenantID, secret.UserID, secret.Provider}] = *secret
	return nil
}

// Delete removes a user secret
func (r *UserSecretRepository) Delete(ctx context.Context, tenantID, userID uuid.UUID, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := userSecretKey{tenantID, userID, provider}
	if _, ok := r.secrets[key]; !ok {
		return fmt.Errorf("user secret %s/%s/%s: %w", tenantID, userID, provider, repositories.ErrNotFound)
	}
	delete(r.secrets, key)
	return nil
}

// ListProviders returns the providers the user has credentials for
func (r *UserSecretRepository) ListProviders(ctx context.Context, tenantID, userID uuid.UUID) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var providers []string
	for key := range r.secrets {
		if key.tenantID == tenantID && key.userID == userID {
			providers = append(providers, key.provider)
		}
	}
	sort.Strings(providers)
	return providers, nil
}
