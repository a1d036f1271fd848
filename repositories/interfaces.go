// Package repositories defines the persistence interfaces for tenant
// policies and encrypted secrets. Implementations live in the postgres
// and memory subpackages; the backend is chosen once at construction and
// never switched at runtime.
package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/llm-access-gate/models"
)

// ErrNotFound is returned when a requested record does not exist.
// Absence is an expected outcome, not a store failure; callers decide
// whether it means "no override" or "no credential".
var ErrNotFound = errors.New("record not found")

// TenantPolicyRepository persists tenant-level policy overrides.
type TenantPolicyRepository interface {
	// Get retrieves the override for a tenant. Returns ErrNotFound when
	// the tenant has no override.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.TenantPolicy, error)

	// Upsert writes the full override record; last write wins.
	Upsert(ctx context.Context, policy *models.TenantPolicy) error

	// Delete removes the override. Returns ErrNotFound when absent.
	Delete(ctx context.Context, tenantID uuid.UUID) error
}

// TenantSecretRepository persists tenant-scoped encrypted credentials,
// unique per (tenant_id, provider).
type TenantSecretRepository interface {
	// Get retrieves a tenant secret. Returns ErrNotFound when absent.
	Get(ctx context.Context, tenantID uuid.UUID, provider string) (*models.TenantSecret, error)

	// Upsert writes the secret record; last write wins.
	Upsert(ctx context.Context, secret *models.TenantSecret) error

	// Delete removes the secret. Returns ErrNotFound when absent.
	Delete(ctx context.Context, tenantID uuid.UUID, provider string) error
}

// UserSecretRepository persists user-scoped encrypted credentials,
// unique per (tenant_id, user_id, provider).
type UserSecretRepository interface {
	// Get retrieves a user secret. Returns ErrNotFound when absent.
	Get(ctx context.Context, tenantID, userID uuid.UUID, provider string) (*models.UserSecret, error)

	// Upsert writes the secret record; last write wins.
	Upsert(ctx context.Context, secret *models.UserSecret) error

	// Delete removes the secret. Returns ErrNotFound when absent.
	Delete(ctx context.Context, tenantID, userID uuid.UUID, provider string) error

	// ListProviders returns the providers the user has credentials for,
	// sorted for stable output.
	ListProviders(ctx context.Context, tenantID, userID uuid.UUID) ([]string, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	TenantPolicies TenantPolicyRepository
	TenantSecrets  TenantSecretRepository
	UserSecrets    UserSecretRepository
}
