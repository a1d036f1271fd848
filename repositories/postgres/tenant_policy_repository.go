package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/llm-access-gate/models"
	"github.com/upb/llm-access-gate/repositories"
	"go.uber.org/zap"
)

// TenantPolicyRepository implements repositories.TenantPolicyRepository
type TenantPolicyRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTenantPolicyRepository creates a new tenant policy repository
func NewTenantPolicyRepository(db *DB, logger *zap.Logger) repositories.TenantPolicyRepository {
	return &TenantPolicyRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the policy override for a tenant
func (r *TenantPolicyRepository) Get(ctx context.Context, tenantID uuid.UUID) (*models.TenantPolicy, error) {
	query := `
		SELECT tenant_id, allowed_providers, allowed_models, default_fallback, model_registry_models, updated_at
		FROM tenant_policies
		WHERE tenant_id = $1
	`

	policy := &models.TenantPolicy{}
	var providers, allowedModels, fallback, registryModels []byte

	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(
		&policy.TenantID,
		&providers,
		&allowedModels,
		&fallback,
		&registryModels,
		&policy.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant policy %s: %w", tenantID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tenant policy: %w", err)
	}

	if err := unmarshalColumn(providers, &policy.AllowedProviders); err != nil {
		return nil, fmt.Errorf("failed to decode allowed_providers: %w", err)
	}
	if err := unmarshalColumn(allowedModels, &policy.AllowedModels); err != nil {
		return nil, fmt.Errorf("failed to decode allowed_models: %w", err)
	}
	if err := unmarshalColumn(fallback, &policy.DefaultFallback); err != nil {
		return nil, fmt.Errorf("failed to decode default_fallback: %w", err)
	}
	if err := unmarshalColumn(registryModels, &policy.RegistryModels); err != nil {
		return nil, fmt.Errorf("failed to decode model_registry_models: %w", err)
	}

	return policy, nil
}

// Upsert writes the full override record, creating it on first write
func (r *TenantPolicyRepository) Upsert(ctx context.Context, policy *models.TenantPolicy) error {
	query := `
		INSERT INTO tenant_policies (tenant_id, allowed_providers, allowed_models, default_fallback, model_registry_models, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE SET
			allowed_providers = EXCLUDED.allowed_providers,
			allowed_models = EXCLUDED.allowed_models,
			default_fallback = EXCLUDED.default_fallback,
			model_registry_models = EXCLUDED.model_registry_models,
			updated_at = EXCLUDED.updated_at
	`

	providers, err := marshalColumn(policy.AllowedProviders)
	if err != nil {
		return fmt.Errorf("failed to encode allowed_providers: %w", err)
	}
	allowedModels, err := marshalColumn(policy.AllowedModels)
	if err != nil {
		return fmt.Errorf("failed to encode allowed_models: %w", err)
	}
	fallback, err := marshalColumn(policy.DefaultFallback)
	if err != nil {
		return fmt.Errorf("failed to encode default_fallback: %w", err)
	}
	registryModels, err := marshalColumn(policy.RegistryModels)
	if err != nil {
		return fmt.Errorf("failed to encode model_registry_models: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		policy.TenantID,
		providers,
		allowedModels,
		fallback,
		registryModels,
		policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tenant policy: %w", err)
	}

	r.logger.Debug("tenant policy upserted", zap.String("tenant_id", policy.TenantID.String()))
	return nil
}

// Delete removes the override for a tenant
func (r *TenantPolicyRepository) Delete(ctx context.Context, tenantID uuid.UUID) error {
	query := `DELETE FROM tenant_policies WHERE tenant_id = $1`

	result, err := r.db.ExecContext(ctx, query, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant policy: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("tenant policy %s: %w", tenantID, repositories.ErrNotFound)
	}

	r.logger.Debug("tenant policy deleted", zap.String("tenant_id", tenantID.String()))
	return nil
}

// marshalColumn encodes a value as JSONB, mapping nil to SQL NULL.
func marshalColumn(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case []string:
		if val == nil {
			return nil, nil
		}
	case map[string][]string:
		if val == nil {
			return nil, nil
		}
	case *models.ModelRef:
		if val == nil {
			return nil, nil
		}
	case []models.RegistryModel:
		if val == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// lib/pq sends []byte as bytea; jsonb columns want text.
	return string(b), nil
}

// unmarshalColumn decodes a JSONB column, leaving the target zero-valued
// for SQL NULL.
func unmarshalColumn(data []byte, target interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
