package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/llm-access-gate/models"
	"github.com/upb/llm-access-gate/repositories"
	"go.uber.org/zap"
)

// TenantSecretRepository implements repositories.TenantSecretRepository
type TenantSecretRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTenantSecretRepository creates a new tenant secret repository
func NewTenantSecretRepository(db *DB, logger *zap.Logger) repositories.TenantSecretRepository {
	return &TenantSecretRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a tenant secret by (tenant_id, provider)
func (r *TenantSecretRepository) Get(ctx context.Context, tenantID uuid.UUID, provider string) (*models.TenantSecret, error) {
	query := `
		SELECT tenant_id, provider, encrypted_api_key, updated_at
		FROM tenant_secrets
		WHERE tenant_id = $1 AND provider = $2
	`

	secret := &models.TenantSecret{}
	err := r.db.QueryRowContext(ctx, query, tenantID, provider).Scan(
		&secret.TenantID,
		&secret.Provider,
		&secret.EncryptedAPIKey,
		&secret.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant secret %s/%s: %w", tenantID, provider, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tenant secret: %w", err)
	}

	return secret, nil
}

// Upsert writes the secret record; last write wins
func (r *TenantSecretRepository) Upsert(ctx context.Context, secret *models.TenantSecret) error {
	query := `
		INSERT INTO tenant_secrets (tenant_id, provider, encrypted_api_key, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, provider) DO UPDATE SET
			encrypted_api_key = EXCLUDED.encrypted_api_key,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		secret.TenantID,
		secret.Provider,
		secret.EncryptedAPIKey,
		secret.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tenant secret: %w", err)
	}

	r.logger.Debug("tenant secret upserted",
		zap.String("tenant_id", secret.TenantID.String()),
		zap.String("provider", secret.Provider))
	return nil
}

// Delete removes a tenant secret
func (r *TenantSecretRepository) Delete(ctx context.Context, tenantID uuid.UUID, provider string) error {
	query := `DELETE FROM tenant_secrets WHERE tenant_id = $1 AND provider = $2`

	result, err := r.db.ExecContext(ctx, query, tenantID, provider)
	if err != nil {
		return fmt.Errorf("failed to delete tenant secret: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("tenant secret %s/%s: %w", tenantID, provider, repositories.ErrNotFound)
	}

	r.logger.Debug("tenant secret deleted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("provider", provider))
	return nil
}
