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

// UserSecretRepository implements repositories.UserSecretRepository
type UserSecretRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserSecretRepository creates a new user secret repository
func NewUserSecretRepository(db *DB, logger *zap.Logger) repositories.UserSecretRepository {
	return &UserSecretRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a user secret by (tenant_id, user_id, provider)
func (r *UserSecretRepository) Get(ctx context.Context, tenantID, userID uuid.UUID, provider string) (*models.UserSecret, error) {
	query := `
		SELECT tenant_id, user_id, provider, encrypted_api_key, updated_at
		FROM user_secrets
		WHERE tenant_id = $1 AND user_id = $2 AND provider = $3
	`

	secret := &models.UserSecret{}
	err := r.db.QueryRowContext(ctx, query, tenantID, userID, provider).Scan(
		&secret.TenantID,
		&secret.UserID,
		&secret.Provider,
		&secret.EncryptedAPIKey,
		&secret.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user secret %s/%s/%s: %w", tenantID, userID, provider, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user secret: %w", err)
	}

	return secret, nil
}

// Upsert writes the secret record; last write wins
func (r *UserSecretRepository) Upsert(ctx context.Context, secret *models.UserSecret) error {
	query := `
		INSERT INTO user_secrets (tenant_id, user_id, provider, encrypted_api_key, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, user_id, provider) DO UPDATE SET
			encrypted_api_key = EXCLUDED.encrypted_api_key,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		secret.TenantID,
		secret.UserID,
		secret.Provider,
		secret.EncryptedAPIKey,
		secret.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user secret: %w", err)
	}

	r.logger.Debug("user secret upserted",
		zap.String("tenant_id", secret.TenantID.String()),
		zap.String("user_id", secret.UserID.String()),
		zap.String("provider", secret.Provider))
	return nil
}

// Delete removes a user secret
func (r *UserSecretRepository) Delete(ctx context.Context, tenantID, userID uuid.UUID, provider string) error {
	query := `DELETE FROM user_secrets WHERE tenant_id = $1 AND user_id = $2 AND provider = $3`

	result, err := r.db.ExecContext(ctx, query, tenantID, userID, provider)
	if err != nil {
		return fmt.Errorf("failed to delete user secret: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user secret %s/%s/%s: %w", tenantID, userID, provider, repositories.ErrNotFound)
	}

	r.logger.Debug("user secret deleted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", userID.String()),
		zap.String("provider", provider))
	return nil
}

// ListProviders returns the providers a user has credentials for
func (r *UserSecretRepository) ListProviders(ctx context.Context, tenantID, userID uuid.UUID) ([]string, error) {
	query := `
		SELECT provider
		FROM user_secrets
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY provider
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user secret providers: %w", err)
	}
	defer rows.Close()

	var providers []string
	for rows.Next() {
		var provider string
		if err := rows.Scan(&provider); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, provider)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider rows: %w", err)
	}

	return providers, nil
}
