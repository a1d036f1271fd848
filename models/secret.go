package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantSecret is a tenant-scoped provider credential. EncryptedAPIKey is
// base64(nonce || ciphertext+tag) produced by the secret cipher; the
// plaintext key is never persisted or logged.
type TenantSecret struct {
	TenantID        uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Provider        string    `json:"provider" db:"provider"`
	EncryptedAPIKey string    `json:"encrypted_api_key" db:"encrypted_api_key"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the TenantSecret model
func (TenantSecret) TableName() string {
	return "tenant_secrets"
}

// UserSecret is a user-scoped provider credential. Records are keyed by
// (tenant_id, user_id, provider) so same-named users under different
// tenants never collide.
type UserSecret struct {
	TenantID        uuid.UUID `json:"tenant_id" db:"tenant_id"`
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	Provider        string    `json:"provider" db:"provider"`
	EncryptedAPIKey string    `json:"encrypted_api_key" db:"encrypted_api_key"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the UserSecret model
func (UserSecret) TableName() string {
	return "user_secrets"
}
