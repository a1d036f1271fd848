package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistryModel is a tenant-supplied model catalog entry. Entries are
// stored as given and filtered through the effective policy gate whenever
// they are read back, so a stored entry grants nothing by itself.
type RegistryModel struct {
	ID            string `json:"id" validate:"required"`
	Provider      string `json:"provider,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	ContextWindow int    `json:"context_window,omitempty" validate:"gte=0"`
}

// TenantPolicy is a tenant-level override of the system policy. It can
// only narrow access: the config resolver merges it against the system
// policy under the non-escalation rule before any decision is made.
type TenantPolicy struct {
	TenantID         uuid.UUID           `json:"tenant_id" db:"tenant_id"`
	AllowedProviders []string            `json:"allowed_providers,omitempty" db:"allowed_providers"`
	AllowedModels    map[string][]string `json:"allowed_models,omitempty" db:"allowed_models"`
	DefaultFallback  *ModelRef           `json:"default_fallback,omitempty" db:"default_fallback"`
	RegistryModels   []RegistryModel     `json:"model_registry_models,omitempty" db:"model_registry_models"`
	UpdatedAt        time.Time           `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the TenantPolicy model
func (TenantPolicy) TableName() string {
	return "tenant_policies"
}

// NewTenantPolicy creates an empty override for a tenant.
func NewTenantPolicy(tenantID uuid.UUID) *TenantPolicy {
	return &TenantPolicy{
		TenantID:  tenantID,
		UpdatedAt: time.Now().UTC(),
	}
}

// PolicyView returns the override's policy fields as a Policy value for
// merging.
func (t *TenantPolicy) PolicyView() Policy {
	return Policy{
		AllowedProviders: t.AllowedProviders,
		AllowedModels:    t.AllowedModels,
		DefaultFallback:  t.DefaultFallback,
	}
}

// TenantPolicyUpdate carries partial-update semantics for UpsertPolicy:
// only non-nil fields replace the stored value, everything else is kept.
type TenantPolicyUpdate struct {
	AllowedProviders *[]string
	AllowedModels    *map[string][]string
	DefaultFallback  *ModelRef
	RegistryModels   *[]RegistryModel
}
