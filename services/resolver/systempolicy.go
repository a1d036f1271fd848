package resolver

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/upb/llm-access-gate/models"
	"github.com/upb/llm-access-gate/utils"
	"go.uber.org/zap"
)

// SystemPolicyProvider supplies the process-wide read-only system policy.
type SystemPolicyProvider interface {
	// Get returns the current policy snapshot. The returned value is
	// shared and must be treated as read-only.
	Get() models.Policy
}

// Reloader is implemented by providers that can re-read their policy
// source at runtime, such as FilePolicyProvider.
type Reloader interface {
	Reload() error
}

// ErrNotReloadable is returned when a reload is requested but the
// configured provider has no backing source to re-read.
var ErrNotReloadable = errors.New("system policy provider does not support reload")

// StaticPolicyProvider wraps a fixed policy value, mostly for tests and
// for running without a policy file (unrestricted).
type StaticPolicyProvider struct {
	policy models.Policy
}

// NewStaticPolicyProvider creates a provider that always returns p.
func NewStaticPolicyProvider(p models.Policy) *StaticPolicyProvider {
	return &StaticPolicyProvider{policy: p.Clone()}
}

// Get returns the wrapped policy.
func (p *StaticPolicyProvider) Get() models.Policy {
	return p.policy
}

// systemPolicyDocument is the on-disk shape of the system policy. It is
// validated here, at the boundary, so the merge logic can assume a
// well-formed closed structure.
type systemPolicyDocument struct {
	AllowedProviders []string            `json:"allowed_providers" validate:"dive,min=1"`
	AllowedModels    map[string][]string `json:"allowed_models" validate:"dive,dive,min=1"`
	DefaultFallback  *models.ModelRef    `json:"default_fallback" validate:"omitempty"`
}

// FilePolicyProvider loads the system policy from a JSON file and holds
// it as an immutable snapshot. Reload parses and validates a fresh copy
// and swaps the pointer atomically, so concurrent readers always see
// either the old or the new policy, never a partial one.
type FilePolicyProvider struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[models.Policy]
}

// NewFilePolicyProvider loads the policy file at path. A load failure at
// startup is fatal to construction; the process should not come up with
// an unknown policy.
func NewFilePolicyProvider(path string, logger *zap.Logger) (*FilePolicyProvider, error) {
	p := &FilePolicyProvider{
		path:   path,
		logger: logger,
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns the current policy snapshot.
func (p *FilePolicyProvider) Get() models.Policy {
	return *p.current.Load()
}

// Reload re-reads and validates the policy file and installs the new
// snapshot atomically.
func (p *FilePolicyProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read system policy file: %w", err)
	}

	var doc systemPolicyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse system policy file: %w", err)
	}
	if err := utils.ValidateStruct(&doc); err != nil {
		return fmt.Errorf("system policy validation failed: %w", err)
	}
	if doc.DefaultFallback != nil {
		if err := utils.ValidateStruct(doc.DefaultFallback); err != nil {
			return fmt.Errorf("system policy default_fallback validation failed: %w", err)
		}
	}

	policy := models.Policy{
		AllowedProviders: doc.AllowedProviders,
		AllowedModels:    doc.AllowedModels,
		DefaultFallback:  doc.DefaultFallback,
	}
	p.current.Store(&policy)

	p.logger.Info("system policy loaded",
		zap.String("path", p.path),
		zap.Int("allowed_providers", len(policy.AllowedProviders)),
		zap.Int("model_restricted_providers", len(policy.AllowedModels)))
	return nil
}
