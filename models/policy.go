package models

// ModelRef identifies a concrete (provider, model) pair, used for the
// default fallback selection.
type ModelRef struct {
	Provider string `json:"provider" validate:"required"`
	Model    string `json:"model" validate:"required"`
}

// Policy describes which LLM providers and models may be invoked.
//
// An empty AllowedProviders list means unrestricted provider access. A
// provider absent from AllowedModels is unrestricted at the model level.
// Policy values are treated as immutable once loaded; merging produces a
// new value and never mutates its inputs.
type Policy struct {
	AllowedProviders []string            `json:"allowed_providers,omitempty" validate:"dive,min=1"`
	AllowedModels    map[string][]string `json:"allowed_models,omitempty" validate:"dive,dive,min=1"`
	DefaultFallback  *ModelRef           `json:"default_fallback,omitempty"`

	// DenyAllProviders marks a policy whose provider narrowing eliminated
	// every provider. It cannot be expressed through AllowedProviders: an
	// empty list already means unrestricted, and slice copies do not
	// distinguish nil from empty. Merging is the only producer; policy
	// documents cannot set it.
	DenyAllProviders bool `json:"-"`
}

// Clone returns a deep copy of the policy.
func (p Policy) Clone() Policy {
	out := Policy{DenyAllProviders: p.DenyAllProviders}
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
	return out
}

// IsUnrestricted reports whether the policy places no restriction at all.
func (p Policy) IsUnrestricted() bool {
	return !p.DenyAllProviders && len(p.AllowedProviders) == 0 && len(p.AllowedModels) == 0
}
