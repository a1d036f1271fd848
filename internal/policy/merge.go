package policy

import (
	"strings"

	"github.com/upb/llm-access-gate/models"
)

// Merge combines the system policy with a tenant override such that the
// result can only narrow, never widen, what the system policy allows.
// A nil override returns the system policy unchanged. Neither input is
// mutated.
//
// Rules:
//   - allowed_providers: with a non-empty system list the result is the
//     intersection (tenant order preserved); with an unrestricted system
//     the tenant list is taken as given; an empty tenant list defers to
//     the system list. An empty intersection denies every provider; an
//     empty result list must never read back as unrestricted.
//   - allowed_models: tenant pattern lists are filtered to the patterns
//     subsumed by the system's patterns for that provider; providers the
//     tenant does not mention keep the system's patterns; a provider the
//     system leaves open inherits the tenant patterns unfiltered.
//   - default_fallback: tenant value replaces the system value verbatim.
//     It is a preference only and is re-checked against the gate at use
//     time.
func Merge(system models.Policy, override *models.TenantPolicy) models.Policy {
	if override == nil {
		return system.Clone()
	}
	tenant := override.PolicyView()

	merged := models.Policy{}
	merged.AllowedProviders, merged.DenyAllProviders = mergeProviders(system.AllowedProviders, tenant.AllowedProviders)
	merged.DenyAllProviders = merged.DenyAllProviders || system.DenyAllProviders
	merged.AllowedModels = mergeModels(system.AllowedModels, tenant.AllowedModels)

	switch {
	case tenant.DefaultFallback != nil:
		ref := *tenant.DefaultFallback
		merged.DefaultFallback = &ref
	case system.DefaultFallback != nil:
		ref := *system.DefaultFallback
		merged.DefaultFallback = &ref
	}
	return merged
}

// mergeProviders narrows the system provider list by the tenant list.
// An empty tenant list defers to the system list; a tenant cannot use an
// empty list to mean "deny all". A tenant list disjoint from the system
// list produces a deny-all result, reported through the second return:
// an empty slice alone would read back as unrestricted.
func mergeProviders(system, tenant []string) ([]string, bool) {
	if len(tenant) == 0 {
		return append([]string(nil), system...), false
	}
	if len(system) == 0 {
		return append([]string(nil), tenant...), false
	}
	allowed := make(map[string]struct{}, len(system))
	for _, p := range system {
		allowed[strings.ToLower(p)] = struct{}{}
	}
	var out []string
	for _, p := range tenant {
		if _, ok := allowed[strings.ToLower(p)]; ok {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, true
	}
	return out, false
}

// mergeModels starts from the system pattern map and replaces each entry
// the tenant supplies with the subsumed subset of the tenant's patterns.
// A tenant entry whose patterns all escalate collapses to an empty list,
// which the gate treats as matching no model.
func mergeModels(system, tenant map[string][]string) map[string][]string {
	if len(system) == 0 && len(tenant) == 0 {
		return nil
	}
	out := make(map[string][]string, len(system)+len(tenant))
	for provider, patterns := range system {
		out[provider] = append([]string(nil), patterns...)
	}
	for provider, patterns := range tenant {
		systemKey, systemPatterns, restricted := lookupProvider(system, provider)
		if !restricted {
			// Provider-level openness is inherited as model-level
			// openness until the tenant itself restricts it.
			out[provider] = append([]string(nil), patterns...)
			continue
		}
		kept := make([]string, 0, len(patterns))
		for _, p := range patterns {
			if Subsumed(p, systemPatterns) {
				kept = append(kept, p)
			}
		}
		delete(out, systemKey)
		out[provider] = kept
	}
	return out
}

// lookupProvider finds a provider's pattern list case-insensitively and
// returns the key under which it is stored.
func lookupProvider(m map[string][]string, provider string) (string, []string, bool) {
	if patterns, ok := m[provider]; ok {
		return provider, patterns, true
	}
	lower := strings.ToLower(provider)
	for key, patterns := range m {
		if strings.ToLower(key) == lower {
			return key, patterns, true
		}
	}
	return "", nil, false
}

// Subsumed reports whether pattern p is fully covered by at least one of
// the system patterns: "*" covers everything, a trailing-wildcard system
// pattern covers any p sharing its prefix, and an identical pattern
// covers itself.
func Subsumed(p string, systemPatterns []string) bool {
	pl := strings.ToLower(p)
	for _, s := range systemPatterns {
		sl := strings.ToLower(s)
		if sl == "*" {
			return true
		}
		if strings.HasSuffix(sl, "*") && strings.HasPrefix(pl, strings.TrimSuffix(sl, "*")) {
			return true
		}
		if sl == pl {
			return true
		}
	}
	return false
}
