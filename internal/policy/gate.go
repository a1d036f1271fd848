// Package policy implements the pure access-decision core: pattern
// matching, the policy gate, and the non-escalation merge of system and
// tenant policies. Nothing in this package performs I/O.
package policy

import (
	"strings"

	"github.com/upb/llm-access-gate/models"
)

// Gate answers allow/deny questions against a single immutable policy
// snapshot. Safe for unlimited concurrent readers.
type Gate struct {
	providers     map[string]struct{} // lowercased; empty = unrestricted
	providerOrder []string            // original casing, for introspection
	denyAll       bool                // provider narrowing eliminated everything
	models        map[string][]string // lowercased provider -> patterns
	fallback      *models.ModelRef
}

// NewGate builds a gate from a policy snapshot. The policy is not
// retained; its contents are copied into lookup form.
func NewGate(p models.Policy) *Gate {
	g := &Gate{
		providers: make(map[string]struct{}, len(p.AllowedProviders)),
		denyAll:   p.DenyAllProviders,
		models:    make(map[string][]string, len(p.AllowedModels)),
	}
	for _, provider := range p.AllowedProviders {
		key := strings.ToLower(provider)
		if _, seen := g.providers[key]; seen {
			continue
		}
		g.providers[key] = struct{}{}
		g.providerOrder = append(g.providerOrder, provider)
	}
	for provider, patterns := range p.AllowedModels {
		g.models[strings.ToLower(provider)] = append([]string(nil), patterns...)
	}
	if p.DefaultFallback != nil {
		ref := *p.DefaultFallback
		g.fallback = &ref
	}
	return g
}

// IsProviderAllowed reports whether the provider may be used. An empty
// allowed-provider list means every provider is allowed, unless the
// policy's provider narrowing eliminated everything.
func (g *Gate) IsProviderAllowed(provider string) bool {
	if g.denyAll {
		return false
	}
	if len(g.providers) == 0 {
		return true
	}
	_, ok := g.providers[strings.ToLower(provider)]
	return ok
}

// IsModelAllowed reports whether the model may be used with the provider.
// A provider without a pattern list is open at the model level, and an
// empty model ID is never blocked so providerless/auto requests pass.
func (g *Gate) IsModelAllowed(provider, modelID string) bool {
	if !g.IsProviderAllowed(provider) {
		return false
	}
	patterns, restricted := g.models[strings.ToLower(provider)]
	if !restricted {
		return true
	}
	if modelID == "" {
		return true
	}
	for _, pattern := range patterns {
		if MatchPattern(pattern, modelID) {
			return true
		}
	}
	return false
}

// FilterFavoriteModels dedupes the IDs preserving first-seen order and
// drops any whose inferred provider or model the gate rejects. IDs whose
// provider cannot be inferred survive only when the provider list is
// unrestricted.
func (g *Gate) FilterFavoriteModels(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		key := strings.ToLower(id)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		provider := InferProvider(id)
		if provider == "" && len(g.providers) > 0 {
			continue
		}
		if !g.IsModelAllowed(provider, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// AllowedProviders returns the allowed provider list in original order.
// Empty means unrestricted.
func (g *Gate) AllowedProviders() []string {
	return append([]string(nil), g.providerOrder...)
}

// ModelPatterns returns the pattern list for a provider and whether the
// provider is model-restricted at all.
func (g *Gate) ModelPatterns(provider string) ([]string, bool) {
	patterns, ok := g.models[strings.ToLower(provider)]
	if !ok {
		return nil, false
	}
	return append([]string(nil), patterns...), true
}

// Fallback returns the default fallback selection, if one is configured
// and still permitted by this gate. The fallback expresses a preference,
// not a grant.
func (g *Gate) Fallback() (models.ModelRef, bool) {
	if g.fallback == nil {
		return models.ModelRef{}, false
	}
	if !g.IsModelAllowed(g.fallback.Provider, g.fallback.Model) {
		return models.ModelRef{}, false
	}
	return *g.fallback, true
}

// Snapshot returns the gate's contents as a policy value for
// introspection. Provider keys in the model map come back lowercased.
func (g *Gate) Snapshot() models.Policy {
	p := models.Policy{
		AllowedProviders: g.AllowedProviders(),
		DenyAllProviders: g.denyAll,
	}
	if len(g.models) > 0 {
		p.AllowedModels = make(map[string][]string, len(g.models))
		for provider, patterns := range g.models {
			p.AllowedModels[provider] = append([]string(nil), patterns...)
		}
	}
	if ref, ok := g.Fallback(); ok {
		p.DefaultFallback = &ref
	}
	return p
}

// MatchPattern matches a model ID against a pattern. "*" matches
// everything, a trailing "*" is a prefix match, and anything else is an
// exact match. Matching is case-insensitive.
func MatchPattern(pattern, modelID string) bool {
	pattern = strings.ToLower(pattern)
	modelID = strings.ToLower(modelID)
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(modelID, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == modelID
}
