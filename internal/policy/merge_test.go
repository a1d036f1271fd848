package policy

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/upb/llm-access-gate/models"
)

func TestSubsumed(t *testing.T) {
	tests := []struct {
		name           string
		pattern        string
		systemPatterns []string
		want           bool
	}{
		{"star covers anything", "gpt-4o", []string{"*"}, true},
		{"star covers wildcards", "gpt-*", []string{"*"}, true},
		{"prefix covers narrower exact", "gpt-4o", []string{"gpt-4*"}, true},
		{"prefix covers narrower prefix", "gpt-4o*", []string{"gpt-4*"}, true},
		{"prefix covers itself", "gpt-4*", []string{"gpt-4*"}, true},
		{"exact covers itself", "o3", []string{"o3"}, true},
		{"exact does not cover wider wildcard", "o3*", []string{"o3"}, false},
		{"pattern outside prefix rejected", "claude-3", []string{"gpt-4*"}, false},
		{"case insensitive", "GPT-4O", []string{"gpt-4*"}, true},
		{"empty system list rejects everything", "gpt-4o", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Subsumed(tt.pattern, tt.systemPatterns))
		})
	}
}

func TestMerge_NilOverrideReturnsSystem(t *testing.T) {
	system := models.Policy{
		AllowedProviders: []string{"openai"},
		AllowedModels:    map[string][]string{"openai": {"gpt-4*"}},
	}
	merged := Merge(system, nil)
	assert.Equal(t, system.AllowedProviders, merged.AllowedProviders)
	assert.Equal(t, system.AllowedModels, merged.AllowedModels)
}

func TestMerge_ProviderIntersection(t *testing.T) {
	system := models.Policy{
		AllowedProviders: []string{"openai", "anthropic"},
		AllowedModels: map[string][]string{
			"openai": {"gpt-4*"},
		},
	}
	override := &models.TenantPolicy{
		TenantID:         uuid.New(),
		AllowedProviders: []string{"openai", "grok"},
		AllowedModels: map[string][]string{
			"openai": {"gpt-4o", "gpt-3.5*"},
		},
	}

	merged := Merge(system, override)

	// grok is not in the system list and is discarded
	assert.Equal(t, []string{"openai"}, merged.AllowedProviders)
	// gpt-3.5* escalates past gpt-4* and is discarded
	assert.Equal(t, map[string][]string{"openai": {"gpt-4o"}}, merged.AllowedModels)

	gate := NewGate(merged)
	assert.True(t, gate.IsModelAllowed("openai", "gpt-4o"))
	assert.False(t, gate.IsModelAllowed("openai", "gpt-3.5-turbo"))
	assert.False(t, gate.IsProviderAllowed("grok"))
	assert.False(t, gate.IsProviderAllowed("anthropic"))
}

func TestMerge_DisjointProvidersDenyAll(t *testing.T) {
	system := models.Policy{AllowedProviders: []string{"openai"}}
	override := &models.TenantPolicy{
		TenantID:         uuid.New(),
		AllowedProviders: []string{"anthropic"},
	}

	merged := Merge(system, override)

	// The tenant asked only for providers the system forbids. The empty
	// intersection must deny everything, not read back as unrestricted.
	assert.Empty(t, merged.AllowedProviders)
	assert.True(t, merged.DenyAllProviders)
	assert.False(t, merged.IsUnrestricted())

	gate := NewGate(merged)
	assert.False(t, gate.IsProviderAllowed("anthropic"))
	assert.False(t, gate.IsProviderAllowed("openai"))
	assert.False(t, gate.IsProviderAllowed("google"))
	assert.False(t, gate.IsModelAllowed("anthropic", "claude-3-opus"))

	// Deny-all survives a further merge as the system side
	remerged := Merge(merged, &models.TenantPolicy{
		TenantID:         uuid.New(),
		AllowedProviders: []string{"openai"},
	})
	assert.True(t, remerged.DenyAllProviders)
	assert.False(t, NewGate(remerged).IsProviderAllowed("openai"))
}

func TestMerge_EmptyTenantProvidersDefersToSystem(t *testing.T) {
	system := models.Policy{AllowedProviders: []string{"openai", "anthropic"}}
	override := &models.TenantPolicy{TenantID: uuid.New()}

	merged := Merge(system, override)
	assert.Equal(t, []string{"openai", "anthropic"}, merged.AllowedProviders)
}

func TestMerge_UnrestrictedSystemTakesTenantList(t *testing.T) {
	override := &models.TenantPolicy{
		TenantID:         uuid.New(),
		AllowedProviders: []string{"ollama"},
		AllowedModels:    map[string][]string{"ollama": {"llama*"}},
	}

	merged := Merge(models.Policy{}, override)
	assert.Equal(t, []string{"ollama"}, merged.AllowedProviders)
	assert.Equal(t, map[string][]string{"ollama": {"llama*"}}, merged.AllowedModels)
}

func TestMerge_AllTenantPatternsEscalateCollapsesToDenyAll(t *testing.T) {
	system := models.Policy{
		AllowedModels: map[string][]string{"openai": {"gpt-4*"}},
	}
	override := &models.TenantPolicy{
		TenantID:      uuid.New(),
		AllowedModels: map[string][]string{"openai": {"*", "claude-3-opus"}},
	}

	merged := Merge(system, override)
	assert.Equal(t, map[string][]string{"openai": {}}, merged.AllowedModels)

	gate := NewGate(merged)
	assert.False(t, gate.IsModelAllowed("openai", "gpt-4o"))
}

func TestMerge_UnmentionedProviderKeepsSystemPatterns(t *testing.T) {
	system := models.Policy{
		AllowedModels: map[string][]string{
			"openai":    {"gpt-4*"},
			"anthropic": {"claude-3*"},
		},
	}
	override := &models.TenantPolicy{
		TenantID:      uuid.New(),
		AllowedModels: map[string][]string{"openai": {"gpt-4o"}},
	}

	merged := Merge(system, override)
	assert.Equal(t, []string{"gpt-4o"}, merged.AllowedModels["openai"])
	assert.Equal(t, []string{"claude-3*"}, merged.AllowedModels["anthropic"])
}

func TestMerge_CaseInsensitiveProviderKeys(t *testing.T) {
	system := models.Policy{
		AllowedModels: map[string][]string{"OpenAI": {"gpt-4*"}},
	}
	override := &models.TenantPolicy{
		TenantID:      uuid.New(),
		AllowedModels: map[string][]string{"openai": {"gpt-4o", "o3"}},
	}

	merged := Merge(system, override)
	// The system's differently-cased entry is replaced, not duplicated.
	assert.Len(t, merged.AllowedModels, 1)
	assert.Equal(t, []string{"gpt-4o"}, merged.AllowedModels["openai"])
}

func TestMerge_TenantFallbackReplacesSystem(t *testing.T) {
	system := models.Policy{
		DefaultFallback: &models.ModelRef{Provider: "openai", Model: "gpt-4o-mini"},
	}
	override := &models.TenantPolicy{
		TenantID:        uuid.New(),
		DefaultFallback: &models.ModelRef{Provider: "anthropic", Model: "claude-3-haiku"},
	}

	merged := Merge(system, override)
	assert.Equal(t, "anthropic", merged.DefaultFallback.Provider)

	// Without a tenant fallback the system's is kept
	merged = Merge(system, &models.TenantPolicy{TenantID: uuid.New()})
	assert.Equal(t, "openai", merged.DefaultFallback.Provider)
}

func TestMerge_InputsNotMutated(t *testing.T) {
	system := models.Policy{
		AllowedProviders: []string{"openai", "anthropic"},
		AllowedModels:    map[string][]string{"openai": {"gpt-4*"}},
	}
	override := &models.TenantPolicy{
		TenantID:         uuid.New(),
		AllowedProviders: []string{"openai"},
		AllowedModels:    map[string][]string{"openai": {"gpt-4o"}},
	}

	_ = Merge(system, override)

	assert.Equal(t, []string{"openai", "anthropic"}, system.AllowedProviders)
	assert.Equal(t, map[string][]string{"openai": {"gpt-4*"}}, system.AllowedModels)
	assert.Equal(t, map[string][]string{"openai": {"gpt-4o"}}, override.AllowedModels)
}

// TestMerge_NeverEscalates feeds randomized tenant overrides through the
// merge and checks that the resulting gate allows nothing the system gate
// denies.
func TestMerge_NeverEscalates(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	providers := []string{"openai", "anthropic", "google", "xai", "mistral", "ollama"}
	modelIDs := []string{
		"gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo", "o3",
		"claude-3-opus", "claude-3-haiku",
		"gemini-1.5-pro", "grok-2", "mistral-large", "llama-3-70b",
	}
	patterns := []string{"*", "gpt-4*", "gpt-*", "claude-3*", "gpt-4o", "o3", "gemini*"}

	pick := func(from []string, max int) []string {
		n := rng.Intn(max + 1)
		out := make([]string, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, from[rng.Intn(len(from))])
		}
		return out
	}

	for i := 0; i < 500; i++ {
		system := models.Policy{
			AllowedProviders: pick(providers, 4),
			AllowedModels:    map[string][]string{},
		}
		override := &models.TenantPolicy{
			TenantID:         uuid.New(),
			AllowedProviders: pick(providers, 4),
			AllowedModels:    map[string][]string{},
		}
		for _, p := range pick(providers, 3) {
			system.AllowedModels[p] = pick(patterns, 3)
		}
		for _, p := range pick(providers, 3) {
			override.AllowedModels[p] = pick(patterns, 3)
		}

		systemGate := NewGate(system)
		mergedGate := NewGate(Merge(system, override))

		for _, provider := range providers {
			if mergedGate.IsProviderAllowed(provider) {
				assert.True(t, systemGate.IsProviderAllowed(provider),
					"iteration %d: merged gate allows provider %q the system denies", i, provider)
			}
			for _, modelID := range modelIDs {
				if mergedGate.IsModelAllowed(provider, modelID) {
					assert.True(t, systemGate.IsModelAllowed(provider, modelID),
						"iteration %d: merged gate allows %s/%s the system denies", i, provider, modelID)
				}
			}
		}
	}
}
