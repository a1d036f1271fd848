package resolver

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-access-gate/internal/secrets"
	"github.com/upb/llm-access-gate/models"
	"github.com/upb/llm-access-gate/repositories/memory"
	"github.com/upb/llm-access-gate/services/tenantpolicy"
	"github.com/upb/llm-access-gate/services/usersecret"
	"go.uber.org/zap"
)

type resolverFixture struct {
	svc            *Service
	tenantPolicies *tenantpolicy.Service
	userSecrets    *usersecret.Service
	cache          *GateCache
}

func newResolverFixture(t *testing.T, system models.Policy) *resolverFixture {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	cipher, err := secrets.NewCipher("test-passphrase", false, logger)
	require.NoError(t, err)

	repos := memory.NewRepositories()
	tenantPolicies := tenantpolicy.NewService(repos.TenantPolicies, repos.TenantSecrets, cipher, logger)
	userSecrets := usersecret.NewService(repos.UserSecrets, cipher, logger)
	cache := NewGateCache(16, time.Minute)

	svc := NewService(NewStaticPolicyProvider(system), tenantPolicies, userSecrets, cache, logger)
	return &resolverFixture{
		svc:            svc,
		tenantPolicies: tenantPolicies,
		userSecrets:    userSecrets,
		cache:          cache,
	}
}

func TestService_GetEffectivePolicyGate_MergesOverride(t *testing.T) {
	f := newResolverFixture(t, models.Policy{
		AllowedProviders: []string{"openai", "anthropic"},
		AllowedModels:    map[string][]string{"openai": {"gpt-4*"}},
	})
	ctx := context.Background()
	tenantID, userID := uuid.New(), uuid.New()

	providers := []string{"openai", "grok"}
	modelMap := map[string][]string{"openai": {"gpt-4o", "gpt-3.5*"}}
	_, err := f.tenantPolicies.UpsertPolicy(ctx, tenantID, models.TenantPolicyUpdate{
		AllowedProviders: &providers,
		AllowedModels:    &modelMap,
	})
	require.NoError(t, err)

	gate, err := f.svc.GetEffectivePolicyGate(ctx, tenantID, userID)
	require.NoError(t, err)

	assert.True(t, gate.IsModelAllowed("openai", "gpt-4o"))
	assert.False(t, gate.IsModelAllowed("openai", "gpt-3.5-turbo"))
	assert.False(t, gate.IsProviderAllowed("grok"))
	assert.False(t, gate.IsProviderAllowed("anthropic"))
}

func TestService_GetEffectivePolicyGate_NoOverrideGivesSystem(t *testing.T) {
	f := newResolverFixture(t, models.Policy{
		AllowedProviders: []string{"openai"},
	})
	ctx := context.Background()

	gate, err := f.svc.GetEffectivePolicyGate(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.True(t, gate.IsProviderAllowed("openai"))
	assert.False(t, gate.IsProviderAllowed("anthropic"))
}

func TestService_GetEffectivePolicyGate_CachesPerTenant(t *testing.T) {
	f := newResolverFixture(t, models.Policy{})
	ctx := context.Background()
	tenantID := uuid.New()

	gate1, err := f.svc.GetEffectivePolicyGate(ctx, tenantID, uuid.New())
	require.NoError(t, err)
	gate2, err := f.svc.GetEffectivePolicyGate(ctx, tenantID, uuid.New())
	require.NoError(t, err)

	// Second read is the cached gate instance
	assert.Same(t, gate1, gate2)

	stats := f.svc.CacheStats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
}

func TestService_InvalidateTenant_ForcesRebuild(t *testing.T) {
	f := newResolverFixture(t, models.Policy{})
	ctx := context.Background()
	tenantID := uuid.New()

	gate1, err := f.svc.GetEffectivePolicyGate(ctx, tenantID, uuid.New())
	require.NoError(t, err)
	assert.True(t, gate1.IsProviderAllowed("anthropic"))

	providers := []string{"openai"}
	_, err = f.tenantPolicies.UpsertPolicy(ctx, tenantID, models.TenantPolicyUpdate{
		AllowedProviders: &providers,
	})
	require.NoError(t, err)
	f.svc.InvalidateTenant(tenantID)

	gate2, err := f.svc.GetEffectivePolicyGate(ctx, tenantID, uuid.New())
	require.NoError(t, err)
	assert.NotSame(t, gate1, gate2)
	assert.False(t, gate2.IsProviderAllowed("anthropic"))
}

func TestService_ReloadSystemPolicy_ClearsCachedGates(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	cipher, err := secrets.NewCipher("test-passphrase", false, logger)
	require.NoError(t, err)

	path := writePolicyFile(t, `{"allowed_providers": ["openai", "anthropic"]}`)
	provider, err := NewFilePolicyProvider(path, logger)
	require.NoError(t, err)

	repos := memory.NewRepositories()
	tenantPolicies := tenantpolicy.NewService(repos.TenantPolicies, repos.TenantSecrets, cipher, logger)
	userSecrets := usersecret.NewService(repos.UserSecrets, cipher, logger)
	svc := NewService(provider, tenantPolicies, userSecrets, NewGateCache(16, time.Minute), logger)

	ctx := context.Background()
	tenantID := uuid.New()

	gate1, err := svc.GetEffectivePolicyGate(ctx, tenantID, uuid.New())
	require.NoError(t, err)
	assert.True(t, gate1.IsProviderAllowed("anthropic"))

	require.NoError(t, os.WriteFile(path, []byte(`{"allowed_providers": ["openai"]}`), 0o600))
	require.NoError(t, svc.ReloadSystemPolicy())

	// Takes effect immediately, not after the cache TTL
	gate2, err := svc.GetEffectivePolicyGate(ctx, tenantID, uuid.New())
	require.NoError(t, err)
	assert.NotSame(t, gate1, gate2)
	assert.False(t, gate2.IsProviderAllowed("anthropic"))
	assert.True(t, gate2.IsProviderAllowed("openai"))
}

func TestService_ReloadSystemPolicy_StaticProvider(t *testing.T) {
	f := newResolverFixture(t, models.Policy{})

	assert.ErrorIs(t, f.svc.ReloadSystemPolicy(), ErrNotReloadable)
}

func TestService_ResolveAPIKey_UserOverTenantPrecedence(t *testing.T) {
	f := newResolverFixture(t, models.Policy{})
	ctx := context.Background()
	tenantID, userID := uuid.New(), uuid.New()

	require.NoError(t, f.tenantPolicies.SetSecret(ctx, tenantID, "openai", "tenant-key"))
	require.NoError(t, f.userSecrets.Upsert(ctx, tenantID, userID, "openai", "user-key"))

	key, err := f.svc.ResolveAPIKey(ctx, tenantID, userID, "openai")
	require.NoError(t, err)
	assert.Equal(t, "user-key", key)

	// Another user in the same tenant falls back to the tenant key
	key, err = f.svc.ResolveAPIKey(ctx, tenantID, uuid.New(), "openai")
	require.NoError(t, err)
	assert.Equal(t, "tenant-key", key)

	// No key at either scope resolves to absence, not an error
	key, err = f.svc.ResolveAPIKey(ctx, tenantID, userID, "anthropic")
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestService_ResolveAPIKey_DeletedUserKeyUncoversTenantKey(t *testing.T) {
	f := newResolverFixture(t, models.Policy{})
	ctx := context.Background()
	tenantID, userID := uuid.New(), uuid.New()

	require.NoError(t, f.tenantPolicies.SetSecret(ctx, tenantID, "openai", "tenant-key"))
	require.NoError(t, f.userSecrets.Upsert(ctx, tenantID, userID, "openai", "user-key"))
	require.NoError(t, f.userSecrets.Delete(ctx, tenantID, userID, "openai"))

	key, err := f.svc.ResolveAPIKey(ctx, tenantID, userID, "openai")
	require.NoError(t, err)
	assert.Equal(t, "tenant-key", key)
}

func TestService_ResolveAPIKeysMap_OmitsUnresolved(t *testing.T) {
	f := newResolverFixture(t, models.Policy{})
	ctx := context.Background()
	tenantID, userID := uuid.New(), uuid.New()

	require.NoError(t, f.tenantPolicies.SetSecret(ctx, tenantID, "openai", "tenant-key"))

	keys, err := f.svc.ResolveAPIKeysMap(ctx, tenantID, userID, []string{"openai", "anthropic"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"openai": "tenant-key"}, keys)
}

func TestService_ListTenantModels_FiltersThroughGate(t *testing.T) {
	f := newResolverFixture(t, models.Policy{
		AllowedProviders: []string{"openai"},
		AllowedModels:    map[string][]string{"openai": {"gpt-4*"}},
	})
	ctx := context.Background()
	tenantID, userID := uuid.New(), uuid.New()

	registry := []models.RegistryModel{
		{ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o"},
		{ID: "gpt-3.5-turbo", Provider: "openai"},
		{ID: "claude-3-opus", Provider: "anthropic"},
		{ID: "gpt-4o-mini"}, // provider inferred from the ID
	}
	_, err := f.tenantPolicies.UpsertPolicy(ctx, tenantID, models.TenantPolicyUpdate{
		RegistryModels: &registry,
	})
	require.NoError(t, err)

	entries, err := f.svc.ListTenantModels(ctx, tenantID, userID)
	require.NoError(t, err)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, ids)
}

func TestService_ListTenantModels_NoOverride(t *testing.T) {
	f := newResolverFixture(t, models.Policy{})
	ctx := context.Background()

	entries, err := f.svc.ListTenantModels(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
