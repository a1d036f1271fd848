package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-access-gate/internal/secrets"
	"github.com/upb/llm-access-gate/middleware"
	"github.com/upb/llm-access-gate/models"
	"github.com/upb/llm-access-gate/repositories"
	"github.com/upb/llm-access-gate/repositories/memory"
	"github.com/upb/llm-access-gate/services/resolver"
	"github.com/upb/llm-access-gate/services/tenantpolicy"
	"github.com/upb/llm-access-gate/services/usersecret"
)

// handlerFixture wires real services over in-memory repositories so
// handler tests exercise the full request path below the router.
type handlerFixture struct {
	repos    *repositories.Repositories
	policies *tenantpolicy.Service
	users    *usersecret.Service
	resolver *resolver.Service
	tenantID uuid.UUID
	userID   uuid.UUID
}

func newHandlerFixture(t *testing.T, system models.Policy) *handlerFixture {
	t.Helper()
	logger := zap.NewNop()

	repos := memory.NewRepositories()
	cipher, err := secrets.NewCipher("test-passphrase", false, logger)
	require.NoError(t, err)

	policies := tenantpolicy.NewService(repos.TenantPolicies, repos.TenantSecrets, cipher, logger)
	users := usersecret.NewService(repos.UserSecrets, cipher, logger)
	resolverSvc := resolver.NewService(
		resolver.NewStaticPolicyProvider(system),
		policies,
		users,
		resolver.NewGateCache(16, time.Minute),
		logger,
	)

	return &handlerFixture{
		repos:    repos,
		policies: policies,
		users:    users,
		resolver: resolverSvc,
		tenantID: uuid.New(),
		userID:   uuid.New(),
	}
}

// newRequest builds a request carrying the fixture's tenant and user in
// context, as the auth middleware would, plus any chi URL parameters.
func (f *handlerFixture) newRequest(t *testing.T, method, target string, body interface{}, params map[string]string) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	ctx := middleware.WithTenantID(req.Context(), f.tenantID)
	ctx = middleware.WithUserID(ctx, f.userID)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("tenantID", f.tenantID.String())
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)

	return req.WithContext(ctx)
}

// decodeData unwraps the data envelope of a success response
func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", response)
	return data
}

// narrowSystemPolicy is the baseline most handler tests run under
func narrowSystemPolicy() models.Policy {
	return models.Policy{
		AllowedProviders: []string{"openai", "anthropic"},
		AllowedModels: map[string][]string{
			"openai": {"gpt-4*"},
		},
		DefaultFallback: &models.ModelRef{Provider: "openai", Model: "gpt-4o-mini"},
	}
}
