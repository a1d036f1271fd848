package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(tenantID, userID uuid.UUID) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":       userID.String(),
		"tenant_id": tenantID.String(),
		"user_id":   userID.String(),
		"role":      "member",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"iat":       time.Now().Unix(),
	}
}

func TestRequireAuth(t *testing.T) {
	mw := NewAuthMiddleware(testSecret, zap.NewNop())
	tenantID, userID := uuid.New(), uuid.New()

	var gotTenant, gotUser uuid.UUID
	var gotClaims *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = GetTenantIDFromContext(r.Context())
		gotUser = GetUserIDFromContext(r.Context())
		gotClaims = GetClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid token populates context", func(t *testing.T) {
		token := signToken(t, testSecret, validClaims(tenantID, userID))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		mw.RequireAuth(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tenantID, gotTenant)
		assert.Equal(t, userID, gotUser)
		require.NotNil(t, gotClaims)
		assert.Equal(t, "member", gotClaims.Role)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		mw.RequireAuth(next).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong scheme rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic abc123")
		w := httptest.NewRecorder()

		mw.RequireAuth(next).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong signing key rejected", func(t *testing.T) {
		token := signToken(t, "another-secret", validClaims(tenantID, userID))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		mw.RequireAuth(next).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		claims := validClaims(tenantID, userID)
		claims["exp"] = time.Now().Add(-time.Hour).Unix()
		token := signToken(t, testSecret, claims)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		mw.RequireAuth(next).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed tenant id rejected", func(t *testing.T) {
		claims := validClaims(tenantID, userID)
		claims["tenant_id"] = "not-a-uuid"
		token := signToken(t, testSecret, claims)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		mw.RequireAuth(next).ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestRequireTenantMatch(t *testing.T) {
	mw := NewAuthMiddleware(testSecret, zap.NewNop())
	tenantID := uuid.New()

	newRouter := func() (*chi.Mux, *int) {
		calls := 0
		r := chi.NewRouter()
		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Use(mw.RequireAuth)
			r.Use(mw.RequireTenantMatch)
			r.Get("/policy", func(w http.ResponseWriter, req *http.Request) {
				calls++
				w.WriteHeader(http.StatusOK)
			})
		})
		return r, &calls
	}

	t.Run("matching tenant passes", func(t *testing.T) {
		router, calls := newRouter()
		token := signToken(t, testSecret, validClaims(tenantID, uuid.New()))
		req := httptest.NewRequest(http.MethodGet, "/tenants/"+tenantID.String()+"/policy", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, *calls)
	})

	t.Run("foreign tenant rejected", func(t *testing.T) {
		router, calls := newRouter()
		token := signToken(t, testSecret, validClaims(uuid.New(), uuid.New()))
		req := httptest.NewRequest(http.MethodGet, "/tenants/"+tenantID.String()+"/policy", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, 0, *calls)
	})

	t.Run("platform admin crosses tenants", func(t *testing.T) {
		router, calls := newRouter()
		claims := validClaims(uuid.New(), uuid.New())
		claims["role"] = RolePlatformAdmin
		token := signToken(t, testSecret, claims)
		req := httptest.NewRequest(http.MethodGet, "/tenants/"+tenantID.String()+"/policy", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, *calls)
	})

	t.Run("invalid path tenant id rejected", func(t *testing.T) {
		router, calls := newRouter()
		token := signToken(t, testSecret, validClaims(tenantID, uuid.New()))
		req := httptest.NewRequest(http.MethodGet, "/tenants/not-a-uuid/policy", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 0, *calls)
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestIDFromContext(r.Context())
	})

	t.Run("generates when absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		RequestID(next).ServeHTTP(w, req)
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
	})

	t.Run("propagates existing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "req-123")
		w := httptest.NewRecorder()

		RequestID(next).ServeHTTP(w, req)
		assert.Equal(t, "req-123", seen)
	})
}
