package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/llm-access-gate/utils"
	"go.uber.org/zap"
)

// RolePlatformAdmin may operate on any tenant's resources.
const RolePlatformAdmin = "platform_admin"

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	secret []byte
	logger *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware verifying HS256 tokens
// with the given signing secret.
func NewAuthMiddleware(secret string, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		logger: logger,
	}
}

// RequireAuth is a middleware that requires a valid JWT bearer token and
// places its claims plus the parsed tenant/user IDs in the context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractToken(r)
		if token == "" {
			m.logger.Warn("missing token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.validateToken(token)
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		tenantID, err := uuid.Parse(claims.TenantID)
		if err != nil {
			m.logger.Warn("invalid tenant_id in claims",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteForbidden(w, "Invalid tenant ID")
			return
		}

		ctx = WithClaims(ctx, claims)
		ctx = WithTenantID(ctx, tenantID)

		if claims.UserID != "" {
			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				m.logger.Warn("invalid user_id in claims",
					zap.String("request_id", requestID),
					zap.Error(err))
				_ = utils.WriteForbidden(w, "Invalid user ID")
				return
			}
			ctx = WithUserID(ctx, userID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTenantMatch ensures the {tenantID} URL parameter matches the
// caller's tenant. Platform admins may cross tenants.
func (m *AuthMiddleware) RequireTenantMatch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		pathTenant, err := uuid.Parse(chi.URLParam(r, "tenantID"))
		if err != nil {
			_ = utils.WriteBadRequest(w, "Invalid tenant ID format", nil)
			return
		}

		claims := GetClaimsFromContext(ctx)
		if claims != nil && claims.Role == RolePlatformAdmin {
			next.ServeHTTP(w, r)
			return
		}

		if GetTenantIDFromContext(ctx) != pathTenant {
			m.logger.Warn("tenant mismatch",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("path_tenant_id", pathTenant.String()))
			_ = utils.WriteForbidden(w, "Tenant mismatch")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// validateToken parses and verifies an HS256 JWT
func (m *AuthMiddleware) validateToken(tokenStr string) (*Claims, error) {
	type jwtClaims struct {
		TenantID string `json:"tenant_id"`
		UserID   string `json:"user_id"`
		Role     string `json:"role"`
		jwt.RegisteredClaims
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	out := &Claims{
		Sub:      claims.Subject,
		TenantID: claims.TenantID,
		UserID:   claims.UserID,
		Role:     claims.Role,
	}
	if claims.ExpiresAt != nil {
		out.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		out.Iat = claims.IssuedAt.Unix()
	}
	return out, nil
}

// extractToken extracts a bearer token from the Authorization header
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
