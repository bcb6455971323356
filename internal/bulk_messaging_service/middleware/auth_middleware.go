package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	AuthenticatedUserContextKey = ContextKey("authenticatedUser")
	TenantIDContextKey          = ContextKey("tenantID")
)

// TenantIDHeader names the tenant the caller acts on.
const TenantIDHeader = "X-Tenant-Id"

// AuthenticatedUser holds the claims we rely on from the bearer token.
type AuthenticatedUser struct {
	ID       string
	Email    string
	Role     string
	TenantID string // empty when the token is not bound to a tenant
}

// UserFromContext returns the user stored by Auth.
func UserFromContext(ctx context.Context) (AuthenticatedUser, bool) {
	u, ok := ctx.Value(AuthenticatedUserContextKey).(AuthenticatedUser)
	return u, ok
}

// TenantIDFromContext returns the tenant validated by Auth.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(TenantIDContextKey).(string)
	return id, ok && id != ""
}

// Auth validates an HS256 bearer token, the caller's role and the X-Tenant-Id
// header before the request body is read. allowedRoles empty means any role.
func Auth(secret string, allowedRoles []string, logger *slog.Logger) func(next http.Handler) http.Handler {
	logger = logger.With("component", "auth_middleware")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(ctx, "Authorization header missing")
				WriteError(w, r, http.StatusUnauthorized, "authorization header required")
				return
			}
			scheme, tokenString, found := strings.Cut(authHeader, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
				logger.WarnContext(ctx, "Invalid Authorization header format")
				WriteError(w, r, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			user, err := parseToken(strings.TrimSpace(tokenString), secret)
			if err != nil {
				logger.WarnContext(ctx, "Token validation failed", "error", err)
				WriteError(w, r, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if len(allowedRoles) > 0 && !slices.Contains(allowedRoles, user.Role) {
				logger.WarnContext(ctx, "Role not allowed to dispatch messages", "user_id", user.ID, "role", user.Role)
				WriteError(w, r, http.StatusForbidden, "insufficient permissions")
				return
			}

			tenantID := strings.TrimSpace(r.Header.Get(TenantIDHeader))
			if tenantID == "" {
				logger.WarnContext(ctx, "Tenant header missing", "user_id", user.ID)
				WriteError(w, r, http.StatusBadRequest, "X-Tenant-Id header required")
				return
			}
			if _, err := uuid.Parse(tenantID); err != nil {
				logger.WarnContext(ctx, "Tenant header is not a UUID", "user_id", user.ID, "tenant_id", tenantID)
				WriteError(w, r, http.StatusBadRequest, "X-Tenant-Id must be a UUID")
				return
			}
			if user.TenantID != "" && !strings.EqualFold(user.TenantID, tenantID) {
				logger.WarnContext(ctx, "Security violation: token tenant does not match requested tenant",
					"user_id", user.ID, "token_tenant_id", user.TenantID, "tenant_id", tenantID)
				WriteError(w, r, http.StatusForbidden, "access to tenant denied")
				return
			}

			ctx = context.WithValue(ctx, AuthenticatedUserContextKey, user)
			ctx = context.WithValue(ctx, TenantIDContextKey, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseToken(tokenString, secret string) (AuthenticatedUser, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return AuthenticatedUser{}, err
	}
	if !token.Valid {
		return AuthenticatedUser{}, fmt.Errorf("token is not valid")
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return AuthenticatedUser{}, fmt.Errorf("token has no subject")
	}
	user := AuthenticatedUser{ID: sub}
	user.Email, _ = claims["email"].(string)
	user.Role, _ = claims["role"].(string)
	user.TenantID, _ = claims["tenant_id"].(string)

	// Supabase style tokens keep the application role and tenant in app_metadata.
	if meta, ok := claims["app_metadata"].(map[string]any); ok {
		if role, _ := meta["role"].(string); role != "" {
			user.Role = role
		}
		if tenant, _ := meta["tenant_id"].(string); tenant != "" {
			user.TenantID = tenant
		}
	}
	return user, nil
}
