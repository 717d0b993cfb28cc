package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// TokenValidator validates a dashboard-issued bearer token and returns the
// tenant it is scoped to.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// TokenClaims carries the claims the session manager cares about.
type TokenClaims struct {
	TenantID string
	Subject  string
	JTI      string
}

type contextKeyTenantID struct{}

// GetTenantID retrieves the authenticated tenant ID from the context.
func GetTenantID(ctx context.Context) string {
	tenantID, ok := ctx.Value(contextKeyTenantID{}).(string)
	if !ok {
		return ""
	}
	return tenantID
}

// RequireTenantAuth validates the bearer token and enforces that the token's
// tenant matches the {tenantID} route parameter. Tenants can only drive their
// own session.
func RequireTenantAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing bearer token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Bearer token required")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			if routeTenant := chi.URLParam(r, "tenantID"); routeTenant != "" && routeTenant != claims.TenantID {
				logger.WarnContext(ctx, "forbidden - token tenant does not match route tenant",
					"token_tenant", claims.TenantID,
					"route_tenant", routeTenant,
					"request_id", requestID,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"token is not scoped to this tenant"}`))
				return
			}

			ctx = context.WithValue(ctx, contextKeyTenantID{}, claims.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
