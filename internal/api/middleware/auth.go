package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const operatorContextKey contextKey = "operator"

// Roles accepted on the admin surface. Viewers read engine and task
// state; operators may additionally wake, flush, signal, and abort; admin
// passes every gate.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// AuthConfig holds authentication configuration for the admin surface
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   map[string]bool
}

// OperatorClaims identifies the caller operating on engines and tasks
type OperatorClaims struct {
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Auth returns the admin authentication middleware. API keys are
// deployment-level credentials and act with the admin role; JWTs carry
// their own operator id and role.
func Auth(cfg *AuthConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			// API key first
			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				if !cfg.APIKeys[apiKey] {
					http.Error(w, "Invalid API key", http.StatusUnauthorized)
					return
				}
				claims := &OperatorClaims{OperatorID: "api-key", Role: RoleAdmin}
				next.ServeHTTP(w, r.WithContext(withOperator(r.Context(), claims)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims := &OperatorClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
				return []byte(cfg.JWTSecret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(withOperator(r.Context(), claims)))
		})
	}
}

func withOperator(ctx context.Context, claims *OperatorClaims) context.Context {
	return context.WithValue(ctx, operatorContextKey, claims)
}

// OperatorFrom retrieves the authenticated operator; nil when auth is
// disabled or the request carried no credentials
func OperatorFrom(ctx context.Context) *OperatorClaims {
	claims, ok := ctx.Value(operatorContextKey).(*OperatorClaims)
	if !ok {
		return nil
	}
	return claims
}

// RequireRole gates mutating admin routes on the operator's role. Admin
// always passes; with auth disabled there are no claims and the gate
// stays open.
func RequireRole(cfg *AuthConfig, role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			claims := OperatorFrom(r.Context())
			if claims == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if claims.Role != role && claims.Role != RoleAdmin {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
