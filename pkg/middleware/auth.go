package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKeyType string

const (
	actorIDKey     contextKeyType = "actor_id"
	permissionsKey contextKeyType = "permissions"
)

// Claims represents the token claims extracted by the auth middleware.
type Claims struct {
	ActorID     string
	Permissions []string
}

// TokenValidator validates a bearer token and returns its claims. The
// concrete validation logic (signing key, claim layout) is injected by the
// application.
type TokenValidator func(token string) (*Claims, error)

// Auth validates bearer tokens and injects the actor's identity and
// permissions into the request context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeAuthError(w, "invalid authorization header format")
				return
			}

			claims, err := validate(parts[1])
			if err != nil {
				writeAuthError(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), actorIDKey, claims.ActorID)
			ctx = context.WithValue(ctx, permissionsKey, claims.Permissions)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission checks that the authenticated actor holds the named
// permission.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range PermissionsFromContext(r.Context()) {
				if p == permission {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    "FORBIDDEN",
				"message": "insufficient permissions",
			})
		})
	}
}

// ActorIDFromContext extracts the actor ID from the request context.
func ActorIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(actorIDKey).(string); ok {
		return id
	}
	return ""
}

// PermissionsFromContext extracts the actor's permissions from the request context.
func PermissionsFromContext(ctx context.Context) []string {
	if perms, ok := ctx.Value(permissionsKey).([]string); ok {
		return perms
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    "UNAUTHORIZED",
		"message": message,
	})
}
