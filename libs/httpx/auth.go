package httpx

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/fieldreserve/libs/auth"
)

// RequireAuth verifies an HS256 bearer token and stores the caller as an auth.Actor
// in the request context. Only the listed roles are admitted; none means any role.
func RequireAuth(secret string, roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if !strings.HasPrefix(header, "Bearer ") || token == "" {
				WriteError(w, r, http.StatusUnauthorized, "missing or invalid Authorization header")
				return
			}
			claims, err := auth.ParseAndVerifyHS256(token, secret)
			if err != nil {
				WriteError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			if len(roles) > 0 && !containsRole(roles, claims.Role) {
				WriteError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			ctx := auth.WithActor(r.Context(), auth.Actor{ID: claims.Subject, Name: claims.Name, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
