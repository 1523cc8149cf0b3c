package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	sessionkit "github.com/minyanlabs/sessionkit"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the validated claims injected by [RequireAuth].
func ClaimsFromContext(ctx context.Context) (*sessionkit.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*sessionkit.Claims)
	return claims, ok
}

// RequireAuth validates the bearer access token on every request and injects
// the decoded claims into the request context. Revoked and expired tokens
// are rejected with 401; a 503 is returned only when the engine runs with
// fail-closed revocation checks and the cache is unreachable.
func RequireAuth(engine *sessionkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := engine.Validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, sessionkit.ErrRevocationUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
