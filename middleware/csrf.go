package middleware

import (
	"net/http"

	sessionkit "github.com/minyanlabs/sessionkit"
)

const (
	// CSRFCookieName is the cookie carrying the issued CSRF token.
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName is the request header that must echo the cookie value.
	CSRFHeaderName = "X-CSRF-Token"
)

// RequireCSRF enforces the double-submit pattern on state-changing methods.
// Safe methods (GET, HEAD, OPTIONS) pass through. The guard must run after
// [RequireAuth]: the token is bound to the session id found in the validated
// claims. Every rejection answers 403 {"error":"csrf_invalid"}.
func RequireCSRF(engine *sessionkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			if engine == nil {
				writeCSRFInvalid(w)
				return
			}

			claims, ok := ClaimsFromContext(r.Context())
			if !ok || claims.SID == "" {
				writeCSRFInvalid(w)
				return
			}

			cookie, err := r.Cookie(CSRFCookieName)
			if err != nil {
				writeCSRFInvalid(w)
				return
			}

			header := r.Header.Get(CSRFHeaderName)
			if err := engine.ValidateCSRFToken(claims.SID, cookie.Value, header); err != nil {
				writeCSRFInvalid(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeCSRFInvalid(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"csrf_invalid"}` + "\n"))
}
