package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	sessionkit "github.com/minyanlabs/sessionkit"
	"github.com/minyanlabs/sessionkit/middleware"
)

const refreshCookieName = "refresh_token"

// Options tunes cookie attributes for the handler set.
//
// Options instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Options struct {
	// SecureCookies marks auth cookies Secure. Leave false only for local
	// plain-HTTP development.
	SecureCookies bool
	// CookiePath defaults to "/auth".
	CookiePath string
}

// Handler bundles the auth endpoints around one engine.
//
// Handler instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Handler struct {
	engine *sessionkit.Engine
	opts   Options
}

func NewHandler(engine *sessionkit.Engine, opts Options) *Handler {
	if opts.CookiePath == "" {
		opts.CookiePath = "/auth"
	}
	return &Handler{engine: engine, opts: opts}
}

// Mux returns a ServeMux with every auth route mounted.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("POST /auth/refresh", h.Refresh)
	mux.HandleFunc("POST /auth/logout", h.Logout)

	authed := middleware.RequireAuth(h.engine)
	mux.Handle("GET /auth/csrf", authed(http.HandlerFunc(h.CSRFToken)))
	mux.Handle("GET /auth/sessions", authed(http.HandlerFunc(h.Sessions)))
	return mux
}

// Login exchanges a username/password pair for a token pair. The refresh
// token is set as an HttpOnly cookie; the access token is returned in the
// body.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	pair, err := h.engine.Login(requestContext(r), body.Username, body.Password)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": pair.AccessToken,
		"expires_at":   pair.AccessExpiresAt.UTC().Format(time.RFC3339),
		"session_id":   pair.SessionID,
	})
}

// Refresh rotates the refresh-token cookie and returns a fresh access token.
// A reused token burns the whole family and clears the cookie.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "invalid")
		return
	}

	pair, err := h.engine.Refresh(requestContext(r), cookie.Value)
	if err != nil {
		if errors.Is(err, sessionkit.ErrSessionReused) {
			h.clearRefreshCookie(w)
		}
		h.writeEngineError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": pair.AccessToken,
		"expires_at":   pair.AccessExpiresAt.UTC().Format(time.RFC3339),
		"session_id":   pair.SessionID,
	})
}

// Logout revokes the session behind the refresh-token cookie and clears it.
// Missing or already-dead sessions still answer 204: logout is idempotent.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err == nil && cookie.Value != "" {
		err := h.engine.LogoutByRefreshToken(requestContext(r), cookie.Value)
		if err != nil && errors.Is(err, sessionkit.ErrStoreUnavailable) {
			h.writeEngineError(w, err)
			return
		}
	}

	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// CSRFToken issues a token bound to the caller's session. The token is set
// as a JS-readable cookie and echoed in the body so single-page apps can
// mirror it into the request header.
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.SID == "" {
		writeError(w, http.StatusUnauthorized, "invalid")
		return
	}

	token, err := h.engine.IssueCSRFToken(claims.SID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CSRFCookieName,
		Value:    token,
		Path:     "/",
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// Sessions lists the caller's active sessions, newest first.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid")
		return
	}

	infos, err := h.engine.ListSessions(requestContext(r), claims.Subject)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	type sessionView struct {
		ID          string     `json:"id"`
		DeviceLabel string     `json:"device_label,omitempty"`
		ClientIP    string     `json:"client_ip,omitempty"`
		CreatedAt   time.Time  `json:"created_at"`
		LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
		ExpiresAt   time.Time  `json:"expires_at"`
		Current     bool       `json:"current"`
	}

	views := make([]sessionView, 0, len(infos))
	for _, info := range infos {
		views = append(views, sessionView{
			ID:          info.ID,
			DeviceLabel: info.DeviceLabel,
			ClientIP:    info.ClientIP,
			CreatedAt:   info.CreatedAt,
			LastUsedAt:  info.LastUsedAt,
			ExpiresAt:   info.ExpiresAt,
			Current:     info.ID == claims.SID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     h.opts.CookiePath,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     h.opts.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessionkit.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, sessionkit.ErrSessionReused):
		writeError(w, http.StatusUnauthorized, "session_reused")
	case errors.Is(err, sessionkit.ErrTokenExpired), errors.Is(err, sessionkit.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "expired")
	case errors.Is(err, sessionkit.ErrCSRFInvalid):
		writeError(w, http.StatusForbidden, "csrf_invalid")
	case errors.Is(err, sessionkit.ErrStoreUnavailable), errors.Is(err, sessionkit.ErrRevocationUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable")
	default:
		writeError(w, http.StatusUnauthorized, "invalid")
	}
}

func requestContext(r *http.Request) context.Context {
	ctx := sessionkit.WithClientIP(r.Context(), clientIP(r))
	if ua := r.UserAgent(); ua != "" {
		ctx = sessionkit.WithDeviceLabel(ctx, ua)
	}
	return ctx
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
