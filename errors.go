package sessionkit

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called before Build wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidCredentials is returned for any credential verification failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid is returned when a token fails signature or claim checks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when a token is outside its validity window.
	ErrTokenExpired = errors.New("token expired")
	// ErrSessionNotFound is returned when the referenced session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when the session lineage has run out of lifetime.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionReused is returned when a refresh token is presented more than once; the whole family has been revoked.
	ErrSessionReused = errors.New("refresh token reuse detected")
	// ErrSessionRevoked is returned when a token is valid but its session was revoked.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrStoreUnavailable is returned when the session store cannot be reached.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrRevocationUnavailable is returned, under the fail-closed policy, when the revocation cache cannot be reached.
	ErrRevocationUnavailable = errors.New("revocation cache unavailable")
	// ErrCSRFInvalid is returned when a CSRF token pair fails validation.
	ErrCSRFInvalid = errors.New("csrf token invalid")
	// ErrCSRFMisconfigured is returned when production mode is enabled without a CSRF secret.
	ErrCSRFMisconfigured = errors.New("csrf secret missing in production")
)
