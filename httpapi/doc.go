// Package httpapi exposes cookie-level HTTP handlers for the session
// lifecycle: login, refresh, logout, CSRF token issuance, and session
// listing.
//
// The refresh token travels only in an HttpOnly cookie; the access token is
// returned in the JSON body and presented back as a bearer header. Errors
// are rendered as {"error":"<code>"} with a stable code per failure class.
//
// # Architecture boundaries
//
// This package translates HTTP requests into Engine calls and Engine errors
// into status codes. It holds no session state of its own.
//
// # What this package must NOT do
//
//   - Inspect or construct tokens (delegates to Engine).
//   - Access the session store or Redis directly.
//   - Leak internal error text to clients — only stable error codes.
package httpapi
