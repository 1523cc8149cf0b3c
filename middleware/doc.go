// Package middleware exposes HTTP middleware adapters for access-token and
// CSRF enforcement built on top of sessionkit.Engine validation.
//
// # Guards
//
//   - [RequireAuth] — bearer-token validation (signature + revocation checks).
//   - [RequireCSRF] — double-submit cookie/header comparison for mutating methods.
//
// RequireAuth reads the Authorization header, calls Engine.Validate, and
// injects validated claims into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// Engine.Validate and Engine.ValidateCSRFToken.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from the Engine.
package middleware
