// Package sessionkit provides a session lifecycle engine built on JWT access
// tokens, rotating single-use refresh tokens, Postgres-backed session
// lineages, and a Redis revocation cache.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// sessionkit is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (TokenPair, SessionInfo, MetricsSnapshot, etc.). All
// internal coordination — flow orchestration, audit dispatch, token hashing —
// lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Expose database handles, Redis clients, or token hashes in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Import any sub-package that re-imports sessionkit (no import cycles).
//
// # Performance contract
//
// Validate is the hot path: one signature verification plus at most two Redis
// round-trips (jti blacklist, family marker), never a session-store query.
// Login and Refresh are allowed one store transaction per call; Refresh adds
// the blacklist write for the consumed token.
package sessionkit
