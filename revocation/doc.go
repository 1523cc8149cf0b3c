// Package revocation tracks denied token IDs and revoked session families in
// Redis so stateless JWT verification can still honor logout and reuse
// incidents before the tokens expire.
//
// Entries are written with a TTL equal to the remaining token (or family)
// lifetime, so the cache is self-cleaning and never grows past the set of
// tokens that are still verifiable.
//
// # Architecture boundaries
//
// This package owns only the Redis representation of denial state. It does
// not decide WHEN to revoke; that is the engine's job. Lookup failures are
// reported as [ErrUnavailable] and the configured policy (fail-open or
// fail-closed) is applied by the caller.
package revocation
