// Package session persists refresh-token lineages. One row is written per
// lineage step: a rotation always inserts a new row and revokes the old one
// inside a single transaction, never mutating a live row in place. The
// family_id column links every step descended from one login and is the unit
// of revocation when token reuse is detected.
//
// # Architecture boundaries
//
// The store owns its transactional boundary. Rotate is the only
// multi-statement operation and runs revoke-old + insert-new atomically;
// callers never see connections or transactions. Two backends are provided:
// [PostgresStore] for deployments and [MemoryStore] for tests and local
// development, with identical single-winner rotation semantics.
package session
