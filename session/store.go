package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no session row matches the lookup.
var ErrNotFound = errors.New("session not found")

// ErrRotated is returned by Rotate when the target row was already revoked,
// meaning a concurrent rotation won or the token was replayed.
var ErrRotated = errors.New("session already rotated")

// ErrUnavailable wraps backend connectivity failures. Callers must treat it
// as a hard failure: no tokens may be issued while the store is unreachable.
var ErrUnavailable = errors.New("session store unavailable")

// Store is the persistence contract for refresh-token lineages. All
// implementations must be safe for concurrent use and must guarantee that
// Rotate admits exactly one winner per row under concurrent calls.
type Store interface {
	// PersistInitial writes a family-origin row (RotatedFrom empty). The
	// caller populates ID, FamilyID, hashes, and expiry beforehand.
	PersistInitial(ctx context.Context, s *Session) error

	// FindByID returns the row for id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*Session, error)

	// FindActive returns the non-revoked, non-expired row holding the given
	// refresh token hash, or ErrNotFound.
	FindActive(ctx context.Context, refreshTokenHash string) (*Session, error)

	// Rotate atomically revokes oldID and inserts next as its child: next
	// inherits the family and records RotatedFrom = oldID. When oldID is
	// already revoked it returns ErrRotated and writes nothing; when the row
	// does not exist it returns ErrNotFound.
	Rotate(ctx context.Context, oldID string, next *Session) error

	// RevokeSession marks one row revoked and returns it. Revoking an
	// already-revoked row is a no-op, not an error.
	RevokeSession(ctx context.Context, id string) (*Session, error)

	// RevokeFamily marks every live row sharing familyID as revoked and
	// returns the rows it revoked, so callers can blacklist their token ids.
	RevokeFamily(ctx context.Context, familyID string) ([]*Session, error)

	// RevokeAll revokes every live row owned by userID and returns them.
	RevokeAll(ctx context.Context, userID string) ([]*Session, error)

	// ListActive returns the live rows owned by userID, newest first.
	ListActive(ctx context.Context, userID string) ([]*Session, error)

	// TouchLastUsed records token activity on a row. Best effort; failures
	// are reported but must not fail the calling operation.
	TouchLastUsed(ctx context.Context, id string, at time.Time) error

	// PurgeExpired deletes rows whose revocation or expiry is older than
	// retainFor, returning the number of rows removed. Rows are otherwise
	// never physically deleted.
	PurgeExpired(ctx context.Context, retainFor time.Duration) (int64, error)
}
