package sessionkit

import (
	"context"
	"time"

	"github.com/minyanlabs/sessionkit/jwt"
	"github.com/minyanlabs/sessionkit/session"
)

// Claims is the decoded claim set carried by sessionkit tokens.
type Claims = jwt.Claims

// Identity is what a credential verifier resolves a username/password pair
// into. Roles are embedded in minted tokens and survive rotation.
//
// Identity instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Identity struct {
	UserID string
	Roles  []string
}

// CredentialVerifier checks a username/password pair against the host
// application's user storage. Any returned error is collapsed into
// [ErrInvalidCredentials] so responses do not reveal account existence.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, username, password string) (Identity, error)
}

// CredentialVerifierFunc adapts a function to the [CredentialVerifier]
// interface.
type CredentialVerifierFunc func(ctx context.Context, username, password string) (Identity, error)

func (f CredentialVerifierFunc) VerifyCredentials(ctx context.Context, username, password string) (Identity, error) {
	return f(ctx, username, password)
}

// TokenPair is the result of a successful login or refresh.
//
// TokenPair instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
	FamilyID         string
}

// SessionInfo is the caller-visible projection of a session row. Token
// hashes never leave the store.
//
// SessionInfo instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionInfo struct {
	ID          string
	UserID      string
	FamilyID    string
	DeviceLabel string
	ClientIP    string
	CreatedAt   time.Time
	LastUsedAt  *time.Time
	ExpiresAt   time.Time
}

func sessionInfoFromRow(s *session.Session) SessionInfo {
	info := SessionInfo{
		ID:          s.ID,
		UserID:      s.UserID,
		FamilyID:    s.FamilyID,
		DeviceLabel: s.DeviceLabel,
		ClientIP:    s.ClientIP,
		CreatedAt:   s.CreatedAt,
		ExpiresAt:   s.ExpiresAt,
	}
	if s.LastUsedAt != nil {
		at := *s.LastUsedAt
		info.LastUsedAt = &at
	}
	return info
}
