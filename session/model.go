package session

import "time"

// DeviceMeta is informational client metadata recorded on every lineage
// step for session listing and forensic audit.
type DeviceMeta struct {
	Label    string
	ClientIP string
}

// Session is one persisted refresh-token lineage step.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	RefreshJTI       string
	AccessJTI        string
	FamilyID         string
	RotatedFrom      string
	DeviceLabel      string
	ClientIP         string

	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// Active reports whether the session can still mint tokens at now:
// not revoked and not past its expiry.
func (s *Session) Active(now time.Time) bool {
	if s == nil || s.RevokedAt != nil {
		return false
	}
	return s.ExpiresAt.After(now)
}

// Remaining returns the time left until expiry at now, or zero when expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
