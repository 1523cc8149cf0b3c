package flows

import (
	"context"
	"errors"
	"time"

	"github.com/minyanlabs/sessionkit/jwt"
	"github.com/minyanlabs/sessionkit/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureVerify
	RefreshFailureReuse
	RefreshFailureNotFound
	RefreshFailureExpired
	RefreshFailureStore
	RefreshFailureMint
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure          RefreshFailureKind
	Err              error
	UserID           string
	SessionID        string
	FamilyID         string
	Session          *session.Session
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type RefreshSessionStore interface {
	FindByID(ctx context.Context, id string) (*session.Session, error)
	Rotate(ctx context.Context, oldID string, next *session.Session) error
	RevokeFamily(ctx context.Context, familyID string) ([]*session.Session, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// RefreshMetrics carries metric IDs needed by the refresh flow.
type RefreshMetrics struct {
	RefreshSuccess int
	RefreshFailure int
	ReuseDetected  int
}

// RefreshEvents carries audit event names used by the refresh flow.
type RefreshEvents struct {
	RefreshSuccess string
	RefreshFailure string
	ReuseDetected  string
	FamilyRevoked  string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	VerifyRefresh     func(string) (*jwt.Claims, error)
	HashToken         func(string) string
	NewID             func() string
	MintAccess        func(subject, sessionID, familyID string, roles []string) (string, string, time.Time, error)
	MintRefresh       func(subject, sessionID, familyID string, roles []string) (string, string, time.Time, error)
	Now               func() time.Time
	DeviceFromContext func(context.Context) session.DeviceMeta
	Store             RefreshSessionStore

	// IsFamilyRevoked short-circuits tokens from already-burned families
	// before any store round trip. Errors are advisory.
	IsFamilyRevoked func(ctx context.Context, familyID string) (bool, error)
	// OnFamilyRevoked denies every outstanding token of the family in the
	// revocation cache. revoked lists the store rows that were live.
	OnFamilyRevoked func(ctx context.Context, familyID string, presentedJTI string, revoked []*session.Session)
	// BlacklistRotated denies the consumed refresh token's jti for its
	// remaining lifetime after a successful rotation.
	BlacklistRotated func(ctx context.Context, jti string, expiresAt time.Time)

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, sessionID, familyID string, err error, meta func() map[string]string)
	Warn      func(string, ...any)

	Metrics RefreshMetrics
	Events  RefreshEvents
}

// RunRefresh executes refresh-token rotation with reuse detection. Exactly
// one concurrent caller per token wins; every other outcome revokes the
// whole family before failing.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.DeviceFromContext == nil {
		deps.DeviceFromContext = func(context.Context) session.DeviceMeta { return session.DeviceMeta{} }
	}

	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.RefreshFailure, false, "", "", "", err, func() map[string]string {
			return map[string]string{"reason": "token_verify_failed"}
		})
		return RefreshResult{Failure: RefreshFailureVerify, Err: err}
	}

	if deps.IsFamilyRevoked != nil {
		revoked, ferr := deps.IsFamilyRevoked(ctx, claims.FID)
		if ferr != nil {
			deps.Warn("family revocation pre-check failed")
		} else if revoked {
			deps.MetricInc(deps.Metrics.ReuseDetected)
			deps.EmitAudit(ctx, deps.Events.ReuseDetected, false, claims.Subject, claims.SID, claims.FID, nil, func() map[string]string {
				return map[string]string{"reason": "family_already_revoked"}
			})
			return RefreshResult{
				Failure:   RefreshFailureReuse,
				UserID:    claims.Subject,
				SessionID: claims.SID,
				FamilyID:  claims.FID,
			}
		}
	}

	sess, err := deps.Store.FindByID(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			// A signed token pointing at a row we never had, or one already
			// purged: treat as theft evidence and burn the family.
			return runRefreshReuse(ctx, claims, "session_row_missing", deps)
		}
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.RefreshFailure, false, claims.Subject, claims.SID, claims.FID, err, nil)
		return RefreshResult{
			Failure:   RefreshFailureStore,
			Err:       err,
			UserID:    claims.Subject,
			SessionID: claims.SID,
			FamilyID:  claims.FID,
		}
	}

	if sess.RevokedAt != nil {
		return runRefreshReuse(ctx, claims, "session_already_revoked", deps)
	}
	if deps.HashToken(refreshToken) != sess.RefreshTokenHash {
		return runRefreshReuse(ctx, claims, "refresh_hash_mismatch", deps)
	}

	now := deps.Now()
	if !sess.ExpiresAt.After(now) {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.RefreshFailure, false, sess.UserID, sess.ID, sess.FamilyID, nil, func() map[string]string {
			return map[string]string{"reason": "session_expired"}
		})
		return RefreshResult{
			Failure:   RefreshFailureExpired,
			UserID:    sess.UserID,
			SessionID: sess.ID,
			FamilyID:  sess.FamilyID,
		}
	}

	nextID := deps.NewID()
	nextRefresh, nextRefreshJTI, refreshExp, err := deps.MintRefresh(sess.UserID, nextID, sess.FamilyID, claims.Roles)
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.RefreshFailure, false, sess.UserID, sess.ID, sess.FamilyID, err, nil)
		return RefreshResult{Failure: RefreshFailureMint, Err: err, UserID: sess.UserID, SessionID: sess.ID, FamilyID: sess.FamilyID}
	}
	nextAccess, nextAccessJTI, accessExp, err := deps.MintAccess(sess.UserID, nextID, sess.FamilyID, claims.Roles)
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.RefreshFailure, false, sess.UserID, sess.ID, sess.FamilyID, err, nil)
		return RefreshResult{Failure: RefreshFailureMint, Err: err, UserID: sess.UserID, SessionID: sess.ID, FamilyID: sess.FamilyID}
	}

	device := deps.DeviceFromContext(ctx)
	if device.Label == "" {
		device.Label = sess.DeviceLabel
	}
	if device.ClientIP == "" {
		device.ClientIP = sess.ClientIP
	}
	next := &session.Session{
		ID:               nextID,
		UserID:           sess.UserID,
		RefreshTokenHash: deps.HashToken(nextRefresh),
		RefreshJTI:       nextRefreshJTI,
		AccessJTI:        nextAccessJTI,
		FamilyID:         sess.FamilyID,
		DeviceLabel:      device.Label,
		ClientIP:         device.ClientIP,
		CreatedAt:        now,
		ExpiresAt:        refreshExp,
	}

	if err := deps.Store.Rotate(ctx, sess.ID, next); err != nil {
		switch {
		case errors.Is(err, session.ErrRotated), errors.Is(err, session.ErrNotFound):
			// Lost the race, or the row vanished mid-flight. Either way the
			// presented token was consumed elsewhere: reuse.
			return runRefreshReuse(ctx, claims, "rotation_lost", deps)
		default:
			deps.MetricInc(deps.Metrics.RefreshFailure)
			deps.EmitAudit(ctx, deps.Events.RefreshFailure, false, sess.UserID, sess.ID, sess.FamilyID, err, nil)
			return RefreshResult{
				Failure:   RefreshFailureStore,
				Err:       err,
				UserID:    sess.UserID,
				SessionID: sess.ID,
				FamilyID:  sess.FamilyID,
			}
		}
	}

	if deps.BlacklistRotated != nil {
		deps.BlacklistRotated(ctx, claims.ID, sess.ExpiresAt)
	}
	if err := deps.Store.TouchLastUsed(ctx, next.ID, now); err != nil {
		deps.Warn("last-used update failed after rotation")
	}

	deps.MetricInc(deps.Metrics.RefreshSuccess)
	deps.EmitAudit(ctx, deps.Events.RefreshSuccess, true, sess.UserID, next.ID, sess.FamilyID, nil, func() map[string]string {
		return map[string]string{"rotated_from": sess.ID}
	})

	return RefreshResult{
		Failure:          RefreshFailureNone,
		UserID:           sess.UserID,
		SessionID:        next.ID,
		FamilyID:         sess.FamilyID,
		Session:          next,
		AccessToken:      nextAccess,
		RefreshToken:     nextRefresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
}

func runRefreshReuse(ctx context.Context, claims *jwt.Claims, reason string, deps RefreshDeps) RefreshResult {
	revoked, err := deps.Store.RevokeFamily(ctx, claims.FID)
	if err != nil {
		// The family could not be burned; still refuse the request but make
		// the partial failure visible.
		deps.Warn("family revocation failed during reuse handling")
	}
	if deps.OnFamilyRevoked != nil {
		deps.OnFamilyRevoked(ctx, claims.FID, claims.ID, revoked)
	}

	deps.MetricInc(deps.Metrics.ReuseDetected)
	deps.EmitAudit(ctx, deps.Events.ReuseDetected, false, claims.Subject, claims.SID, claims.FID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	deps.EmitAudit(ctx, deps.Events.FamilyRevoked, true, claims.Subject, claims.SID, claims.FID, nil, func() map[string]string {
		return map[string]string{"reason": reason}
	})

	return RefreshResult{
		Failure:   RefreshFailureReuse,
		UserID:    claims.Subject,
		SessionID: claims.SID,
		FamilyID:  claims.FID,
	}
}
