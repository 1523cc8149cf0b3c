package flows

import (
	"context"
	"errors"
	"strconv"

	"github.com/minyanlabs/sessionkit/session"
)

type LogoutSessionStore interface {
	RevokeSession(ctx context.Context, id string) (*session.Session, error)
	RevokeAll(ctx context.Context, userID string) ([]*session.Session, error)
}

// LogoutMetrics carries metric IDs needed by the logout flow.
type LogoutMetrics struct {
	Logout    int
	LogoutAll int
}

// LogoutEvents carries audit event names used by the logout flow.
type LogoutEvents struct {
	Logout    string
	LogoutAll string
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Store LogoutSessionStore
	// BlacklistSessions denies the outstanding jtis of the given rows.
	BlacklistSessions func(ctx context.Context, revoked []*session.Session)

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, sessionID, familyID string, err error, meta func() map[string]string)

	Metrics LogoutMetrics
	Events  LogoutEvents
}

// RunLogout revokes a single session and denies its outstanding tokens.
// Revoking an already-revoked or unknown session is a no-op: logout is
// idempotent by contract.
func RunLogout(ctx context.Context, sessionID string, deps LogoutDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}

	sess, err := deps.Store.RevokeSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return err
	}

	if deps.BlacklistSessions != nil {
		deps.BlacklistSessions(ctx, []*session.Session{sess})
	}

	deps.MetricInc(deps.Metrics.Logout)
	deps.EmitAudit(ctx, deps.Events.Logout, true, sess.UserID, sess.ID, sess.FamilyID, nil, nil)
	return nil
}

// RunLogoutAll revokes every live session owned by userID and denies all of
// their outstanding tokens. Returns the number of sessions revoked.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) (int, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}

	revoked, err := deps.Store.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}

	if deps.BlacklistSessions != nil && len(revoked) > 0 {
		deps.BlacklistSessions(ctx, revoked)
	}

	deps.MetricInc(deps.Metrics.LogoutAll)
	deps.EmitAudit(ctx, deps.Events.LogoutAll, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(len(revoked))}
	})
	return len(revoked), nil
}
