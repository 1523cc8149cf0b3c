package flows

import (
	"context"
	"time"

	"github.com/minyanlabs/sessionkit/session"
)

// Principal is the flow-local identity returned by the host's credential
// verifier after a successful check.
type Principal struct {
	UserID string
	Roles  []string
}

// LoginResult carries the issued token pair and the persisted origin row.
type LoginResult struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Session          *session.Session
}

type LoginSessionStore interface {
	PersistInitial(ctx context.Context, s *session.Session) error
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess int
	LoginFailure int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess string
	LoginFailure string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	StoreUnavailable   error
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	VerifyCredentials func(ctx context.Context, username, password string) (Principal, error)
	NewID             func() string
	HashToken         func(string) string
	MintAccess        func(subject, sessionID, familyID string, roles []string) (string, string, time.Time, error)
	MintRefresh       func(subject, sessionID, familyID string, roles []string) (string, string, time.Time, error)
	Now               func() time.Time
	DeviceFromContext func(context.Context) session.DeviceMeta
	Store             LoginSessionStore

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, sessionID, familyID string, err error, meta func() map[string]string)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin verifies credentials through the injected verifier, opens a new
// session family, and issues the first access/refresh pair. The origin row
// is persisted before any token is returned.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) (*LoginResult, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
	if deps.DeviceFromContext == nil {
		deps.DeviceFromContext = func(context.Context) session.DeviceMeta { return session.DeviceMeta{} }
	}
	if deps.VerifyCredentials == nil ||
		deps.NewID == nil ||
		deps.HashToken == nil ||
		deps.MintAccess == nil ||
		deps.MintRefresh == nil ||
		deps.Store == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if username == "" || password == "" {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": username,
				"reason":     "empty_credentials",
			}
		})
		return nil, deps.Errors.InvalidCredentials
	}

	principal, err := deps.VerifyCredentials(ctx, username, password)
	if err != nil {
		// Verifier failures collapse to one caller-visible error so the
		// response does not reveal whether the account exists.
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": username,
				"reason":     "verifier_rejected",
			}
		})
		return nil, deps.Errors.InvalidCredentials
	}
	password = ""

	sessionID := deps.NewID()
	familyID := deps.NewID()

	refreshToken, refreshJTI, refreshExp, err := deps.MintRefresh(principal.UserID, sessionID, familyID, principal.Roles)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, principal.UserID, sessionID, familyID, err, nil)
		return nil, err
	}
	accessToken, accessJTI, accessExp, err := deps.MintAccess(principal.UserID, sessionID, familyID, principal.Roles)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, principal.UserID, sessionID, familyID, err, nil)
		return nil, err
	}

	now := deps.Now()
	device := deps.DeviceFromContext(ctx)
	sess := &session.Session{
		ID:               sessionID,
		UserID:           principal.UserID,
		RefreshTokenHash: deps.HashToken(refreshToken),
		RefreshJTI:       refreshJTI,
		AccessJTI:        accessJTI,
		FamilyID:         familyID,
		DeviceLabel:      device.Label,
		ClientIP:         device.ClientIP,
		CreatedAt:        now,
		ExpiresAt:        refreshExp,
	}

	if err := deps.Store.PersistInitial(ctx, sess); err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, principal.UserID, sessionID, familyID, err, func() map[string]string {
			return map[string]string{
				"reason": "session_persist_failed",
			}
		})
		if deps.Errors.StoreUnavailable != nil {
			return nil, deps.Errors.StoreUnavailable
		}
		return nil, err
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, principal.UserID, sessionID, familyID, nil, func() map[string]string {
		return map[string]string{
			"identifier": username,
		}
	})

	return &LoginResult{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		Session:          sess,
	}, nil
}
