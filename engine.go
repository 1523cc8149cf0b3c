package sessionkit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/minyanlabs/sessionkit/csrf"
	"github.com/minyanlabs/sessionkit/internal"
	"github.com/minyanlabs/sessionkit/internal/audit"
	"github.com/minyanlabs/sessionkit/internal/flows"
	"github.com/minyanlabs/sessionkit/jwt"
	"github.com/minyanlabs/sessionkit/revocation"
	"github.com/minyanlabs/sessionkit/session"
)

// Engine defines a public type used by sessionkit APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config     Config
	store      session.Store
	jwtManager *jwt.Manager
	revocation *revocation.Cache
	csrf       *csrf.Guard
	verifier   CredentialVerifier
	metrics    *Metrics
	audit      *audit.Dispatcher
	sweeper    *session.Sweeper
	log        zerolog.Logger
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.sweeper != nil {
		e.sweeper.Stop()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) flowWarn(msg string, args ...any) {
	if e == nil {
		return
	}
	e.log.Warn().Msgf(msg, args...)
}

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	if e == nil || e.store == nil || e.jwtManager == nil || e.verifier == nil {
		return nil, ErrEngineNotReady
	}

	result, err := flows.RunLogin(ctx, username, password, flows.LoginDeps{
		VerifyCredentials: func(ctx context.Context, username, password string) (flows.Principal, error) {
			identity, err := e.verifier.VerifyCredentials(ctx, username, password)
			if err != nil {
				return flows.Principal{}, err
			}
			return flows.Principal{UserID: identity.UserID, Roles: identity.Roles}, nil
		},
		NewID:             uuid.NewString,
		HashToken:         internal.HashToken,
		MintAccess:        e.jwtManager.MintAccess,
		MintRefresh:       e.jwtManager.MintRefresh,
		DeviceFromContext: deviceFromContext,
		Store:             e.store,

		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,

		Metrics: flows.LoginMetrics{
			LoginSuccess: int(MetricLoginSuccess),
			LoginFailure: int(MetricLoginFailure),
		},
		Events: flows.LoginEvents{
			LoginSuccess: auditEventLoginSuccess,
			LoginFailure: auditEventLoginFailure,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			StoreUnavailable:   ErrStoreUnavailable,
		},
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      result.AccessToken,
		RefreshToken:     result.RefreshToken,
		AccessExpiresAt:  result.AccessExpiresAt,
		RefreshExpiresAt: result.RefreshExpiresAt,
		SessionID:        result.Session.ID,
		FamilyID:         result.Session.FamilyID,
	}, nil
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.store == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	result := flows.RunRefresh(ctx, refreshToken, flows.RefreshDeps{
		VerifyRefresh: func(token string) (*jwt.Claims, error) {
			return e.jwtManager.Verify(token, jwt.TypeRefresh)
		},
		HashToken:         internal.HashToken,
		NewID:             uuid.NewString,
		MintAccess:        e.jwtManager.MintAccess,
		MintRefresh:       e.jwtManager.MintRefresh,
		DeviceFromContext: deviceFromContext,
		Store:             e.store,

		IsFamilyRevoked:  e.revocation.IsFamilyRevoked,
		OnFamilyRevoked:  e.onFamilyRevoked,
		BlacklistRotated: e.blacklistRotated,

		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.flowWarn,

		Metrics: flows.RefreshMetrics{
			RefreshSuccess: int(MetricRefreshSuccess),
			RefreshFailure: int(MetricRefreshFailure),
			ReuseDetected:  int(MetricReuseDetected),
		},
		Events: flows.RefreshEvents{
			RefreshSuccess: auditEventRefreshSuccess,
			RefreshFailure: auditEventRefreshFailure,
			ReuseDetected:  auditEventRefreshReuseDetected,
			FamilyRevoked:  auditEventFamilyRevoked,
		},
	})

	switch result.Failure {
	case flows.RefreshFailureNone:
		return &TokenPair{
			AccessToken:      result.AccessToken,
			RefreshToken:     result.RefreshToken,
			AccessExpiresAt:  result.AccessExpiresAt,
			RefreshExpiresAt: result.RefreshExpiresAt,
			SessionID:        result.SessionID,
			FamilyID:         result.FamilyID,
		}, nil
	case flows.RefreshFailureVerify:
		return nil, mapVerifyError(result.Err)
	case flows.RefreshFailureReuse:
		return nil, ErrSessionReused
	case flows.RefreshFailureNotFound:
		return nil, ErrSessionNotFound
	case flows.RefreshFailureExpired:
		return nil, ErrSessionExpired
	case flows.RefreshFailureStore:
		return nil, ErrStoreUnavailable
	default:
		return nil, result.Err
	}
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*Claims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	result := flows.RunValidate(ctx, accessToken, flows.ValidateDeps{
		VerifyAccess: func(token string) (*jwt.Claims, error) {
			return e.jwtManager.Verify(token, jwt.TypeAccess)
		},
		IsBlacklisted:   e.revocation.IsBlacklisted,
		IsFamilyRevoked: e.revocation.IsFamilyRevoked,
		FailClosed:      e.config.Security.RevocationFailClosed,

		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.flowWarn,

		Metrics: flows.ValidateMetrics{
			BlacklistRejected: int(MetricBlacklistRejected),
		},
		Events: flows.ValidateEvents{
			ValidateRejected: auditEventValidateRejected,
		},
	})
	if e.metrics != nil {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	switch result.Failure {
	case flows.ValidateFailureNone:
		return result.Claims, nil
	case flows.ValidateFailureRevoked:
		return nil, ErrSessionRevoked
	case flows.ValidateFailureUnavailable:
		return nil, ErrRevocationUnavailable
	default:
		return nil, mapVerifyError(result.Err)
	}
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	err := flows.RunLogout(ctx, sessionID, e.logoutDeps())
	if err != nil {
		return ErrStoreUnavailable
	}
	return nil
}

// LogoutByRefreshToken describes the logoutbyrefreshtoken operation and its observable behavior.
//
// LogoutByRefreshToken may return an error when input validation, dependency calls, or security checks fail.
// LogoutByRefreshToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutByRefreshToken(ctx context.Context, refreshToken string) error {
	if e == nil || e.store == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.Verify(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return mapVerifyError(err)
	}
	return e.Logout(ctx, claims.SID)
}

// LogoutAll describes the logoutall operation and its observable behavior.
//
// LogoutAll may return an error when input validation, dependency calls, or security checks fail.
// LogoutAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}

	count, err := flows.RunLogoutAll(ctx, userID, e.logoutDeps())
	if err != nil {
		return 0, ErrStoreUnavailable
	}
	return count, nil
}

func (e *Engine) logoutDeps() flows.LogoutDeps {
	return flows.LogoutDeps{
		Store:             e.store,
		BlacklistSessions: e.blacklistSessions,

		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,

		Metrics: flows.LogoutMetrics{
			Logout:    int(MetricLogout),
			LogoutAll: int(MetricLogoutAll),
		},
		Events: flows.LogoutEvents{
			Logout:    auditEventLogoutSession,
			LogoutAll: auditEventLogoutAll,
		},
	}
}

// ListSessions describes the listsessions operation and its observable behavior.
//
// ListSessions may return an error when input validation, dependency calls, or security checks fail.
// ListSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	rows, err := e.store.ListActive(ctx, userID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}

	infos := make([]SessionInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, sessionInfoFromRow(row))
	}
	return infos, nil
}

// RevokeSession describes the revokesession operation and its observable behavior.
//
// RevokeSession may return an error when input validation, dependency calls, or security checks fail.
// RevokeSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RevokeSession(ctx context.Context, sessionID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	sess, err := e.store.RevokeSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return ErrStoreUnavailable
	}

	e.blacklistSessions(ctx, []*session.Session{sess})
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, sess.UserID, sess.ID, sess.FamilyID, nil, nil)
	return nil
}

// IssueCSRFToken describes the issuecsrftoken operation and its observable behavior.
//
// IssueCSRFToken may return an error when input validation, dependency calls, or security checks fail.
// IssueCSRFToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) IssueCSRFToken(sessionID string) (string, error) {
	if e == nil || e.csrf == nil {
		return "", ErrEngineNotReady
	}
	return e.csrf.Issue(sessionID)
}

// ValidateCSRFToken describes the validatecsrftoken operation and its observable behavior.
//
// ValidateCSRFToken may return an error when input validation, dependency calls, or security checks fail.
// ValidateCSRFToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateCSRFToken(sessionID, cookieToken, headerToken string) error {
	if e == nil || e.csrf == nil {
		return ErrEngineNotReady
	}
	if err := e.csrf.Validate(sessionID, cookieToken, headerToken); err != nil {
		return ErrCSRFInvalid
	}
	return nil
}

// blacklistRotated denies a consumed refresh token's jti for the remainder
// of its lifetime after a successful rotation.
func (e *Engine) blacklistRotated(ctx context.Context, jti string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if err := e.revocation.Blacklist(ctx, jti, ttl); err != nil {
		e.log.Warn().Err(err).Msg("failed to blacklist rotated refresh token")
	}
}

// blacklistSessions denies every outstanding token of the given rows: the
// refresh jtis for the longest remaining row lifetime and the last access
// jtis for one full access TTL. Both writes are pipelined; a family burn or
// logout-everywhere can cover dozens of rows.
func (e *Engine) blacklistSessions(ctx context.Context, revoked []*session.Session) {
	var (
		refreshJTIs []string
		accessJTIs  []string
		refreshTTL  time.Duration
	)
	for _, row := range revoked {
		if row == nil {
			continue
		}
		if row.RefreshJTI != "" {
			refreshJTIs = append(refreshJTIs, row.RefreshJTI)
			if remaining := time.Until(row.ExpiresAt); remaining > refreshTTL {
				refreshTTL = remaining
			}
		}
		if row.AccessJTI != "" {
			accessJTIs = append(accessJTIs, row.AccessJTI)
		}
	}

	if err := e.revocation.BlacklistAll(ctx, refreshJTIs, refreshTTL); err != nil {
		e.log.Warn().Err(err).Int("count", len(refreshJTIs)).Msg("failed to blacklist refresh tokens")
	}
	if err := e.revocation.BlacklistAll(ctx, accessJTIs, e.config.JWT.AccessTTL); err != nil {
		e.log.Warn().Err(err).Int("count", len(accessJTIs)).Msg("failed to blacklist access tokens")
	}
}

// onFamilyRevoked records the family marker and denies every outstanding
// token of the burned lineage, including the replayed token itself.
func (e *Engine) onFamilyRevoked(ctx context.Context, familyID, presentedJTI string, revoked []*session.Session) {
	if err := e.revocation.MarkFamilyRevoked(ctx, familyID, e.config.JWT.RefreshTTL); err != nil {
		e.log.Warn().Err(err).Str("family_id", familyID).Msg("failed to mark family revoked")
	}
	if presentedJTI != "" {
		if err := e.revocation.Blacklist(ctx, presentedJTI, e.config.JWT.RefreshTTL); err != nil {
			e.log.Warn().Err(err).Str("family_id", familyID).Msg("failed to blacklist replayed token")
		}
	}
	e.blacklistSessions(ctx, revoked)
}

func mapVerifyError(err error) error {
	if errors.Is(err, jwt.ErrExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}
