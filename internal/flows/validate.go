package flows

import (
	"context"

	"github.com/minyanlabs/sessionkit/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureUnauthorized
	ValidateFailureRevoked
	ValidateFailureUnavailable
)

// ValidateResult returns either verified claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
}

// ValidateMetrics carries metric IDs needed by the validate flow.
type ValidateMetrics struct {
	BlacklistRejected int
}

// ValidateEvents carries audit event names used by the validate flow.
type ValidateEvents struct {
	ValidateRejected string
}

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	VerifyAccess    func(string) (*jwt.Claims, error)
	IsBlacklisted   func(ctx context.Context, jti string) (bool, error)
	IsFamilyRevoked func(ctx context.Context, familyID string) (bool, error)
	// FailClosed rejects requests when the revocation cache cannot be
	// reached. The default (fail-open) accepts signature-valid tokens and
	// logs the degraded check.
	FailClosed bool

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, sessionID, familyID string, err error, meta func() map[string]string)
	Warn      func(string, ...any)

	Metrics ValidateMetrics
	Events  ValidateEvents
}

// RunValidate performs the composed access-token check: signature and claim
// verification, then jti blacklist, then family revocation marker. The three
// checks are one operation; callers cannot skip the revocation lookups.
func RunValidate(ctx context.Context, accessToken string, deps ValidateDeps) ValidateResult {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	claims, err := deps.VerifyAccess(accessToken)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureUnauthorized, Err: err}
	}

	if deps.IsBlacklisted != nil {
		denied, berr := deps.IsBlacklisted(ctx, claims.ID)
		if berr != nil {
			if deps.FailClosed {
				return ValidateResult{Failure: ValidateFailureUnavailable, Err: berr}
			}
			deps.Warn("blacklist check degraded, accepting token on signature alone")
		} else if denied {
			deps.MetricInc(deps.Metrics.BlacklistRejected)
			deps.EmitAudit(ctx, deps.Events.ValidateRejected, false, claims.Subject, claims.SID, claims.FID, nil, func() map[string]string {
				return map[string]string{"reason": "jti_blacklisted"}
			})
			return ValidateResult{Failure: ValidateFailureRevoked}
		}
	}

	if deps.IsFamilyRevoked != nil && claims.FID != "" {
		revoked, ferr := deps.IsFamilyRevoked(ctx, claims.FID)
		if ferr != nil {
			if deps.FailClosed {
				return ValidateResult{Failure: ValidateFailureUnavailable, Err: ferr}
			}
			deps.Warn("family revocation check degraded, accepting token on signature alone")
		} else if revoked {
			deps.MetricInc(deps.Metrics.BlacklistRejected)
			deps.EmitAudit(ctx, deps.Events.ValidateRejected, false, claims.Subject, claims.SID, claims.FID, nil, func() map[string]string {
				return map[string]string{"reason": "family_revoked"}
			})
			return ValidateResult{Failure: ValidateFailureRevoked}
		}
	}

	return ValidateResult{Claims: claims}
}
