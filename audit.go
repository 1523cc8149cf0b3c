package sessionkit

import (
	"context"
	"errors"
	"time"

	"github.com/minyanlabs/sessionkit/internal/audit"
)

// AuditEvent is the canonical security event emitted by the engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = audit.Sink

// NoOpAuditSink drops events.
type NoOpAuditSink = audit.NoOpSink

// ChannelAuditSink buffers events for a host-side pipeline.
type ChannelAuditSink = audit.ChannelSink

// JSONWriterAuditSink writes one JSON object per line.
type JSONWriterAuditSink = audit.JSONWriterSink

// ZerologAuditSink writes events as structured log lines.
type ZerologAuditSink = audit.ZerologSink

// NewChannelAuditSink returns a sink backed by a buffered channel.
func NewChannelAuditSink(buffer int) *ChannelAuditSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterAuditSink returns a line-delimited JSON sink.
var NewJSONWriterAuditSink = audit.NewJSONWriterSink

// NewZerologAuditSink returns a sink that logs events through zerolog.
var NewZerologAuditSink = audit.NewZerologSink

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshFailure       = "refresh_failure"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventFamilyRevoked        = "family_revoked"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
	auditEventValidateRejected     = "validate_rejected"
	auditEventSessionRevoked       = "session_revoked"
)

// AuditErrorCode defines a public type used by sessionkit APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials    AuditErrorCode = "invalid_credentials"
	auditErrInvalidToken          AuditErrorCode = "invalid_token"
	auditErrTokenExpired          AuditErrorCode = "token_expired"
	auditErrSessionNotFound       AuditErrorCode = "session_not_found"
	auditErrSessionExpired        AuditErrorCode = "session_expired"
	auditErrSessionReused         AuditErrorCode = "refresh_reuse"
	auditErrSessionRevoked        AuditErrorCode = "session_revoked"
	auditErrStoreUnavailable      AuditErrorCode = "store_unavailable"
	auditErrRevocationUnavailable AuditErrorCode = "revocation_unavailable"
	auditErrCSRFInvalid           AuditErrorCode = "csrf_invalid"
	auditErrInternal              AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	familyID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		FamilyID:  familyID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionReused):
		return auditErrSessionReused
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrSessionRevoked):
		return auditErrSessionRevoked
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStoreUnavailable
	case errors.Is(err, ErrRevocationUnavailable):
		return auditErrRevocationUnavailable
	case errors.Is(err, ErrCSRFInvalid):
		return auditErrCSRFInvalid
	default:
		return auditErrInternal
	}
}
