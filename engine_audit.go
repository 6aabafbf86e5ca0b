package goSession

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/session"
)

const (
	auditEventSessionCreated       = "session_created"
	auditEventVerifyFailure        = "verify_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshReplay        = "refresh_idempotent_replay"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventTokenTheftDetected   = "token_theft_detected"
	auditEventSessionRevoked       = "session_revoked"
	auditEventUserSessionsRevoked  = "user_sessions_revoked"
	auditEventExpiredSessionsSwept = "expired_sessions_swept"
)

// AuditErrorCode is the normalized error label attached to failed audit
// events.
type AuditErrorCode string

const (
	auditErrMalformed     AuditErrorCode = "token_malformed"
	auditErrExpired       AuditErrorCode = "access_token_expired"
	auditErrNotFound      AuditErrorCode = "session_not_found"
	auditErrTryRefresh    AuditErrorCode = "try_refresh_token"
	auditErrTheft         AuditErrorCode = "token_theft"
	auditErrAntiCSRF      AuditErrorCode = "anti_csrf_mismatch"
	auditErrUnauthorized  AuditErrorCode = "unauthorized"
	auditErrUnavailable   AuditErrorCode = "backend_unavailable"
	auditErrInternalError AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionHandle string,
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
		Timestamp:     time.Now().UTC(),
		EventType:     eventType,
		UserID:        userID,
		SessionHandle: sessionHandle,
		IP:            clientIPFromContext(ctx),
		Success:       success,
		Metadata:      metadata,
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
	case errors.Is(err, ErrTokenMalformed):
		return auditErrMalformed
	case errors.Is(err, ErrAccessTokenExpired):
		return auditErrExpired
	case errors.Is(err, ErrTokenTheftDetected):
		return auditErrTheft
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, session.ErrSessionNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrTryRefreshToken):
		return auditErrTryRefresh
	case errors.Is(err, ErrAntiCSRFMismatch):
		return auditErrAntiCSRF
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case isUnavailable(err):
		return auditErrUnavailable
	default:
		return auditErrInternalError
	}
}
