package goSession

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	auditEventLoginStarted      = "login_started"
	auditEventLoginSuccess      = "login_success"
	auditEventLoginFailure      = "login_failure"
	auditEventCSRFMismatch      = "csrf_mismatch"
	auditEventLogout            = "logout"
	auditEventRefreshSuccess    = "refresh_success"
	auditEventRefreshInvalid    = "refresh_invalid"
	auditEventRefreshFailure    = "refresh_failure"
	auditEventRefreshSuperseded = "refresh_superseded"
	auditEventRefreshBatch      = "refresh_batch"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrCSRFMismatch        AuditErrorCode = "csrf_mismatch"
	auditErrRefreshTokenInvalid AuditErrorCode = "refresh_token_invalid"
	auditErrProvider            AuditErrorCode = "provider_error"
	auditErrStorage             AuditErrorCode = "storage_error"
	auditErrConflict            AuditErrorCode = "conflict"
	auditErrUnauthenticated     AuditErrorCode = "unauthenticated"
	auditErrConfiguration       AuditErrorCode = "configuration_error"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	sessionID string,
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
		ID:        uuid.NewString(),
		Timestamp: e.now().UTC(),
		EventType: eventType,
		SessionID: sessionID,
		Subject:   subject,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
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
	case errors.Is(err, ErrCSRFMismatch):
		return auditErrCSRFMismatch
	case errors.Is(err, ErrRefreshTokenInvalid):
		return auditErrRefreshTokenInvalid
	case errors.Is(err, ErrProvider),
		errors.Is(err, context.DeadlineExceeded):
		return auditErrProvider
	case errors.Is(err, ErrStorage):
		return auditErrStorage
	case errors.Is(err, ErrConflict):
		return auditErrConflict
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrConfiguration):
		return auditErrConfiguration
	default:
		return auditErrInternal
	}
}

func durationMillis(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
