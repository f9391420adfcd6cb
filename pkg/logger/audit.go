package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventRegister        = "register"
	EventLogin           = "login"
	EventRefresh         = "refresh"
	EventLockout         = "lockout"
	EventTokenRejected   = "token_rejected"
	EventOwnershipDenied = "ownership_denied"
	EventPasswordChange  = "password_change"
	EventProfileUpdate   = "profile_update"
	EventDeactivate      = "deactivate"
)

// AuditEvent represents a security audit event. UserID is masked before it is
// written; Email must already be sanitized by the caller.
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAuthAttempt logs register, login and refresh outcomes
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	attrs := al.baseAttrs("auth", event.EventType)
	attrs = append(attrs, slog.Bool("success", event.Success))
	attrs = append(attrs, event.attrs()...)

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogLockout logs an identity crossing the failure threshold
func (al *AuditLogger) LogLockout(ctx context.Context, userID string, attempts int, lockedUntil time.Time) {
	attrs := al.baseAttrs("auth", EventLockout)
	attrs = append(attrs,
		slog.String("user_id", MaskID(userID)),
		slog.Int("failed_attempts", attempts),
		slog.String("locked_until", lockedUntil.UTC().Format(time.RFC3339)),
	)
	al.logger.LogAttrs(ctx, slog.LevelWarn, "audit", attrs...)
}

// LogAccessRejected logs a guard or ownership rejection
func (al *AuditLogger) LogAccessRejected(ctx context.Context, event AuditEvent) {
	attrs := al.baseAttrs("access", event.EventType)
	attrs = append(attrs, event.attrs()...)
	al.logger.LogAttrs(ctx, slog.LevelWarn, "audit", attrs...)
}

// LogAccountAction logs profile, credential and deactivation changes
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, userID, ipAddress string, metadata map[string]string) {
	attrs := al.baseAttrs("account", eventType)
	attrs = append(attrs, AuditEvent{UserID: userID, IPAddress: ipAddress, Metadata: metadata}.attrs()...)
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}

func (al *AuditLogger) baseAttrs(auditType, eventType string) []slog.Attr {
	return []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", eventType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
}

func (e AuditEvent) attrs() []slog.Attr {
	var attrs []slog.Attr
	if e.UserID != "" {
		attrs = append(attrs, slog.String("user_id", MaskID(e.UserID)))
	}
	if e.Email != "" {
		attrs = append(attrs, slog.String("email", e.Email))
	}
	if e.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", e.IPAddress))
	}
	if e.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", e.UserAgent))
	}
	if e.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", e.FailureReason))
	}
	for key, val := range e.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}
	return attrs
}
