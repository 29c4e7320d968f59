package logger

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Audit event types.
const (
	EventLoginSuccess    = "login_success"
	EventLoginFailed     = "login_failed"
	EventAccountLocked   = "account_locked"
	EventAccountUnlocked = "account_unlocked"
	EventUserRegistered  = "user_registered"
	EventEmailVerified   = "email_verified"
	EventRoleChanged     = "role_changed"
	EventUserDeleted     = "user_deleted"
	EventPasswordRehash  = "password_rehashed"
)

// Login failure reasons. They are logged only; clients never see them.
const (
	ReasonAccountNotFound    = "account_not_found"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonAccountLocked      = "account_locked"
	ReasonStoreUnavailable   = "store_unavailable"
)

// AuditEvent is a single security-relevant record.
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes audit events through slog under the "audit" message.
// A nil *AuditLogger discards everything.
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger, now: time.Now}
}

// Log records event. Failures are logged at WARN.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if al == nil || al.logger == nil {
		return
	}

	attrs := make([]slog.Attr, 0, 8+len(event.Metadata))
	attrs = append(attrs,
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	)
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogLoginSuccess records a successful authentication.
func (al *AuditLogger) LogLoginSuccess(ctx context.Context, userID, email, ip string) {
	al.Log(ctx, AuditEvent{
		EventType: EventLoginSuccess,
		UserID:    userID,
		Email:     email,
		IPAddress: ip,
		Success:   true,
	})
}

// LogLoginFailure records a rejected login with the internal reason.
func (al *AuditLogger) LogLoginFailure(ctx context.Context, userID, email, ip, reason string) {
	al.Log(ctx, AuditEvent{
		EventType:     EventLoginFailed,
		UserID:        userID,
		Email:         email,
		IPAddress:     ip,
		FailureReason: reason,
	})
}

// LogAccountLocked records the transition of an account into the locked state.
func (al *AuditLogger) LogAccountLocked(ctx context.Context, userID, email, ip string, failedAttempts int) {
	al.Log(ctx, AuditEvent{
		EventType: EventAccountLocked,
		UserID:    userID,
		Email:     email,
		IPAddress: ip,
		Success:   true,
		Metadata:  map[string]string{"failed_attempts": strconv.Itoa(failedAttempts)},
	})
}

// LogAccountAction records an administrative or lifecycle action on an account.
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, userID, actorID string, metadata map[string]string) {
	md := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	if actorID != "" {
		md["actor_id"] = actorID
	}
	al.Log(ctx, AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Success:   true,
		Metadata:  md,
	})
}

