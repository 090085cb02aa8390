package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
}

// AuditLogger provides audit logging for MFA and session events.
// Addresses and agents are masked before they reach the log stream.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogMfaEvent logs an MFA verification or lifecycle event
func (al *AuditLogger) LogMfaEvent(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "mfa"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", MaskIP(event.IPAddress)))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("device", DeviceLabel(event.UserAgent)))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogSessionEvent logs session establishment and eviction events
func (al *AuditLogger) LogSessionEvent(eventType, userID, ipAddress, userAgent string) {
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit",
		slog.String("audit_type", "session"),
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
		slog.String("ip_address", MaskIP(ipAddress)),
		slog.String("device", DeviceLabel(userAgent)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
}
