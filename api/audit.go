package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditTokenIssued   AuditEvent = "token_issued"
	AuditTokenValid    AuditEvent = "token_validated"
	AuditTokenRevoked  AuditEvent = "token_revoked"
	AuditIssueRejected AuditEvent = "issue_rejected"
	AuditTokenInvalid  AuditEvent = "token_rejected"
	AuditRateLimited   AuditEvent = "rate_limited"
	AuditStoreDegraded AuditEvent = "store_degraded"
)

// auditLogger wraps slog.Logger for structured audit logging. Every request
// produces exactly one record: a success event or a rejection with the
// resolved status code.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{logger: logger.With("component", "audit")}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
}

// success records a completed operation with best-effort user attribution.
// Raw tokens never reach the log; pass maskToken output.
func (al *auditLogger) success(event AuditEvent, r *http.Request, userID, maskedToken string) {
	al.log(event, r,
		slog.String("user_id", userID),
		slog.String("token", maskedToken),
	)
}

// rejected records a failed request with its resolved status code.
func (al *auditLogger) rejected(event AuditEvent, r *http.Request, status int, userID string) {
	al.log(event, r,
		slog.Int("status", status),
		slog.String("user_id", userID),
	)
}

// maskToken hides all but the last three characters of a token.
func maskToken(token string) string {
	const mask = "********"
	if len(token) < 3 {
		return mask
	}
	return mask + token[len(token)-3:]
}
