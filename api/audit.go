package api

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess      AuditEvent = "login_success"
	AuditLoginFailure      AuditEvent = "login_failure"
	AuditLoginRateLimited  AuditEvent = "login_rate_limited"
	AuditLogout            AuditEvent = "logout"
	AuditAssetCreated      AuditEvent = "asset_created"
	AuditAssetDeleted      AuditEvent = "asset_deleted"
	AuditSecretChanged     AuditEvent = "secret_changed"
	AuditAssetVerified     AuditEvent = "asset_verified"
	AuditAssetVerifyFailed AuditEvent = "asset_verify_failed"
	AuditAssetScanned      AuditEvent = "asset_scanned"
	AuditVerifyRateLimited AuditEvent = "verify_rate_limited"
	AuditCrossSiteBlocked  AuditEvent = "cross_site_blocked"
)

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("request_id", chimw.GetReqID(r.Context())),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
}

// logAsset is a convenience for events about one asset.
func (al *auditLogger) logAsset(event AuditEvent, r *http.Request, asset string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("asset", asset),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a failed or refused attempt.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
