package audit

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"
)

// Outcomes recorded on audit events.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("component", "audit"))}
}

func (al *Logger) LogAction(ctx context.Context, userID, action, resource, resourceID, status, details string) {
	al.logger.InfoContext(ctx, "audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", middleware.GetReqID(ctx)),
	)
}

// LogSession records login, logout, refresh and invalidation events.
func (al *Logger) LogSession(ctx context.Context, userID, action, sessionID, status, details string) {
	al.LogAction(ctx, userID, action, "session", sessionID, status, details)
}

// LogBid records bid state changes.
func (al *Logger) LogBid(ctx context.Context, userID, action, bidID, status, details string) {
	al.LogAction(ctx, userID, action, "bid", bidID, status, details)
}

func (al *Logger) LogDenied(ctx context.Context, userID, reason string) {
	al.LogAction(ctx, userID, "access_denied", "api", "", StatusDenied, reason)
}
