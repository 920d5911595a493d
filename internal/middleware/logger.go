package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/licensa/internal/domain"
	"github.com/google/uuid"
)

const (
	// LoggerContextKey is the context key for storing the request-scoped logger
	LoggerContextKey contextKey = "logger"
)

// WithRequestLogger creates middleware that injects a request-scoped logger into the context.
// The logger includes request metadata (request_id, method, path) and the caller identity.
// This middleware should be placed after RequestID and WithIdentity in the middleware chain.
func WithRequestLogger(baseLogger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestLogger := baseLogger.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			if requestID := GetRequestID(ctx); requestID != "" {
				requestLogger = requestLogger.With(slog.String("request_id", requestID))
			}

			if ip := GetClientIPFromContext(ctx); ip != "" {
				requestLogger = requestLogger.With(slog.String("client_ip", ip))
			}

			if userID := domain.UserIDFromContext(ctx); userID != uuid.Nil {
				requestLogger = requestLogger.With(slog.String("user_id", userID.String()))
			}

			if staffID := domain.StaffIDFromContext(ctx); staffID != uuid.Nil {
				requestLogger = requestLogger.With(slog.String("staff_id", staffID.String()))
			}

			ctx = context.WithValue(ctx, LoggerContextKey, requestLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetLogger retrieves the request-scoped logger from the context.
// If no logger is found, returns the provided fallback logger.
// If no fallback is provided, returns slog.Default().
func GetLogger(ctx context.Context, fallback ...*slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*slog.Logger); ok {
		return logger
	}
	if len(fallback) > 0 && fallback[0] != nil {
		return fallback[0]
	}
	return slog.Default()
}
