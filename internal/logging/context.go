package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey struct{}

// WithLogger stores the provided logger on the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored on ctx, or fallback.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return logger
	}
	return fallback
}

// RequestLogger returns chi middleware that stores a request-scoped logger
// on the context and logs each completed request. Requests inside a trace
// carry its trace id.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			logger := base.With(
				zap.String("http_method", r.Method),
				zap.String("path", r.URL.Path),
			)
			if id := middleware.GetReqID(r.Context()); id != "" {
				logger = logger.With(zap.String("request_id", id))
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				logger = logger.With(zap.String("trace_id", sc.TraceID().String()))
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(WithLogger(r.Context(), logger)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request completed",
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
