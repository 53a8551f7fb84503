package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	apierrors "github.com/eternisai/research-bridge/internal/errors"
	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

const requestIDHeader = "X-Request-ID"

func instanceID() string {
	return logger.GetInstanceID()
}

// withRequestIDs adds the operation and the message and session ids of a chat
// request to ctx for logging.
func withRequestIDs(ctx context.Context, operation string, req ChatRequest) context.Context {
	ctx = logger.WithOperation(ctx, operation)
	ctx = logger.WithMessageID(ctx, req.MessageID)
	if req.SessionID != "" {
		ctx = logger.WithSessionID(ctx, req.SessionID)
	}
	return ctx
}

// RequestIDMiddleware propagates X-Request-ID, generating one when absent, and
// stores it in the request context.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = logger.GenerateRequestID()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// RequestLoggingMiddleware logs each request once it completes.
func RequestLoggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		log.WithContext(c.Request.Context()).Debug("request completed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Int("bytes", c.Writer.Size()))
	}
}

// RecoveryMiddleware turns a handler panic into a 500 when nothing was written
// yet, and logs it either way.
func RecoveryMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithContext(c.Request.Context()).Error("panic in handler",
					slog.String("panic", fmt.Sprint(r)),
					slog.String("stack", string(debug.Stack())))
				if !c.Writer.Written() {
					apierrors.AbortWithInternal(c, "internal error", nil)
					return
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}

// WithCORS wraps h with a CORS policy for the given origins ("*" allows any).
func WithCORS(h http.Handler, origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposedHeaders: []string{"X-Message-ID", "X-Vercel-AI-Data-Stream", requestIDHeader},
	}).Handler(h)
}
