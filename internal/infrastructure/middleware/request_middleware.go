package middleware

import (
	"time"

	"livesession/pkg/logger"
	"livesession/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

// RequestIDMiddleware propagates or assigns a request id and stores it in
// the request context for logging.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := utils.SanitizeString(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 64 {
			id = utils.GenerateRequestID()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// SessionContextMiddleware tags the request context with the client id and
// the stream it is attached to, so request log lines carry both.
func SessionContextMiddleware(clientID string, streamID func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logger.WithClientID(c.Request.Context(), clientID)
		if id := streamID(); id != "" {
			ctx = logger.WithStreamID(ctx, id)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLoggingMiddleware logs one line per request.
func RequestLoggingMiddleware(log *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.LogRequest(c.Request.Context(), c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
