package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
)

// RequestLogger logs one structured line per request after it completes.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	reqLog := log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= 500:
			reqLog.Error("request", fields...)
		case c.Writer.Status() >= 400:
			reqLog.Warn("request", fields...)
		default:
			reqLog.Info("request", fields...)
		}
	}
}
