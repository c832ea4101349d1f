package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/traindiag/traindiag/internal/logger"
)

// RequestLogger logs each API request with method, path, status and latency.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.GetLogger().WithFields(map[string]interface{}{
			"component": "http",
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
		}).Info("Request handled")
	}
}
