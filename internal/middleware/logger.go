package middleware

import (
	"time"

	"github.com/Bache94/ListeByBache/internal/logging"
	"github.com/gin-gonic/gin"
)

func RequestLogger(logger *logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		l := logger.WithFields(map[string]any{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  status,
			"latency": time.Since(start).String(),
			"user":    UserIDFromContext(c),
		})
		switch {
		case status >= 500:
			l.Errorf("request failed")
		case status >= 400:
			l.Warnf("request rejected")
		default:
			l.Debugf("request")
		}
	}
}
