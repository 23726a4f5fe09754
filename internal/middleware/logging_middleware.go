package middleware

import (
	"strconv"
	"time"

	"authz-service/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StructuredLogger writes one structured line per request and feeds the
// prometheus request collectors.
func StructuredLogger(logger *logrus.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		m.RequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(latency.Seconds())

		fields := logrus.Fields{
			"method":         c.Request.Method,
			"path":           path,
			"status":         status,
			"latency_ms":     latency.Milliseconds(),
			"ip":             c.ClientIP(),
			"user_agent":     c.Request.UserAgent(),
			"correlation_id": c.GetString(RequestIDKey),
		}
		if tenantID := c.GetString("tenant_id"); tenantID != "" {
			fields["tenant_id"] = tenantID
		}
		if clientID := c.GetString("client_id"); clientID != "" {
			fields["client_id"] = clientID
		}

		entry := logger.WithFields(fields)
		switch {
		case status >= 500:
			entry.Error("Request completed")
		case status >= 400:
			entry.Warn("Request completed")
		default:
			entry.Info("Request completed")
		}
	}
}
