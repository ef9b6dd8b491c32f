package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dealguard/dealguard/internal/logging"
)

// Middleware records HTTP metrics for each request.
func Middleware(m *Metrics, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.IncHTTPRequestsInFlight()
		c.Next()
		m.DecHTTPRequestsInFlight()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		m.RecordRequestLatency(endpoint, c.Request.Method, status, duration)
		m.RecordHTTPRequest(endpoint, c.Request.Method, status)

		if len(c.Errors) > 0 {
			m.RecordError("handler", endpoint, c.Request.Method)
			logger.ErrorWithContext(c.Request.Context(), "request error",
				"method", c.Request.Method,
				"endpoint", endpoint,
				"error", c.Errors.String())
		}
	}
}
