package middleware

import (
	"time"

	"github.com/GoPolymarket/frontdoor/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.LatencyBucket.WithLabelValues(path).Observe(duration)
	}
}
