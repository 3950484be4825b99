package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/verbatim-backend/internal/observability"
)

// unmatchedRoute keeps 404 probes for arbitrary paths from creating a new
// label set per path.
const unmatchedRoute = "unmatched"

// Metrics records request counts, latency and in-flight requests by route
// template. Progress streams are skipped since they stay open for the life of
// the subscription.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.GetHeader("Accept") == "text/event-stream" {
			c.Next()
			return
		}
		start := time.Now()
		m.APIInflight(1)
		defer m.APIInflight(-1)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.ObserveAPI(c.Request.Method, route, observability.StatusLabel(c.Writer.Status()), time.Since(start))
	}
}
