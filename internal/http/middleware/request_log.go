package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/verbatim-backend/internal/platform/ctxutil"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

// quietRoutes are polled by probes and scrapers; they log at debug.
var quietRoutes = map[string]bool{
	"/healthcheck": true,
	"/readyz":      true,
	"/metrics":     true,
}

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		kv := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id := c.Param("id"); id != "" {
			kv = append(kv, routeEntity(route)+"_id", id)
		}
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			kv = append(kv, "trace_id", td.TraceID, "request_id", td.RequestID)
		}
		if sub, ok := c.Get(ctxSubjectKey); ok {
			kv = append(kv, "subject", sub)
		}
		if c.GetHeader("Accept") == "text/event-stream" {
			kv = append(kv, "stream", true)
		}
		if msg := c.Errors.ByType(gin.ErrorTypeAny).String(); msg != "" {
			kv = append(kv, "errors", msg)
		}

		switch {
		case status >= 500:
			log.Error("request failed", kv...)
		case status >= 400:
			log.Warn("request rejected", kv...)
		case quietRoutes[route]:
			log.Debug("request", kv...)
		default:
			log.Info("request", kv...)
		}
	}
}
