package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/verbatim-backend/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"

	maxInboundIDLen = 128
)

// AttachTraceContext stores trace and request ids on the request context so
// services can stamp them on logs and on the analysis sessions they start.
// Inbound ids are reused when they look sane; the active span id wins over a
// fresh one. Route ids are copied onto the span.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())

		traceID := inboundID(c.GetHeader(headerTraceID))
		if traceID == "" && span.SpanContext().HasTraceID() {
			traceID = span.SpanContext().TraceID().String()
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}
		reqID := inboundID(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.NewString()
		}

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		}))
		c.Header(headerTraceID, traceID)
		c.Header(headerRequestID, reqID)

		if span.IsRecording() {
			span.SetAttributes(attribute.String("verbatim.request_id", reqID))
			for _, p := range c.Params {
				if p.Key == "id" {
					span.SetAttributes(attribute.String("verbatim."+routeEntity(c.FullPath())+"_id", p.Value))
				}
			}
		}
		c.Next()
	}
}

// inboundID accepts a caller-supplied id only if it is short and printable.
func inboundID(raw string) string {
	if raw == "" || len(raw) > maxInboundIDLen {
		return ""
	}
	for _, r := range raw {
		if r < 0x21 || r > 0x7e {
			return ""
		}
	}
	return raw
}

// routeEntity names what the ":id" segment of a route refers to.
func routeEntity(route string) string {
	switch {
	case strings.HasPrefix(route, "/api/sessions/"):
		return "session"
	case strings.HasPrefix(route, "/api/projects/"):
		return "project"
	default:
		return "resource"
	}
}
