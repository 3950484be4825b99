package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/verbatim-backend/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	var seen *ctxutil.TraceData
	r.GET("/api/sessions/:id", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/abc", nil)
	req.Header.Set(headerRequestID, "req-1")
	req.Header.Set(headerTraceID, strings.Repeat("x", maxInboundIDLen+1))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == nil {
		t.Fatalf("trace data not attached")
	}
	if seen.RequestID != "req-1" {
		t.Fatalf("request id = %q", seen.RequestID)
	}
	if seen.TraceID == "" || len(seen.TraceID) > maxInboundIDLen {
		t.Fatalf("oversized trace id should be replaced, got %q", seen.TraceID)
	}
	if rec.Header().Get(headerTraceID) != seen.TraceID {
		t.Fatalf("trace header not echoed")
	}
}

func TestRouteEntity(t *testing.T) {
	cases := map[string]string{
		"/api/sessions/:id/results": "session",
		"/api/projects/:id":         "project",
		"/other/:id":                "resource",
	}
	for route, want := range cases {
		if got := routeEntity(route); got != want {
			t.Fatalf("routeEntity(%q) = %q, want %q", route, got, want)
		}
	}
}
