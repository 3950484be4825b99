package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/verbatim-backend/internal/data/repos/testutil"
	types "github.com/yungbote/verbatim-backend/internal/domain"
)

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveAPI("GET", "/api/sessions/:id", "200", 30*time.Millisecond)
	m.ObserveAPI("GET", "/api/sessions/:id", "200", 10*time.Millisecond)
	m.ObserveAI("topics", "ok", 2*time.Second)
	m.ObserveStage("emergent_topics", "failed", time.Second)

	if got := m.apiRequests.Value("GET", "/api/sessions/:id", "200"); got != 2 {
		t.Fatalf("api requests: want 2, got %v", got)
	}
	if got := m.stageDuration.Count("emergent_topics", "failed"); got != 1 {
		t.Fatalf("stage observations: want 1, got %d", got)
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`verbatim_api_requests_total{method="GET",route="/api/sessions/:id",status="200"} 2`,
		`verbatim_ai_requests_total{task="topics",status="ok"} 1`,
		`verbatim_stage_seconds_bucket{stage="emergent_topics",status="failed",le="1"} 1`,
		"# TYPE verbatim_sessions gauge",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/", "200", time.Millisecond)
	m.ObserveAI("x", "ok", time.Millisecond)
	m.APIInflight(1)
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("nil write: %v", err)
	}
}

func TestCollectSessions(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	p := testutil.SeedProject(t, ctx, db, "metrics")
	for _, status := range []string{"completed", "failed", "failed"} {
		s := &types.AnalysisSession{ProjectID: p.ID, Status: status}
		if err := db.WithContext(ctx).Create(s).Error; err != nil {
			t.Fatalf("seed session: %v", err)
		}
	}
	m := NewMetrics()
	if err := m.CollectSessions(ctx, db); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := m.sessions.Value("failed"); got != 2 {
		t.Fatalf("failed sessions: want 2, got %v", got)
	}
	if got := m.sessions.Value("processing"); got != 0 {
		t.Fatalf("processing sessions: want 0, got %v", got)
	}
}

func TestParseHeaders(t *testing.T) {
	h := ParseHeaders("a=1, b = 2 ,bad,=x")
	if len(h) != 2 || h["a"] != "1" || h["b"] != "2" {
		t.Fatalf("unexpected headers: %v", h)
	}
	if ParseHeaders("  ") != nil {
		t.Fatalf("blank should be nil")
	}
}
