package bus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/realtime"
)

func TestLoopbackFansOutAcrossHubs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shared := NewLoopback()
	worker := realtime.NewHub(logger.Nop(), realtime.WithRelay(shared))
	api := realtime.NewHub(logger.Nop(), realtime.WithRelay(shared))
	if err := worker.Start(ctx); err != nil {
		t.Fatalf("worker start: %v", err)
	}
	if err := api.Start(ctx); err != nil {
		t.Fatalf("api start: %v", err)
	}

	projectID := uuid.New()
	got := make(chan realtime.ProgressPayload, 4)
	api.Subscribe(realtime.ProjectKey(projectID), func(p realtime.ProgressPayload) { got <- p })

	worker.Publish(ctx, realtime.ProgressPayload{SessionID: uuid.New(), ProjectID: projectID, Progress: 25})

	select {
	case p := <-got:
		if p.Progress != 25 {
			t.Fatalf("progress=%d want 25", p.Progress)
		}
	case <-time.After(time.Second):
		t.Fatalf("update did not cross the bus")
	}
}

func TestHubFallsBackToLocalWhenRelayClosed(t *testing.T) {
	shared := NewLoopback()
	hub := realtime.NewHub(logger.Nop(), realtime.WithRelay(shared))
	_ = shared.Close()

	sessionID := uuid.New()
	got := make(chan realtime.ProgressPayload, 1)
	hub.Subscribe(realtime.SessionKey(sessionID), func(p realtime.ProgressPayload) { got <- p })
	hub.Publish(context.Background(), realtime.ProgressPayload{SessionID: sessionID, ProjectID: uuid.New(), Progress: 50})

	select {
	case p := <-got:
		if p.Progress != 50 {
			t.Fatalf("progress=%d", p.Progress)
		}
	case <-time.After(time.Second):
		t.Fatalf("local fallback did not deliver")
	}
}

func TestNewRedisBusRequiresAddr(t *testing.T) {
	if _, err := NewRedisBus(logger.Nop(), RedisConfig{}); err == nil {
		t.Fatalf("expected error without address")
	}
}

func TestDecodeEnvelope(t *testing.T) {
	sessionID := uuid.New()
	msg, err := decodeEnvelope(`{"origin":"a","sent_at":"2026-01-02T03:04:05Z","msg":{"channel":"session:` + sessionID.String() + `","event":"SessionProgress","data":{"progress":40}}}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Channel != realtime.SessionKey(sessionID).String() || msg.Data.Progress != 40 {
		t.Fatalf("unexpected message %+v", msg)
	}

	for _, bad := range []string{"not json", `{"origin":"a","msg":{}}`} {
		if _, err := decodeEnvelope(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestLoopbackPing(t *testing.T) {
	b := NewLoopback()
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	_ = b.Close()
	if err := b.Ping(context.Background()); err == nil {
		t.Fatalf("expected closed loopback to fail ping")
	}
}
