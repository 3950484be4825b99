package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

type collector struct {
	mu  sync.Mutex
	got []ProgressPayload
	ch  chan struct{}
}

func newCollector() *collector { return &collector{ch: make(chan struct{}, 64)} }

func (c *collector) add(p ProgressPayload) {
	c.mu.Lock()
	c.got = append(c.got, p)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []ProgressPayload {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.got) >= n {
			out := append([]ProgressPayload(nil), c.got...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for %d updates", n)
		}
	}
}

func TestHubDeliversInPublishOrderOnBothChannels(t *testing.T) {
	hub := NewHub(logger.Nop())
	sessionID, projectID := uuid.New(), uuid.New()

	bySession := newCollector()
	byProject := newCollector()
	hub.Subscribe(SessionKey(sessionID), bySession.add)
	hub.Subscribe(ProjectKey(projectID), byProject.add)

	for _, pct := range []int{0, 10, 25, 50} {
		hub.Publish(context.Background(), ProgressPayload{SessionID: sessionID, ProjectID: projectID, Status: "processing", Progress: pct})
	}
	for _, c := range []*collector{bySession, byProject} {
		got := c.wait(t, 4)
		for i, want := range []int{0, 10, 25, 50} {
			if got[i].Progress != want {
				t.Fatalf("update %d: want progress %d got %d", i, want, got[i].Progress)
			}
		}
	}
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(logger.Nop())
	sessionID := uuid.New()
	c := newCollector()
	sub := hub.Subscribe(SessionKey(sessionID), c.add)
	if hub.Subscribers(SessionKey(sessionID)) != 1 {
		t.Fatalf("expected one subscriber")
	}
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	hub.Publish(context.Background(), ProgressPayload{SessionID: sessionID, ProjectID: uuid.New()})
	time.Sleep(50 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.got) != 0 {
		t.Fatalf("unsubscribed callback received %d updates", len(c.got))
	}
	if hub.Subscribers(SessionKey(sessionID)) != 0 {
		t.Fatalf("subscription not removed")
	}
}

func TestHubRejectsUnknownKey(t *testing.T) {
	hub := NewHub(logger.Nop())
	if sub := hub.Subscribe(SubscriptionKey("user:1"), func(ProgressPayload) {}); sub != nil {
		t.Fatalf("expected nil subscription for unknown key")
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	hub := NewHub(logger.Nop(), WithSubscriberBuffer(2))
	sessionID, projectID := uuid.New(), uuid.New()

	started := make(chan struct{})
	gate := make(chan struct{})
	c := newCollector()
	var once sync.Once
	sub := hub.Subscribe(SessionKey(sessionID), func(p ProgressPayload) {
		once.Do(func() {
			close(started)
			<-gate
		})
		c.add(p)
	})

	pub := func(pct int) {
		hub.Publish(context.Background(), ProgressPayload{SessionID: sessionID, ProjectID: projectID, Progress: pct})
	}
	pub(10)
	<-started
	pub(25)
	pub(50)
	pub(70)
	close(gate)

	got := c.wait(t, 3)
	want := []int{10, 50, 70}
	for i := range want {
		if got[i].Progress != want[i] {
			t.Fatalf("update %d: want %d got %d (all=%v)", i, want[i], got[i].Progress, got)
		}
	}
	if sub.Dropped() != 1 {
		t.Fatalf("dropped=%d want 1", sub.Dropped())
	}
}

func TestServeSSEStreamsInitialAndUpdates(t *testing.T) {
	hub := NewHub(logger.Nop())
	sessionID, projectID := uuid.New(), uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		initial := ProgressPayload{SessionID: sessionID, ProjectID: projectID, Status: "created", CurrentStep: "Queued"}
		hub.ServeSSE(w, r, SessionKey(sessionID), &initial)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readData := func() SSEMessage {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if strings.HasPrefix(line, "data: ") {
				var msg SSEMessage
				if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &msg); err != nil {
					t.Fatalf("decode: %v", err)
				}
				return msg
			}
		}
	}

	first := readData()
	if first.Data.CurrentStep != "Queued" || first.Event != SSEEventSessionProgress {
		t.Fatalf("initial=%+v", first)
	}
	hub.Publish(context.Background(), ProgressPayload{SessionID: sessionID, ProjectID: projectID, Status: "processing", Progress: 10, CurrentStep: "Preprocessing"})
	second := readData()
	if second.Data.Progress != 10 || second.Channel != SessionKey(sessionID).String() {
		t.Fatalf("update=%+v", second)
	}
}
