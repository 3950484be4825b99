package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

func responsesBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"output": []any{
			map[string]any{
				"type": "message",
				"role": "assistant",
				"content": []any{
					map[string]any{"type": "output_text", "text": text},
				},
			},
		},
	})
	return string(b)
}

func newTestClient(t *testing.T, srv *httptest.Server, retries int) Client {
	t.Helper()
	temp := 0.3
	c, err := New(logger.Nop(), Config{
		APIKey:       "sk-test",
		BaseURL:      srv.URL,
		Model:        "test-model",
		MaxRetries:   retries,
		RetryBackoff: 10 * time.Millisecond,
		Temperature:  &temp,
		Timeout:      5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCompleteSendsPromptAndReturnsText(t *testing.T) {
	var got responsesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = io.WriteString(w, responsesBody(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	out, err := c.Complete(context.Background(), "hello", CompletionOptions{System: "sys", MaxTokens: 123, JSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("out=%q", out)
	}
	if got.Model != "test-model" || got.MaxOutputTokens != 123 {
		t.Fatalf("request model=%q max=%d", got.Model, got.MaxOutputTokens)
	}
	if len(got.Input) != 2 || got.Input[0].Role != "system" || got.Input[1].Content != "hello" {
		t.Fatalf("input=%+v", got.Input)
	}
	if got.Text == nil || got.Text.Format["type"] != "json_object" {
		t.Fatalf("expected json_object format, got %+v", got.Text)
	}
	if got.Temperature == nil || *got.Temperature != 0.3 {
		t.Fatalf("expected default temperature")
	}
}

func TestCompleteRetriesOnServerError(t *testing.T) {
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, responsesBody("second"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 2)
	out, err := c.Complete(context.Background(), "p", CompletionOptions{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "second" || atomic.LoadInt32(&n) != 2 {
		t.Fatalf("out=%q calls=%d", out, n)
	}
}

func TestCompleteDoesNotRetryBadRequest(t *testing.T) {
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&n, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"bad"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3)
	if _, err := c.Complete(context.Background(), "p", CompletionOptions{}); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&n) != 1 {
		t.Fatalf("calls=%d want 1", n)
	}
}

func TestCompleteDropsUnsupportedTemperature(t *testing.T) {
	var withTemp, withoutTemp int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"temperature"`) {
			atomic.AddInt32(&withTemp, 1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"message":"Unsupported parameter: 'temperature' is not supported with this model."}}`)
			return
		}
		atomic.AddInt32(&withoutTemp, 1)
		_, _ = io.WriteString(w, responsesBody("fine"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	for i := 0; i < 2; i++ {
		if _, err := c.Complete(context.Background(), "p", CompletionOptions{}); err != nil {
			t.Fatalf("Complete #%d: %v", i, err)
		}
	}
	if withTemp != 1 || withoutTemp != 2 {
		t.Fatalf("withTemp=%d withoutTemp=%d; second call should skip temperature", withTemp, withoutTemp)
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"index":1,"embedding":[0.5,0.5]},{"index":0,"embedding":[1,0]}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][0] != 0.5 {
		t.Fatalf("vecs=%v", vecs)
	}
}

func TestCompleteJSONStripsFences(t *testing.T) {
	f := NewFake().On(TaskTopics, "```json\n{\"topics\":[{\"broad_topic\":\"Price\"}]}\n```")
	var out struct {
		Topics []struct {
			BroadTopic string `json:"broad_topic"`
		} `json:"topics"`
	}
	if err := CompleteJSON(context.Background(), f, "p", CompletionOptions{Task: TaskTopics}, &out); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if len(out.Topics) != 1 || out.Topics[0].BroadTopic != "Price" {
		t.Fatalf("out=%+v", out)
	}
	if !f.Calls()[0].Opts.JSON {
		t.Fatalf("CompleteJSON should request JSON output")
	}
}

func TestCompleteJSONInvalidIsUpstreamError(t *testing.T) {
	f := NewFake().On(TaskTopics, "sorry, I cannot help with that")
	var out map[string]any
	err := CompleteJSON(context.Background(), f, "p", CompletionOptions{Task: TaskTopics}, &out)
	var up *apierr.UpstreamCompletionError
	if !errors.As(err, &up) {
		t.Fatalf("want UpstreamCompletionError, got %v", err)
	}
	if up.Task != TaskTopics || up.Raw == "" {
		t.Fatalf("error fields: %+v", up)
	}
}

func TestCompleteJSONCancelledPassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out map[string]any
	err := CompleteJSON(ctx, NewFake(), "p", CompletionOptions{Task: TaskTopics}, &out)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestDryRunReturnsSchemaShapedJSON(t *testing.T) {
	c, err := New(logger.Nop(), Config{DryRun: true, EmbedDimension: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var out struct {
		Objectives []any `json:"objectives"`
	}
	if err := CompleteJSON(context.Background(), c, "guide", CompletionOptions{Task: TaskObjectives}, &out); err != nil {
		t.Fatalf("dry-run CompleteJSON: %v", err)
	}
	vecs, err := c.Embed(context.Background(), []string{"x"})
	if err != nil || len(vecs[0]) != 4 {
		t.Fatalf("embed: %v %v", vecs, err)
	}
}
