package app

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/verbatim-backend/internal/observability"
	"github.com/yungbote/verbatim-backend/internal/platform/openai"
	"github.com/yungbote/verbatim-backend/internal/platform/qdrant"
)

type instrumentedIndex struct {
	provider VectorProvider
	inner    qdrant.Index
	metrics  *observability.Metrics
}

func instrumentIndex(provider VectorProvider, inner qdrant.Index, metrics *observability.Metrics) qdrant.Index {
	if inner == nil || metrics == nil {
		return inner
	}
	return &instrumentedIndex{provider: provider, inner: inner, metrics: metrics}
}

func (s *instrumentedIndex) EnsureCollection(ctx context.Context) error {
	start := time.Now()
	err := s.inner.EnsureCollection(ctx)
	s.observe("ensure_collection", err, time.Since(start))
	return err
}

func (s *instrumentedIndex) Upsert(ctx context.Context, points []qdrant.Point) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, points)
	s.observe("upsert", err, time.Since(start))
	return err
}

func (s *instrumentedIndex) Search(ctx context.Context, projectID string, vector []float32, limit int) ([]qdrant.Hit, error) {
	start := time.Now()
	out, err := s.inner.Search(ctx, projectID, vector, limit)
	s.observe("search", err, time.Since(start))
	return out, err
}

func (s *instrumentedIndex) Close() error { return s.inner.Close() }

func (s *instrumentedIndex) observe(operation string, err error, dur time.Duration) {
	s.metrics.ObserveIndex(string(s.provider), operation, outcome(err), dur)
}

// instrumentedAI records latency and outcome per completion task.
type instrumentedAI struct {
	inner   openai.Client
	metrics *observability.Metrics
}

func instrumentAI(inner openai.Client, metrics *observability.Metrics) openai.Client {
	if inner == nil || metrics == nil {
		return inner
	}
	return &instrumentedAI{inner: inner, metrics: metrics}
}

func (c *instrumentedAI) Complete(ctx context.Context, prompt string, opts openai.CompletionOptions) (string, error) {
	start := time.Now()
	out, err := c.inner.Complete(ctx, prompt, opts)
	task := opts.Task
	if task == "" {
		task = "unknown"
	}
	c.metrics.ObserveAI(task, outcome(err), time.Since(start))
	return out, err
}

func (c *instrumentedAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	start := time.Now()
	out, err := c.inner.Embed(ctx, inputs)
	c.metrics.ObserveAI("embed", outcome(err), time.Since(start))
	return out, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
