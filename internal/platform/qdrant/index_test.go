package qdrant

import (
	"context"
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfig(t *testing.T) {
	good := Config{Host: "localhost", Port: 6334, Collection: "verbatims", VectorDim: 1536}
	require.NoError(t, ValidateConfig(good))

	cases := map[ConfigErrorCode]Config{
		ConfigErrorMissingHost:       {Port: 6334, Collection: "c", VectorDim: 3},
		ConfigErrorInvalidPort:       {Host: "h", Port: 0, Collection: "c", VectorDim: 3},
		ConfigErrorMissingCollection: {Host: "h", Port: 6334, VectorDim: 3},
		ConfigErrorInvalidVectorDim:  {Host: "h", Port: 6334, Collection: "c"},
	}
	for code, cfg := range cases {
		err := ValidateConfig(cfg)
		var ce *ConfigError
		require.True(t, errors.As(err, &ce), "code %s", code)
		assert.Equal(t, code, ce.Code)
	}
}

func TestMemoryIndexScopesByProject(t *testing.T) {
	ctx := context.Background()
	ix := NewMemoryIndex()
	require.NoError(t, ix.Upsert(ctx, []Point{
		{ID: "a", ProjectID: "p1", Text: "price is too high", Vector: []float32{1, 0}},
		{ID: "b", ProjectID: "p1", Text: "love the design", Vector: []float32{0, 1}},
		{ID: "c", ProjectID: "p2", Text: "price again", Vector: []float32{1, 0}},
	}))

	hits, err := ix.Search(ctx, "p1", []float32{0.9, 0.1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)

	hits, err = ix.Search(ctx, "p1", []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestHitFromScored(t *testing.T) {
	sp := &qdrant.ScoredPoint{
		Id:    qdrant.NewID("7f1b6f5e-2f0a-4a3c-9b1e-1f2d3c4b5a69"),
		Score: 0.87,
		Payload: qdrant.NewValueMap(map[string]any{
			"project_id": "p1",
			"text":       "checkout was slow",
			"speaker":    "Respondent",
		}),
	}
	h := hitFromScored(sp)
	assert.Equal(t, "7f1b6f5e-2f0a-4a3c-9b1e-1f2d3c4b5a69", h.ID)
	assert.Equal(t, "checkout was slow", h.Text)
	assert.Equal(t, "Respondent", h.Speaker)
	assert.InDelta(t, 0.87, h.Score, 1e-6)
}
