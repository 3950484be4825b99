package qdrant

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

const (
	payloadProjectID    = "project_id"
	payloadTranscriptID = "transcript_id"
	payloadText         = "text"
	payloadSpeaker      = "speaker"
)

// Point is one embedded verbatim.
type Point struct {
	ID           string
	ProjectID    string
	TranscriptID string
	Text         string
	Speaker      string
	Vector       []float32
}

type Hit struct {
	ID           string  `json:"id"`
	ProjectID    string  `json:"project_id"`
	TranscriptID string  `json:"transcript_id"`
	Text         string  `json:"text"`
	Speaker      string  `json:"speaker,omitempty"`
	Score        float32 `json:"score"`
}

// Index stores verbatim embeddings scoped by project.
type Index interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, projectID string, vector []float32, limit int) ([]Hit, error)
	Close() error
}

type index struct {
	log    *logger.Logger
	cfg    Config
	client *qdrant.Client

	ensureOnce sync.Once
	ensureErr  error
}

func New(log *logger.Logger, cfg Config) (Index, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	l := log.With("service", "QdrantIndex", "collection", cfg.Collection)
	l.Info("Qdrant index initialized", "host", cfg.Host, "port", cfg.Port, "dim", cfg.VectorDim)
	return &index{log: l, cfg: cfg, client: client}, nil
}

func (ix *index) EnsureCollection(ctx context.Context) error {
	ix.ensureOnce.Do(func() {
		existing, err := ix.client.ListCollections(ctx)
		if err != nil {
			ix.ensureErr = fmt.Errorf("failed to list collections: %w", err)
			return
		}
		for _, name := range existing {
			if name == ix.cfg.Collection {
				return
			}
		}
		err = ix.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: ix.cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(ix.cfg.VectorDim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			ix.ensureErr = fmt.Errorf("failed to create collection %s: %w", ix.cfg.Collection, err)
			return
		}
		ix.log.Info("Qdrant collection created")
	})
	return ix.ensureErr
}

func (ix *index) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := ix.EnsureCollection(ctx); err != nil {
		return err
	}
	ps := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != ix.cfg.VectorDim {
			return fmt.Errorf("qdrant upsert: vector dim %d != %d for %s", len(p.Vector), ix.cfg.VectorDim, p.ID)
		}
		ps = append(ps, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadProjectID:    p.ProjectID,
				payloadTranscriptID: p.TranscriptID,
				payloadText:         p.Text,
				payloadSpeaker:      p.Speaker,
			}),
		})
	}
	wait := true
	if _, err := ix.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: ix.cfg.Collection,
		Wait:           &wait,
		Points:         ps,
	}); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (ix *index) Search(ctx context.Context, projectID string, vector []float32, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	if err := ix.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	l := uint64(limit)
	res, err := ix.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: ix.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &l,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadProjectID, projectID)},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	out := make([]Hit, 0, len(res))
	for _, sp := range res {
		out = append(out, hitFromScored(sp))
	}
	return out, nil
}

func (ix *index) Close() error { return ix.client.Close() }

func hitFromScored(sp *qdrant.ScoredPoint) Hit {
	h := Hit{Score: sp.GetScore()}
	if id := sp.GetId(); id != nil {
		h.ID = id.GetUuid()
	}
	p := sp.GetPayload()
	h.ProjectID = p[payloadProjectID].GetStringValue()
	h.TranscriptID = p[payloadTranscriptID].GetStringValue()
	h.Text = p[payloadText].GetStringValue()
	h.Speaker = p[payloadSpeaker].GetStringValue()
	return h
}

// MemoryIndex is a brute-force cosine Index for local runs and tests.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[string]Point
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: map[string]Point{}}
}

func (m *MemoryIndex) EnsureCollection(ctx context.Context) error { return nil }

func (m *MemoryIndex) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = p
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, projectID string, vector []float32, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []Hit
	for _, p := range m.points {
		if p.ProjectID != projectID {
			continue
		}
		hits = append(hits, Hit{
			ID:           p.ID,
			ProjectID:    p.ProjectID,
			TranscriptID: p.TranscriptID,
			Text:         p.Text,
			Speaker:      p.Speaker,
			Score:        cosine(vector, p.Vector),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) Close() error { return nil }

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
