package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/verbatim-backend/internal/data/repos"
	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/platform/qdrant"
)

const embedBatchSize = 64

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// VerbatimSearch keeps the vector index in step with extracted verbatims and
// answers similarity queries scoped to a project.
type VerbatimSearch interface {
	IndexVerbatims(ctx context.Context, rows []*types.Verbatim) error
	Similar(dbc dbctx.Context, projectID uuid.UUID, query string, limit int) ([]qdrant.Hit, error)
}

type verbatimSearch struct {
	log      *logger.Logger
	projects repos.ProjectRepo
	embed    Embedder
	index    qdrant.Index
}

func NewVerbatimSearch(baseLog *logger.Logger, projects repos.ProjectRepo, embed Embedder, index qdrant.Index) VerbatimSearch {
	return &verbatimSearch{
		log:      baseLog.With("service", "VerbatimSearch"),
		projects: projects,
		embed:    embed,
		index:    index,
	}
}

func (s *verbatimSearch) IndexVerbatims(ctx context.Context, rows []*types.Verbatim) error {
	if s.index == nil || s.embed == nil || len(rows) == 0 {
		return nil
	}
	for start := 0; start < len(rows); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		texts := make([]string, len(batch))
		for i, v := range batch {
			texts[i] = v.Text
		}
		vecs, err := s.embed.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed verbatims: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed verbatims: got %d vectors for %d inputs", len(vecs), len(batch))
		}
		points := make([]qdrant.Point, len(batch))
		for i, v := range batch {
			points[i] = qdrant.Point{
				ID:           v.ID.String(),
				ProjectID:    v.ProjectID.String(),
				TranscriptID: v.TranscriptID.String(),
				Text:         v.Text,
				Speaker:      v.Speaker,
				Vector:       vecs[i],
			}
		}
		if err := s.index.Upsert(ctx, points); err != nil {
			return fmt.Errorf("upsert verbatim vectors: %w", err)
		}
	}
	s.log.Debug("Indexed verbatims", "count", len(rows))
	return nil
}

func (s *verbatimSearch) Similar(dbc dbctx.Context, projectID uuid.UUID, query string, limit int) ([]qdrant.Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apierr.New(http.StatusBadRequest, "missing_query", fmt.Errorf("query is required"))
	}
	if s.index == nil || s.embed == nil {
		return nil, apierr.New(http.StatusServiceUnavailable, "search_disabled", fmt.Errorf("verbatim search is not configured"))
	}
	p, err := s.projects.GetByID(dbc, projectID)
	if err != nil {
		return nil, apierr.Persist("load project", err)
	}
	if p == nil {
		return nil, apierr.NotFound("project", projectID)
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	vecs, err := s.embed.Embed(dbc.Ctx, []string{query})
	if err != nil {
		return nil, apierr.New(http.StatusBadGateway, "embedding_failed", err)
	}
	if len(vecs) != 1 {
		return nil, apierr.New(http.StatusBadGateway, "embedding_failed", fmt.Errorf("got %d vectors for 1 input", len(vecs)))
	}
	return s.index.Search(dbc.Ctx, projectID.String(), vecs[0], limit)
}
