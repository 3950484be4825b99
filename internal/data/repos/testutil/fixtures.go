package testutil

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/gorm"

	types "github.com/yungbote/verbatim-backend/internal/domain"
)

func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Project {
	tb.Helper()
	p := &types.Project{Name: name}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return p
}

func SeedGuide(tb testing.TB, ctx context.Context, tx *gorm.DB, p *types.Project, content string) *types.DiscussionGuide {
	tb.Helper()
	g := &types.DiscussionGuide{
		ProjectID: p.ID,
		FileMeta:  types.FileMeta{FileName: "discussion_guide.txt", MimeType: "text/plain", SizeBytes: int64(len(content))},
		Content:   content,
	}
	if err := tx.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed guide: %v", err)
	}
	return g
}

func SeedTranscripts(tb testing.TB, ctx context.Context, tx *gorm.DB, p *types.Project, contents ...string) []*types.Transcript {
	tb.Helper()
	out := make([]*types.Transcript, 0, len(contents))
	for i, c := range contents {
		t := &types.Transcript{
			ProjectID: p.ID,
			FileMeta:  types.FileMeta{FileName: fmt.Sprintf("interview_%02d.txt", i+1), MimeType: "text/plain", SizeBytes: int64(len(c))},
			Content:   c,
		}
		if err := tx.WithContext(ctx).Create(t).Error; err != nil {
			tb.Fatalf("seed transcript: %v", err)
		}
		out = append(out, t)
	}
	return out
}

func SeedVerbatims(tb testing.TB, ctx context.Context, tx *gorm.DB, p *types.Project, t *types.Transcript, texts ...string) []*types.Verbatim {
	tb.Helper()
	out := make([]*types.Verbatim, 0, len(texts))
	for i, text := range texts {
		v := &types.Verbatim{
			ProjectID:    p.ID,
			TranscriptID: t.ID,
			Text:         text,
			Speaker:      "Participant",
			SourceFile:   t.FileName,
			Sequence:     i,
		}
		if err := tx.WithContext(ctx).Create(v).Error; err != nil {
			tb.Fatalf("seed verbatim: %v", err)
		}
		out = append(out, v)
	}
	return out
}
