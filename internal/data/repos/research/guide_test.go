package research

import (
	"context"
	"testing"

	"github.com/yungbote/verbatim-backend/internal/data/repos/testutil"
	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
)

func TestDiscussionGuideRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDiscussionGuideRepo(db, testutil.Logger(t))

	p := testutil.SeedProject(t, ctx, tx, "guide")

	if g, err := repo.GetByProjectID(dbc, p.ID); err != nil || g != nil {
		t.Fatalf("GetByProjectID before upload: g=%v err=%v", g, err)
	}

	first, err := repo.Replace(dbc, &types.DiscussionGuide{ProjectID: p.ID, FileMeta: types.FileMeta{FileName: "v1.txt"}, Content: "v1"})
	if err != nil {
		t.Fatalf("Replace v1: %v", err)
	}
	if first.ObjectiveList() != nil {
		t.Fatalf("objectives should be absent before preprocessing")
	}
	if _, err := repo.Replace(dbc, &types.DiscussionGuide{ProjectID: p.ID, FileMeta: types.FileMeta{FileName: "v2.txt"}, Content: "v2"}); err != nil {
		t.Fatalf("Replace v2: %v", err)
	}
	g, err := repo.GetByProjectID(dbc, p.ID)
	if err != nil || g == nil || g.Content != "v2" {
		t.Fatalf("GetByProjectID: g=%v err=%v", g, err)
	}

	objs := []types.Objective{{ID: "ID-1", Section: "Intro", Question: "How do you shop?"}}
	if err := repo.SetObjectives(dbc, g.ID, objs); err != nil {
		t.Fatalf("SetObjectives: %v", err)
	}
	g, _ = repo.GetByProjectID(dbc, p.ID)
	if got := g.ObjectiveList(); len(got) != 1 || got[0].ID != "ID-1" {
		t.Fatalf("ObjectiveList=%v", got)
	}

	if err := repo.ClearObjectives(dbc, p.ID); err != nil {
		t.Fatalf("ClearObjectives: %v", err)
	}
	g, _ = repo.GetByProjectID(dbc, p.ID)
	if g.ObjectiveList() != nil {
		t.Fatalf("objectives should be cleared")
	}
}

func TestProjectRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	log := testutil.Logger(t)
	projects := NewProjectRepo(db, log)
	transcripts := NewTranscriptRepo(db, log)

	p, err := projects.Create(dbc, &types.Project{Name: "Shopper study"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Status != "created" {
		t.Fatalf("status=%q want created", p.Status)
	}
	if err := projects.UpdateStatus(dbc, p.ID, "uploaded"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, err := projects.GetByID(dbc, p.ID)
	if err != nil || got == nil || got.Status != "uploaded" {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}

	testutil.SeedTranscripts(t, ctx, tx, p, "a", "b")
	if n, err := transcripts.CountByProjectID(dbc, p.ID); err != nil || n != 2 {
		t.Fatalf("CountByProjectID: n=%d err=%v", n, err)
	}

	if err := projects.Delete(dbc, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, err := projects.GetByID(dbc, p.ID); err != nil || got != nil {
		t.Fatalf("after Delete: got=%v err=%v", got, err)
	}
	if n, _ := transcripts.CountByProjectID(dbc, p.ID); n != 0 {
		t.Fatalf("transcripts left after Delete: %d", n)
	}
}
