package services

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/verbatim-backend/internal/data/repos/testutil"
	"github.com/yungbote/verbatim-backend/internal/domain/research"
	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
	"github.com/yungbote/verbatim-backend/internal/platform/gcp"
	"github.com/yungbote/verbatim-backend/internal/platform/textextract"
)

func newProjectService(t *testing.T, f *fixture) (ProjectService, *gcp.MemoryStore) {
	t.Helper()
	log := testutil.Logger(t)
	store := gcp.NewMemoryStore()
	return NewProjectService(f.db, log, f.set, store, textextract.NewExtractor(log, nil, nil)), store
}

func TestProjectUploadFlow(t *testing.T) {
	f := newFixture(t)
	svc, store := newProjectService(t, f)

	p, err := svc.CreateProject(f.dbc, "  Brand study ", "Q3 interviews")
	require.NoError(t, err)
	require.Equal(t, "Brand study", p.Name)
	require.Equal(t, research.ProjectStatusCreated, p.Status)
	require.True(t, p.Config().IncludeQuestionMapping)

	guide, err := svc.UploadGuide(f.dbc, p.ID, Upload{FileName: "guide.txt", MimeType: "text/plain", Data: []byte("\ufeffSection A\r\n1. Why?\r\n")})
	require.NoError(t, err)
	require.Equal(t, "Section A\n1. Why?\n", guide.Content)
	require.NotEmpty(t, guide.StorageKey)

	got, err := svc.GetProject(f.dbc, p.ID)
	require.NoError(t, err)
	require.Equal(t, research.ProjectStatusCreated, got.Status, "guide alone does not complete the upload step")

	ts, err := svc.UploadTranscripts(f.dbc, p.ID, []Upload{
		{FileName: "p1.txt", MimeType: "text/plain", Data: []byte("Participant: I liked it.")},
		{FileName: "p2.md", Data: []byte("Participant: Too expensive.")},
	})
	require.NoError(t, err)
	require.Len(t, ts, 2)

	got, err = svc.GetProject(f.dbc, p.ID)
	require.NoError(t, err)
	require.Equal(t, research.ProjectStatusUploaded, got.Status)

	rc, err := store.Get(f.dbc.Ctx, ts[0].StorageKey)
	require.NoError(t, err)
	raw, _ := io.ReadAll(rc)
	_ = rc.Close()
	require.Equal(t, "Participant: I liked it.", string(raw))

	listed, err := svc.ListTranscripts(f.dbc, p.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	cfg := research.ProjectConfiguration{IncludeQuestionMapping: true, ExportCSV: true}
	configured, err := svc.Configure(f.dbc, p.ID, cfg)
	require.NoError(t, err)
	require.Equal(t, research.ProjectStatusConfigured, configured.Status)
	require.Equal(t, "standard", configured.Config().Template)
	require.False(t, configured.Config().IncludeEmergentTopics)

	require.NoError(t, svc.DeleteProject(f.dbc, p.ID))
	_, err = svc.GetProject(f.dbc, p.ID)
	require.True(t, errors.Is(err, apierr.ErrNotFound))
	keys, err := store.List(f.dbc.Ctx, "projects/"+p.ID.String())
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestProjectUploadRejections(t *testing.T) {
	f := newFixture(t)
	svc, _ := newProjectService(t, f)

	_, err := svc.CreateProject(f.dbc, " ", "")
	status, code := apierr.HTTPStatus(err)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "missing_name", code)

	p, err := svc.CreateProject(f.dbc, "Rejections", "")
	require.NoError(t, err)

	_, err = svc.UploadGuide(f.dbc, p.ID, Upload{FileName: "guide.pdf", MimeType: "application/pdf", Data: []byte("%PDF")})
	status, code = apierr.HTTPStatus(err)
	require.Equal(t, http.StatusUnsupportedMediaType, status, "document reader not configured")
	require.Equal(t, "unsupported_file", code)

	_, err = svc.UploadTranscripts(f.dbc, p.ID, []Upload{{FileName: "blank.txt", Data: []byte("  \n ")}})
	status, _ = apierr.HTTPStatus(err)
	require.Equal(t, http.StatusBadRequest, status)

	_, err = svc.UploadTranscripts(f.dbc, p.ID, nil)
	status, _ = apierr.HTTPStatus(err)
	require.Equal(t, http.StatusBadRequest, status)

	_, err = svc.GetGuide(f.dbc, p.ID)
	require.True(t, errors.Is(err, apierr.ErrNotFound))
}

func TestProjectUploadBlockedWhileAnalysisActive(t *testing.T) {
	f := newFixture(t)
	svc, _ := newProjectService(t, f)
	p := seedReadyProject(t, f)
	_, err := f.analysis(t, AnalysisOptions{}).StartAnalysis(f.dbc, p.ID)
	require.NoError(t, err)

	_, err = svc.UploadTranscripts(f.dbc, p.ID, []Upload{{FileName: "late.txt", Data: []byte("Participant: late")}})
	require.True(t, errors.Is(err, apierr.ErrActiveSession), "err=%v", err)
	err = svc.DeleteProject(f.dbc, p.ID)
	require.True(t, errors.Is(err, apierr.ErrActiveSession), "err=%v", err)
	require.True(t, strings.Contains(err.Error(), p.ID.String()))
}
