package services

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/verbatim-backend/internal/data/repos/testutil"
	types "github.com/yungbote/verbatim-backend/internal/domain"
	domainAnalysis "github.com/yungbote/verbatim-backend/internal/domain/analysis"
	"github.com/yungbote/verbatim-backend/internal/domain/research"
	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
)

func TestStartAnalysisPreconditionGateCreatesNoSession(t *testing.T) {
	f := newFixture(t)
	svc := f.analysis(t, AnalysisOptions{})
	p := testutil.SeedProject(t, f.dbc.Ctx, f.tx, "no-guide")
	testutil.SeedTranscripts(t, f.dbc.Ctx, f.tx, p, "Interviewer: hi")

	_, err := svc.StartAnalysis(f.dbc, p.ID)
	var pre *apierr.PreconditionError
	require.True(t, errors.As(err, &pre), "err=%v", err)
	require.Equal(t, []string{"discussion_guide"}, pre.Missing)

	n, err := f.set.Session.CountByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, f.dispatch.dispatched)

	status, code := apierr.HTTPStatus(err)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "precondition_failed", code)
}

func TestStartAnalysisRejectsBlankGuideAndNoTranscripts(t *testing.T) {
	f := newFixture(t)
	svc := f.analysis(t, AnalysisOptions{})
	p := testutil.SeedProject(t, f.dbc.Ctx, f.tx, "blank")
	testutil.SeedGuide(t, f.dbc.Ctx, f.tx, p, "   \n")

	_, err := svc.StartAnalysis(f.dbc, p.ID)
	var pre *apierr.PreconditionError
	require.True(t, errors.As(err, &pre), "err=%v", err)
	require.Equal(t, []string{"discussion_guide", "transcripts"}, pre.Missing)

	_, err = svc.StartAnalysis(f.dbc, uuid.New())
	require.True(t, errors.Is(err, apierr.ErrNotFound), "err=%v", err)
}

func TestStartAnalysisCreatesAndDispatches(t *testing.T) {
	f := newFixture(t)
	svc := f.analysis(t, AnalysisOptions{})
	p := seedReadyProject(t, f)

	res, err := svc.StartAnalysis(f.dbc, p.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusCreated, res.Status)
	require.Equal(t, []uuid.UUID{res.SessionID}, f.dispatch.dispatched)

	project, err := f.set.Project.GetByID(f.dbc, p.ID)
	require.NoError(t, err)
	require.Equal(t, research.ProjectStatusProcessing, project.Status)

	_, err = svc.StartAnalysis(f.dbc, p.ID)
	require.True(t, errors.Is(err, apierr.ErrActiveSession), "second start: err=%v", err)

	progress, err := svc.GetProgress(f.dbc, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, StepQueued, progress.CurrentStep)
	require.Equal(t, 0, progress.Progress)
	require.Equal(t, 300, *progress.EstimatedRemaining)

	_, err = svc.GetProgress(f.dbc, uuid.New())
	require.True(t, errors.Is(err, apierr.ErrNotFound))
}

func TestRetryAnalysisOnlyFromTerminal(t *testing.T) {
	f := newFixture(t)
	svc := f.analysis(t, AnalysisOptions{})
	p := seedReadyProject(t, f)
	res, err := svc.StartAnalysis(f.dbc, p.ID)
	require.NoError(t, err)

	_, err = svc.RetryAnalysis(f.dbc, res.SessionID)
	require.True(t, errors.Is(err, apierr.ErrInvalidState), "retry of active: err=%v", err)

	_, err = f.tracker.UpdateProgress(f.dbc, res.SessionID, 50, "Mapping", nil)
	require.NoError(t, err)
	_, err = f.tracker.Fail(f.dbc, res.SessionID, "upstream completion failed")
	require.NoError(t, err)

	reset, err := svc.RetryAnalysis(f.dbc, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, 0, reset.Progress)
	require.Equal(t, StepRestarting, reset.CurrentStep)
	require.Equal(t, domainAnalysis.SessionStatusCreated, reset.Status)
	require.Len(t, f.dispatch.dispatched, 2)

	_, err = f.tracker.Complete(f.dbc, res.SessionID)
	require.NoError(t, err)
	_, err = svc.RetryAnalysis(f.dbc, res.SessionID)
	require.True(t, errors.Is(err, apierr.ErrInvalidState), "retry of completed: err=%v", err)

	lenient := f.analysis(t, AnalysisOptions{AllowRetryCompleted: true})
	_, err = lenient.RetryAnalysis(f.dbc, res.SessionID)
	require.NoError(t, err)
}

func TestRetryAnalysisReplacePolicyClearsArtifacts(t *testing.T) {
	f := newFixture(t)
	svc := f.analysis(t, AnalysisOptions{RetryPolicy: "REPLACE"})
	p := seedReadyProject(t, f)
	transcripts, err := f.set.Transcript.ListByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	vs := testutil.SeedVerbatims(t, f.dbc.Ctx, f.tx, p, transcripts[0], "one quote long enough to keep around here", "another quote")
	_, err = f.set.EmergentTopic.Create(f.dbc, []*types.EmergentTopic{{ProjectID: p.ID, VerbatimID: vs[0].ID, BroadTopic: "Price", SubTopic: "Too high"}})
	require.NoError(t, err)
	guide, err := f.set.Guide.GetByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	require.NoError(t, f.set.Guide.SetObjectives(f.dbc, guide.ID, []types.Objective{{ID: "ID-1", Question: "Why?"}}))

	res, err := svc.StartAnalysis(f.dbc, p.ID)
	require.NoError(t, err)
	_, err = f.tracker.Fail(f.dbc, res.SessionID, "boom")
	require.NoError(t, err)
	_, err = f.set.Result.Create(f.dbc, []*types.AnalysisResult{{
		ProjectID: p.ID, SessionID: res.SessionID, ResultType: domainAnalysis.ResultTypeStatistics, Payload: datatypes.JSON(`{}`),
	}})
	require.NoError(t, err)

	_, err = svc.RetryAnalysis(f.dbc, res.SessionID)
	require.NoError(t, err)

	n, err := f.set.Verbatim.CountByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	require.Zero(t, n)
	topics, err := f.set.EmergentTopic.ListByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	require.Empty(t, topics)
	guide, err = f.set.Guide.GetByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	require.Empty(t, guide.ObjectiveList())

	results, err := svc.GetResults(f.dbc, res.SessionID, "")
	require.NoError(t, err)
	require.Len(t, results, 1, "results are append-only under replace")
}

func TestRetryAnalysisRejectedWhileActiveKeepsArtifacts(t *testing.T) {
	f := newFixture(t)
	svc := f.analysis(t, AnalysisOptions{RetryPolicy: RetryPolicyReplace})
	p := seedReadyProject(t, f)
	guide, err := f.set.Guide.GetByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	require.NoError(t, f.set.Guide.SetObjectives(f.dbc, guide.ID, []types.Objective{{ID: "ID-1", Question: "Why?"}}))

	first, err := svc.StartAnalysis(f.dbc, p.ID)
	require.NoError(t, err)
	_, err = f.tracker.Fail(f.dbc, first.SessionID, "boom")
	require.NoError(t, err)

	second, err := svc.StartAnalysis(f.dbc, p.ID)
	require.NoError(t, err)
	transcripts, err := f.set.Transcript.ListByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	testutil.SeedVerbatims(t, f.dbc.Ctx, f.tx, p, transcripts[0], "a quote the running session already extracted")

	_, err = svc.RetryAnalysis(f.dbc, first.SessionID)
	if !errors.Is(err, apierr.ErrActiveSession) {
		t.Fatalf("want ErrActiveSession, got %v", err)
	}

	n, err := f.set.Verbatim.CountByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n, "rejected retry must not clear the running session's verbatims")
	guide, err = f.set.Guide.GetByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	require.Len(t, guide.ObjectiveList(), 1)

	old, err := f.tracker.GetSession(f.dbc, first.SessionID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusFailed, old.Status)
	require.Equal(t, "boom", old.ErrorMessage)
	active, err := f.tracker.GetSession(f.dbc, second.SessionID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusCreated, active.Status)
}

func TestRetryAnalysisAppendPolicyKeepsArtifacts(t *testing.T) {
	f := newFixture(t)
	svc := f.analysis(t, AnalysisOptions{})
	p := seedReadyProject(t, f)
	transcripts, err := f.set.Transcript.ListByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	testutil.SeedVerbatims(t, f.dbc.Ctx, f.tx, p, transcripts[0], "kept quote")

	res, err := svc.StartAnalysis(f.dbc, p.ID)
	require.NoError(t, err)
	_, err = f.tracker.Fail(f.dbc, res.SessionID, "boom")
	require.NoError(t, err)
	_, err = svc.RetryAnalysis(f.dbc, res.SessionID)
	require.NoError(t, err)

	n, err := f.set.Verbatim.CountByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestCancelAnalysis(t *testing.T) {
	f := newFixture(t)
	svc := f.analysis(t, AnalysisOptions{})
	p := seedReadyProject(t, f)
	res, err := svc.StartAnalysis(f.dbc, p.ID)
	require.NoError(t, err)
	f.dispatch.running[res.SessionID] = true

	s, err := svc.CancelAnalysis(f.dbc, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusFailed, s.Status)
	require.Equal(t, CancelledMessage, s.ErrorMessage)
	require.NotNil(t, s.CompletedAt)
	require.Equal(t, []uuid.UUID{res.SessionID}, f.dispatch.cancelled)

	project, err := f.set.Project.GetByID(f.dbc, p.ID)
	require.NoError(t, err)
	require.Equal(t, research.ProjectStatusFailed, project.Status)

	_, err = svc.CancelAnalysis(f.dbc, res.SessionID)
	require.True(t, errors.Is(err, apierr.ErrInvalidState), "err=%v", err)
}

func TestGetResultsFiltersByType(t *testing.T) {
	f := newFixture(t)
	svc := f.analysis(t, AnalysisOptions{})
	p := seedReadyProject(t, f)
	res, err := svc.StartAnalysis(f.dbc, p.ID)
	require.NoError(t, err)
	_, err = f.set.Result.Create(f.dbc, []*types.AnalysisResult{
		{ProjectID: p.ID, SessionID: res.SessionID, ResultType: domainAnalysis.ResultTypeFullReport, Payload: datatypes.JSON(`{"totalVerbatims":0}`)},
		{ProjectID: p.ID, SessionID: res.SessionID, ResultType: domainAnalysis.ResultTypeThemes, Payload: datatypes.JSON(`[]`)},
	})
	require.NoError(t, err)

	all, err := svc.GetResults(f.dbc, res.SessionID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	reports, err := svc.GetResults(f.dbc, res.SessionID, domainAnalysis.ResultTypeFullReport)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	_, err = svc.GetResults(f.dbc, res.SessionID, "pie_chart")
	status, _ := apierr.HTTPStatus(err)
	require.Equal(t, http.StatusBadRequest, status)

	_, err = svc.GetResults(f.dbc, uuid.New(), "")
	require.True(t, errors.Is(err, apierr.ErrNotFound))
}

func seedReadyProject(t *testing.T, f *fixture) *types.Project {
	t.Helper()
	p := testutil.SeedProject(t, f.dbc.Ctx, f.tx, "ready")
	testutil.SeedGuide(t, f.dbc.Ctx, f.tx, p, "Section A\n1. Why did you choose us?")
	testutil.SeedTranscripts(t, f.dbc.Ctx, f.tx, p, "Interviewer: Why?\nParticipant: Because the price was right.")
	return p
}
