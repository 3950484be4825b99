package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/verbatim-backend/internal/data/repos"
	"github.com/yungbote/verbatim-backend/internal/data/repos/testutil"
	types "github.com/yungbote/verbatim-backend/internal/domain"
	domainAnalysis "github.com/yungbote/verbatim-backend/internal/domain/analysis"
	"github.com/yungbote/verbatim-backend/internal/domain/research"
	jobrt "github.com/yungbote/verbatim-backend/internal/jobs/runtime"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/openai"
	"github.com/yungbote/verbatim-backend/internal/platform/tokens"
	"github.com/yungbote/verbatim-backend/internal/realtime"
	"github.com/yungbote/verbatim-backend/internal/services"
)

type harness struct {
	db      *gorm.DB
	set     repos.Set
	rec     *realtime.Recorder
	tracker services.SessionTracker
	ai      *openai.Fake
	ctx     context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	rec := realtime.NewRecorder()
	return &harness{
		db:      db,
		set:     set,
		rec:     rec,
		tracker: services.NewSessionTracker(log, set.Session, set.Project, rec, 300),
		ai:      scriptedFake(),
		ctx:     context.Background(),
	}
}

func (h *harness) dbc() dbctx.Context { return dbctx.Context{Ctx: h.ctx} }

func (h *harness) pipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	counter, err := tokens.NewCounter("")
	require.NoError(t, err)
	return New(testutil.Logger(t), h.set, h.ai, services.FixedWeights{}, nil, counter, cfg)
}

func (h *harness) seedProject(t *testing.T, transcripts int) *types.Project {
	t.Helper()
	p := testutil.SeedProject(t, h.ctx, h.db, fmt.Sprintf("study-%d", transcripts))
	testutil.SeedGuide(t, h.ctx, h.db, p, "Intro\n1. Why did you choose us?\nPrice\n2. How do you feel about the price?")
	contents := make([]string, transcripts)
	for i := range contents {
		contents[i] = fmt.Sprintf("Interviewer: Tell me about it.\nParticipant %d: It was good and the price was fine for what we needed.", i+1)
	}
	testutil.SeedTranscripts(t, h.ctx, h.db, p, contents...)
	return p
}

func (h *harness) run(t *testing.T, p *Pipeline, session *types.AnalysisSession, ctx context.Context) {
	t.Helper()
	jc := jobrt.NewContext(ctx, h.db, session, h.tracker, h.set.Project, testutil.Logger(t))
	require.NoError(t, p.Run(jc))
	require.True(t, jc.Finished(), "run must end in a terminal state")
}

func (h *harness) start(t *testing.T, p *types.Project) *types.AnalysisSession {
	t.Helper()
	s, err := h.tracker.CreateSession(h.dbc(), p.ID)
	require.NoError(t, err)
	return s
}

var fileInPrompt = regexp.MustCompile(`Transcript \(([^)]+)\)`)

// scriptedFake answers every stage: two objectives, four long quotes plus one
// short quote per transcript, mixed-confidence mappings, two topics.
func scriptedFake() *openai.Fake {
	f := openai.NewFake()
	f.On(openai.TaskObjectives, `{"objectives":[{"section":"Intro","question":"Why did you choose us?"},{"section":"Price","question":"How do you feel about the price?"}]}`)
	f.OnFunc(openai.TaskVerbatims, func(prompt string, n int) (string, error) {
		file := "unknown"
		if m := fileInPrompt.FindStringSubmatch(prompt); m != nil {
			file = m[1]
		}
		var quotes []string
		for i := 0; i < 4; i++ {
			quotes = append(quotes, fmt.Sprintf(`{"text":"quote %d from %s is long enough to pass the minimum word filter easily","speaker":"P-%s","line_number":%d}`, i, file, file, i+2))
		}
		quotes = append(quotes, `{"text":"too short to keep","speaker":"P"}`)
		return `{"verbatims":[` + strings.Join(quotes, ",") + `]}`, nil
	})
	f.OnFunc(openai.TaskMapping, func(prompt string, n int) (string, error) {
		size := 10
		if n == 1 {
			size = 2
		}
		var items []string
		for i := 0; i < size; i++ {
			conf := "High"
			if n == 0 && i%3 == 0 {
				conf = "Low"
			}
			items = append(items, fmt.Sprintf(`{"verbatim_index":%d,"best_fit_question_id":"ID-1","confidence":%q,"reasoning":"fits"}`, i, conf))
		}
		items = append(items,
			`{"verbatim_index":1,"best_fit_question_id":"ID-99","confidence":"High"}`,
			`{"verbatim_index":50,"best_fit_question_id":"ID-2","confidence":"High"}`,
		)
		return `{"mappings":[` + strings.Join(items, ",") + `]}`, nil
	})
	f.On(openai.TaskTopics, `{"topics":[{"broad_topic":"Pricing","sub_topic":"Value","verbatim_indices":[0,1,2,3,99]},{"broad_topic":"Service","sub_topic":"Support","verbatim_indices":[4,5,-1]}]}`)
	f.On(openai.TaskStrategic, `{"key_insights":"Customers value price.","key_themes":["value","trust"],"key_takeaways":["keep prices stable","explain tiers"],"supporting_quotes":["P1: good price","P2: fair"]}`)
	return f
}

func firstCall(calls []openai.FakeCall, task string) int {
	for i, c := range calls {
		if c.Task == task {
			return i
		}
	}
	return -1
}

func TestRunTwelveVerbatims(t *testing.T) {
	h := newHarness(t)
	p := h.seedProject(t, 3)
	session := h.start(t, p)

	h.run(t, h.pipeline(t, Config{}), session, h.ctx)

	got, err := h.tracker.GetSession(h.dbc(), session.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusCompleted, got.Status)
	require.Equal(t, 100, got.Progress)
	require.NotNil(t, got.CompletedAt)

	project, err := h.set.Project.GetByID(h.dbc(), p.ID)
	require.NoError(t, err)
	require.Equal(t, research.ProjectStatusCompleted, project.Status)

	verbatims, err := h.set.Verbatim.ListByProjectID(h.dbc(), p.ID)
	require.NoError(t, err)
	require.Len(t, verbatims, 12)
	for i, v := range verbatims {
		require.Equal(t, i, v.Sequence)
		require.GreaterOrEqual(t, len(strings.Fields(v.Text)), 10)
	}

	guide, err := h.set.Guide.GetByProjectID(h.dbc(), p.ID)
	require.NoError(t, err)
	objectives := guide.ObjectiveList()
	require.Len(t, objectives, 2)
	require.Equal(t, "ID-1", objectives[0].ID)
	require.Equal(t, "ID-2", objectives[1].ID)

	mappings, err := h.set.QuestionMapping.ListByProjectID(h.dbc(), p.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 8)
	for _, m := range mappings {
		require.NotEqual(t, domainAnalysis.ConfidenceLow, m.Confidence)
		require.Equal(t, "ID-1", m.QuestionID)
	}

	pairs, err := h.set.EmergentTopic.ListDistinctPairs(h.dbc(), p.ID)
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	strategic, err := h.set.StrategicAnalysis.ListByProjectID(h.dbc(), p.ID)
	require.NoError(t, err)
	require.Len(t, strategic, 2)
	counts := map[string]int{}
	for _, s := range strategic {
		counts[s.SubTopic] = s.VerbatimCount
		require.Equal(t, []string{"value", "trust"}, s.Themes())
	}
	require.Equal(t, map[string]int{"Value": 4, "Support": 2}, counts)

	reports, err := h.set.Result.ListBySessionID(h.dbc(), session.ID, domainAnalysis.ResultTypeFullReport)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	var report fullReport
	require.NoError(t, json.Unmarshal(reports[0].Payload, &report))
	require.Equal(t, 12, report.TotalVerbatims)
	require.Equal(t, 2, report.TotalTopics)
	require.Equal(t, 2, report.TotalObjectives)
	require.Equal(t, 8, report.TotalMappings)
	require.Equal(t, 3, report.TotalTranscripts)

	all, err := h.set.Result.ListBySessionID(h.dbc(), session.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestRunStageOrderAndMonotonicProgress(t *testing.T) {
	h := newHarness(t)
	p := h.seedProject(t, 2)
	session := h.start(t, p)

	h.run(t, h.pipeline(t, Config{TranscriptConcurrency: 2}), session, h.ctx)

	calls := h.ai.Calls()
	order := []string{openai.TaskObjectives, openai.TaskVerbatims, openai.TaskMapping, openai.TaskTopics, openai.TaskStrategic}
	prev := -1
	for _, task := range order {
		idx := firstCall(calls, task)
		require.Greater(t, idx, prev, "task %s out of order", task)
		prev = idx
	}
	require.Equal(t, 2, h.ai.CallCount(openai.TaskVerbatims))
	require.Equal(t, 1, h.ai.CallCount(openai.TaskMapping))

	progress := h.rec.Progress(session.ID)
	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		require.GreaterOrEqual(t, progress[i], progress[i-1], "progress went backwards: %v", progress)
	}
	require.Equal(t, 0, progress[0])
	require.Equal(t, 100, progress[len(progress)-1])
	for _, want := range []int{10, 25, 50, 70, 85, 95} {
		require.Contains(t, progress, want)
	}

	for _, c := range calls {
		require.True(t, c.Opts.JSON)
		require.Contains(t, c.Opts.System, "VERBATIM_ANALYST_STYLE_V1")
	}
}

func TestRunReclaimedStaleSessionKeepsProgress(t *testing.T) {
	h := newHarness(t)
	p := h.seedProject(t, 1)
	session := h.start(t, p)
	_, err := h.tracker.UpdateProgress(h.dbc(), session.ID, 50, services.StageMappingQuestions.Label(), nil)
	require.NoError(t, err)
	require.NoError(t, h.db.Model(&types.AnalysisSession{}).
		Where("id = ?", session.ID).
		UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)

	claimed, err := h.set.Session.ClaimNextRunnable(h.dbc(), 10*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, session.ID, claimed.ID)
	require.Equal(t, 50, claimed.Progress)

	h.run(t, h.pipeline(t, Config{}), claimed, h.ctx)

	progress := h.rec.Progress(session.ID)
	for i := 1; i < len(progress); i++ {
		require.GreaterOrEqual(t, progress[i], progress[i-1], "progress went backwards: %v", progress)
	}
	require.Equal(t, 100, progress[len(progress)-1])

	got, err := h.tracker.GetSession(h.dbc(), session.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusCompleted, got.Status)
}

func TestResumeFloor(t *testing.T) {
	cases := map[int]int{-5: 0, 0: 0, 50: 50, 100: 99}
	for in, want := range cases {
		if got := resumeFloor(in); got != want {
			t.Fatalf("resumeFloor(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestRunInvalidTopicsJSONFailsAtFifty(t *testing.T) {
	h := newHarness(t)
	h.ai.On(openai.TaskTopics, "I could not find any topics, sorry.")
	p := h.seedProject(t, 1)
	session := h.start(t, p)

	h.run(t, h.pipeline(t, Config{}), session, h.ctx)

	got, err := h.tracker.GetSession(h.dbc(), session.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusFailed, got.Status)
	require.Equal(t, 50, got.Progress)
	require.Contains(t, got.ErrorMessage, "upstream completion failed")

	project, err := h.set.Project.GetByID(h.dbc(), p.ID)
	require.NoError(t, err)
	require.Equal(t, research.ProjectStatusFailed, project.Status)

	require.Zero(t, h.ai.CallCount(openai.TaskStrategic))
	reports, err := h.set.Result.ListBySessionID(h.dbc(), session.ID, "")
	require.NoError(t, err)
	require.Empty(t, reports)

	// Earlier stages are not rolled back.
	verbatims, err := h.set.Verbatim.CountByProjectID(h.dbc(), p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4, verbatims)
}

func TestRunRetryAppendsSecondFullReport(t *testing.T) {
	h := newHarness(t)
	p := h.seedProject(t, 1)
	session := h.start(t, p)
	pl := h.pipeline(t, Config{})

	h.run(t, pl, session, h.ctx)

	reset, err := h.tracker.Reset(h.dbc(), session.ID, services.StepRestarting)
	require.NoError(t, err)
	require.Equal(t, 1, reset.Attempts)
	h.run(t, pl, reset, h.ctx)

	got, err := h.tracker.GetSession(h.dbc(), session.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusCompleted, got.Status)

	reports, err := h.set.Result.ListBySessionID(h.dbc(), session.ID, domainAnalysis.ResultTypeFullReport)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	verbatims, err := h.set.Verbatim.ListByProjectID(h.dbc(), p.ID)
	require.NoError(t, err)
	require.Len(t, verbatims, 8)
	require.Equal(t, 7, verbatims[len(verbatims)-1].Sequence)
}

func TestRunCancelledMidStage(t *testing.T) {
	h := newHarness(t)
	p := h.seedProject(t, 1)
	session := h.start(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.ai.Before = func(task string) {
		if task == openai.TaskMapping {
			cancel()
		}
	}

	h.run(t, h.pipeline(t, Config{}), session, ctx)

	got, err := h.tracker.GetSession(h.dbc(), session.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusFailed, got.Status)
	require.Equal(t, services.CancelledMessage, got.ErrorMessage)
	require.Zero(t, h.ai.CallCount(openai.TaskTopics))

	project, err := h.set.Project.GetByID(h.dbc(), p.ID)
	require.NoError(t, err)
	require.Equal(t, research.ProjectStatusFailed, project.Status)
}

func TestRunStopsWhenSessionFailedElsewhere(t *testing.T) {
	h := newHarness(t)
	p := h.seedProject(t, 1)
	session := h.start(t, p)
	h.ai.Before = func(task string) {
		if task == openai.TaskTopics {
			_, _ = h.tracker.Fail(h.dbc(), session.ID, services.CancelledMessage)
		}
	}

	h.run(t, h.pipeline(t, Config{}), session, h.ctx)

	got, err := h.tracker.GetSession(h.dbc(), session.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusFailed, got.Status)
	require.Zero(t, h.ai.CallCount(openai.TaskStrategic))
}

func TestRunSkipsMappingWithoutObjectives(t *testing.T) {
	h := newHarness(t)
	h.ai.On(openai.TaskObjectives, `{"objectives":[]}`)
	p := h.seedProject(t, 1)
	session := h.start(t, p)

	h.run(t, h.pipeline(t, Config{}), session, h.ctx)

	require.Zero(t, h.ai.CallCount(openai.TaskMapping))
	n, err := h.set.QuestionMapping.CountByProjectID(h.dbc(), p.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	got, err := h.tracker.GetSession(h.dbc(), session.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusCompleted, got.Status)
}

func TestRunSurvivesOneFailedTranscript(t *testing.T) {
	h := newHarness(t)
	h.ai.OnFunc(openai.TaskVerbatims, func(prompt string, n int) (string, error) {
		if strings.Contains(prompt, "interview_02.txt") {
			return "", fmt.Errorf("upstream timeout")
		}
		return `{"verbatims":[{"text":"this quote is plenty long enough to keep after the word filter","speaker":"P"}]}`, nil
	})
	p := h.seedProject(t, 2)
	session := h.start(t, p)

	h.run(t, h.pipeline(t, Config{}), session, h.ctx)

	got, err := h.tracker.GetSession(h.dbc(), session.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusCompleted, got.Status)
	n, err := h.set.Verbatim.CountByProjectID(h.dbc(), p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestRunFailsWhenEveryTranscriptFails(t *testing.T) {
	h := newHarness(t)
	h.ai.OnFunc(openai.TaskVerbatims, func(string, int) (string, error) {
		return "", fmt.Errorf("upstream timeout")
	})
	p := h.seedProject(t, 2)
	session := h.start(t, p)

	h.run(t, h.pipeline(t, Config{}), session, h.ctx)

	got, err := h.tracker.GetSession(h.dbc(), session.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusFailed, got.Status)
	require.Contains(t, got.ErrorMessage, "upstream timeout")
	require.Equal(t, 10, got.Progress)
}

func TestNormalizeObjectives(t *testing.T) {
	in := []types.Objective{
		{ID: "Q1", Question: "First?"},
		{Question: "  "},
		{Question: "Second?"},
		{ID: "Q1", Question: "Third?"},
	}
	out := normalizeObjectives(in)
	require.Len(t, out, 3)
	require.Equal(t, "Q1", out[0].ID)
	require.Equal(t, "ID-2", out[1].ID)
	require.Equal(t, "ID-3", out[2].ID)
}

func TestMappingRowsFilters(t *testing.T) {
	batch := []*types.Verbatim{{Text: "a"}, {Text: "b"}}
	byID := map[string]types.Objective{"ID-1": {ID: "ID-1", Section: "S", Question: "Q?"}}
	rows := mappingRows(batch[0].ProjectID, batch, byID, []mappingItem{
		{VerbatimIndex: 0, QuestionID: "ID-1", Confidence: "high"},
		{VerbatimIndex: 0, QuestionID: "ID-1", Confidence: "Medium"},
		{VerbatimIndex: 1, QuestionID: "ID-1", Confidence: "Low"},
		{VerbatimIndex: 1, QuestionID: "ID-1", Confidence: "maybe"},
		{VerbatimIndex: 1, QuestionID: "ID-7", Confidence: "High"},
		{VerbatimIndex: 2, QuestionID: "ID-1", Confidence: "High"},
	})
	require.Len(t, rows, 1)
	require.Equal(t, domainAnalysis.ConfidenceHigh, rows[0].Confidence)
	require.Equal(t, "Q?", rows[0].Question)
}
