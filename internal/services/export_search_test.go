package services

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/verbatim-backend/internal/data/repos/testutil"
	types "github.com/yungbote/verbatim-backend/internal/domain"
	domainAnalysis "github.com/yungbote/verbatim-backend/internal/domain/analysis"
	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
	"github.com/yungbote/verbatim-backend/internal/platform/openai"
	"github.com/yungbote/verbatim-backend/internal/platform/qdrant"
)

func TestExportCSVStrategicAndMappings(t *testing.T) {
	f := newFixture(t)
	p := seedReadyProject(t, f)
	transcripts, err := f.set.Transcript.ListByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	vs := testutil.SeedVerbatims(t, f.dbc.Ctx, f.tx, p, transcripts[0], "The checkout flow was confusing, with too many steps")
	_, err = f.set.StrategicAnalysis.Create(f.dbc, []*types.StrategicAnalysis{{
		ProjectID:        p.ID,
		BroadTopic:       "Checkout",
		SubTopic:         "Friction",
		KeyInsights:      "Users abandon at step 3",
		KeyThemes:        domainAnalysis.Strings([]string{"complexity", "trust"}),
		KeyTakeaways:     domainAnalysis.Strings([]string{"cut a step"}),
		SupportingQuotes: domainAnalysis.Strings(nil),
		VerbatimCount:    1,
	}})
	require.NoError(t, err)
	_, err = f.set.QuestionMapping.Create(f.dbc, []*types.QuestionMapping{{
		ProjectID: p.ID, VerbatimID: vs[0].ID, QuestionID: "ID-1", Section: "A", Question: "Why?", Confidence: domainAnalysis.ConfidenceHigh,
	}})
	require.NoError(t, err)
	res, err := f.analysis(t, AnalysisOptions{}).StartAnalysis(f.dbc, p.ID)
	require.NoError(t, err)

	svc := NewExportService(testutil.Logger(t), f.set)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(f.dbc, res.SessionID, "", &buf))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "broad_topic", records[0][0])
	require.Equal(t, []string{"Checkout", "Friction", "1", "Users abandon at step 3", "complexity\ntrust", "cut a step", ""}, records[1])

	buf.Reset()
	require.NoError(t, svc.ExportCSV(f.dbc, res.SessionID, ExportMappings, &buf))
	records, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "The checkout flow was confusing, with too many steps", records[1][4])

	err = svc.ExportCSV(f.dbc, res.SessionID, "xlsx", &buf)
	status, _ := apierr.HTTPStatus(err)
	require.Equal(t, http.StatusBadRequest, status)

	err = svc.ExportCSV(f.dbc, uuid.New(), ExportTopics, &buf)
	status, _ = apierr.HTTPStatus(err)
	require.Equal(t, http.StatusNotFound, status)
}

func TestVerbatimSearchIndexesAndFinds(t *testing.T) {
	f := newFixture(t)
	p := seedReadyProject(t, f)
	other := testutil.SeedProject(t, f.dbc.Ctx, f.tx, "other")
	transcripts, err := f.set.Transcript.ListByProjectID(f.dbc, p.ID)
	require.NoError(t, err)
	vs := testutil.SeedVerbatims(t, f.dbc.Ctx, f.tx, p, transcripts[0],
		"shipping took far too long to arrive",
		"the support team answered within minutes",
	)
	foreign := &types.Verbatim{ID: uuid.New(), ProjectID: other.ID, TranscriptID: uuid.New(), Text: "shipping took far too long to arrive"}

	index := qdrant.NewMemoryIndex()
	svc := NewVerbatimSearch(testutil.Logger(t), f.set.Project, openai.NewFake(), index)
	require.NoError(t, svc.IndexVerbatims(f.dbc.Ctx, append(vs, foreign)))
	require.Equal(t, 3, index.Len())

	hits, err := svc.Similar(f.dbc, p.ID, "shipping took far too long to arrive", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, vs[0].ID.String(), hits[0].ID)
	for _, h := range hits {
		require.Equal(t, p.ID.String(), h.ProjectID)
	}

	_, err = svc.Similar(f.dbc, p.ID, "  ", 5)
	status, _ := apierr.HTTPStatus(err)
	require.Equal(t, http.StatusBadRequest, status)

	disabled := NewVerbatimSearch(testutil.Logger(t), f.set.Project, nil, nil)
	require.NoError(t, disabled.IndexVerbatims(f.dbc.Ctx, vs))
	_, err = disabled.Similar(f.dbc, p.ID, "shipping", 5)
	status, _ = apierr.HTTPStatus(err)
	require.Equal(t, http.StatusServiceUnavailable, status)
}
