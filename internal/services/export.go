package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/verbatim-backend/internal/data/repos"
	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

const (
	ExportStrategic = "strategic"
	ExportMappings  = "mappings"
	ExportTopics    = "topics"
	ExportVerbatims = "verbatims"
)

type ExportService interface {
	// ExportCSV writes one artifact table for the session's project.
	ExportCSV(dbc dbctx.Context, sessionID uuid.UUID, kind string, w io.Writer) error
}

type exportService struct {
	log   *logger.Logger
	repos repos.Set
}

func NewExportService(baseLog *logger.Logger, set repos.Set) ExportService {
	return &exportService{log: baseLog.With("service", "ExportService"), repos: set}
}

func (s *exportService) ExportCSV(dbc dbctx.Context, sessionID uuid.UUID, kind string, w io.Writer) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = ExportStrategic
	}
	session, err := s.repos.Session.GetByID(dbc, sessionID)
	if err != nil {
		return apierr.Persist("load session", err)
	}
	if session == nil {
		return apierr.NotFound("analysis session", sessionID)
	}

	var header []string
	var records [][]string
	switch kind {
	case ExportStrategic:
		header, records, err = s.strategicRows(dbc, session.ProjectID)
	case ExportMappings:
		header, records, err = s.mappingRows(dbc, session.ProjectID)
	case ExportTopics:
		header, records, err = s.topicRows(dbc, session.ProjectID)
	case ExportVerbatims:
		header, records, err = s.verbatimRows(dbc, session.ProjectID)
	default:
		return apierr.New(http.StatusBadRequest, "invalid_export_kind", fmt.Errorf("unknown export kind %q", kind))
	}
	if err != nil {
		return apierr.Persist("load export rows", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	s.log.Debug("CSV export written", "session_id", sessionID, "kind", kind, "rows", len(records))
	return cw.Error()
}

func (s *exportService) strategicRows(dbc dbctx.Context, projectID uuid.UUID) ([]string, [][]string, error) {
	rows, err := s.repos.StrategicAnalysis.ListByProjectID(dbc, projectID)
	if err != nil {
		return nil, nil, err
	}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.BroadTopic,
			r.SubTopic,
			strconv.Itoa(r.VerbatimCount),
			r.KeyInsights,
			joinLines(r.Themes()),
			joinLines(r.Takeaways()),
			joinLines(r.Quotes()),
		})
	}
	return []string{"broad_topic", "sub_topic", "verbatim_count", "key_insights", "key_themes", "key_takeaways", "supporting_quotes"}, out, nil
}

func (s *exportService) mappingRows(dbc dbctx.Context, projectID uuid.UUID) ([]string, [][]string, error) {
	rows, err := s.repos.QuestionMapping.ListByProjectID(dbc, projectID)
	if err != nil {
		return nil, nil, err
	}
	byID, err := s.verbatimIndex(dbc, projectID)
	if err != nil {
		return nil, nil, err
	}
	out := make([][]string, 0, len(rows))
	for _, m := range rows {
		v := byID[m.VerbatimID]
		out = append(out, []string{m.QuestionID, m.Section, m.Question, m.Confidence, verbatimText(v), verbatimSpeaker(v), m.Reasoning})
	}
	return []string{"question_id", "section", "question", "confidence", "verbatim", "speaker", "reasoning"}, out, nil
}

func (s *exportService) topicRows(dbc dbctx.Context, projectID uuid.UUID) ([]string, [][]string, error) {
	rows, err := s.repos.EmergentTopic.ListByProjectID(dbc, projectID)
	if err != nil {
		return nil, nil, err
	}
	byID, err := s.verbatimIndex(dbc, projectID)
	if err != nil {
		return nil, nil, err
	}
	out := make([][]string, 0, len(rows))
	for _, t := range rows {
		v := byID[t.VerbatimID]
		out = append(out, []string{t.BroadTopic, t.SubTopic, verbatimText(v), verbatimSpeaker(v)})
	}
	return []string{"broad_topic", "sub_topic", "verbatim", "speaker"}, out, nil
}

func (s *exportService) verbatimRows(dbc dbctx.Context, projectID uuid.UUID) ([]string, [][]string, error) {
	rows, err := s.repos.Verbatim.ListByProjectID(dbc, projectID)
	if err != nil {
		return nil, nil, err
	}
	out := make([][]string, 0, len(rows))
	for _, v := range rows {
		line := ""
		if v.LineNumber != nil {
			line = strconv.Itoa(*v.LineNumber)
		}
		out = append(out, []string{strconv.Itoa(v.Sequence), v.SourceFile, line, v.Speaker, v.Text})
	}
	return []string{"sequence", "source_file", "line_number", "speaker", "text"}, out, nil
}

func (s *exportService) verbatimIndex(dbc dbctx.Context, projectID uuid.UUID) (map[uuid.UUID]*types.Verbatim, error) {
	rows, err := s.repos.Verbatim.ListByProjectID(dbc, projectID)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*types.Verbatim, len(rows))
	for _, v := range rows {
		out[v.ID] = v
	}
	return out, nil
}

func verbatimText(v *types.Verbatim) string {
	if v == nil {
		return ""
	}
	return v.Text
}

func verbatimSpeaker(v *types.Verbatim) string {
	if v == nil {
		return ""
	}
	return v.Speaker
}

func joinLines(in []string) string { return strings.Join(in, "\n") }
