package analysis

import (
	"encoding/json"
	"sort"
	"time"

	"gorm.io/datatypes"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	domainAnalysis "github.com/yungbote/verbatim-backend/internal/domain/analysis"
)

type topicCount struct {
	BroadTopic string `json:"broadTopic"`
	SubTopic   string `json:"subTopic"`
	Count      int    `json:"count"`
}

type fullReport struct {
	TotalVerbatims   int          `json:"totalVerbatims"`
	TotalTopics      int          `json:"totalTopics"`
	TotalObjectives  int          `json:"totalObjectives"`
	TotalMappings    int          `json:"totalMappings"`
	TotalTranscripts int          `json:"totalTranscripts"`
	Topics           []topicCount `json:"topics"`
	GeneratedAt      time.Time    `json:"generatedAt"`
}

type themeEntry struct {
	BroadTopic    string   `json:"broadTopic"`
	SubTopic      string   `json:"subTopic"`
	Themes        []string `json:"themes"`
	VerbatimCount int      `json:"verbatimCount"`
}

type insightEntry struct {
	BroadTopic string   `json:"broadTopic"`
	SubTopic   string   `json:"subTopic"`
	Insights   string   `json:"insights"`
	Takeaways  []string `json:"takeaways"`
	Quotes     []string `json:"quotes"`
}

type statistics struct {
	VerbatimsPerTranscript map[string]int `json:"verbatimsPerTranscript"`
	MappingsByConfidence   map[string]int `json:"mappingsByConfidence"`
	MappingsByQuestion     map[string]int `json:"mappingsByQuestion"`
	SpeakerCount           int            `json:"speakerCount"`
}

// stageReports writes this run's summary as append-only result rows.
func (p *Pipeline) stageReports(st *runState) error {
	now := time.Now().UTC()
	report := fullReport{
		TotalVerbatims:   len(st.verbatims),
		TotalObjectives:  len(st.objectives),
		TotalMappings:    len(st.mappings),
		TotalTranscripts: len(st.transcripts),
		Topics:           countTopics(st.topics),
		GeneratedAt:      now,
	}
	report.TotalTopics = len(report.Topics)

	rows := []*types.AnalysisResult{}
	add := func(kind string, payload any) error {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		rows = append(rows, &types.AnalysisResult{
			ProjectID:  st.project.ID,
			SessionID:  st.jc.SessionID(),
			ResultType: kind,
			Payload:    datatypes.JSON(raw),
		})
		return nil
	}
	if err := add(domainAnalysis.ResultTypeFullReport, report); err != nil {
		return err
	}
	if err := add(domainAnalysis.ResultTypeStatistics, buildStatistics(st)); err != nil {
		return err
	}
	if len(st.strategic) > 0 {
		themes := make([]themeEntry, 0, len(st.strategic))
		insights := make([]insightEntry, 0, len(st.strategic))
		for _, s := range st.strategic {
			themes = append(themes, themeEntry{
				BroadTopic:    s.BroadTopic,
				SubTopic:      s.SubTopic,
				Themes:        s.Themes(),
				VerbatimCount: s.VerbatimCount,
			})
			insights = append(insights, insightEntry{
				BroadTopic: s.BroadTopic,
				SubTopic:   s.SubTopic,
				Insights:   s.KeyInsights,
				Takeaways:  s.Takeaways(),
				Quotes:     s.Quotes(),
			})
		}
		if err := add(domainAnalysis.ResultTypeThemes, themes); err != nil {
			return err
		}
		if err := add(domainAnalysis.ResultTypeInsights, insights); err != nil {
			return err
		}
	}
	_, err := p.repos.Result.Create(st.dbc(), rows)
	if err := persist(st, "store analysis results", err); err != nil {
		return err
	}
	st.log.Info("Reports generated", "results", len(rows), "total_verbatims", report.TotalVerbatims)
	return nil
}

func countTopics(rows []*types.EmergentTopic) []topicCount {
	type key struct{ broad, sub string }
	counts := map[key]int{}
	for _, r := range rows {
		counts[key{r.BroadTopic, r.SubTopic}]++
	}
	out := make([]topicCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, topicCount{BroadTopic: k.broad, SubTopic: k.sub, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BroadTopic != out[j].BroadTopic {
			return out[i].BroadTopic < out[j].BroadTopic
		}
		return out[i].SubTopic < out[j].SubTopic
	})
	return out
}

func buildStatistics(st *runState) statistics {
	s := statistics{
		VerbatimsPerTranscript: map[string]int{},
		MappingsByConfidence:   map[string]int{},
		MappingsByQuestion:     map[string]int{},
	}
	names := make(map[string]string, len(st.transcripts))
	for _, t := range st.transcripts {
		names[t.ID.String()] = t.FileName
		s.VerbatimsPerTranscript[t.FileName] = 0
	}
	speakers := map[string]bool{}
	for _, v := range st.verbatims {
		s.VerbatimsPerTranscript[names[v.TranscriptID.String()]]++
		if v.Speaker != "" {
			speakers[v.Speaker] = true
		}
	}
	for _, m := range st.mappings {
		s.MappingsByConfidence[m.Confidence]++
		s.MappingsByQuestion[m.QuestionID]++
	}
	s.SpeakerCount = len(speakers)
	return s
}
