package analysis

import (
	"strings"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	domainAnalysis "github.com/yungbote/verbatim-backend/internal/domain/analysis"
	"github.com/yungbote/verbatim-backend/internal/platform/openai"
	"github.com/yungbote/verbatim-backend/internal/services"
)

type strategicResponse struct {
	KeyInsights      string   `json:"key_insights"`
	KeyThemes        []string `json:"key_themes"`
	KeyTakeaways     []string `json:"key_takeaways"`
	SupportingQuotes []string `json:"supporting_quotes"`
}

// stageStrategic writes one analysis row per distinct topic pair in the
// project.
func (p *Pipeline) stageStrategic(st *runState) error {
	if !st.options.IncludeStrategicAnalysis {
		st.log.Info("Strategic analysis skipped")
		return nil
	}
	pairs, err := p.repos.EmergentTopic.ListDistinctPairs(st.dbc(), st.project.ID)
	if err := persist(st, "list topic pairs", err); err != nil {
		return err
	}
	for i, pair := range pairs {
		members, err := p.repos.Verbatim.ListByTopicPair(st.dbc(), st.project.ID, pair.BroadTopic, pair.SubTopic, p.cfg.MaxVerbatimsPerTopic)
		if err := persist(st, "list topic verbatims", err); err != nil {
			return err
		}
		if len(members) == 0 {
			continue
		}
		var resp strategicResponse
		if err := p.complete(st, openai.TaskStrategic, systemFor(openai.TaskStrategic), strategicPrompt(pair.BroadTopic, pair.SubTopic, members), &resp); err != nil {
			return err
		}
		row := &types.StrategicAnalysis{
			ProjectID:        st.project.ID,
			BroadTopic:       pair.BroadTopic,
			SubTopic:         pair.SubTopic,
			KeyInsights:      strings.TrimSpace(resp.KeyInsights),
			KeyThemes:        domainAnalysis.Strings(trimAll(resp.KeyThemes)),
			KeyTakeaways:     domainAnalysis.Strings(trimAll(resp.KeyTakeaways)),
			SupportingQuotes: domainAnalysis.Strings(trimAll(resp.SupportingQuotes)),
			VerbatimCount:    pair.Count,
		}
		created, err := p.repos.StrategicAnalysis.Create(st.dbc(), []*types.StrategicAnalysis{row})
		if err := persist(st, "store strategic analysis", err); err != nil {
			return err
		}
		st.strategic = append(st.strategic, created...)
		if i+1 < len(pairs) {
			pct := p.weights.StageWeight(services.StageStrategicAnalysis, services.StageContext{Done: i + 1, Total: len(pairs)})
			if err := st.advance(pct, services.StageStrategicAnalysis.Label()); err != nil {
				return err
			}
		}
	}
	st.log.Info("Strategic analysis written", "pairs", len(pairs), "rows", len(st.strategic))
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
