package analysis

import (
	"fmt"
	"strings"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/openai"
)

type objectivesResponse struct {
	Objectives []types.Objective `json:"objectives"`
}

// stagePreprocess extracts the guide's questions and stores them on the guide.
func (p *Pipeline) stagePreprocess(st *runState) error {
	var resp objectivesResponse
	if err := p.complete(st, openai.TaskObjectives, systemFor(openai.TaskObjectives), objectivesPrompt(st.guide.Content), &resp); err != nil {
		return err
	}
	st.objectives = normalizeObjectives(resp.Objectives)
	if err := persist(st, "store objectives", p.repos.Guide.SetObjectives(st.dbc(), st.guide.ID, st.objectives)); err != nil {
		return err
	}
	st.log.Info("Guide preprocessed", "objectives", len(st.objectives))
	return nil
}

// normalizeObjectives drops blank questions and assigns "ID-n" to entries
// without an id or with a duplicate one.
func normalizeObjectives(in []types.Objective) []types.Objective {
	out := make([]types.Objective, 0, len(in))
	seen := map[string]bool{}
	for _, o := range in {
		o.Question = strings.TrimSpace(o.Question)
		if o.Question == "" {
			continue
		}
		o.Section = strings.TrimSpace(o.Section)
		o.ID = strings.TrimSpace(o.ID)
		if o.ID == "" || seen[o.ID] {
			o.ID = fmt.Sprintf("ID-%d", len(out)+1)
		}
		for seen[o.ID] {
			o.ID = o.ID + "b"
		}
		seen[o.ID] = true
		out = append(out, o)
	}
	return out
}
