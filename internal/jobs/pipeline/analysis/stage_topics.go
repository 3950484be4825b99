package analysis

import (
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/openai"
)

type topicItem struct {
	BroadTopic      string `json:"broad_topic"`
	SubTopic        string `json:"sub_topic"`
	VerbatimIndices []int  `json:"verbatim_indices"`
}

type topicsResponse struct {
	Topics []topicItem `json:"topics"`
}

// stageTopics tags this run's verbatims with (broad, sub) topics, one row per
// topic and verbatim.
func (p *Pipeline) stageTopics(st *runState) error {
	if !st.options.IncludeEmergentTopics || len(st.verbatims) == 0 {
		st.log.Info("Emergent topics skipped", "enabled", st.options.IncludeEmergentTopics, "verbatims", len(st.verbatims))
		return nil
	}
	var resp topicsResponse
	if err := p.complete(st, openai.TaskTopics, systemFor(openai.TaskTopics), topicsPrompt(st.verbatims), &resp); err != nil {
		return err
	}
	rows := topicRows(st.project.ID, st.verbatims, resp.Topics)
	if len(rows) > 0 {
		created, err := p.repos.EmergentTopic.Create(st.dbc(), rows)
		if err := persist(st, "store emergent topics", err); err != nil {
			return err
		}
		st.topics = created
	}
	st.log.Info("Emergent topics identified", "topics", len(resp.Topics), "rows", len(rows))
	return nil
}

func topicRows(projectID uuid.UUID, verbatims []*types.Verbatim, topics []topicItem) []*types.EmergentTopic {
	type key struct {
		broad, sub string
		id         uuid.UUID
	}
	seen := map[key]bool{}
	var out []*types.EmergentTopic
	for _, t := range topics {
		broad := strings.TrimSpace(t.BroadTopic)
		sub := strings.TrimSpace(t.SubTopic)
		if broad == "" || sub == "" {
			continue
		}
		for _, idx := range t.VerbatimIndices {
			if idx < 0 || idx >= len(verbatims) {
				continue
			}
			k := key{broad: broad, sub: sub, id: verbatims[idx].ID}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, &types.EmergentTopic{
				ProjectID:  projectID,
				VerbatimID: verbatims[idx].ID,
				BroadTopic: broad,
				SubTopic:   sub,
			})
		}
	}
	return out
}
