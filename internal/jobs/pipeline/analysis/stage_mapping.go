package analysis

import (
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	domainAnalysis "github.com/yungbote/verbatim-backend/internal/domain/analysis"
	"github.com/yungbote/verbatim-backend/internal/platform/openai"
	"github.com/yungbote/verbatim-backend/internal/services"
)

type mappingItem struct {
	VerbatimIndex int    `json:"verbatim_index"`
	QuestionID    string `json:"best_fit_question_id"`
	Confidence    string `json:"confidence"`
	Reasoning     string `json:"reasoning"`
}

type mappingResponse struct {
	Mappings []mappingItem `json:"mappings"`
}

// stageMapping indexes this run's verbatims for similarity search, then
// assigns them to guide questions in batches. Low-confidence and unresolvable
// answers are not stored.
func (p *Pipeline) stageMapping(st *runState) error {
	if err := p.indexVerbatims(st); err != nil {
		return err
	}
	if !st.options.IncludeQuestionMapping || len(st.objectives) == 0 || len(st.verbatims) == 0 {
		st.log.Info("Question mapping skipped",
			"enabled", st.options.IncludeQuestionMapping,
			"objectives", len(st.objectives),
			"verbatims", len(st.verbatims),
		)
		return nil
	}
	byID := make(map[string]types.Objective, len(st.objectives))
	for _, o := range st.objectives {
		byID[o.ID] = o
	}

	size := p.cfg.MappingBatchSize
	total := (len(st.verbatims) + size - 1) / size
	for b := 0; b < total; b++ {
		start := b * size
		end := start + size
		if end > len(st.verbatims) {
			end = len(st.verbatims)
		}
		batch := st.verbatims[start:end]

		var resp mappingResponse
		if err := p.complete(st, openai.TaskMapping, systemFor(openai.TaskMapping), mappingPrompt(st.objectives, batch), &resp); err != nil {
			return err
		}
		rows := mappingRows(st.project.ID, batch, byID, resp.Mappings)
		if len(rows) > 0 {
			created, err := p.repos.QuestionMapping.Create(st.dbc(), rows)
			if err := persist(st, "store question mappings", err); err != nil {
				return err
			}
			st.mappings = append(st.mappings, created...)
		}
		if b+1 < total {
			pct := p.weights.StageWeight(services.StageMappingQuestions, services.StageContext{Done: b + 1, Total: total})
			if err := st.advance(pct, services.StageMappingQuestions.Label()); err != nil {
				return err
			}
		}
	}
	st.log.Info("Verbatims mapped", "mappings", len(st.mappings), "batches", total)
	return nil
}

func mappingRows(projectID uuid.UUID, batch []*types.Verbatim, byID map[string]types.Objective, items []mappingItem) []*types.QuestionMapping {
	var out []*types.QuestionMapping
	seen := map[int]bool{}
	for _, it := range items {
		if it.VerbatimIndex < 0 || it.VerbatimIndex >= len(batch) || seen[it.VerbatimIndex] {
			continue
		}
		conf, ok := normalizeConfidence(it.Confidence)
		if !ok || conf == domainAnalysis.ConfidenceLow {
			continue
		}
		obj, ok := byID[strings.TrimSpace(it.QuestionID)]
		if !ok {
			continue
		}
		seen[it.VerbatimIndex] = true
		out = append(out, &types.QuestionMapping{
			ProjectID:  projectID,
			VerbatimID: batch[it.VerbatimIndex].ID,
			QuestionID: obj.ID,
			Section:    obj.Section,
			Question:   obj.Question,
			Confidence: conf,
			Reasoning:  strings.TrimSpace(it.Reasoning),
		})
	}
	return out
}

func normalizeConfidence(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return domainAnalysis.ConfidenceHigh, true
	case "medium":
		return domainAnalysis.ConfidenceMedium, true
	case "low":
		return domainAnalysis.ConfidenceLow, true
	}
	return "", false
}

// indexVerbatims logs indexing failures instead of returning them.
func (p *Pipeline) indexVerbatims(st *runState) error {
	if p.search == nil || len(st.verbatims) == 0 {
		return nil
	}
	if err := p.search.IndexVerbatims(st.ctx, st.verbatims); err != nil {
		if cerr := st.checkpoint(); cerr != nil {
			return cerr
		}
		st.log.Warn("Verbatim indexing failed", "error", err)
	}
	return nil
}
