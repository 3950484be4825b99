package analysis

import (
	"fmt"
	"strings"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/openai"
	"github.com/yungbote/verbatim-backend/internal/platform/promptstyle"
)

var systemPrompts = map[string]string{
	openai.TaskObjectives: "You turn discussion guides into a flat list of research questions.",
	openai.TaskVerbatims:  "You extract verbatim participant quotes from interview transcripts.",
	openai.TaskMapping:    "You map participant quotes to the discussion guide question they answer.",
	openai.TaskTopics:     "You group participant quotes into hierarchical emergent topics.",
	openai.TaskStrategic:  "You write strategic analysis for one topic from participant quotes.",
}

func systemFor(task string) string {
	return promptstyle.ApplySystem(systemPrompts[task], "json")
}

func objectivesPrompt(guide string) string {
	var b strings.Builder
	b.WriteString("Extract every single question from this discussion guide.\n")
	b.WriteString(`Return: {"objectives":[{"id":"ID-1","section":"...","question":"...","objective":"..."}]}`)
	b.WriteString("\n\nDiscussion guide:\n")
	b.WriteString(guide)
	return b.String()
}

func verbatimsPrompt(fileName, numbered string, minWords int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract meaningful participant quotes of at least %d words from this transcript excerpt.\n", minWords)
	b.WriteString("Skip moderator questions and small talk. Each line starts with its line number as L<n>.\n")
	b.WriteString(`Return: {"verbatims":[{"text":"...","speaker":"...","line_number":12}]}`)
	fmt.Fprintf(&b, "\n\nTranscript (%s):\n", fileName)
	b.WriteString(numbered)
	return b.String()
}

func objectiveList(objectives []types.Objective) string {
	var b strings.Builder
	for _, o := range objectives {
		fmt.Fprintf(&b, "%s: [%s] %s\n", o.ID, o.Section, o.Question)
	}
	return b.String()
}

func mappingPrompt(objectives []types.Objective, batch []*types.Verbatim) string {
	var b strings.Builder
	b.WriteString("Map each verbatim to the most relevant question.\n")
	b.WriteString(`Return: {"mappings":[{"verbatim_index":0,"best_fit_question_id":"ID-X","confidence":"High/Medium/Low","reasoning":"..."}]}`)
	b.WriteString("\n\nQuestions:\n")
	b.WriteString(objectiveList(objectives))
	b.WriteString("\nVerbatims:\n")
	for i, v := range batch {
		fmt.Fprintf(&b, "%d. Speaker: %s\n   Text: %q\n", i, v.Speaker, v.Text)
	}
	return b.String()
}

func topicsPrompt(verbatims []*types.Verbatim) string {
	var b strings.Builder
	b.WriteString("Analyze these verbatims and identify hierarchical topics. A verbatim may belong to several topics.\n")
	b.WriteString(`Return: {"topics":[{"broad_topic":"...","sub_topic":"...","verbatim_indices":[0,3]}]}`)
	b.WriteString("\n\nVerbatims:\n")
	for i, v := range verbatims {
		fmt.Fprintf(&b, "%d. (Speaker: %s) %q\n", i, v.Speaker, v.Text)
	}
	return b.String()
}

func strategicPrompt(broad, sub string, verbatims []*types.Verbatim) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze these verbatims for the topic %q under %q.\n", sub, broad)
	b.WriteString(`Return: {"key_themes":["2-4 critical themes"],"key_insights":"analysis paragraph","key_takeaways":["2-3 strategic recommendations"],"supporting_quotes":["2-3 quotes with speakers"]}`)
	b.WriteString("\n\nVerbatims:\n")
	for i, v := range verbatims {
		fmt.Fprintf(&b, "%d. (Speaker: %s) %q\n", i+1, v.Speaker, v.Text)
	}
	return b.String()
}
