package domain

import (
	"github.com/yungbote/verbatim-backend/internal/domain/analysis"
	"github.com/yungbote/verbatim-backend/internal/domain/research"
)

type Project = research.Project
type ProjectConfiguration = research.ProjectConfiguration
type DiscussionGuide = research.DiscussionGuide
type Transcript = research.Transcript
type FileMeta = research.FileMeta
type Objective = research.Objective

type Verbatim = analysis.Verbatim
type QuestionMapping = analysis.QuestionMapping
type EmergentTopic = analysis.EmergentTopic
type TopicPair = analysis.TopicPair
type StrategicAnalysis = analysis.StrategicAnalysis
type AnalysisSession = analysis.AnalysisSession
type AnalysisResult = analysis.AnalysisResult

// Models lists every persisted entity in migration order.
func Models() []any {
	return []any{
		&research.Project{},
		&research.DiscussionGuide{},
		&research.Transcript{},
		&analysis.Verbatim{},
		&analysis.QuestionMapping{},
		&analysis.EmergentTopic{},
		&analysis.StrategicAnalysis{},
		&analysis.AnalysisSession{},
		&analysis.AnalysisResult{},
	}
}
