package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/verbatim-backend/internal/data/repos/analysis"
	"github.com/yungbote/verbatim-backend/internal/data/repos/research"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

type ProjectRepo = research.ProjectRepo
type DiscussionGuideRepo = research.DiscussionGuideRepo
type TranscriptRepo = research.TranscriptRepo

type VerbatimRepo = analysis.VerbatimRepo
type QuestionMappingRepo = analysis.QuestionMappingRepo
type EmergentTopicRepo = analysis.EmergentTopicRepo
type StrategicAnalysisRepo = analysis.StrategicAnalysisRepo
type AnalysisSessionRepo = analysis.AnalysisSessionRepo
type AnalysisResultRepo = analysis.AnalysisResultRepo

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return research.NewProjectRepo(db, baseLog)
}
func NewDiscussionGuideRepo(db *gorm.DB, baseLog *logger.Logger) DiscussionGuideRepo {
	return research.NewDiscussionGuideRepo(db, baseLog)
}
func NewTranscriptRepo(db *gorm.DB, baseLog *logger.Logger) TranscriptRepo {
	return research.NewTranscriptRepo(db, baseLog)
}

func NewVerbatimRepo(db *gorm.DB, baseLog *logger.Logger) VerbatimRepo {
	return analysis.NewVerbatimRepo(db, baseLog)
}
func NewQuestionMappingRepo(db *gorm.DB, baseLog *logger.Logger) QuestionMappingRepo {
	return analysis.NewQuestionMappingRepo(db, baseLog)
}
func NewEmergentTopicRepo(db *gorm.DB, baseLog *logger.Logger) EmergentTopicRepo {
	return analysis.NewEmergentTopicRepo(db, baseLog)
}
func NewStrategicAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) StrategicAnalysisRepo {
	return analysis.NewStrategicAnalysisRepo(db, baseLog)
}
func NewAnalysisSessionRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisSessionRepo {
	return analysis.NewAnalysisSessionRepo(db, baseLog)
}
func NewAnalysisResultRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisResultRepo {
	return analysis.NewAnalysisResultRepo(db, baseLog)
}

// Set is every repo the pipeline and services need, built over one handle.
type Set struct {
	Project           ProjectRepo
	Guide             DiscussionGuideRepo
	Transcript        TranscriptRepo
	Verbatim          VerbatimRepo
	QuestionMapping   QuestionMappingRepo
	EmergentTopic     EmergentTopicRepo
	StrategicAnalysis StrategicAnalysisRepo
	Session           AnalysisSessionRepo
	Result            AnalysisResultRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Project:           NewProjectRepo(db, baseLog),
		Guide:             NewDiscussionGuideRepo(db, baseLog),
		Transcript:        NewTranscriptRepo(db, baseLog),
		Verbatim:          NewVerbatimRepo(db, baseLog),
		QuestionMapping:   NewQuestionMappingRepo(db, baseLog),
		EmergentTopic:     NewEmergentTopicRepo(db, baseLog),
		StrategicAnalysis: NewStrategicAnalysisRepo(db, baseLog),
		Session:           NewAnalysisSessionRepo(db, baseLog),
		Result:            NewAnalysisResultRepo(db, baseLog),
	}
}
