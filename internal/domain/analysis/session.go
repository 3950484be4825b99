package analysis

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SessionStatusCreated    = "created"
	SessionStatusProcessing = "processing"
	SessionStatusCompleted  = "completed"
	SessionStatusFailed     = "failed"
)

// ActiveSessionStatuses are the statuses covered by the one-active-session-per-project index.
var ActiveSessionStatuses = []string{SessionStatusCreated, SessionStatusProcessing}

// TerminalSessionStatuses never transition further except through retry.
var TerminalSessionStatuses = []string{SessionStatusCompleted, SessionStatusFailed}

type AnalysisSession struct {
	ID                        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID                 uuid.UUID  `gorm:"type:uuid;not null;index" json:"project_id"`
	Status                    string     `gorm:"column:status;not null;index" json:"status"`
	Progress                  int        `gorm:"column:progress;not null;default:0" json:"progress"`
	CurrentStep               string     `gorm:"column:current_step" json:"current_step"`
	EstimatedRemainingSeconds *int       `gorm:"column:estimated_remaining_seconds" json:"estimated_remaining_seconds,omitempty"`
	ErrorMessage              string     `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	Attempts                  int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	StartedAt                 *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt               *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt                 time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt                 time.Time  `gorm:"not null" json:"updated_at"`
}

func (AnalysisSession) TableName() string { return "analysis_session" }

func (s *AnalysisSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *AnalysisSession) Terminal() bool {
	return s != nil && (s.Status == SessionStatusCompleted || s.Status == SessionStatusFailed)
}

const (
	ResultTypeThemes     = "themes"
	ResultTypeStatistics = "statistics"
	ResultTypeInsights   = "insights"
	ResultTypeFullReport = "full_report"
)

func ValidResultType(t string) bool {
	switch t {
	case ResultTypeThemes, ResultTypeStatistics, ResultTypeInsights, ResultTypeFullReport:
		return true
	}
	return false
}

// AnalysisResult is an append-only report row produced at the end of a run.
type AnalysisResult struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	SessionID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"session_id"`
	ResultType string         `gorm:"column:result_type;not null;index" json:"result_type"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}

func (AnalysisResult) TableName() string { return "analysis_result" }

func (r *AnalysisResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
