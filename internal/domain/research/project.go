package research

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ProjectStatusCreated    = "created"
	ProjectStatusUploaded   = "uploaded"
	ProjectStatusConfigured = "configured"
	ProjectStatusProcessing = "processing"
	ProjectStatusCompleted  = "completed"
	ProjectStatusFailed     = "failed"
)

// ProjectConfiguration is the researcher's choice of template and outputs.
type ProjectConfiguration struct {
	Template                 string `json:"template,omitempty"`
	IncludeQuestionMapping   bool   `json:"include_question_mapping"`
	IncludeEmergentTopics    bool   `json:"include_emergent_topics"`
	IncludeStrategicAnalysis bool   `json:"include_strategic_analysis"`
	ExportCSV                bool   `json:"export_csv"`
}

func DefaultProjectConfiguration() ProjectConfiguration {
	return ProjectConfiguration{
		Template:                 "standard",
		IncludeQuestionMapping:   true,
		IncludeEmergentTopics:    true,
		IncludeStrategicAnalysis: true,
	}
}

type Project struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string         `gorm:"column:name;not null" json:"name"`
	Description   string         `gorm:"column:description" json:"description,omitempty"`
	Status        string         `gorm:"column:status;not null;index" json:"status"`
	Configuration datatypes.JSON `gorm:"column:configuration;type:jsonb" json:"configuration,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (Project) TableName() string { return "project" }

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = ProjectStatusCreated
	}
	return nil
}

// Config decodes Configuration, falling back to defaults when unset.
func (p *Project) Config() ProjectConfiguration {
	cfg := DefaultProjectConfiguration()
	if p == nil || len(p.Configuration) == 0 || string(p.Configuration) == "null" {
		return cfg
	}
	_ = json.Unmarshal(p.Configuration, &cfg)
	return cfg
}
