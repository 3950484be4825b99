package research

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FileMeta describes an uploaded source file.
type FileMeta struct {
	FileName   string `gorm:"column:file_name;not null" json:"file_name"`
	MimeType   string `gorm:"column:mime_type" json:"mime_type,omitempty"`
	SizeBytes  int64  `gorm:"column:size_bytes" json:"size_bytes"`
	StorageKey string `gorm:"column:storage_key" json:"storage_key,omitempty"`
}

// Objective is one research question extracted from a discussion guide.
type Objective struct {
	ID        string `json:"id"`
	Section   string `json:"section"`
	Question  string `json:"question"`
	Objective string `json:"objective,omitempty"`
}

type DiscussionGuide struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"project_id"`
	FileMeta   `gorm:"embedded"`
	Content    string         `gorm:"column:content;type:text;not null" json:"content"`
	Objectives datatypes.JSON `gorm:"column:objectives;type:jsonb" json:"objectives,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (DiscussionGuide) TableName() string { return "discussion_guide" }

func (g *DiscussionGuide) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// ObjectiveList decodes Objectives; nil when stage 1 has not run.
func (g *DiscussionGuide) ObjectiveList() []Objective {
	if g == nil || len(g.Objectives) == 0 || string(g.Objectives) == "null" {
		return nil
	}
	var out []Objective
	if err := json.Unmarshal(g.Objectives, &out); err != nil {
		return nil
	}
	return out
}

type Transcript struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	FileMeta  `gorm:"embedded"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Transcript) TableName() string { return "transcript" }

func (t *Transcript) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
