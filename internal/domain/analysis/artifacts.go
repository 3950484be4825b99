package analysis

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ConfidenceLow    = "Low"
	ConfidenceMedium = "Medium"
	ConfidenceHigh   = "High"
)

// Verbatim is a quote extracted from a transcript. Immutable once written.
type Verbatim struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID    uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	TranscriptID uuid.UUID `gorm:"type:uuid;not null;index" json:"transcript_id"`
	Text         string    `gorm:"column:text;type:text;not null" json:"text"`
	Speaker      string    `gorm:"column:speaker" json:"speaker,omitempty"`
	SourceFile   string    `gorm:"column:source_file" json:"source_file,omitempty"`
	LineNumber   *int      `gorm:"column:line_number" json:"line_number,omitempty"`
	Sequence     int       `gorm:"column:sequence;not null;index" json:"sequence"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

func (Verbatim) TableName() string { return "verbatim" }

func (v *Verbatim) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

type QuestionMapping struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	VerbatimID uuid.UUID `gorm:"type:uuid;not null;index" json:"verbatim_id"`
	QuestionID string    `gorm:"column:question_id;not null" json:"question_id"`
	Section    string    `gorm:"column:section" json:"section"`
	Question   string    `gorm:"column:question;type:text" json:"question"`
	Confidence string    `gorm:"column:confidence;not null" json:"confidence"`
	Reasoning  string    `gorm:"column:reasoning;type:text" json:"reasoning,omitempty"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (QuestionMapping) TableName() string { return "question_mapping" }

func (m *QuestionMapping) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

type EmergentTopic struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  uuid.UUID `gorm:"type:uuid;not null;index:idx_emergent_topic_pair,priority:1" json:"project_id"`
	VerbatimID uuid.UUID `gorm:"type:uuid;not null;index" json:"verbatim_id"`
	BroadTopic string    `gorm:"column:broad_topic;not null;index:idx_emergent_topic_pair,priority:2" json:"broad_topic"`
	SubTopic   string    `gorm:"column:sub_topic;not null;index:idx_emergent_topic_pair,priority:3" json:"sub_topic"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (EmergentTopic) TableName() string { return "emergent_topic" }

func (t *EmergentTopic) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TopicPair is a distinct (broad, sub) topic with its member count.
type TopicPair struct {
	BroadTopic string `json:"broad_topic"`
	SubTopic   string `json:"sub_topic"`
	Count      int    `json:"count"`
}

type StrategicAnalysis struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	BroadTopic       string         `gorm:"column:broad_topic;not null" json:"broad_topic"`
	SubTopic         string         `gorm:"column:sub_topic;not null" json:"sub_topic"`
	KeyInsights      string         `gorm:"column:key_insights;type:text" json:"key_insights"`
	KeyThemes        datatypes.JSON `gorm:"column:key_themes;type:jsonb" json:"key_themes"`
	KeyTakeaways     datatypes.JSON `gorm:"column:key_takeaways;type:jsonb" json:"key_takeaways"`
	SupportingQuotes datatypes.JSON `gorm:"column:supporting_quotes;type:jsonb" json:"supporting_quotes"`
	VerbatimCount    int            `gorm:"column:verbatim_count;not null;default:0" json:"verbatim_count"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
}

func (StrategicAnalysis) TableName() string { return "strategic_analysis" }

func (s *StrategicAnalysis) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *StrategicAnalysis) Themes() []string    { return decodeStrings(s.KeyThemes) }
func (s *StrategicAnalysis) Takeaways() []string { return decodeStrings(s.KeyTakeaways) }
func (s *StrategicAnalysis) Quotes() []string    { return decodeStrings(s.SupportingQuotes) }

// Strings encodes a string list for a JSON column; nil becomes [].
func Strings(in []string) datatypes.JSON {
	if in == nil {
		in = []string{}
	}
	b, _ := json.Marshal(in)
	return datatypes.JSON(b)
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	_ = json.Unmarshal(raw, &out)
	return out
}
