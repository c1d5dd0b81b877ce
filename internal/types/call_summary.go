package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CallSummary is generated at or after session end. It carries a nullable
// back-reference so it survives session bookkeeping changes, and is
// soft-deletable but never hard-deleted.
type CallSummary struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID *uuid.UUID `gorm:"type:uuid;index" json:"session_id,omitempty"`
	CaseID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"case_id"`

	SummaryText        string         `gorm:"type:text" json:"summary_text"`
	KeyQuestions       datatypes.JSON `gorm:"type:jsonb" json:"key_questions,omitempty"`
	ActionItems        datatypes.JSON `gorm:"type:jsonb" json:"action_items,omitempty"`
	MissingDocuments   datatypes.JSON `gorm:"type:jsonb" json:"missing_documents,omitempty"`
	SuggestedNextSteps datatypes.JSON `gorm:"type:jsonb" json:"suggested_next_steps,omitempty"`

	TurnCount       int    `gorm:"not null;default:0" json:"turn_count"`
	DurationSeconds int    `gorm:"not null;default:0" json:"duration_seconds"`
	Partial         bool   `gorm:"not null;default:false" json:"partial"`
	Model           string `json:"model,omitempty"`

	IsDeleted bool       `gorm:"not null;default:false" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CallSummary) TableName() string {
	return "call_summary"
}
