package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	CaseStatusOpen   = "open"
	CaseStatusClosed = "closed"
)

// LegalCase is the read model this core consumes; case management itself is
// owned elsewhere.
type LegalCase struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	CaseType     string         `gorm:"not null" json:"case_type"`
	Jurisdiction string         `json:"jurisdiction,omitempty"`
	Status       string         `gorm:"not null;default:'open'" json:"status"`
	Facts        datatypes.JSON `gorm:"type:jsonb" json:"facts,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (LegalCase) TableName() string {
	return "legal_case"
}

type CaseDocument struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CaseID    uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	DocType   string    `gorm:"not null" json:"doc_type"`
	Status    string    `gorm:"not null;default:'uploaded'" json:"status"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (CaseDocument) TableName() string {
	return "case_document"
}

type HumanReviewNote struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CaseID    uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	Note      string    `gorm:"type:text;not null" json:"note"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (HumanReviewNote) TableName() string {
	return "human_review_note"
}

type AIEligibilityFinding struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CaseID     uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	VisaType   string    `gorm:"not null" json:"visa_type"`
	Outcome    string    `gorm:"not null" json:"outcome"`
	Confidence float64   `gorm:"not null;default:0" json:"confidence"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (AIEligibilityFinding) TableName() string {
	return "ai_eligibility_finding"
}

// VisaRuleRequirement mirrors the rules engine's document requirements; the
// evaluation semantics live in the rules engine, this core only reads.
type VisaRuleRequirement struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VisaType          string         `gorm:"not null;index" json:"visa_type"`
	Description       string         `gorm:"type:text" json:"description,omitempty"`
	RequiredDocuments datatypes.JSON `gorm:"type:jsonb" json:"required_documents,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (VisaRuleRequirement) TableName() string {
	return "visa_rule_requirement"
}
