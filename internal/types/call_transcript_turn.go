package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	TurnTypeUser   = "user"
	TurnTypeAI     = "ai"
	TurnTypeSystem = "system"

	StorageTierHot  = "hot"
	StorageTierCold = "cold"
)

// CallTranscriptTurn is one exchange unit within a session. Turn numbers are
// gap-free and sequential per session starting at 1.
type CallTranscriptTurn struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_call_turn_session_number,priority:1" json:"session_id"`

	TurnNumber int    `gorm:"not null;uniqueIndex:idx_call_turn_session_number,priority:2" json:"turn_number"`
	TurnType   string `gorm:"not null" json:"turn_type"`
	Text       string `gorm:"type:text;not null" json:"text"`

	SpeechConfidence *float64 `json:"speech_confidence,omitempty"`

	AIModel      *string `json:"ai_model,omitempty"`
	AIPromptHash *string `json:"ai_prompt_hash,omitempty"`
	// Full prompt text is retained only when guardrails triggered or the
	// caller explicitly asked for it.
	AIPromptUsed *string `gorm:"type:text" json:"ai_prompt_used,omitempty"`

	GuardrailsTriggered bool   `gorm:"not null;default:false" json:"guardrails_triggered"`
	GuardrailsAction    string `json:"guardrails_action,omitempty"`

	StorageTier      string  `gorm:"not null;default:'hot';index" json:"storage_tier"`
	ArchiveObjectKey *string `json:"archive_object_key,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (CallTranscriptTurn) TableName() string {
	return "call_transcript_turn"
}
