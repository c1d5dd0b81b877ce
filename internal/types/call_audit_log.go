package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	AuditEventGuardrailTriggered       = "guardrail_triggered"
	AuditEventRefusal                  = "refusal"
	AuditEventWarning                  = "warning"
	AuditEventEscalation               = "escalation"
	AuditEventTimeboxWarning           = "timebox_warning"
	AuditEventAutoTermination          = "auto_termination"
	AuditEventManualTermination        = "manual_termination"
	AuditEventStateTransition          = "state_transition"
	AuditEventInvalidTransitionAttempt = "invalid_transition_attempt"
	AuditEventInterruption             = "interruption"
	AuditEventSystemError              = "system_error"
)

// CallAuditLog is the append-only compliance trail. Rows are never mutated
// or deleted.
type CallAuditLog struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`

	EventType string `gorm:"not null;index" json:"event_type"`
	Severity  string `json:"severity,omitempty"`

	UserInput  *string        `gorm:"type:text" json:"user_input,omitempty"`
	AIResponse *string        `gorm:"type:text" json:"ai_response,omitempty"`
	Metadata   datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (CallAuditLog) TableName() string {
	return "call_audit_log"
}
