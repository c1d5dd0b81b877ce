package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SessionStatusCreated    = "created"
	SessionStatusReady      = "ready"
	SessionStatusInProgress = "in_progress"
	SessionStatusCompleted  = "completed"
	SessionStatusExpired    = "expired"
	SessionStatusTerminated = "terminated"
	SessionStatusFailed     = "failed"
)

// CallSession is one AI voice conversation bound to a legal case.
type CallSession struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CaseID uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Status          string     `gorm:"not null;default:'created';index" json:"status"`
	ReadyAt         *time.Time `json:"ready_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`

	// Sealed context. Read-only once written; a rebuild bumps ContextVersion.
	ContextBundle  datatypes.JSON `gorm:"type:jsonb" json:"context_bundle,omitempty"`
	ContextVersion int            `gorm:"not null;default:0" json:"context_version"`
	ContextHash    string         `gorm:"column:context_hash" json:"context_hash,omitempty"`

	// Handle of the scheduled auto-termination job; non-nil only while in_progress.
	TimeboxTaskID *string `gorm:"column:timebox_task_id" json:"timebox_task_id,omitempty"`

	WarningsCount int  `gorm:"not null;default:0" json:"warnings_count"`
	RefusalsCount int  `gorm:"not null;default:0" json:"refusals_count"`
	Escalated     bool `gorm:"not null;default:false" json:"escalated"`

	// Optimistic lock; bumped on every mutating write except heartbeats.
	Version int `gorm:"not null;default:1" json:"version"`

	RetryCount      int        `gorm:"not null;default:0" json:"retry_count"`
	ParentSessionID *uuid.UUID `gorm:"type:uuid" json:"parent_session_id,omitempty"`

	SummaryID *uuid.UUID `gorm:"type:uuid" json:"summary_id,omitempty"`

	IsDeleted bool       `gorm:"not null;default:false" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CallSession) TableName() string {
	return "call_session"
}

// IsTerminal reports whether no further lifecycle transitions are legal.
func (s *CallSession) IsTerminal() bool {
	switch s.Status {
	case SessionStatusCompleted, SessionStatusExpired, SessionStatusTerminated, SessionStatusFailed:
		return true
	}
	return false
}

// IsActive reports whether the session counts against the one-active-per-case rule.
func (s *CallSession) IsActive() bool {
	switch s.Status {
	case SessionStatusCreated, SessionStatusReady, SessionStatusInProgress:
		return true
	}
	return false
}
