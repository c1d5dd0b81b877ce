package services

import (
	"context"
	stderrors "errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/lexvoice/casecall-backend/internal/clients/redis"
	"github.com/lexvoice/casecall-backend/internal/contextseal"
	"github.com/lexvoice/casecall-backend/internal/pkg/errors"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/repos"
	"github.com/lexvoice/casecall-backend/internal/timebox"
	"github.com/lexvoice/casecall-backend/internal/types"
)

const (
	// RetryWindow caps how long a parent call may have run for its case to
	// qualify for an abrupt-end retry.
	RetryWindow = 10 * time.Minute
	// PendingSessionTTL expires sessions that never reach in_progress.
	PendingSessionTTL = time.Hour

	versionRetryAttempts = 3
)

// validTransitions is the full lifecycle edge set. Anything else is an
// invalid transition and is audited as such.
var validTransitions = map[string][]string{
	types.SessionStatusCreated:    {types.SessionStatusReady, types.SessionStatusExpired, types.SessionStatusFailed, types.SessionStatusTerminated},
	types.SessionStatusReady:      {types.SessionStatusInProgress, types.SessionStatusExpired, types.SessionStatusFailed, types.SessionStatusTerminated},
	types.SessionStatusInProgress: {types.SessionStatusCompleted, types.SessionStatusTerminated, types.SessionStatusFailed},
}

func transitionAllowed(from, to string) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type SessionStateService interface {
	Create(ctx context.Context, caseID uuid.UUID, userID uuid.UUID, parentSessionID *uuid.UUID) (*types.CallSession, error)
	Prepare(ctx context.Context, sessionID uuid.UUID) (*types.CallSession, error)
	Start(ctx context.Context, sessionID uuid.UUID) (*types.CallSession, error)
	End(ctx context.Context, sessionID uuid.UUID, reason string) (*types.CallSession, error)
	Terminate(ctx context.Context, sessionID uuid.UUID, reason string, actor string) (*types.CallSession, error)
	Fail(ctx context.Context, sessionID uuid.UUID, reason string, details map[string]any) error
	Heartbeat(ctx context.Context, sessionID uuid.UUID) error
	Expire(ctx context.Context, sessionID uuid.UUID) (bool, error)
	GetByID(ctx context.Context, sessionID uuid.UUID) (*types.CallSession, error)

	// ApplyGuardrailOutcome bumps the per-session guardrail counters and the
	// sticky escalation flag, retrying version conflicts internally.
	ApplyGuardrailOutcome(ctx context.Context, sessionID uuid.UUID, refusals int, warnings int, escalate bool) error

	// IsExpired is the pure pending-timeout predicate.
	IsExpired(session *types.CallSession, now time.Time) bool

	// TimeboxWarning and AutoTerminate back the timebox workflow activities.
	TimeboxWarning(ctx context.Context, sessionID uuid.UUID) error
	AutoTerminate(ctx context.Context, sessionID uuid.UUID) error
}

type sessionStateService struct {
	log       *logger.Logger
	sessions  repos.CallSessionRepo
	turns     repos.CallTurnRepo
	audits    repos.CallAuditRepo
	cases     repos.CaseReaderRepo
	sealer    contextseal.Sealer
	scheduler timebox.Scheduler
	summaries SummaryService
	// cache is optional; nil disables the active-session fast path.
	cache redis.ActiveSessionCache
}

func NewSessionStateService(
	log *logger.Logger,
	sessions repos.CallSessionRepo,
	turns repos.CallTurnRepo,
	audits repos.CallAuditRepo,
	cases repos.CaseReaderRepo,
	sealer contextseal.Sealer,
	scheduler timebox.Scheduler,
	summaries SummaryService,
	cache redis.ActiveSessionCache,
) SessionStateService {
	return &sessionStateService{
		log:       log.With("service", "SessionStateService"),
		sessions:  sessions,
		turns:     turns,
		audits:    audits,
		cases:     cases,
		sealer:    sealer,
		scheduler: scheduler,
		summaries: summaries,
		cache:     cache,
	}
}

// audit writes are best-effort: a failed audit row is logged but never rolls
// back or blocks the underlying state change.
func (s *sessionStateService) audit(ctx context.Context, sessionID uuid.UUID, eventType string, severity string, metadata map[string]any) {
	row := &types.CallAuditLog{
		SessionID: sessionID,
		EventType: eventType,
		Severity:  severity,
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			row.Metadata = datatypes.JSON(raw)
		}
	}
	if err := s.audits.Create(ctx, nil, row); err != nil {
		s.log.Error("Audit write failed", "session_id", sessionID, "event_type", eventType, "error", err)
	}
}

func (s *sessionStateService) rejectTransition(ctx context.Context, session *types.CallSession, to string, op string) error {
	s.audit(ctx, session.ID, types.AuditEventInvalidTransitionAttempt, "medium", map[string]any{
		"from":      session.Status,
		"to":        to,
		"operation": op,
	})
	return fmt.Errorf("%s: cannot move %s from %s to %s: %w", op, session.ID, session.Status, to, errors.ErrInvalidTransition)
}

func (s *sessionStateService) Create(ctx context.Context, caseID uuid.UUID, userID uuid.UUID, parentSessionID *uuid.UUID) (*types.CallSession, error) {
	legalCase, err := s.cases.GetCase(ctx, nil, caseID)
	if err != nil {
		return nil, fmt.Errorf("load case: %w", err)
	}
	if legalCase.UserID != userID {
		return nil, fmt.Errorf("case does not belong to user: %w", errors.ErrInvalidArgument)
	}
	if legalCase.Status == types.CaseStatusClosed {
		return nil, fmt.Errorf("case is closed: %w", errors.ErrInvalidArgument)
	}

	if s.cache != nil {
		if activeID, ok, cacheErr := s.cache.GetActive(ctx, caseID); cacheErr == nil && ok {
			return nil, fmt.Errorf("case %s already has active session %s: %w", caseID, activeID, errors.ErrInvalidArgument)
		}
	}

	row := &types.CallSession{
		CaseID: caseID,
		UserID: userID,
		Status: types.SessionStatusCreated,
	}

	if parentSessionID != nil {
		parent, err := s.sessions.GetByID(ctx, nil, *parentSessionID)
		if err != nil {
			return nil, fmt.Errorf("load parent session: %w", err)
		}
		if err := validateRetryParent(parent); err != nil {
			return nil, err
		}
		row.ParentSessionID = parentSessionID
		row.RetryCount = parent.RetryCount + 1
	}

	// The repo serializes the one-active-session-per-case check.
	if err := s.sessions.Create(ctx, nil, row); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.SetActive(ctx, caseID, row.ID); cacheErr != nil {
			s.log.Warn("Active-session cache set failed", "case_id", caseID, "error", cacheErr)
		}
	}

	s.audit(ctx, row.ID, types.AuditEventStateTransition, "info", map[string]any{
		"from": "", "to": types.SessionStatusCreated, "retry_count": row.RetryCount,
	})
	return row, nil
}

// validateRetryParent enforces the abrupt-end retry policy: the parent must
// have ended (terminated, failed, or expired) after less than ten minutes of
// call time.
func validateRetryParent(parent *types.CallSession) error {
	switch parent.Status {
	case types.SessionStatusTerminated, types.SessionStatusFailed, types.SessionStatusExpired:
	default:
		return fmt.Errorf("parent session %s is %s, not retryable: %w", parent.ID, parent.Status, errors.ErrInvalidArgument)
	}
	var duration time.Duration
	switch {
	case parent.DurationSeconds != nil:
		duration = time.Duration(*parent.DurationSeconds) * time.Second
	case parent.EndedAt != nil && parent.StartedAt != nil:
		duration = parent.EndedAt.Sub(*parent.StartedAt)
	default:
		// Never started; trivially within the window.
		return nil
	}
	if duration >= RetryWindow {
		return fmt.Errorf("parent session ran %s, beyond the abrupt-end retry window: %w", duration, errors.ErrInvalidArgument)
	}
	return nil
}

func (s *sessionStateService) Prepare(ctx context.Context, sessionID uuid.UUID) (*types.CallSession, error) {
	session, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != types.SessionStatusCreated {
		return nil, s.rejectTransition(ctx, session, types.SessionStatusReady, "prepare")
	}

	bundle, err := s.sealer.Build(ctx, session.CaseID, session.ContextVersion+1)
	if err != nil {
		s.failInternal(ctx, session, "context_build_failed", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("seal context: %w", err)
	}
	if ok, err := contextseal.Validate(bundle); !ok {
		s.failInternal(ctx, session, "context_validation_failed", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("validate context: %w", err)
	}
	hash, err := contextseal.ComputeHash(bundle)
	if err != nil {
		s.failInternal(ctx, session, "context_hash_failed", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("hash context: %w", err)
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		s.failInternal(ctx, session, "context_marshal_failed", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("marshal context: %w", err)
	}

	now := time.Now().UTC()
	err = s.sessions.UpdateWithVersion(ctx, nil, session.ID, session.Version, map[string]interface{}{
		"status":          types.SessionStatusReady,
		"ready_at":        now,
		"context_bundle":  datatypes.JSON(raw),
		"context_hash":    hash,
		"context_version": bundle.Version,
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, session.ID, types.AuditEventStateTransition, "info", map[string]any{
		"from": types.SessionStatusCreated, "to": types.SessionStatusReady,
		"context_version": bundle.Version, "context_hash": hash,
	})
	return s.sessions.GetByID(ctx, nil, sessionID)
}

func (s *sessionStateService) Start(ctx context.Context, sessionID uuid.UUID) (*types.CallSession, error) {
	session, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != types.SessionStatusReady {
		return nil, s.rejectTransition(ctx, session, types.SessionStatusInProgress, "start")
	}
	if len(session.ContextBundle) == 0 {
		s.failInternal(ctx, session, "missing_context_bundle", nil)
		return nil, fmt.Errorf("session %s has no sealed context: %w", sessionID, errors.ErrInvalidArgument)
	}

	now := time.Now().UTC()
	handle, err := s.scheduler.Schedule(ctx, session.ID, now)
	if err != nil {
		s.failInternal(ctx, session, "timebox_schedule_failed", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("arm timebox: %w", err)
	}

	err = s.sessions.UpdateWithVersion(ctx, nil, session.ID, session.Version, map[string]interface{}{
		"status":          types.SessionStatusInProgress,
		"started_at":      now,
		"timebox_task_id": handle,
	})
	if err != nil {
		// Don't leak an armed timebox for a session that never started.
		if cancelErr := s.scheduler.Cancel(ctx, handle); cancelErr != nil {
			s.log.Error("Timebox cancel after failed start", "session_id", sessionID, "error", cancelErr)
		}
		return nil, err
	}

	s.audit(ctx, session.ID, types.AuditEventStateTransition, "info", map[string]any{
		"from": types.SessionStatusReady, "to": types.SessionStatusInProgress, "timebox_task_id": handle,
	})
	return s.sessions.GetByID(ctx, nil, sessionID)
}

func (s *sessionStateService) disarmTimebox(ctx context.Context, session *types.CallSession) {
	if session.TimeboxTaskID == nil || *session.TimeboxTaskID == "" {
		return
	}
	if err := s.scheduler.Cancel(ctx, *session.TimeboxTaskID); err != nil {
		s.log.Error("Timebox cancel failed", "session_id", session.ID, "handle", *session.TimeboxTaskID, "error", err)
	}
}

func (s *sessionStateService) End(ctx context.Context, sessionID uuid.UUID, reason string) (*types.CallSession, error) {
	session, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != types.SessionStatusInProgress {
		return nil, s.rejectTransition(ctx, session, types.SessionStatusCompleted, "end")
	}

	s.disarmTimebox(ctx, session)

	now := time.Now().UTC()
	duration := 0
	if session.StartedAt != nil {
		duration = int(now.Sub(*session.StartedAt).Seconds())
	}
	err = s.sessions.UpdateWithVersion(ctx, nil, session.ID, session.Version, map[string]interface{}{
		"status":           types.SessionStatusCompleted,
		"ended_at":         now,
		"duration_seconds": duration,
		"timebox_task_id":  nil,
	})
	if err != nil {
		return nil, err
	}
	s.invalidateActive(ctx, session.CaseID)
	s.audit(ctx, session.ID, types.AuditEventStateTransition, "info", map[string]any{
		"from": types.SessionStatusInProgress, "to": types.SessionStatusCompleted,
		"reason": reason, "duration_seconds": duration,
	})

	updated, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	s.generateSummary(ctx, updated, false)
	return s.sessions.GetByID(ctx, nil, sessionID)
}

func (s *sessionStateService) Terminate(ctx context.Context, sessionID uuid.UUID, reason string, actor string) (*types.CallSession, error) {
	return s.terminate(ctx, sessionID, reason, actor, types.AuditEventManualTermination)
}

func (s *sessionStateService) terminate(ctx context.Context, sessionID uuid.UUID, reason string, actor string, auditEvent string) (*types.CallSession, error) {
	session, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return nil, s.rejectTransition(ctx, session, types.SessionStatusTerminated, "terminate")
	}

	s.disarmTimebox(ctx, session)

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":          types.SessionStatusTerminated,
		"ended_at":        now,
		"timebox_task_id": nil,
	}
	if session.StartedAt != nil {
		updates["duration_seconds"] = int(now.Sub(*session.StartedAt).Seconds())
	}
	if err := s.sessions.UpdateWithVersion(ctx, nil, session.ID, session.Version, updates); err != nil {
		return nil, err
	}
	s.invalidateActive(ctx, session.CaseID)

	s.audit(ctx, session.ID, auditEvent, "high", map[string]any{
		"reason": reason, "actor": actor, "from": session.Status,
	})

	updated, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	turnCount, err := s.turns.CountBySession(ctx, nil, sessionID)
	if err != nil {
		s.log.Warn("Turn count failed, skipping partial summary", "session_id", sessionID, "error", err)
		return updated, nil
	}
	if turnCount > 0 {
		s.generateSummary(ctx, updated, true)
		return s.sessions.GetByID(ctx, nil, sessionID)
	}
	return updated, nil
}

func (s *sessionStateService) Fail(ctx context.Context, sessionID uuid.UUID, reason string, details map[string]any) error {
	session, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return err
	}
	if session.IsTerminal() {
		// Idempotent: failing an already-terminal session is a no-op.
		return nil
	}
	s.failInternal(ctx, session, reason, details)
	return nil
}

func (s *sessionStateService) failInternal(ctx context.Context, session *types.CallSession, reason string, details map[string]any) {
	s.disarmTimebox(ctx, session)

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":          types.SessionStatusFailed,
		"ended_at":        now,
		"timebox_task_id": nil,
	}
	if session.StartedAt != nil {
		updates["duration_seconds"] = int(now.Sub(*session.StartedAt).Seconds())
	}
	if err := s.sessions.UpdateWithVersion(ctx, nil, session.ID, session.Version, updates); err != nil {
		if stderrors.Is(err, errors.ErrVersionConflict) {
			// Re-read once; a concurrent transition may already be terminal.
			fresh, readErr := s.sessions.GetByID(ctx, nil, session.ID)
			if readErr == nil && !fresh.IsTerminal() {
				if retryErr := s.sessions.UpdateWithVersion(ctx, nil, fresh.ID, fresh.Version, updates); retryErr != nil {
					s.log.Error("Session fail write lost retry", "session_id", session.ID, "error", retryErr)
				}
			}
		} else {
			s.log.Error("Session fail write failed", "session_id", session.ID, "error", err)
		}
	}
	s.invalidateActive(ctx, session.CaseID)

	meta := map[string]any{"reason": reason, "from": session.Status}
	if details != nil {
		meta["error_details"] = details
	}
	s.audit(ctx, session.ID, types.AuditEventSystemError, "critical", meta)
}

func (s *sessionStateService) Heartbeat(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return err
	}
	if session.Status != types.SessionStatusInProgress {
		return errors.ErrSessionNotActive
	}
	return s.sessions.Heartbeat(ctx, nil, sessionID, time.Now().UTC())
}

// IsExpired reports whether a pending session has outlived its hour: created
// sessions age from created_at, ready sessions from ready_at.
func (s *sessionStateService) IsExpired(session *types.CallSession, now time.Time) bool {
	switch session.Status {
	case types.SessionStatusCreated:
		return now.Sub(session.CreatedAt) > PendingSessionTTL
	case types.SessionStatusReady:
		if session.ReadyAt == nil {
			return now.Sub(session.CreatedAt) > PendingSessionTTL
		}
		return now.Sub(*session.ReadyAt) > PendingSessionTTL
	}
	return false
}

func (s *sessionStateService) Expire(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	session, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return false, err
	}
	if !s.IsExpired(session, time.Now().UTC()) {
		return false, nil
	}
	err = s.sessions.UpdateWithVersion(ctx, nil, session.ID, session.Version, map[string]interface{}{
		"status":   types.SessionStatusExpired,
		"ended_at": time.Now().UTC(),
	})
	if err != nil {
		return false, err
	}
	s.invalidateActive(ctx, session.CaseID)
	s.audit(ctx, session.ID, types.AuditEventStateTransition, "info", map[string]any{
		"from": session.Status, "to": types.SessionStatusExpired, "reason": "pending_timeout",
	})
	return true, nil
}

func (s *sessionStateService) GetByID(ctx context.Context, sessionID uuid.UUID) (*types.CallSession, error) {
	return s.sessions.GetByID(ctx, nil, sessionID)
}

func (s *sessionStateService) ApplyGuardrailOutcome(ctx context.Context, sessionID uuid.UUID, refusals int, warnings int, escalate bool) error {
	var lastErr error
	for attempt := 0; attempt < versionRetryAttempts; attempt++ {
		session, err := s.sessions.GetByID(ctx, nil, sessionID)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{
			"refusals_count": session.RefusalsCount + refusals,
			"warnings_count": session.WarningsCount + warnings,
		}
		// Escalation is monotonic: once set it is never cleared.
		if escalate && !session.Escalated {
			updates["escalated"] = true
		}
		err = s.sessions.UpdateWithVersion(ctx, nil, session.ID, session.Version, updates)
		if err == nil {
			if escalate && !session.Escalated {
				s.audit(ctx, sessionID, types.AuditEventEscalation, "critical", map[string]any{
					"refusals_count": session.RefusalsCount + refusals,
					"warnings_count": session.WarningsCount + warnings,
				})
			}
			return nil
		}
		if !stderrors.Is(err, errors.ErrVersionConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (s *sessionStateService) TimeboxWarning(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return err
	}
	if session.Status != types.SessionStatusInProgress {
		return nil
	}
	s.audit(ctx, sessionID, types.AuditEventTimeboxWarning, "medium", map[string]any{
		"started_at": session.StartedAt,
	})
	return nil
}

func (s *sessionStateService) AutoTerminate(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return nil
		}
		return err
	}
	if session.IsTerminal() {
		return nil
	}
	_, err = s.terminate(ctx, sessionID, "timebox_expired", "system", types.AuditEventAutoTermination)
	return err
}

func (s *sessionStateService) invalidateActive(ctx context.Context, caseID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, caseID); err != nil {
		s.log.Warn("Active-session cache invalidate failed", "case_id", caseID, "error", err)
	}
}

func (s *sessionStateService) generateSummary(ctx context.Context, session *types.CallSession, partial bool) {
	if s.summaries == nil {
		return
	}
	summary, err := s.summaries.GenerateAndAttach(ctx, session, partial)
	if err != nil {
		s.log.Error("Summary generation failed", "session_id", session.ID, "error", err)
		return
	}
	err = s.sessions.UpdateWithVersion(ctx, nil, session.ID, session.Version, map[string]interface{}{
		"summary_id": summary.ID,
	})
	if err != nil {
		s.log.Error("Summary link failed", "session_id", session.ID, "summary_id", summary.ID, "error", err)
	}
}
