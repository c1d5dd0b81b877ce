package timebox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/timebox/callbox"
)

// Scheduler arms and disarms the per-call auto-termination job. Cancel is
// idempotent: already-cancelled or already-fired jobs are not errors.
type Scheduler interface {
	Schedule(ctx context.Context, sessionID uuid.UUID, startTime time.Time) (string, error)
	Cancel(ctx context.Context, handle string) error
}

type temporalScheduler struct {
	log    *logger.Logger
	client temporalsdkclient.Client
	cfg    Config
}

func NewScheduler(log *logger.Logger, client temporalsdkclient.Client) Scheduler {
	if client == nil {
		return &noopScheduler{log: log.With("service", "TimeboxScheduler")}
	}
	return &temporalScheduler{
		log:    log.With("service", "TimeboxScheduler"),
		client: client,
		cfg:    LoadConfig(),
	}
}

func (s *temporalScheduler) Schedule(ctx context.Context, sessionID uuid.UUID, startTime time.Time) (string, error) {
	if sessionID == uuid.Nil {
		return "", fmt.Errorf("missing session id")
	}
	workflowID := "timebox-" + sessionID.String()

	run, err := s.client.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                s.cfg.TaskQueue,
		WorkflowExecutionTimeout: s.cfg.MaxCallDuration + 10*time.Minute,
	}, callbox.Workflow, callbox.Input{
		SessionID:   sessionID.String(),
		StartTime:   startTime,
		MaxDuration: s.cfg.MaxCallDuration,
		WarningLead: s.cfg.WarningLead,
	})
	if err != nil {
		return "", fmt.Errorf("schedule timebox: %w", err)
	}
	s.log.Info("Timebox armed", "session_id", sessionID, "workflow_id", workflowID, "run_id", run.GetRunID())
	return workflowID, nil
}

func (s *temporalScheduler) Cancel(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	err := s.client.CancelWorkflow(ctx, handle, "")
	if err == nil || cancelAlreadySettled(err) {
		return nil
	}
	return fmt.Errorf("cancel timebox %s: %w", handle, err)
}

// cancelAlreadySettled reports whether a cancel failure means the workflow is
// already gone. The server returns NotFound for unknown or already-removed
// executions and FailedPrecondition for ones that already ran to completion;
// neither is an error for an idempotent disarm.
func cancelAlreadySettled(err error) bool {
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var precondition *serviceerror.FailedPrecondition
	return errors.As(err, &precondition)
}

// noopScheduler keeps local development working without a Temporal server.
type noopScheduler struct {
	log *logger.Logger
}

func (s *noopScheduler) Schedule(ctx context.Context, sessionID uuid.UUID, startTime time.Time) (string, error) {
	s.log.Warn("Timebox disabled; call will not be auto-terminated", "session_id", sessionID)
	return "noop-" + sessionID.String(), nil
}

func (s *noopScheduler) Cancel(ctx context.Context, handle string) error {
	return nil
}
