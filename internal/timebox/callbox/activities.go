package callbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lexvoice/casecall-backend/internal/platform/logger"
)

// SessionControl is implemented by the session state service; defined here
// so the worker does not import it in a cycle.
type SessionControl interface {
	TimeboxWarning(ctx context.Context, sessionID uuid.UUID) error
	AutoTerminate(ctx context.Context, sessionID uuid.UUID) error
}

type Activities struct {
	log      *logger.Logger
	sessions SessionControl
}

func NewActivities(log *logger.Logger, sessions SessionControl) *Activities {
	return &Activities{log: log.With("service", "TimeboxActivities"), sessions: sessions}
}

func (a *Activities) TimeboxWarning(ctx context.Context, sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("bad session id %q: %w", sessionID, err)
	}
	return a.sessions.TimeboxWarning(ctx, id)
}

func (a *Activities) AutoTerminate(ctx context.Context, sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("bad session id %q: %w", sessionID, err)
	}
	return a.sessions.AutoTerminate(ctx, id)
}
