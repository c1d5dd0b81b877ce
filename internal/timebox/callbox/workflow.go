package callbox

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Input parameterizes one timebox run.
type Input struct {
	SessionID   string        `json:"session_id"`
	StartTime   time.Time     `json:"start_time"`
	MaxDuration time.Duration `json:"max_duration"`
	WarningLead time.Duration `json:"warning_lead"`
}

const (
	ActivityTimeboxWarning = "TimeboxWarning"
	ActivityAutoTerminate  = "AutoTerminate"
)

// Workflow sleeps until the warning lead, emits the warning, sleeps out the
// remainder, then auto-terminates the session. Cancelling the workflow is
// how the session service disarms the timebox.
func Workflow(ctx workflow.Context, in Input) error {
	if strings.TrimSpace(in.SessionID) == "" {
		return fmt.Errorf("callbox: missing session_id")
	}
	if in.MaxDuration <= 0 {
		return fmt.Errorf("callbox: missing max duration")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 5,
		},
	})

	now := workflow.Now(ctx)
	deadline := in.StartTime.Add(in.MaxDuration)
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return workflow.ExecuteActivity(ctx, ActivityAutoTerminate, in.SessionID).Get(ctx, nil)
	}

	warnAfter := remaining - in.WarningLead
	if in.WarningLead > 0 && warnAfter > 0 {
		if err := workflow.Sleep(ctx, warnAfter); err != nil {
			return err
		}
		// Warning is best-effort; the hard limit still applies if it fails.
		if err := workflow.ExecuteActivity(ctx, ActivityTimeboxWarning, in.SessionID).Get(ctx, nil); err != nil {
			workflow.GetLogger(ctx).Warn("timebox warning failed", "session_id", in.SessionID, "error", err)
		}
		remaining = in.WarningLead
	}

	if err := workflow.Sleep(ctx, remaining); err != nil {
		return err
	}
	return workflow.ExecuteActivity(ctx, ActivityAutoTerminate, in.SessionID).Get(ctx, nil)
}
