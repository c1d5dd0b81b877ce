package worker

import (
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"
	temporalsdkworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/timebox"
	"github.com/lexvoice/casecall-backend/internal/timebox/callbox"
)

// Runner hosts the timebox workflow and activities on the task queue.
type Runner struct {
	log    *logger.Logger
	worker temporalsdkworker.Worker
}

func NewRunner(log *logger.Logger, client temporalsdkclient.Client, sessions callbox.SessionControl) (*Runner, error) {
	if client == nil {
		return nil, fmt.Errorf("temporal client required")
	}
	cfg := timebox.LoadConfig()

	w := temporalsdkworker.New(client, cfg.TaskQueue, temporalsdkworker.Options{})
	w.RegisterWorkflowWithOptions(callbox.Workflow, workflow.RegisterOptions{Name: "Workflow"})

	acts := callbox.NewActivities(log, sessions)
	w.RegisterActivity(acts.TimeboxWarning)
	w.RegisterActivity(acts.AutoTerminate)

	return &Runner{log: log.With("service", "TimeboxWorker"), worker: w}, nil
}

func (r *Runner) Run() error {
	r.log.Info("Timebox worker starting")
	return r.worker.Run(temporalsdkworker.InterruptCh())
}

func (r *Runner) Stop() {
	r.worker.Stop()
}
