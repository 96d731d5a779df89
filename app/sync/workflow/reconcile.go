package workflow

import (
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/tessera-fund/vaultx/app/sync/types"
)

const ReconcileSyncWorkflowName = "ReconcileSyncWorkflow"

// ReconcileSyncWorkflow retries destinations left in a failed sync state.
// Runs on a schedule rather than per epoch.
func (wc *Context) ReconcileSyncWorkflow(ctx workflow.Context) (types.ActivityReviveOutput, error) {
	logger := workflow.GetLogger(ctx)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var out types.ActivityReviveOutput
	if err := workflow.ExecuteActivity(ctx, wc.ActivityContext.ReviveFailedDestinations).Get(ctx, &out); err != nil {
		logger.Error("Reconcile pass failed", "error", err.Error())
		return out, err
	}

	if out.Examined > 0 {
		logger.Info("Reconcile pass completed",
			"examined", out.Examined,
			"revived", out.Revived,
			"still_failed", out.StillFailed)
	}

	return out, nil
}
