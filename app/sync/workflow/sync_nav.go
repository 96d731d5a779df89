package workflow

import (
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/tessera-fund/vaultx/app/sync/types"
	"github.com/tessera-fund/vaultx/pkg/crosschain"
)

const SyncNavWorkflowName = "SyncNavWorkflow"

const defaultDestinationTimeout = 30 * time.Second

// SyncNavWorkflow propagates one committed NAV epoch to every configured
// destination chain. All destination anchors run in parallel and a failed
// destination never aborts its siblings: the local epoch is already final, so
// the workflow's only job is to push it as far as it can and record what
// stuck. Failed destinations land in cross_chain_state as failed and are
// retried by the reconcile schedule.
func (wc *Context) SyncNavWorkflow(ctx workflow.Context, in types.WorkflowSyncNavInput) (crosschain.SyncResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting NAV sync workflow",
		"vault_id", in.VaultID,
		"epoch", in.Epoch,
		"destinations", len(in.Destinations))

	started := workflow.Now(ctx)
	result := crosschain.SyncResult{VaultID: in.VaultID, Epoch: in.Epoch}

	retry := &sdktemporal.RetryPolicy{
		InitialInterval:    1 * time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    10 * time.Second,
		MaximumAttempts:    3,
	}

	// Launch every destination anchor before collecting any of them.
	futures := make([]workflow.Future, 0, len(in.Destinations))
	for _, dest := range in.Destinations {
		timeout := dest.Timeout
		if timeout <= 0 {
			timeout = defaultDestinationTimeout
		}
		destCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: timeout,
			RetryPolicy:         retry,
		})
		futures = append(futures, workflow.ExecuteActivity(destCtx, wc.ActivityContext.AnchorDestination,
			types.ActivityAnchorDestinationInput{
				VaultID:     in.VaultID,
				Epoch:       in.Epoch,
				NAVPerShare: in.NAVPerShare,
				LedgerRoot:  in.LedgerRoot,
				Timestamp:   in.Timestamp,
				Destination: dest,
			}))
	}

	ledgerCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: defaultDestinationTimeout,
		RetryPolicy:         retry,
	})
	ledgerFuture := workflow.ExecuteActivity(ledgerCtx, wc.ActivityContext.AnchorLedger,
		types.ActivityAnchorLedgerInput{
			VaultID:    in.VaultID,
			Epoch:      in.Epoch,
			LedgerRoot: in.LedgerRoot,
			Timestamp:  in.Timestamp,
		})

	// Collect all destination outcomes.
	anchorHashes := make([]string, 0, len(in.Destinations))
	for i, future := range futures {
		dest := in.Destinations[i]
		var out types.ActivityAnchorDestinationOutput
		if err := future.Get(ctx, &out); err != nil {
			logger.Error("Destination anchor failed",
				"vault_id", in.VaultID,
				"chain_id", dest.ChainID,
				"error", err.Error())
			result.Failed++
			result.Anchors = append(result.Anchors, crosschain.AnchorResult{
				ChainID: dest.ChainID,
				Error:   err.Error(),
			})
			anchorHashes = append(anchorHashes, "")
			continue
		}
		result.Successful++
		result.Anchors = append(result.Anchors, crosschain.AnchorResult{
			ChainID:    dest.ChainID,
			AnchorHash: out.AnchorHash,
			Duration:   time.Duration(out.DurationMs * float64(time.Millisecond)),
		})
		anchorHashes = append(anchorHashes, out.AnchorHash)
	}

	var ledgerOut types.ActivityAnchorLedgerOutput
	if err := ledgerFuture.Get(ctx, &ledgerOut); err != nil {
		logger.Error("Ledger anchor failed",
			"vault_id", in.VaultID,
			"error", err.Error())
	} else {
		result.LedgerAnchorHash = ledgerOut.AnchorHash
	}

	// Failed destinations contribute an empty hash, so a partial round is
	// unattested on purpose.
	attestCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         retry,
	})
	var attestOut types.ActivityVerifyAttestationOutput
	if err := workflow.ExecuteActivity(attestCtx, wc.ActivityContext.VerifyAttestation,
		types.ActivityVerifyAttestationInput{
			VaultID:      in.VaultID,
			Epoch:        in.Epoch,
			NAVPerShare:  in.NAVPerShare,
			AnchorHashes: anchorHashes,
		}).Get(ctx, &attestOut); err != nil {
		logger.Error("Attestation failed", "vault_id", in.VaultID, "error", err.Error())
	} else {
		result.AttestationOK = attestOut.OK
	}

	result.Duration = workflow.Now(ctx).Sub(started)

	recordCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         retry,
	})
	if err := workflow.ExecuteActivity(recordCtx, wc.ActivityContext.RecordSyncOutcome,
		types.ActivityRecordSyncOutcomeInput{Result: result}).Get(ctx, nil); err != nil {
		logger.Error("Failed to record sync outcome", "vault_id", in.VaultID, "error", err.Error())
	}

	if result.Failed > 0 {
		logger.Warn("NAV sync completed with failures",
			"vault_id", in.VaultID,
			"epoch", in.Epoch,
			"successful", result.Successful,
			"failed", result.Failed)
	} else {
		logger.Info("NAV sync completed",
			"vault_id", in.VaultID,
			"epoch", in.Epoch,
			"successful", result.Successful)
	}

	return result, nil
}
