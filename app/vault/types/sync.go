package types

import (
	"context"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	synctypes "github.com/tessera-fund/vaultx/app/sync/types"
	syncworkflow "github.com/tessera-fund/vaultx/app/sync/workflow"
	"github.com/tessera-fund/vaultx/pkg/crosschain"
	"github.com/tessera-fund/vaultx/pkg/temporal"
	"github.com/tessera-fund/vaultx/pkg/vault"
)

// NavSyncStarter implements nav.SyncStarter by launching one sync workflow
// per accepted epoch on the sync task queue. The workflow ID embeds the vault
// and epoch, so a duplicate submission cannot double-propagate.
type NavSyncStarter struct {
	Logger         *zap.Logger
	TemporalClient *temporal.Client
	Registry       *vault.Registry
	Destinations   []crosschain.Destination
}

func (s *NavSyncStarter) StartNavSync(ctx context.Context, vaultID string, epoch, navPerShare uint64) error {
	var ledgerRoot string
	var timestamp int64
	if handle, err := s.Registry.Get(vaultID); err == nil {
		_ = handle.WithLock(func(v *vault.Vault) error {
			ledgerRoot = v.Drift.Root()
			timestamp = v.LastNAVUpdate
			return nil
		})
	}

	opts := client.StartWorkflowOptions{
		ID:                       s.TemporalClient.GetSyncNavWorkflowId(vaultID, epoch),
		TaskQueue:                s.TemporalClient.GetSyncQueue(),
		WorkflowExecutionTimeout: 15 * time.Minute,
	}

	run, err := s.TemporalClient.TClient.ExecuteWorkflow(ctx, opts, syncworkflow.SyncNavWorkflowName,
		synctypes.WorkflowSyncNavInput{
			VaultID:      vaultID,
			Epoch:        epoch,
			NAVPerShare:  navPerShare,
			LedgerRoot:   ledgerRoot,
			Timestamp:    timestamp,
			Destinations: s.Destinations,
		})
	if err != nil {
		return err
	}

	s.Logger.Debug("Sync workflow started",
		zap.String("vaultId", vaultID),
		zap.Uint64("epoch", epoch),
		zap.String("workflowId", run.GetID()),
		zap.String("runId", run.GetRunID()))

	return nil
}
