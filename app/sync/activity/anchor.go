package activity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/app/sync/types"
	"github.com/tessera-fund/vaultx/pkg/crosschain"
)

// AnchorDestination submits the epoch's NAV anchor to a single destination
// chain and records the resulting sync state. A failed attempt marks the
// destination state as failed and returns the error so Temporal retries it.
func (c *Context) AnchorDestination(ctx context.Context, in types.ActivityAnchorDestinationInput) (types.ActivityAnchorDestinationOutput, error) {
	out := types.ActivityAnchorDestinationOutput{ChainID: in.Destination.ChainID}

	anchor := crosschain.NAVAnchor{
		VaultID:     in.VaultID,
		Epoch:       in.Epoch,
		NAVPerShare: in.NAVPerShare,
		LedgerRoot:  in.LedgerRoot,
		Timestamp:   in.Timestamp,
	}

	started := time.Now()
	hash, err := c.Anchorer.Anchor(ctx, in.Destination, anchor)
	out.DurationMs = float64(time.Since(started).Microseconds()) / 1000

	if err != nil {
		c.Health.RecordFailure(in.Destination.ChainID)
		c.saveState(ctx, in, crosschain.SyncFailed, "")
		c.Logger.Warn("Destination anchor failed",
			zap.String("vaultId", in.VaultID),
			zap.Uint64("epoch", in.Epoch),
			zap.Uint64("chainId", in.Destination.ChainID),
			zap.Error(err))
		return out, err
	}

	c.Health.RecordSuccess(in.Destination.ChainID)
	out.AnchorHash = hash
	c.saveState(ctx, in, crosschain.SyncSynced, hash)

	c.Logger.Info("Destination anchored",
		zap.String("vaultId", in.VaultID),
		zap.Uint64("epoch", in.Epoch),
		zap.Uint64("chainId", in.Destination.ChainID),
		zap.String("anchorHash", hash))

	return out, nil
}

// AnchorLedger anchors the drift-ledger root to the configured ledger
// destination. The ledger anchor is independent of the per-destination NAV
// anchors so a destination outage cannot lose the audit trail.
func (c *Context) AnchorLedger(ctx context.Context, in types.ActivityAnchorLedgerInput) (types.ActivityAnchorLedgerOutput, error) {
	var out types.ActivityAnchorLedgerOutput

	if c.LedgerDestination == nil {
		c.Logger.Debug("Ledger anchoring disabled", zap.String("vaultId", in.VaultID))
		return out, nil
	}

	anchor := crosschain.NAVAnchor{
		VaultID:    in.VaultID,
		Epoch:      in.Epoch,
		LedgerRoot: in.LedgerRoot,
		Timestamp:  in.Timestamp,
	}

	hash, err := c.Anchorer.Anchor(ctx, *c.LedgerDestination, anchor)
	if err != nil {
		c.Health.RecordFailure(c.LedgerDestination.ChainID)
		return out, err
	}

	c.Health.RecordSuccess(c.LedgerDestination.ChainID)
	out.AnchorHash = hash
	return out, nil
}

// saveState persists the destination sync state, best effort.
func (c *Context) saveState(ctx context.Context, in types.ActivityAnchorDestinationInput, status crosschain.SyncStatus, hash string) {
	st := crosschain.CrossChainState{
		VaultID:        in.VaultID,
		ChainID:        in.Destination.ChainID,
		Epoch:          in.Epoch,
		Status:         status,
		LastAnchorHash: hash,
		UpdatedAt:      time.Now().Unix(),
	}
	if err := c.Store.SaveCrossChainState(ctx, st); err != nil {
		c.Logger.Warn("Failed to persist cross-chain state",
			zap.String("vaultId", in.VaultID),
			zap.Uint64("chainId", in.Destination.ChainID),
			zap.Error(err))
	}
}
