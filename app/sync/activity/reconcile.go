package activity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/app/sync/types"
	"github.com/tessera-fund/vaultx/pkg/crosschain"
	"github.com/tessera-fund/vaultx/pkg/vault"
)

// ReviveFailedDestinations retries every destination whose last propagation
// attempt failed, anchoring the vault's current state rather than the epoch
// that originally failed. Older epochs are superseded the moment a newer one
// commits, so replaying them would only anchor stale data.
func (c *Context) ReviveFailedDestinations(ctx context.Context) (types.ActivityReviveOutput, error) {
	var out types.ActivityReviveOutput

	stale, err := c.Store.StaleCrossChainStates(ctx)
	if err != nil {
		return out, err
	}
	if len(stale) == 0 {
		return out, nil
	}

	vaults, err := c.Store.LoadVaults(ctx)
	if err != nil {
		return out, err
	}
	byID := make(map[string]*vault.Vault, len(vaults))
	for _, v := range vaults {
		byID[v.ID] = v
	}
	byChain := make(map[uint64]crosschain.Destination, len(c.Destinations))
	for _, d := range c.Destinations {
		byChain[d.ChainID] = d
	}

	for _, st := range stale {
		out.Examined++

		v, ok := byID[st.VaultID]
		if !ok {
			c.Logger.Warn("Stale sync state for unknown vault",
				zap.String("vaultId", st.VaultID),
				zap.Uint64("chainId", st.ChainID))
			continue
		}
		dest, ok := byChain[st.ChainID]
		if !ok {
			// Destination was removed from config; leave the row behind.
			continue
		}

		in := types.ActivityAnchorDestinationInput{
			VaultID:     v.ID,
			Epoch:       v.Epoch,
			NAVPerShare: v.NAVPerShare,
			Timestamp:   v.LastNAVUpdate,
			Destination: dest,
		}

		timeout := dest.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		destCtx, cancel := context.WithTimeout(ctx, timeout)
		_, anchorErr := c.AnchorDestination(destCtx, in)
		cancel()

		if anchorErr != nil {
			out.StillFailed++
			continue
		}
		out.Revived++
	}

	c.Logger.Info("Reconcile pass finished",
		zap.Uint64("examined", out.Examined),
		zap.Uint64("revived", out.Revived),
		zap.Uint64("stillFailed", out.StillFailed))

	return out, nil
}
