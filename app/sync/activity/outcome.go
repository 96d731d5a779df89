package activity

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/app/sync/types"
	"github.com/tessera-fund/vaultx/pkg/redis"
)

// RecordSyncOutcome publishes the round summary to the sync outcomes stream.
// Downstream consumers (dashboards, alerting) read the stream; delivery is
// best effort and never fails the workflow.
func (c *Context) RecordSyncOutcome(ctx context.Context, in types.ActivityRecordSyncOutcomeInput) error {
	c.Logger.Info("Sync round finished",
		zap.String("vaultId", in.Result.VaultID),
		zap.Uint64("epoch", in.Result.Epoch),
		zap.Uint64("successful", in.Result.Successful),
		zap.Uint64("failed", in.Result.Failed),
		zap.Bool("attestationOk", in.Result.AttestationOK),
		zap.Duration("duration", in.Result.Duration))

	if c.RedisClient == nil {
		return nil
	}

	payload, err := json.Marshal(in.Result)
	if err != nil {
		c.Logger.Warn("Failed to marshal sync outcome", zap.Error(err))
		return nil
	}

	c.RedisClient.XAdd(ctx, redis.StreamSyncOutcomes, map[string]interface{}{
		"vault_id": in.Result.VaultID,
		"epoch":    in.Result.Epoch,
		"payload":  string(payload),
	})

	return nil
}
