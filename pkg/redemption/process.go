package redemption

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/pkg/redis"
	"github.com/tessera-fund/vaultx/pkg/vault"
	"github.com/tessera-fund/vaultx/pkg/vaultmath"
)

// ProcessResult summarizes one batch run. AssetsRedeemed is the net amount
// paid out; FeesCollected is the fee slice retained by the vault.
type ProcessResult struct {
	BatchID        string `json:"batch_id"`
	Processed      uint64 `json:"processed"`
	Failed         uint64 `json:"failed"`
	AssetsRedeemed uint64 `json:"assets_redeemed"`
	FeesCollected  uint64 `json:"fees_collected"`
	Halted         bool   `json:"halted"`
}

// ProcessQueue executes up to maxCount queued requests in strict FIFO order.
// The batch halts, without error, at the first request whose processing slot
// has not arrived: later arrivals can never jump an earlier one. A request
// whose commitment fails re-verification, or that the vault can no longer
// cover, is marked Failed and the head still advances.
func (s *Scheduler) ProcessQueue(ctx context.Context, vaultID, batchID string, maxCount uint64) (ProcessResult, error) {
	handle, err := s.Registry.Get(vaultID)
	if err != nil {
		return ProcessResult{}, err
	}

	q := s.queue(vaultID)
	if !q.processing.CompareAndSwap(false, true) {
		return ProcessResult{}, ErrProcessingInProgress
	}
	defer q.processing.Store(false)

	res := ProcessResult{BatchID: batchID}
	err = handle.WithLock(func(v *vault.Vault) error {
		if v.Drift.Frozen(v.Config.FreezeThreshold) {
			return ErrRedemptionsFrozen
		}

		slot := s.Slots.CurrentSlot()
		for res.Processed+res.Failed < maxCount && q.Head < q.Tail {
			req := q.Items[q.Head]
			if req == nil {
				q.Head++
				continue
			}

			if slot < req.ProcessingSlot {
				res.Halted = true
				break
			}

			if s.executeQueued(ctx, v, q, req) {
				res.Processed++
				res.AssetsRedeemed += req.ExpectedAssets
				res.FeesCollected += req.FeeAmount
			} else {
				res.Failed++
			}
			delete(q.Items, q.Head)
			q.Head++
		}

		if err := s.Store.SaveQueueMeta(ctx, vaultID, q.Head, q.Tail, v.TotalPending); err != nil {
			return err
		}
		return s.Store.SaveVaultState(ctx, v)
	})
	if err != nil {
		return ProcessResult{}, err
	}

	s.publishProcessed(ctx, vaultID, res)
	return res, nil
}

// executeQueued settles one eligible request against current vault state.
// Returns false when the request is marked Failed; in both outcomes the
// pending reservation is released and the request is persisted terminal. A
// failed request returns its shares to the user's holding.
func (s *Scheduler) executeQueued(ctx context.Context, v *vault.Vault, q *vaultQueue, req *Request) bool {
	ok := true

	if CommitmentHash(req.User, req.Shares, req.ProcessingSlot) != req.CommitmentHash {
		req.Status = StatusFailed
		req.FailureReason = ErrInvalidCommitmentHash.Error()
		ok = false
	} else if req.ExpectedAssets > v.TotalAssets {
		req.Status = StatusFailed
		req.FailureReason = ErrInsufficientLiquidity.Error()
		ok = false
	} else {
		tranche := &v.Tranches[req.Tranche]
		tranche.TotalShares -= req.Shares
		v.TotalShares -= req.Shares
		v.TotalAssets -= req.ExpectedAssets
		req.Status = StatusExecuted
	}

	if !ok {
		key := holdingKey{User: req.User, Tranche: req.Tranche}
		holding := q.Holdings[key]
		if holding == nil {
			holding = &Holding{}
			q.Holdings[key] = holding
		}
		holding.Shares += req.Shares
		if err := s.Store.SaveHolding(ctx, v.ID, req.User, req.Tranche, holding.Shares, holding.DepositSlot); err != nil {
			s.Logger.Warn("failed to persist restored holding",
				zap.String("vaultId", v.ID),
				zap.String("requestId", req.ID),
				zap.Error(err))
		}
	}

	// Reservation is released on execution and failure alike. An underflow
	// here means the reservation ledger no longer matches the queue.
	remaining, err := vaultmath.CheckedSub(v.TotalPending, req.ExpectedAssets)
	if err != nil {
		s.Logger.Error("pending reservation underflow",
			zap.String("vaultId", v.ID),
			zap.String("requestId", req.ID),
			zap.Uint64("totalPending", v.TotalPending),
			zap.Uint64("expectedAssets", req.ExpectedAssets))
		remaining = 0
	}
	v.TotalPending = remaining

	if err := s.Store.SaveRequest(ctx, req); err != nil {
		s.Logger.Warn("failed to persist processed request",
			zap.String("vaultId", v.ID),
			zap.String("requestId", req.ID),
			zap.Error(err))
	}
	if !ok {
		s.Logger.Info("redemption request failed",
			zap.String("vaultId", v.ID),
			zap.String("requestId", req.ID),
			zap.String("reason", req.FailureReason))
	}
	return ok
}

// ProcessAuctionBatch clears eligible auction requests in priority order at
// their commitment-time terms. Requests the remaining liquidity cannot cover
// stay in the set for the next batch.
func (s *Scheduler) ProcessAuctionBatch(ctx context.Context, vaultID, batchID string) (ProcessResult, error) {
	handle, err := s.Registry.Get(vaultID)
	if err != nil {
		return ProcessResult{}, err
	}

	q := s.queue(vaultID)
	if !q.processing.CompareAndSwap(false, true) {
		return ProcessResult{}, ErrProcessingInProgress
	}
	defer q.processing.Store(false)

	res := ProcessResult{BatchID: batchID}
	err = handle.WithLock(func(v *vault.Vault) error {
		if v.Drift.Frozen(v.Config.FreezeThreshold) {
			return ErrRedemptionsFrozen
		}

		slot := s.Slots.CurrentSlot()
		var eligible, deferred []*Request
		for _, req := range q.Auction {
			if slot >= req.ProcessingSlot {
				eligible = append(eligible, req)
			} else {
				deferred = append(deferred, req)
			}
		}

		sort.SliceStable(eligible, func(i, j int) bool {
			if eligible[i].PriorityScore != eligible[j].PriorityScore {
				return eligible[i].PriorityScore > eligible[j].PriorityScore
			}
			return eligible[i].RequestedAt < eligible[j].RequestedAt
		})

		for _, req := range eligible {
			if req.ExpectedAssets > v.TotalAssets {
				// Out of liquidity for this one; it waits for the next batch.
				deferred = append(deferred, req)
				continue
			}
			if s.executeQueued(ctx, v, q, req) {
				res.Processed++
				res.AssetsRedeemed += req.ExpectedAssets
				res.FeesCollected += req.FeeAmount
			} else {
				res.Failed++
			}
		}
		q.Auction = deferred

		if err := s.Store.SaveQueueMeta(ctx, vaultID, q.Head, q.Tail, v.TotalPending); err != nil {
			return err
		}
		return s.Store.SaveVaultState(ctx, v)
	})
	if err != nil {
		return ProcessResult{}, err
	}

	s.publishProcessed(ctx, vaultID, res)
	return res, nil
}

// Frozen reports whether the drift circuit currently blocks processing.
func (s *Scheduler) Frozen(vaultID string) bool {
	handle, err := s.Registry.Get(vaultID)
	if err != nil {
		return false
	}
	var frozen bool
	_ = handle.WithLock(func(v *vault.Vault) error {
		frozen = v.Drift.Frozen(v.Config.FreezeThreshold)
		return nil
	})
	return frozen
}

func (s *Scheduler) publishProcessed(ctx context.Context, vaultID string, res ProcessResult) {
	if s.Redis == nil {
		return
	}
	payload, err := json.Marshal(vault.RedemptionsProcessedEvent{
		VaultID:        vaultID,
		BatchID:        res.BatchID,
		Processed:      res.Processed,
		Failed:         res.Failed,
		AssetsRedeemed: res.AssetsRedeemed,
		FeesCollected:  res.FeesCollected,
		Halted:         res.Halted,
		Timestamp:      time.Now().Unix(),
	})
	if err != nil {
		return
	}
	s.Redis.XAdd(ctx, redis.StreamRedemptions, map[string]interface{}{
		"event":   "redemption.processed",
		"payload": string(payload),
	})
}
