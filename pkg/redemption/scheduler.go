package redemption

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/pkg/redis"
	"github.com/tessera-fund/vaultx/pkg/vault"
	"github.com/tessera-fund/vaultx/pkg/vaultmath"
)

// DelaySlots is the mandatory gap between a queued request and its earliest
// processing slot. The commitment hash is bound to the scheduled slot, so
// front-running the queue requires breaking the hash.
const DelaySlots = 10

// Store is the durable surface for requests, queue watermarks and holdings.
type Store interface {
	SaveRequest(ctx context.Context, req *Request) error
	SaveQueueMeta(ctx context.Context, vaultID string, head, tail, totalPending uint64) error
	LoadQueueMeta(ctx context.Context, vaultID string) (head, tail, totalPending uint64, err error)
	PendingRequests(ctx context.Context, vaultID string) ([]*Request, error)
	SaveHolding(ctx context.Context, vaultID, user string, tranche vault.TrancheType, shares, depositSlot uint64) error
	LoadHoldings(ctx context.Context, vaultID string) ([]HoldingRow, error)
	SaveVaultState(ctx context.Context, v *vault.Vault) error
}

// HoldingRow is one persisted user position.
type HoldingRow struct {
	User        string
	Tranche     vault.TrancheType
	Shares      uint64
	DepositSlot uint64
}

// Holding is a user's live position in one tranche.
type Holding struct {
	Shares      uint64
	DepositSlot uint64
}

type holdingKey struct {
	User    string
	Tranche vault.TrancheType
}

// vaultQueue is the in-memory queue state for one vault. Mutated only under
// the vault's registry handle lock; the processing flag alone is atomic so
// batch runs can fail fast without taking the lock.
type vaultQueue struct {
	Head     uint64
	Tail     uint64
	Items    map[uint64]*Request
	Auction  []*Request
	Holdings map[holdingKey]*Holding

	processing atomic.Bool
}

func newVaultQueue() *vaultQueue {
	return &vaultQueue{
		Items:    make(map[uint64]*Request),
		Holdings: make(map[holdingKey]*Holding),
	}
}

// Scheduler routes redemption requests and drives batch processing.
type Scheduler struct {
	Logger   *zap.Logger
	Registry *vault.Registry
	Store    Store
	Redis    *redis.Client
	Slots    SlotSource

	queues *xsync.Map[string, *vaultQueue]
}

func NewScheduler(logger *zap.Logger, registry *vault.Registry, store Store, slots SlotSource) *Scheduler {
	return &Scheduler{
		Logger:   logger,
		Registry: registry,
		Store:    store,
		Slots:    slots,
		queues:   xsync.NewMap[string, *vaultQueue](),
	}
}

func (s *Scheduler) queue(vaultID string) *vaultQueue {
	q, _ := s.queues.LoadOrCompute(vaultID, func() (*vaultQueue, bool) {
		return newVaultQueue(), false
	})
	return q
}

// Resume rebuilds the in-memory queue for a vault from the durable store.
// Called once per vault at boot, before any request is accepted.
func (s *Scheduler) Resume(ctx context.Context, vaultID string) error {
	handle, err := s.Registry.Get(vaultID)
	if err != nil {
		return err
	}

	return handle.WithLock(func(v *vault.Vault) error {
		q := s.queue(vaultID)

		head, tail, totalPending, err := s.Store.LoadQueueMeta(ctx, vaultID)
		if err != nil {
			return err
		}
		q.Head, q.Tail = head, tail
		v.TotalPending = totalPending

		pending, err := s.Store.PendingRequests(ctx, vaultID)
		if err != nil {
			return err
		}
		for _, req := range pending {
			switch req.Type {
			case TypeQueued:
				q.Items[req.Position] = req
			case TypeAuction:
				q.Auction = append(q.Auction, req)
			}
		}

		holdings, err := s.Store.LoadHoldings(ctx, vaultID)
		if err != nil {
			return err
		}
		for _, row := range holdings {
			q.Holdings[holdingKey{User: row.User, Tranche: row.Tranche}] = &Holding{
				Shares:      row.Shares,
				DepositSlot: row.DepositSlot,
			}
		}

		s.Logger.Info("resumed redemption queue",
			zap.String("vaultId", vaultID),
			zap.Uint64("head", q.Head),
			zap.Uint64("tail", q.Tail),
			zap.Int("pending", len(pending)),
			zap.Int("holdings", len(holdings)))
		return nil
	})
}

// RecordDeposit books a deposit into a tranche: mints shares at the current
// tranche NAV and restarts the user's lock period.
func (s *Scheduler) RecordDeposit(ctx context.Context, vaultID, user string, trancheIdx int, amount uint64) (uint64, error) {
	handle, err := s.Registry.Get(vaultID)
	if err != nil {
		return 0, err
	}

	var minted uint64
	err = handle.WithLock(func(v *vault.Vault) error {
		if v.Status == vault.StatusPaused {
			return vault.ErrVaultPaused
		}
		if trancheIdx < 0 || trancheIdx >= len(v.Tranches) {
			return vault.ErrInvalidTrancheIndex
		}
		tranche := &v.Tranches[trancheIdx]

		if amount < tranche.MinDeposit {
			return ErrDepositTooSmall
		}
		if tranche.MaxDeposit > 0 && amount > tranche.MaxDeposit {
			return ErrDepositTooLarge
		}

		newTotal, err := vaultmath.CheckedAdd(v.TotalAssets, amount)
		if err != nil {
			return err
		}
		if newTotal > v.Config.Capacity {
			return vault.ErrVaultCapacityExceeded
		}

		shares, err := vaultmath.SharesForDeposit(amount, tranche.NAVPerShare)
		if err != nil {
			return err
		}

		slot := s.Slots.CurrentSlot()
		q := s.queue(vaultID)
		key := holdingKey{User: user, Tranche: tranche.Type}
		holding := q.Holdings[key]
		if holding == nil {
			holding = &Holding{}
			q.Holdings[key] = holding
		}
		holding.Shares += shares
		holding.DepositSlot = slot

		tranche.TotalShares += shares
		v.TotalShares += shares
		v.TotalAssets = newTotal
		minted = shares

		if err := s.Store.SaveHolding(ctx, vaultID, user, tranche.Type, holding.Shares, slot); err != nil {
			return err
		}
		return s.Store.SaveVaultState(ctx, v)
	})
	if err != nil {
		return 0, err
	}
	return minted, nil
}

// RequestRedemption validates and routes a redemption. Instant requests
// settle immediately against free liquidity; queued requests take a position
// behind the commit delay; auction requests join the next priority batch.
func (s *Scheduler) RequestRedemption(ctx context.Context, vaultID, user string, trancheIdx int, shares, minAssetsOut uint64, rtype Type) (*Request, error) {
	handle, err := s.Registry.Get(vaultID)
	if err != nil {
		return nil, err
	}

	var req *Request
	err = handle.WithLock(func(v *vault.Vault) error {
		if v.Status == vault.StatusPaused {
			return vault.ErrVaultPaused
		}
		if trancheIdx < 0 || trancheIdx >= len(v.Tranches) {
			return vault.ErrInvalidTrancheIndex
		}
		if shares == 0 {
			return ErrInvalidRedemptionAmount
		}
		tranche := &v.Tranches[trancheIdx]

		q := s.queue(vaultID)
		key := holdingKey{User: user, Tranche: tranche.Type}
		holding := q.Holdings[key]
		if holding == nil || holding.Shares < shares {
			return ErrInsufficientShares
		}

		slot := s.Slots.CurrentSlot()
		if slot < holding.DepositSlot+tranche.LockPeriodSlots {
			return ErrSharesLocked
		}

		gross, err := vaultmath.AssetsForRedemption(shares, tranche.NAVPerShare)
		if err != nil {
			return err
		}
		feeBps := FeeBps(v, *tranche, rtype)
		fee, err := vaultmath.ApplyBps(gross, feeBps)
		if err != nil {
			return err
		}
		net := gross - fee
		if net < minAssetsOut {
			return ErrSlippageExceeded
		}

		req = &Request{
			ID:             uuid.NewString(),
			VaultID:        vaultID,
			User:           user,
			Tranche:        tranche.Type,
			Type:           rtype,
			Status:         StatusPending,
			Shares:         shares,
			ExpectedAssets: net,
			FeeBps:         feeBps,
			FeeAmount:      fee,
			MinAssetsOut:   minAssetsOut,
			RequestedAt:    time.Now().Unix(),
			RequestSlot:    slot,
		}

		switch rtype {
		case TypeInstant:
			if net > InstantLiquidity(v) {
				return ErrInsufficientLiquidity
			}
			holding.Shares -= shares
			tranche.TotalShares -= shares
			v.TotalShares -= shares
			v.TotalAssets -= net
			req.Status = StatusExecuted
			req.ProcessingSlot = slot

		case TypeQueued:
			if q.Tail-q.Head >= v.Config.MaxQueueSize {
				return ErrRedemptionQueueFull
			}
			req.ProcessingSlot = slot + DelaySlots
			req.CommitmentHash = CommitmentHash(user, shares, req.ProcessingSlot)
			req.Position = q.Tail
			q.Items[q.Tail] = req
			q.Tail++
			holding.Shares -= shares
			v.TotalPending += net

		case TypeAuction:
			if shares < v.Config.MinAuctionShares {
				return ErrBelowAuctionMinimum
			}
			req.ProcessingSlot = slot + DelaySlots
			req.CommitmentHash = CommitmentHash(user, shares, req.ProcessingSlot)
			req.PriorityScore = PriorityScore(tranche.Type, shares)
			q.Auction = append(q.Auction, req)
			holding.Shares -= shares
			v.TotalPending += net
		}

		if err := s.Store.SaveHolding(ctx, vaultID, user, tranche.Type, holding.Shares, holding.DepositSlot); err != nil {
			return err
		}
		if err := s.Store.SaveRequest(ctx, req); err != nil {
			return err
		}
		if err := s.Store.SaveQueueMeta(ctx, vaultID, q.Head, q.Tail, v.TotalPending); err != nil {
			return err
		}
		if err := s.Store.SaveVaultState(ctx, v); err != nil {
			return err
		}

		s.publishRequested(ctx, v, req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Scheduler) publishRequested(ctx context.Context, v *vault.Vault, req *Request) {
	if s.Redis == nil {
		return
	}
	payload, err := json.Marshal(vault.RedemptionRequestedEvent{
		VaultID:        v.ID,
		RequestID:      req.ID,
		User:           req.User,
		Tranche:        req.Tranche.String(),
		Type:           req.Type.String(),
		Shares:         req.Shares,
		ExpectedAssets: req.ExpectedAssets,
		FeeAmount:      req.FeeAmount,
		Timestamp:      req.RequestedAt,
	})
	if err != nil {
		return
	}
	s.Redis.XAdd(ctx, redis.StreamRedemptions, map[string]interface{}{
		"event":   "redemption.requested",
		"payload": string(payload),
	})
}
