// Package redemption implements the redemption scheduler: instant payouts
// against free liquidity, a commit-delayed FIFO queue, and priority-ordered
// auction batches. Queued requests carry a commitment hash bound to their
// scheduled slot, so neither the amount nor the timing can be swapped after
// submission.
package redemption

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/blake2b"

	"github.com/tessera-fund/vaultx/pkg/vault"
)

var (
	ErrInvalidRedemptionAmount = errors.New("redemption shares must be positive")
	ErrInsufficientShares      = errors.New("insufficient share balance")
	ErrSharesLocked            = errors.New("shares are still in the lock period")
	ErrDepositTooSmall         = errors.New("deposit below tranche minimum")
	ErrDepositTooLarge         = errors.New("deposit above tranche maximum")
	ErrInsufficientLiquidity   = errors.New("insufficient instant liquidity")
	ErrRedemptionQueueFull     = errors.New("redemption queue is full")
	ErrSlippageExceeded        = errors.New("net assets below requested minimum")
	ErrInvalidCommitmentHash   = errors.New("commitment hash mismatch")
	ErrBelowAuctionMinimum     = errors.New("share quantity below auction minimum")
	ErrRedemptionsFrozen       = errors.New("redemptions are frozen by the drift circuit")
	ErrProcessingInProgress    = errors.New("a processing batch is already running")
)

// Type selects the redemption execution path.
type Type uint8

const (
	TypeInstant Type = iota
	TypeQueued
	TypeAuction
)

func (t Type) String() string {
	switch t {
	case TypeInstant:
		return "instant"
	case TypeQueued:
		return "queued"
	case TypeAuction:
		return "auction"
	default:
		return "unknown"
	}
}

// Status is the request lifecycle. Executed and Cancelled are terminal.
type Status uint8

const (
	StatusPending Status = iota
	StatusProcessing
	StatusExecuted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusExecuted:
		return "executed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Request is one redemption order.
type Request struct {
	ID             string            `json:"id"`
	VaultID        string            `json:"vault_id"`
	User           string            `json:"user"`
	Tranche        vault.TrancheType `json:"tranche"`
	Type           Type              `json:"type"`
	Status         Status            `json:"status"`
	Shares         uint64            `json:"shares"`
	ExpectedAssets uint64            `json:"expected_assets"`
	FeeBps         uint64            `json:"fee_bps"`
	FeeAmount      uint64            `json:"fee_amount"`
	MinAssetsOut   uint64            `json:"min_assets_out"`
	RequestedAt    int64             `json:"requested_at"`
	RequestSlot    uint64            `json:"request_slot"`
	ProcessingSlot uint64            `json:"processing_slot"`
	Position       uint64            `json:"position"`
	PriorityScore  uint64            `json:"priority_score"`
	CommitmentHash [32]byte          `json:"commitment_hash"`
	FailureReason  string            `json:"failure_reason,omitempty"`
}

const commitmentDomain = "vaultx:commit:v1"

// CommitmentHash binds a request to its user, share quantity and scheduled
// processing slot. Recomputed at execution against the original slot, so a
// reordered or mutated request fails closed.
func CommitmentHash(user string, shares, processingSlot uint64) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(commitmentDomain))
	h.Write([]byte(user))

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], shares)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], processingSlot)
	h.Write(buf[:])

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// trancheBaseScores orders auction priority by seniority.
var trancheBaseScores = [vault.TrancheCount]uint64{1000, 800, 600, 400, 200}

// PriorityScore ranks auction participants: seniority base plus a size bonus
// capped so a whale cannot out-rank a more senior tranche.
func PriorityScore(tranche vault.TrancheType, shares uint64) uint64 {
	base := trancheBaseScores[vault.TrancheCount-1]
	if int(tranche) < len(trancheBaseScores) {
		base = trancheBaseScores[tranche]
	}
	bonus := shares / 1000
	if bonus > 500 {
		bonus = 500
	}
	return base + bonus
}

// SlotSource supplies the current logical slot. Injectable so tests and
// non-chain deployments can drive time explicitly.
type SlotSource interface {
	CurrentSlot() uint64
}

// SlotFunc adapts a function to SlotSource.
type SlotFunc func() uint64

func (f SlotFunc) CurrentSlot() uint64 { return f() }
