// Package vault holds the core vault state model: tranches, NAV epochs, the
// drift ledger and the in-memory registry. Mutation goes through a per-vault
// handle lock; everything here is plain state with no I/O.
package vault

import "errors"

// TrancheType orders tranches from most to least senior. The zero value is
// Senior on purpose: payout and priority logic index arrays by this value.
type TrancheType uint8

const (
	TrancheSenior TrancheType = iota
	TrancheMezzanine
	TrancheJunior
	TrancheSubordinate
	TrancheEquity

	TrancheCount = 5
)

func (t TrancheType) String() string {
	switch t {
	case TrancheSenior:
		return "senior"
	case TrancheMezzanine:
		return "mezzanine"
	case TrancheJunior:
		return "junior"
	case TrancheSubordinate:
		return "subordinate"
	case TrancheEquity:
		return "equity"
	default:
		return "unknown"
	}
}

// VaultStatus is the coarse lifecycle state of a vault.
type VaultStatus uint8

const (
	StatusActive VaultStatus = iota
	StatusPaused
	StatusEmergency
)

func (s VaultStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// EmergencyReason tags why an emergency NAV override was applied.
type EmergencyReason uint8

const (
	ReasonOracleFailure EmergencyReason = iota
	ReasonMarketDislocation
	ReasonBridgeCompromise
	ReasonCustodyEvent
)

func (r EmergencyReason) String() string {
	switch r {
	case ReasonOracleFailure:
		return "oracle_failure"
	case ReasonMarketDislocation:
		return "market_dislocation"
	case ReasonBridgeCompromise:
		return "bridge_compromise"
	case ReasonCustodyEvent:
		return "custody_event"
	default:
		return "unknown"
	}
}

// Tranche is one layer of the capital structure. NAVPerShare and AccruedYield
// are fixed-point at vaultmath.ShareScale.
type Tranche struct {
	Type             TrancheType `json:"type"`
	NAVPerShare      uint64      `json:"nav_per_share"`
	TotalShares      uint64      `json:"total_shares"`
	AccruedYield     uint64      `json:"accrued_yield"`
	RedemptionFeeBps uint64      `json:"redemption_fee_bps"`
	MinDeposit       uint64      `json:"min_deposit"`
	MaxDeposit       uint64      `json:"max_deposit"`
	LockPeriodSlots  uint64      `json:"lock_period_slots"`
}

// Config carries the per-vault policy knobs set at creation.
type Config struct {
	MaxDriftBps        uint64 `json:"max_drift_bps"`
	FreezeThreshold    uint32 `json:"freeze_threshold"`
	Capacity           uint64 `json:"capacity"`
	MaxQueueSize       uint64 `json:"max_queue_size"`
	MinAuctionShares   uint64 `json:"min_auction_shares"`
	LiquidityReserveBps uint64 `json:"liquidity_reserve_bps"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxDriftBps:         500,
		FreezeThreshold:     3,
		Capacity:            1_000_000_000_000,
		MaxQueueSize:        10_000,
		MinAuctionShares:    100_000 * 1_000_000,
		LiquidityReserveBps: 1_000,
	}
}

// DefaultTranches returns the standard five-layer capital structure with
// every tranche at par. Seniority buys a lower fee and a shorter lock.
func DefaultTranches() []Tranche {
	fees := [TrancheCount]uint64{50, 75, 100, 150, 200}
	locks := [TrancheCount]uint64{0, 1_000, 5_000, 10_000, 25_000}
	tranches := make([]Tranche, TrancheCount)
	for i := range tranches {
		tranches[i] = Tranche{
			Type:             TrancheType(i),
			NAVPerShare:      1_000_000,
			RedemptionFeeBps: fees[i],
			MinDeposit:       1_000,
			MaxDeposit:       100_000_000_000,
			LockPeriodSlots:  locks[i],
		}
	}
	return tranches
}

// Vault is the full mutable state of one fund vault. Callers mutate it only
// while holding the registry handle lock for its ID.
type Vault struct {
	ID               string      `json:"id"`
	Status           VaultStatus `json:"status"`
	NAVPerShare      uint64      `json:"nav_per_share"`
	TotalAssets      uint64      `json:"total_assets"`
	TotalLiabilities uint64      `json:"total_liabilities"`
	TotalShares      uint64      `json:"total_shares"`
	Epoch            uint64      `json:"epoch"`
	LastNAVUpdate    int64       `json:"last_nav_update"`
	Tranches         []Tranche   `json:"tranches"`
	Drift            DriftLedger `json:"drift"`

	// TotalPending is assets reserved by queued redemptions, excluded from
	// instant liquidity until the queue drains.
	TotalPending uint64 `json:"total_pending"`

	Config Config `json:"config"`
}

// NAVSubmission is a signed oracle NAV report for one vault epoch.
type NAVSubmission struct {
	VaultID          string   `json:"vault_id"`
	OracleID         string   `json:"oracle_id"`
	NAVPerShare      uint64   `json:"nav_per_share"`
	TotalAssets      uint64   `json:"total_assets"`
	TotalLiabilities uint64   `json:"total_liabilities"`
	TrancheNAVs      []uint64 `json:"tranche_navs"`
	Timestamp        int64    `json:"timestamp"`

	// ConfidenceBps is the submitting oracle's self-reported confidence.
	// Advisory: recorded and published, never a rejection gate.
	ConfidenceBps uint64 `json:"confidence_bps"`
}

var (
	ErrVaultNotFound                    = errors.New("vault not found")
	ErrVaultPaused                      = errors.New("vault is paused")
	ErrInvalidTrancheIndex              = errors.New("invalid tranche index")
	ErrTrancheNAVCountMismatch          = errors.New("tranche NAV count mismatch")
	ErrExcessiveSeniorTrancheVolatility = errors.New("senior tranche NAV change exceeds volatility bound")
	ErrVaultCapacityExceeded            = errors.New("vault capacity exceeded")
)
