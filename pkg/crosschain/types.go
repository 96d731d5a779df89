// Package crosschain models the destinations a committed NAV epoch is
// propagated to, and the anchor clients that write to them. Propagation is
// strictly downstream of local commitment: a destination failure marks that
// destination stale and never rolls anything back.
package crosschain

import (
	"errors"
	"time"
)

var (
	ErrConfirmationTimeout = errors.New("anchor confirmation polling timed out")
	ErrAnchorRejected      = errors.New("destination rejected the anchor")
)

// DestinationKind distinguishes transports.
type DestinationKind string

const (
	KindEVM      DestinationKind = "evm"
	KindCosmos   DestinationKind = "cosmos"
	KindInternal DestinationKind = "internal"
)

// Destination is one chain an epoch is anchored to.
type Destination struct {
	ChainID  uint64          `json:"chain_id"`
	Name     string          `json:"name"`
	Kind     DestinationKind `json:"kind"`
	Endpoint string          `json:"endpoint"`

	// Timeout bounds the whole anchor attempt for this destination,
	// confirmation polling included.
	Timeout time.Duration `json:"timeout"`
}

// NAVAnchor is the payload anchored to a destination.
type NAVAnchor struct {
	VaultID     string `json:"vault_id"`
	Epoch       uint64 `json:"epoch"`
	NAVPerShare uint64 `json:"nav_per_share"`
	LedgerRoot  string `json:"ledger_root,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// AnchorResult is the per-destination outcome of one propagation round.
type AnchorResult struct {
	ChainID    uint64        `json:"chain_id"`
	AnchorHash string        `json:"anchor_hash,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// SyncStatus is the per-(vault, chain) propagation state.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSyncing SyncStatus = "syncing"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// CrossChainState is the persisted propagation record for one destination.
type CrossChainState struct {
	VaultID        string     `json:"vault_id"`
	ChainID        uint64     `json:"chain_id"`
	Epoch          uint64     `json:"epoch"`
	Status         SyncStatus `json:"status"`
	LastAnchorHash string     `json:"last_anchor_hash,omitempty"`
	UpdatedAt      int64      `json:"updated_at"`
}

// SyncResult aggregates a full propagation round across destinations.
type SyncResult struct {
	VaultID          string         `json:"vault_id"`
	Epoch            uint64         `json:"epoch"`
	Successful       uint64         `json:"successful"`
	Failed           uint64         `json:"failed"`
	Anchors          []AnchorResult `json:"anchors"`
	LedgerAnchorHash string         `json:"ledger_anchor_hash,omitempty"`
	AttestationOK    bool           `json:"attestation_ok"`
	Duration         time.Duration  `json:"duration"`
}
