package types

import "github.com/tessera-fund/vaultx/pkg/crosschain"

// WorkflowSyncNavInput starts one propagation round for a committed epoch.
type WorkflowSyncNavInput struct {
	VaultID      string                   `json:"vault_id"`
	Epoch        uint64                   `json:"epoch"`
	NAVPerShare  uint64                   `json:"nav_per_share"`
	LedgerRoot   string                   `json:"ledger_root"`
	Timestamp    int64                    `json:"timestamp"`
	Destinations []crosschain.Destination `json:"destinations"`
}

// ActivityAnchorDestinationInput anchors one epoch to one destination.
type ActivityAnchorDestinationInput struct {
	VaultID     string                 `json:"vault_id"`
	Epoch       uint64                 `json:"epoch"`
	NAVPerShare uint64                 `json:"nav_per_share"`
	LedgerRoot  string                 `json:"ledger_root"`
	Timestamp   int64                  `json:"timestamp"`
	Destination crosschain.Destination `json:"destination"`
}

type ActivityAnchorDestinationOutput struct {
	ChainID    uint64  `json:"chain_id"`
	AnchorHash string  `json:"anchor_hash"`
	DurationMs float64 `json:"duration_ms"`
}

// ActivityAnchorLedgerInput anchors the drift-ledger root independently of
// the per-destination NAV anchors.
type ActivityAnchorLedgerInput struct {
	VaultID    string `json:"vault_id"`
	Epoch      uint64 `json:"epoch"`
	LedgerRoot string `json:"ledger_root"`
	Timestamp  int64  `json:"timestamp"`
}

type ActivityAnchorLedgerOutput struct {
	AnchorHash string `json:"anchor_hash"`
}

// ActivityVerifyAttestationInput checks the anchors of a finished round.
type ActivityVerifyAttestationInput struct {
	VaultID      string   `json:"vault_id"`
	Epoch        uint64   `json:"epoch"`
	NAVPerShare  uint64   `json:"nav_per_share"`
	AnchorHashes []string `json:"anchor_hashes"`
}

type ActivityVerifyAttestationOutput struct {
	OK          bool   `json:"ok"`
	Attestation string `json:"attestation"`
}

// ActivityRecordSyncOutcomeInput persists and publishes the round summary.
type ActivityRecordSyncOutcomeInput struct {
	Result crosschain.SyncResult `json:"result"`
}

// ActivityReviveOutput summarizes one reconcile pass over failed
// destination states.
type ActivityReviveOutput struct {
	Examined    uint64 `json:"examined"`
	Revived     uint64 `json:"revived"`
	StillFailed uint64 `json:"still_failed"`
}
