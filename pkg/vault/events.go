package vault

// Event payloads published on redis channels. Consumers are external
// dashboards and the sync worker; fields are stable JSON.

type NAVUpdatedEvent struct {
	VaultID        string `json:"vault_id"`
	Epoch          uint64 `json:"epoch"`
	OldNAVPerShare uint64 `json:"old_nav_per_share"`
	NAVPerShare    uint64 `json:"nav_per_share"`
	TotalAssets    uint64 `json:"total_assets"`
	DriftBps       uint64 `json:"drift_bps"`
	ConfidenceBps  uint64 `json:"confidence_bps"`
	ProofDigest    string `json:"proof_digest"`
	Timestamp      int64  `json:"timestamp"`
}

type EmergencyNAVAppliedEvent struct {
	VaultID     string `json:"vault_id"`
	Epoch       uint64 `json:"epoch"`
	NAVPerShare uint64 `json:"nav_per_share"`
	Reason      string `json:"reason"`
	Signers     int    `json:"signers"`
	Timestamp   int64  `json:"timestamp"`
}

type RedemptionRequestedEvent struct {
	VaultID        string `json:"vault_id"`
	RequestID      string `json:"request_id"`
	User           string `json:"user"`
	Tranche        string `json:"tranche"`
	Type           string `json:"type"`
	Shares         uint64 `json:"shares"`
	ExpectedAssets uint64 `json:"expected_assets"`
	FeeAmount      uint64 `json:"fee_amount"`
	Timestamp      int64  `json:"timestamp"`
}

type RedemptionsProcessedEvent struct {
	VaultID        string `json:"vault_id"`
	BatchID        string `json:"batch_id"`
	Processed      uint64 `json:"processed"`
	Failed         uint64 `json:"failed"`
	AssetsRedeemed uint64 `json:"assets_redeemed"`
	FeesCollected  uint64 `json:"fees_collected"`
	Halted         bool   `json:"halted"`
	Timestamp      int64  `json:"timestamp"`
}
