package vaultstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tessera-fund/vaultx/pkg/db/clickhouse"
	"github.com/tessera-fund/vaultx/pkg/redemption"
	"github.com/tessera-fund/vaultx/pkg/vault"
)

func (db *DB) initRedemptionRequests(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."redemption_requests" (
			id              String,
			vault_id        String,
			user            String,
			tranche         UInt8,
			type            UInt8,
			status          UInt8,
			shares          UInt64,
			expected_assets UInt64,
			fee_bps         UInt64,
			fee_amount      UInt64,
			min_assets_out  UInt64,
			requested_at    Int64,
			request_slot    UInt64,
			processing_slot UInt64,
			position        UInt64,
			priority_score  UInt64,
			commitment_hash String,
			failure_reason  String,
			updated_at      DateTime64(3)
		) ENGINE = %s
		ORDER BY (vault_id, id)
	`, db.Name, clickhouse.Engine(clickhouse.ReplacingMergeTree, "updated_at"))
	return db.Exec(ctx, query)
}

func (db *DB) initQueueMeta(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."redemption_queue_meta" (
			vault_id      String,
			head          UInt64,
			tail          UInt64,
			total_pending UInt64,
			updated_at    DateTime64(3)
		) ENGINE = %s
		ORDER BY (vault_id)
	`, db.Name, clickhouse.Engine(clickhouse.ReplacingMergeTree, "updated_at"))
	return db.Exec(ctx, query)
}

func (db *DB) initUserHoldings(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."user_holdings" (
			vault_id     String,
			user         String,
			tranche      UInt8,
			shares       UInt64,
			deposit_slot UInt64,
			updated_at   DateTime64(3)
		) ENGINE = %s
		ORDER BY (vault_id, user, tranche)
	`, db.Name, clickhouse.Engine(clickhouse.ReplacingMergeTree, "updated_at"))
	return db.Exec(ctx, query)
}

// SaveRequest upserts one request row.
func (db *DB) SaveRequest(ctx context.Context, req *redemption.Request) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."redemption_requests" (
			id, vault_id, user, tranche, type, status, shares, expected_assets,
			fee_bps, fee_amount, min_assets_out, requested_at, request_slot,
			processing_slot, position, priority_score, commitment_hash,
			failure_reason, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, db.Name)
	return db.Exec(ctx, query,
		req.ID, req.VaultID, req.User, uint8(req.Tranche), uint8(req.Type),
		uint8(req.Status), req.Shares, req.ExpectedAssets, req.FeeBps,
		req.FeeAmount, req.MinAssetsOut, req.RequestedAt, req.RequestSlot,
		req.ProcessingSlot, req.Position, req.PriorityScore,
		hex.EncodeToString(req.CommitmentHash[:]), req.FailureReason, time.Now())
}

// SaveQueueMeta persists the queue watermarks.
func (db *DB) SaveQueueMeta(ctx context.Context, vaultID string, head, tail, totalPending uint64) error {
	query := fmt.Sprintf(
		`INSERT INTO "%s"."redemption_queue_meta" (vault_id, head, tail, total_pending, updated_at) VALUES (?, ?, ?, ?, ?)`,
		db.Name,
	)
	return db.Exec(ctx, query, vaultID, head, tail, totalPending, time.Now())
}

type queueMetaRow struct {
	Head         uint64 `ch:"head"`
	Tail         uint64 `ch:"tail"`
	TotalPending uint64 `ch:"total_pending"`
}

// LoadQueueMeta returns the persisted watermarks, zeros when no row exists.
func (db *DB) LoadQueueMeta(ctx context.Context, vaultID string) (uint64, uint64, uint64, error) {
	var rows []queueMetaRow
	query := fmt.Sprintf(
		`SELECT head, tail, total_pending FROM "%s"."redemption_queue_meta" FINAL WHERE vault_id = ?`,
		db.Name,
	)
	if err := db.Select(ctx, &rows, query, vaultID); err != nil {
		return 0, 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, 0, nil
	}
	return rows[0].Head, rows[0].Tail, rows[0].TotalPending, nil
}

type requestRow struct {
	ID             string `ch:"id"`
	VaultID        string `ch:"vault_id"`
	User           string `ch:"user"`
	Tranche        uint8  `ch:"tranche"`
	Type           uint8  `ch:"type"`
	Status         uint8  `ch:"status"`
	Shares         uint64 `ch:"shares"`
	ExpectedAssets uint64 `ch:"expected_assets"`
	FeeBps         uint64 `ch:"fee_bps"`
	FeeAmount      uint64 `ch:"fee_amount"`
	MinAssetsOut   uint64 `ch:"min_assets_out"`
	RequestedAt    int64  `ch:"requested_at"`
	RequestSlot    uint64 `ch:"request_slot"`
	ProcessingSlot uint64 `ch:"processing_slot"`
	Position       uint64 `ch:"position"`
	PriorityScore  uint64 `ch:"priority_score"`
	CommitmentHash string `ch:"commitment_hash"`
	FailureReason  string `ch:"failure_reason"`
}

// PendingRequests returns every non-terminal request for a vault, used to
// rebuild the in-memory queue at boot.
func (db *DB) PendingRequests(ctx context.Context, vaultID string) ([]*redemption.Request, error) {
	var rows []requestRow
	query := fmt.Sprintf(`
		SELECT id, vault_id, user, tranche, type, status, shares,
			expected_assets, fee_bps, fee_amount, min_assets_out, requested_at,
			request_slot, processing_slot, position, priority_score,
			commitment_hash, failure_reason
		FROM "%s"."redemption_requests" FINAL
		WHERE vault_id = ? AND status = ?
		ORDER BY position
	`, db.Name)
	if err := db.Select(ctx, &rows, query, vaultID, uint8(redemption.StatusPending)); err != nil {
		return nil, err
	}

	out := make([]*redemption.Request, 0, len(rows))
	for _, row := range rows {
		req := &redemption.Request{
			ID:             row.ID,
			VaultID:        row.VaultID,
			User:           row.User,
			Tranche:        vault.TrancheType(row.Tranche),
			Type:           redemption.Type(row.Type),
			Status:         redemption.Status(row.Status),
			Shares:         row.Shares,
			ExpectedAssets: row.ExpectedAssets,
			FeeBps:         row.FeeBps,
			FeeAmount:      row.FeeAmount,
			MinAssetsOut:   row.MinAssetsOut,
			RequestedAt:    row.RequestedAt,
			RequestSlot:    row.RequestSlot,
			ProcessingSlot: row.ProcessingSlot,
			Position:       row.Position,
			PriorityScore:  row.PriorityScore,
			FailureReason:  row.FailureReason,
		}
		if hash, err := hex.DecodeString(row.CommitmentHash); err == nil && len(hash) == 32 {
			copy(req.CommitmentHash[:], hash)
		}
		out = append(out, req)
	}
	return out, nil
}

// SaveHolding upserts one user position.
func (db *DB) SaveHolding(ctx context.Context, vaultID, user string, tranche vault.TrancheType, shares, depositSlot uint64) error {
	query := fmt.Sprintf(
		`INSERT INTO "%s"."user_holdings" (vault_id, user, tranche, shares, deposit_slot, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		db.Name,
	)
	return db.Exec(ctx, query, vaultID, user, uint8(tranche), shares, depositSlot, time.Now())
}

type holdingQueryRow struct {
	User        string `ch:"user"`
	Tranche     uint8  `ch:"tranche"`
	Shares      uint64 `ch:"shares"`
	DepositSlot uint64 `ch:"deposit_slot"`
}

// LoadHoldings returns every live position for a vault.
func (db *DB) LoadHoldings(ctx context.Context, vaultID string) ([]redemption.HoldingRow, error) {
	var rows []holdingQueryRow
	query := fmt.Sprintf(
		`SELECT user, tranche, shares, deposit_slot FROM "%s"."user_holdings" FINAL WHERE vault_id = ?`,
		db.Name,
	)
	if err := db.Select(ctx, &rows, query, vaultID); err != nil {
		return nil, err
	}

	out := make([]redemption.HoldingRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, redemption.HoldingRow{
			User:        row.User,
			Tranche:     vault.TrancheType(row.Tranche),
			Shares:      row.Shares,
			DepositSlot: row.DepositSlot,
		})
	}
	return out, nil
}
