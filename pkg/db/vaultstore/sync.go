package vaultstore

import (
	"context"
	"fmt"
	"time"

	"github.com/tessera-fund/vaultx/pkg/bridge"
	"github.com/tessera-fund/vaultx/pkg/crosschain"
	"github.com/tessera-fund/vaultx/pkg/db/clickhouse"
)

func (db *DB) initCrossChainState(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."cross_chain_state" (
			vault_id         String,
			chain_id         UInt64,
			epoch            UInt64,
			status           String,
			last_anchor_hash String,
			updated_at       DateTime64(3)
		) ENGINE = %s
		ORDER BY (vault_id, chain_id)
	`, db.Name, clickhouse.Engine(clickhouse.ReplacingMergeTree, "updated_at"))
	return db.Exec(ctx, query)
}

func (db *DB) initDefenseEvents(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."defense_events" (
			kind       String,
			severity   String,
			chain_id   UInt64,
			message_id String,
			oracle_id  String,
			detail     String,
			created_at DateTime64(3)
		) ENGINE = %s
		ORDER BY (created_at)
	`, db.Name, clickhouse.Engine(clickhouse.MergeTree, ""))
	return db.Exec(ctx, query)
}

// SaveCrossChainState upserts the sync record for one (vault, chain) pair.
func (db *DB) SaveCrossChainState(ctx context.Context, state crosschain.CrossChainState) error {
	query := fmt.Sprintf(
		`INSERT INTO "%s"."cross_chain_state" (vault_id, chain_id, epoch, status, last_anchor_hash, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		db.Name,
	)
	return db.Exec(ctx, query,
		state.VaultID, state.ChainID, state.Epoch, string(state.Status),
		state.LastAnchorHash, time.Now())
}

type crossChainRow struct {
	VaultID        string `ch:"vault_id"`
	ChainID        uint64 `ch:"chain_id"`
	Epoch          uint64 `ch:"epoch"`
	Status         string `ch:"status"`
	LastAnchorHash string `ch:"last_anchor_hash"`
	UpdatedAt      int64  `ch:"updated_at_unix"`
}

// CrossChainStates returns the latest sync record per destination.
func (db *DB) CrossChainStates(ctx context.Context, vaultID string) ([]crosschain.CrossChainState, error) {
	var rows []crossChainRow
	query := fmt.Sprintf(`
		SELECT vault_id, chain_id, epoch, status, last_anchor_hash,
			toInt64(toUnixTimestamp(updated_at)) AS updated_at_unix
		FROM "%s"."cross_chain_state" FINAL
		WHERE vault_id = ?
		ORDER BY chain_id
	`, db.Name)
	if err := db.Select(ctx, &rows, query, vaultID); err != nil {
		return nil, err
	}

	out := make([]crosschain.CrossChainState, 0, len(rows))
	for _, row := range rows {
		out = append(out, crosschain.CrossChainState{
			VaultID:        row.VaultID,
			ChainID:        row.ChainID,
			Epoch:          row.Epoch,
			Status:         crosschain.SyncStatus(row.Status),
			LastAnchorHash: row.LastAnchorHash,
			UpdatedAt:      row.UpdatedAt,
		})
	}
	return out, nil
}

// StaleCrossChainStates lists destinations whose last recorded sync failed,
// for the periodic reconciler.
func (db *DB) StaleCrossChainStates(ctx context.Context) ([]crosschain.CrossChainState, error) {
	var rows []crossChainRow
	query := fmt.Sprintf(`
		SELECT vault_id, chain_id, epoch, status, last_anchor_hash,
			toInt64(toUnixTimestamp(updated_at)) AS updated_at_unix
		FROM "%s"."cross_chain_state" FINAL
		WHERE status = ?
	`, db.Name)
	if err := db.Select(ctx, &rows, query, string(crosschain.SyncFailed)); err != nil {
		return nil, err
	}

	out := make([]crosschain.CrossChainState, 0, len(rows))
	for _, row := range rows {
		out = append(out, crosschain.CrossChainState{
			VaultID:        row.VaultID,
			ChainID:        row.ChainID,
			Epoch:          row.Epoch,
			Status:         crosschain.SyncStatus(row.Status),
			LastAnchorHash: row.LastAnchorHash,
			UpdatedAt:      row.UpdatedAt,
		})
	}
	return out, nil
}

// RecordDefenseEvent appends one alert to the audit table.
func (db *DB) RecordDefenseEvent(ctx context.Context, alert bridge.DefenseAlert) error {
	query := fmt.Sprintf(
		`INSERT INTO "%s"."defense_events" (kind, severity, chain_id, message_id, oracle_id, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		db.Name,
	)
	return db.Exec(ctx, query,
		string(alert.Kind), string(alert.Severity), alert.ChainID,
		alert.MessageID, alert.OracleID, alert.Detail, time.Now())
}
