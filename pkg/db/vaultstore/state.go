package vaultstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/tessera-fund/vaultx/pkg/db/clickhouse"
	"github.com/tessera-fund/vaultx/pkg/vault"
)

func (db *DB) initVaultState(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."vault_state" (
			vault_id               String,
			status                 UInt8,
			nav_per_share          UInt64,
			total_assets           UInt64,
			total_liabilities      UInt64,
			total_shares           UInt64,
			total_pending          UInt64,
			epoch                  UInt64,
			last_nav_update        Int64,
			consecutive_violations UInt32,
			max_drift_bps          UInt64,
			freeze_threshold       UInt32,
			capacity               UInt64,
			max_queue_size         UInt64,
			min_auction_shares     UInt64,
			liquidity_reserve_bps  UInt64,
			updated_at             DateTime64(3)
		) ENGINE = %s
		ORDER BY (vault_id)
	`, db.Name, clickhouse.Engine(clickhouse.ReplacingMergeTree, "updated_at"))
	return db.Exec(ctx, query)
}

func (db *DB) initTranches(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."tranches" (
			vault_id          String,
			tranche           UInt8,
			epoch             UInt64,
			nav_per_share     UInt64,
			total_shares      UInt64,
			accrued_yield     UInt64,
			fee_bps           UInt64,
			min_deposit       UInt64,
			max_deposit       UInt64,
			lock_period_slots UInt64
		) ENGINE = %s
		ORDER BY (vault_id, tranche)
	`, db.Name, clickhouse.Engine(clickhouse.ReplacingMergeTree, "epoch"))
	return db.Exec(ctx, query)
}

func (db *DB) initDriftEpochs(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."drift_epochs" (
			vault_id  String,
			epoch     UInt64,
			drift_bps UInt64,
			violation UInt8,
			created_at DateTime64(3)
		) ENGINE = %s
		ORDER BY (vault_id, epoch)
	`, db.Name, clickhouse.Engine(clickhouse.MergeTree, ""))
	return db.Exec(ctx, query)
}

// SaveVaultState upserts the latest vault row.
func (db *DB) SaveVaultState(ctx context.Context, v *vault.Vault) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."vault_state" (
			vault_id, status, nav_per_share, total_assets, total_liabilities,
			total_shares, total_pending, epoch, last_nav_update,
			consecutive_violations, max_drift_bps, freeze_threshold, capacity,
			max_queue_size, min_auction_shares, liquidity_reserve_bps, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, db.Name)
	return db.Exec(ctx, query,
		v.ID, uint8(v.Status), v.NAVPerShare, v.TotalAssets, v.TotalLiabilities,
		v.TotalShares, v.TotalPending, v.Epoch, v.LastNAVUpdate, v.Drift.ConsecutiveViolations,
		v.Config.MaxDriftBps, v.Config.FreezeThreshold, v.Config.Capacity,
		v.Config.MaxQueueSize, v.Config.MinAuctionShares,
		v.Config.LiquidityReserveBps, time.Now())
}

// SaveTranches writes the full tranche vector for an epoch as one batch.
func (db *DB) SaveTranches(ctx context.Context, vaultID string, epoch uint64, tranches []vault.Tranche) error {
	if len(tranches) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		`INSERT INTO "%s"."tranches" (vault_id, tranche, epoch, nav_per_share, total_shares, accrued_yield, fee_bps, min_deposit, max_deposit, lock_period_slots) VALUES`,
		db.Name,
	)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, t := range tranches {
		err = batch.Append(
			vaultID,
			uint8(t.Type),
			epoch,
			t.NAVPerShare,
			t.TotalShares,
			t.AccruedYield,
			t.RedemptionFeeBps,
			t.MinDeposit,
			t.MaxDeposit,
			t.LockPeriodSlots,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

// SaveDriftEpoch appends one drift observation.
func (db *DB) SaveDriftEpoch(ctx context.Context, vaultID string, epoch, driftBps uint64, violation bool) error {
	var flag uint8
	if violation {
		flag = 1
	}
	query := fmt.Sprintf(
		`INSERT INTO "%s"."drift_epochs" (vault_id, epoch, drift_bps, violation, created_at) VALUES (?, ?, ?, ?, ?)`,
		db.Name,
	)
	return db.Exec(ctx, query, vaultID, epoch, driftBps, flag, time.Now())
}

type vaultStateRow struct {
	VaultID               string `ch:"vault_id"`
	Status                uint8  `ch:"status"`
	NavPerShare           uint64 `ch:"nav_per_share"`
	TotalAssets           uint64 `ch:"total_assets"`
	TotalLiabilities      uint64 `ch:"total_liabilities"`
	TotalShares           uint64 `ch:"total_shares"`
	TotalPending          uint64 `ch:"total_pending"`
	Epoch                 uint64 `ch:"epoch"`
	LastNavUpdate         int64  `ch:"last_nav_update"`
	ConsecutiveViolations uint32 `ch:"consecutive_violations"`
	MaxDriftBps           uint64 `ch:"max_drift_bps"`
	FreezeThreshold       uint32 `ch:"freeze_threshold"`
	Capacity              uint64 `ch:"capacity"`
	MaxQueueSize          uint64 `ch:"max_queue_size"`
	MinAuctionShares      uint64 `ch:"min_auction_shares"`
	LiquidityReserveBps   uint64 `ch:"liquidity_reserve_bps"`
}

type trancheRow struct {
	Tranche         uint8  `ch:"tranche"`
	NavPerShare     uint64 `ch:"nav_per_share"`
	TotalShares     uint64 `ch:"total_shares"`
	AccruedYield    uint64 `ch:"accrued_yield"`
	FeeBps          uint64 `ch:"fee_bps"`
	MinDeposit      uint64 `ch:"min_deposit"`
	MaxDeposit      uint64 `ch:"max_deposit"`
	LockPeriodSlots uint64 `ch:"lock_period_slots"`
}

type driftRow struct {
	Epoch    uint64 `ch:"epoch"`
	DriftBps uint64 `ch:"drift_bps"`
}

// LoadVaults reconstructs every persisted vault, drift ring included. Used
// once at boot to seed the registry.
func (db *DB) LoadVaults(ctx context.Context) ([]*vault.Vault, error) {
	var rows []vaultStateRow
	query := fmt.Sprintf(
		`SELECT vault_id, status, nav_per_share, total_assets, total_liabilities,
			total_shares, total_pending, epoch, last_nav_update, consecutive_violations,
			max_drift_bps, freeze_threshold, capacity, max_queue_size,
			min_auction_shares, liquidity_reserve_bps
		 FROM "%s"."vault_state" FINAL`,
		db.Name,
	)
	if err := db.Select(ctx, &rows, query); err != nil {
		return nil, err
	}

	vaults := make([]*vault.Vault, 0, len(rows))
	for _, row := range rows {
		v := &vault.Vault{
			ID:               row.VaultID,
			Status:           vault.VaultStatus(row.Status),
			NAVPerShare:      row.NavPerShare,
			TotalAssets:      row.TotalAssets,
			TotalLiabilities: row.TotalLiabilities,
			TotalShares:      row.TotalShares,
			TotalPending:     row.TotalPending,
			Epoch:            row.Epoch,
			LastNAVUpdate:    row.LastNavUpdate,
			Config: vault.Config{
				MaxDriftBps:         row.MaxDriftBps,
				FreezeThreshold:     row.FreezeThreshold,
				Capacity:            row.Capacity,
				MaxQueueSize:        row.MaxQueueSize,
				MinAuctionShares:    row.MinAuctionShares,
				LiquidityReserveBps: row.LiquidityReserveBps,
			},
		}
		v.Drift.ConsecutiveViolations = row.ConsecutiveViolations
		v.Drift.LastEpoch = row.Epoch

		if err := db.loadTranches(ctx, v); err != nil {
			return nil, err
		}
		if err := db.loadDriftWindow(ctx, v); err != nil {
			return nil, err
		}
		vaults = append(vaults, v)
	}
	return vaults, nil
}

func (db *DB) loadTranches(ctx context.Context, v *vault.Vault) error {
	var rows []trancheRow
	query := fmt.Sprintf(
		`SELECT tranche, nav_per_share, total_shares, accrued_yield, fee_bps, min_deposit, max_deposit, lock_period_slots
		 FROM "%s"."tranches" FINAL WHERE vault_id = ? ORDER BY tranche`,
		db.Name,
	)
	if err := db.Select(ctx, &rows, query, v.ID); err != nil {
		return err
	}

	v.Tranches = make([]vault.Tranche, 0, len(rows))
	for _, row := range rows {
		v.Tranches = append(v.Tranches, vault.Tranche{
			Type:             vault.TrancheType(row.Tranche),
			NAVPerShare:      row.NavPerShare,
			TotalShares:      row.TotalShares,
			AccruedYield:     row.AccruedYield,
			RedemptionFeeBps: row.FeeBps,
			MinDeposit:       row.MinDeposit,
			MaxDeposit:       row.MaxDeposit,
			LockPeriodSlots:  row.LockPeriodSlots,
		})
	}
	return nil
}

// loadDriftWindow refills the ring with the trailing window of observations.
func (db *DB) loadDriftWindow(ctx context.Context, v *vault.Vault) error {
	var from uint64
	if v.Epoch > vault.DriftWindow {
		from = v.Epoch - vault.DriftWindow
	}

	var rows []driftRow
	query := fmt.Sprintf(
		`SELECT epoch, drift_bps FROM "%s"."drift_epochs" WHERE vault_id = ? AND epoch > ? ORDER BY epoch`,
		db.Name,
	)
	if err := db.Select(ctx, &rows, query, v.ID, from); err != nil {
		return err
	}

	for _, row := range rows {
		v.Drift.Window[row.Epoch%vault.DriftWindow] = row.DriftBps
	}
	return nil
}
