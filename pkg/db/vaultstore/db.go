// Package vaultstore is the ClickHouse persistence layer for vault state,
// tranche epochs, the drift ring, redemption requests and cross-chain sync
// outcomes. Mutable rows live in ReplacingMergeTree tables versioned by an
// update timestamp; reads that need the latest version use FINAL.
package vaultstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/pkg/db/clickhouse"
	"github.com/tessera-fund/vaultx/pkg/utils"
)

// DB is the vault settlement store.
type DB struct {
	clickhouse.Client
	Name string
}

// New connects and initializes the schema.
func New(ctx context.Context, logger *zap.Logger) (*DB, error) {
	dbName := utils.Env("CLICKHOUSE_DATABASE", "vaultx")

	client, err := clickhouse.New(ctx, logger.With(zap.String("db", dbName)), dbName)
	if err != nil {
		return nil, err
	}

	db := &DB{Client: client, Name: dbName}
	if err := db.InitializeDB(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// InitializeDB creates every table the store relies on.
func (db *DB) InitializeDB(ctx context.Context) error {
	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"vault_state", db.initVaultState},
		{"tranches", db.initTranches},
		{"drift_epochs", db.initDriftEpochs},
		{"redemption_requests", db.initRedemptionRequests},
		{"redemption_queue_meta", db.initQueueMeta},
		{"user_holdings", db.initUserHoldings},
		{"cross_chain_state", db.initCrossChainState},
		{"defense_events", db.initDefenseEvents},
	}

	for _, op := range initOps {
		if err := op.fn(ctx); err != nil {
			return fmt.Errorf("init %s: %w", op.name, err)
		}
	}

	db.Logger.Info("Vault store schema ready", zap.String("database", db.Name))
	return nil
}
