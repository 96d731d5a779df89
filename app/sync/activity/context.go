package activity

import (
	"context"

	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/pkg/crosschain"
	"github.com/tessera-fund/vaultx/pkg/redis"
	"github.com/tessera-fund/vaultx/pkg/vault"
)

// Store is the slice of the vault store the sync activities need.
type Store interface {
	SaveCrossChainState(ctx context.Context, st crosschain.CrossChainState) error
	StaleCrossChainStates(ctx context.Context) ([]crosschain.CrossChainState, error)
	LoadVaults(ctx context.Context) ([]*vault.Vault, error)
}

type Context struct {
	Logger *zap.Logger
	// Persists per-destination sync state
	Store Store
	// Submits anchors to destination chains
	Anchorer crosschain.Anchorer
	// Tracks per-chain failure streaks
	Health *crosschain.HealthTracker
	// Anchors the drift-ledger root alongside the NAV anchors.
	// Nil disables the ledger anchor step.
	LedgerDestination *crosschain.Destination
	// Configured destination set, used by the reconcile pass to map a
	// failed state row back to its endpoint.
	Destinations []crosschain.Destination
	// For publishing real-time events
	RedisClient *redis.Client
}
