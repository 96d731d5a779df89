package types

import (
	"context"
	"net/http"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/pkg/bridge"
	"github.com/tessera-fund/vaultx/pkg/crosschain"
	"github.com/tessera-fund/vaultx/pkg/nav"
	"github.com/tessera-fund/vaultx/pkg/oracle"
	"github.com/tessera-fund/vaultx/pkg/redemption"
	"github.com/tessera-fund/vaultx/pkg/redis"
	"github.com/tessera-fund/vaultx/pkg/temporal"
	"github.com/tessera-fund/vaultx/pkg/vault"
)

// Store is the persistence surface the vault service needs. Satisfied by
// vaultstore.DB; controller tests swap in an in-memory implementation.
type Store interface {
	nav.Store
	redemption.Store

	LoadVaults(ctx context.Context) ([]*vault.Vault, error)
	CrossChainStates(ctx context.Context, vaultID string) ([]crosschain.CrossChainState, error)
	RecordDefenseEvent(ctx context.Context, alert bridge.DefenseAlert) error
	Close() error
}

type App struct {
	DB       Store
	Registry *vault.Registry

	Engine    *nav.Engine
	Scheduler *redemption.Scheduler
	Poller    *oracle.Poller
	Defense   *bridge.Defense
	Consensus *ConsensusCache
	Slots     redemption.SlotSource

	TemporalClient *temporal.Client
	RedisClient    *redis.Client

	// Cron drives queue processing, oracle polling and replay-cache pruning.
	Cron *cron.Cron

	Logger *zap.Logger

	// Server is the HTTP server instance serving the settlement API.
	Server *http.Server
}

// Ready reports whether the service can take traffic.
func (a *App) Ready() bool {
	return a.DB != nil && a.Registry != nil
}

// Start starts the HTTP server and the cron loops, then blocks until the
// context is canceled.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	if a.Cron != nil {
		a.Cron.Start()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.Server.Shutdown(shutdownCtx)
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
	if a.Poller != nil {
		a.Poller.Stop()
	}
	if a.TemporalClient != nil {
		a.TemporalClient.Close()
	}
	if a.RedisClient != nil {
		_ = a.RedisClient.Close()
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}
	a.Logger.Info("Vault service stopped")
}

// ConsensusRound is one cached meta-oracle aggregation.
type ConsensusRound struct {
	Value         uint64
	ConfidenceBps uint64
	At            time.Time
}

// ConsensusCache holds the latest consensus round per vault. The poller cron
// refreshes it; the NAV engine and the bridge defense read it. A round older
// than TTL is treated as absent.
type ConsensusCache struct {
	TTL    time.Duration
	rounds *xsync.Map[string, ConsensusRound]
}

func NewConsensusCache() *ConsensusCache {
	return &ConsensusCache{
		TTL:    5 * time.Minute,
		rounds: xsync.NewMap[string, ConsensusRound](),
	}
}

// Update stores the outcome of a consensus round.
func (c *ConsensusCache) Update(vaultID string, res oracle.Result) {
	c.rounds.Store(vaultID, ConsensusRound{
		Value:         res.Value,
		ConfidenceBps: res.ConfidenceBps,
		At:            time.Now(),
	})
}

// Round returns the cached round for a vault if it is still fresh.
func (c *ConsensusCache) Round(vaultID string) (ConsensusRound, bool) {
	round, ok := c.rounds.Load(vaultID)
	if !ok || time.Since(round.At) > c.TTL {
		return ConsensusRound{}, false
	}
	return round, true
}

// Confidence implements nav.ConfidenceSource.
func (c *ConsensusCache) Confidence(_ context.Context, vaultID string) uint64 {
	round, ok := c.Round(vaultID)
	if !ok {
		return 0
	}
	return round.ConfidenceBps
}

// ConsensusValue implements bridge.ConsensusSource.
func (c *ConsensusCache) ConsensusValue(_ context.Context, vaultID string) (uint64, bool) {
	round, ok := c.Round(vaultID)
	if !ok {
		return 0, false
	}
	return round.Value, true
}
