package vaultapp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/app/vault/types"
	"github.com/tessera-fund/vaultx/pkg/bridge"
	"github.com/tessera-fund/vaultx/pkg/crosschain"
	"github.com/tessera-fund/vaultx/pkg/db/vaultstore"
	"github.com/tessera-fund/vaultx/pkg/logging"
	"github.com/tessera-fund/vaultx/pkg/nav"
	"github.com/tessera-fund/vaultx/pkg/oracle"
	"github.com/tessera-fund/vaultx/pkg/redemption"
	"github.com/tessera-fund/vaultx/pkg/redis"
	"github.com/tessera-fund/vaultx/pkg/temporal"
	"github.com/tessera-fund/vaultx/pkg/utils"
	"github.com/tessera-fund/vaultx/pkg/vault"
	"github.com/tessera-fund/vaultx/pkg/vaultmath"
)

// Initialize wires the settlement service: store, registry, NAV engine,
// redemption scheduler, oracle poller, bridge defense and the cron loops
// that drive them.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	db, err := vaultstore.New(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to initialize vault database", zap.Error(err))
	}

	// Ensure the Temporal namespace exists before dialing. 7 days retention
	// covers a full drift window at production epoch cadence.
	if err := temporal.EnsureNamespace(ctx, logger, 7*24*time.Hour); err != nil {
		logger.Fatal("Unable to ensure temporal namespace", zap.Error(err))
	}
	temporalClient, err := temporal.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to establish temporal connection", zap.Error(err))
	}

	// Redis is optional; events simply stay unpublished without it.
	var redisClient *redis.Client
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - real-time events disabled", zap.Error(err))
			redisClient = nil
		}
	}

	registry := vault.NewRegistry()
	vaults, err := db.LoadVaults(ctx)
	if err != nil {
		logger.Fatal("Unable to load vault state", zap.Error(err))
	}
	for _, v := range vaults {
		registry.Put(v)
	}
	logger.Info("Vault registry loaded", zap.Int("vaults", len(vaults)))

	if len(vaults) == 0 {
		if bootstrapID := utils.Env("BOOTSTRAP_VAULT_ID", ""); bootstrapID != "" {
			v := &vault.Vault{
				ID:          bootstrapID,
				NAVPerShare: 1_000_000,
				Tranches:    vault.DefaultTranches(),
				Config:      vault.DefaultConfig(),
			}
			if err := db.SaveVaultState(ctx, v); err != nil {
				logger.Fatal("Unable to persist bootstrap vault", zap.Error(err))
			}
			registry.Put(v)
			logger.Info("Bootstrap vault created", zap.String("vaultId", bootstrapID))
		}
	}

	destinations, err := crosschain.DestinationsFromEnv()
	if err != nil {
		logger.Fatal("Unable to parse sync destinations", zap.Error(err))
	}

	oracleKeys, err := nav.ParseOracleKeys(utils.Env("ORACLE_KEYS", ""))
	if err != nil {
		logger.Fatal("Unable to parse oracle keys", zap.Error(err))
	}
	emergencyKeys, err := nav.ParseEmergencyKeys(utils.Env("EMERGENCY_KEYS", ""))
	if err != nil {
		logger.Fatal("Unable to parse emergency keys", zap.Error(err))
	}
	originKeys, err := bridge.ParseOriginKeys(utils.Env("BRIDGE_ORIGIN_KEYS", ""))
	if err != nil {
		logger.Fatal("Unable to parse bridge origin keys", zap.Error(err))
	}

	sources, err := oracle.ParseHTTPSources(utils.Env("ORACLE_SOURCES", ""))
	if err != nil {
		logger.Fatal("Unable to parse oracle sources", zap.Error(err))
	}

	consensusCache := types.NewConsensusCache()
	poller := oracle.NewPoller(logger, oracle.DefaultConfig(), sources, oracle.NewMetrics())

	engine := nav.NewEngine(logger, registry, db)
	engine.Redis = redisClient
	engine.OracleKeys = oracleKeys
	engine.EmergencyKeys = emergencyKeys
	engine.Confidence = consensusCache
	engine.Sync = &types.NavSyncStarter{
		Logger:         logger,
		TemporalClient: temporalClient,
		Registry:       registry,
		Destinations:   destinations,
	}

	slots := redemption.NewTimeSlotsFromEnv()
	scheduler := redemption.NewScheduler(logger, registry, db, slots)
	scheduler.Redis = redisClient

	// Rebuild every queue before serving traffic.
	for _, v := range vaults {
		if err := scheduler.Resume(ctx, v.ID); err != nil {
			logger.Fatal("Unable to resume redemption queue",
				zap.String("vaultId", v.ID), zap.Error(err))
		}
	}

	defense := bridge.NewDefense(logger, bridge.NewOriginGuard(originKeys), bridge.NewMessageFilter(), bridge.NewMetrics())
	defense.Consensus = consensusCache
	defense.Redis = redisClient

	app := &types.App{
		DB:             db,
		Registry:       registry,
		Engine:         engine,
		Scheduler:      scheduler,
		Poller:         poller,
		Defense:        defense,
		Consensus:      consensusCache,
		Slots:          slots,
		TemporalClient: temporalClient,
		RedisClient:    redisClient,
		Logger:         logger,
	}

	if err := setupScheduler(ctx, app); err != nil {
		logger.Fatal("Unable to set up cron scheduler", zap.Error(err))
	}

	return app
}

// setupScheduler registers the recurring jobs: redemption batch processing,
// oracle consensus refresh and replay-cache pruning.
func setupScheduler(ctx context.Context, app *types.App) error {
	app.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	processSpec := utils.Env("PROCESS_CRON", "*/5 * * * * *")
	if _, err := app.Cron.AddFunc(processSpec, func() {
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		processAllQueues(rctx, app)
	}); err != nil {
		return err
	}

	oracleSpec := utils.Env("ORACLE_CRON", "*/15 * * * * *")
	if _, err := app.Cron.AddFunc(oracleSpec, func() {
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		refreshConsensus(rctx, app)
	}); err != nil {
		return err
	}

	if _, err := app.Cron.AddFunc("0 */10 * * * *", func() {
		if pruned := app.Defense.Filter.Prune(); pruned > 0 {
			app.Logger.Debug("Replay cache pruned", zap.Int("entries", pruned))
		}
	}); err != nil {
		return err
	}

	return nil
}

// processAllQueues drives one redemption batch per vault.
func processAllQueues(ctx context.Context, app *types.App) {
	maxCount := utils.EnvUint64("PROCESS_BATCH_SIZE", 100)

	app.Registry.Range(func(id string, _ *vault.Handle) bool {
		batchID := uuid.NewString()

		if _, err := app.Scheduler.ProcessQueue(ctx, id, batchID, maxCount); err != nil {
			switch {
			case errors.Is(err, redemption.ErrProcessingInProgress),
				errors.Is(err, redemption.ErrRedemptionsFrozen):
				app.Logger.Debug("Queue processing skipped",
					zap.String("vaultId", id), zap.Error(err))
			default:
				app.Logger.Error("Queue processing failed",
					zap.String("vaultId", id), zap.Error(err))
			}
		}

		if _, err := app.Scheduler.ProcessAuctionBatch(ctx, id, uuid.NewString()); err != nil {
			if !errors.Is(err, redemption.ErrProcessingInProgress) && !errors.Is(err, redemption.ErrRedemptionsFrozen) {
				app.Logger.Error("Auction processing failed",
					zap.String("vaultId", id), zap.Error(err))
			}
		}

		return true
	})
}

// refreshConsensus runs one meta-oracle round per vault and feeds the cache
// read by the NAV engine and the bridge defense. Excluded readings raise
// manipulation alerts per source.
func refreshConsensus(ctx context.Context, app *types.App) {
	if len(app.Poller.Sources) == 0 {
		return
	}

	app.Registry.Range(func(id string, _ *vault.Handle) bool {
		res, err := app.Poller.PollConsensus(ctx, id)

		// Outliers are reported whether or not the round reached quorum.
		// A round killed by excluded readings is exactly the one worth
		// alerting on.
		for _, outlier := range res.Outliers {
			deviation := vaultmath.DriftBps(res.Pivot, outlier.Value)
			app.Defense.ReportOracleOutlier(ctx, id, outlier.OracleID, outlier.Value, deviation)
		}

		if err != nil {
			app.Logger.Warn("Consensus round failed",
				zap.String("vaultId", id),
				zap.Int("outliers", len(res.Outliers)),
				zap.Error(err))
			return true
		}

		app.Consensus.Update(id, res)
		return true
	})
}
