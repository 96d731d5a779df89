package sync

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	temporalworkflow "go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/app/sync/activity"
	"github.com/tessera-fund/vaultx/app/sync/workflow"
	"github.com/tessera-fund/vaultx/pkg/crosschain"
	"github.com/tessera-fund/vaultx/pkg/db/vaultstore"
	"github.com/tessera-fund/vaultx/pkg/logging"
	"github.com/tessera-fund/vaultx/pkg/redis"
	"github.com/tessera-fund/vaultx/pkg/temporal"
	"github.com/tessera-fund/vaultx/pkg/utils"
)

type App struct {
	Worker         worker.Worker
	TemporalClient *temporal.Client
	Logger         *zap.Logger
}

// Start starts the worker and blocks until the context is canceled.
func (a *App) Start(ctx context.Context) {
	if err := a.Worker.Start(); err != nil {
		a.Logger.Fatal("Unable to start sync worker", zap.Error(err))
	}
	<-ctx.Done()
	a.Stop()
}

// Stop stops the worker.
func (a *App) Stop() {
	a.Worker.Stop()
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("Sync worker stopped")
}

// Initialize initializes the sync worker application.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	db, err := vaultstore.New(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to initialize vault database", zap.Error(err))
	}

	temporalClient, err := temporal.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to establish temporal connection", zap.Error(err))
	}

	destinations, err := crosschain.DestinationsFromEnv()
	if err != nil {
		logger.Fatal("Unable to parse sync destinations", zap.Error(err))
	}
	if len(destinations) == 0 {
		logger.Warn("No sync destinations configured - anchors will not leave this node")
	}

	// Redis is optional; sync outcomes simply stay unpublished without it.
	var redisClient *redis.Client
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - sync outcome events disabled", zap.Error(err))
			redisClient = nil
		}
	}

	activityContext := &activity.Context{
		Logger:            logger,
		Store:             db,
		Anchorer:          crosschain.NewHTTPAnchorer(logger),
		Health:            crosschain.NewHealthTracker(),
		LedgerDestination: crosschain.LedgerDestinationFromEnv(),
		Destinations:      destinations,
		RedisClient:       redisClient,
	}
	workflowContext := workflow.Context{
		TemporalClient:  temporalClient,
		ActivityContext: activityContext,
	}

	wkr := worker.New(
		temporalClient.TClient,
		temporalClient.GetSyncQueue(),
		worker.Options{
			MaxConcurrentWorkflowTaskPollers: 10,
			MaxConcurrentActivityTaskPollers: 10,
			// Anchor activities spend most of their time waiting on
			// destination confirmation polls.
			MaxConcurrentActivityExecutionSize: 200,
			WorkerStopTimeout:                  1 * time.Minute,
		},
	)

	wkr.RegisterWorkflowWithOptions(
		workflowContext.SyncNavWorkflow,
		temporalworkflow.RegisterOptions{Name: workflow.SyncNavWorkflowName},
	)
	wkr.RegisterWorkflowWithOptions(
		workflowContext.ReconcileSyncWorkflow,
		temporalworkflow.RegisterOptions{Name: workflow.ReconcileSyncWorkflowName},
	)
	wkr.RegisterActivity(activityContext.AnchorDestination)
	wkr.RegisterActivity(activityContext.AnchorLedger)
	wkr.RegisterActivity(activityContext.VerifyAttestation)
	wkr.RegisterActivity(activityContext.RecordSyncOutcome)
	wkr.RegisterActivity(activityContext.ReviveFailedDestinations)

	app := &App{
		Worker:         wkr,
		TemporalClient: temporalClient,
		Logger:         logger,
	}

	if err := app.EnsureReconcileSchedule(ctx); err != nil {
		logger.Fatal("Unable to ensure reconcile schedule", zap.Error(err))
	}

	return app
}

// EnsureReconcileSchedule creates the stale-destination reconcile schedule if
// it does not already exist.
func (a *App) EnsureReconcileSchedule(ctx context.Context) error {
	id := a.TemporalClient.GetReconcileScheduleID()
	h := a.TemporalClient.TSClient.GetHandle(ctx, id)
	if _, err := h.Describe(ctx); err == nil {
		a.Logger.Info("Reconcile schedule already exists", zap.String("id", id))
		return nil
	} else {
		var notFound *serviceerror.NotFound
		if !errors.As(err, &notFound) {
			return err
		}
	}

	a.Logger.Info("Creating reconcile schedule", zap.String("id", id))
	_, err := a.TemporalClient.TSClient.Create(ctx, client.ScheduleOptions{
		ID:   id,
		Spec: a.TemporalClient.ThreeMinuteSpec(),
		Action: &client.ScheduleWorkflowAction{
			Workflow:                 workflow.ReconcileSyncWorkflowName,
			TaskQueue:                a.TemporalClient.GetSyncQueue(),
			WorkflowExecutionTimeout: 10 * time.Minute,
			WorkflowTaskTimeout:      1 * time.Minute,
		},
	})
	return err
}
