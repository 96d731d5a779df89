package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/durationpb"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	taskqueuepb "go.temporal.io/api/taskqueue/v1"
	workflowservicepb "go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"

	"github.com/tessera-fund/vaultx/pkg/utils"
)

type Client struct {
	TClient   client.Client
	TSClient  client.ScheduleClient
	Namespace string

	// Task Queues
	SyncQueue string // sync - per-epoch NAV propagation workflows and their anchor activities.

	// Schedule IDs
	ReconcileScheduleID string // periodic re-anchor of destinations left stale by partial sync failures.

	// Workflow IDs
	SyncNavWorkflowId string // sync:<vaultID>:<epoch> - one workflow per accepted NAV epoch.
}

type Health struct {
	ConnectionOK bool                      `json:"connection_ok"`
	SyncQueue    []*taskqueuepb.PollerInfo `json:"sync_queue"`
}

func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	host := utils.Env("TEMPORAL_HOSTPORT", "localhost:7233")
	ns := utils.Env("TEMPORAL_NAMESPACE", "vaultx")
	loggerWrapper := NewZapAdapter(logger)

	logger.Info("Connecting to Temporal", zap.String("host", host), zap.String("namespace", ns))
	tClient, err := Dial(ctx, host, ns, loggerWrapper)
	if err != nil {
		return nil, err
	}

	if _, err = tClient.CheckHealth(ctx, nil); err != nil {
		return nil, err
	}

	return &Client{
		TClient:   tClient,
		TSClient:  tClient.ScheduleClient(),
		Namespace: ns,
		// for now this is just hardcoded, could be configurable if we need it
		SyncQueue: "sync",
		// schedule IDs
		ReconcileScheduleID: "sync:reconcile",
		// workflow IDs
		SyncNavWorkflowId: "sync:%s:%d",
	}, nil
}

// Dial connects to Temporal using the provided hostPort and namespace.
func Dial(ctx context.Context, hostPort, namespace string, logger log.Logger) (client.Client, error) {
	return client.DialContext(
		ctx,
		client.Options{
			HostPort:  hostPort,
			Namespace: namespace,
			Logger:    logger,
		},
	)
}

// EnsureNamespace registers the configured namespace if it does not exist.
func EnsureNamespace(ctx context.Context, logger *zap.Logger, retention time.Duration) error {
	host := utils.Env("TEMPORAL_HOSTPORT", "localhost:7233")
	ns := utils.Env("TEMPORAL_NAMESPACE", "vaultx")

	nsClient, err := client.NewNamespaceClient(client.Options{HostPort: host})
	if err != nil {
		return fmt.Errorf("failed to create namespace client: %w", err)
	}
	defer nsClient.Close()

	_, err = nsClient.Describe(ctx, ns)
	if err == nil {
		return nil
	}

	var notFound *serviceerror.NamespaceNotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe namespace: %w", err)
	}

	logger.Info("Registering Temporal namespace", zap.String("namespace", ns))
	err = nsClient.Register(ctx, &workflowservicepb.RegisterNamespaceRequest{
		Namespace:                        ns,
		WorkflowExecutionRetentionPeriod: durationpb.New(retention),
	})
	if err != nil {
		return fmt.Errorf("failed to register namespace: %w", err)
	}

	// Registration is async; give the cluster a moment before first use.
	time.Sleep(2 * time.Second)
	return nil
}

// GetSyncQueue returns the sync task queue.
func (c *Client) GetSyncQueue() string { return c.SyncQueue }

// GetSyncNavWorkflowId returns the workflow ID for propagating the given vault epoch.
func (c *Client) GetSyncNavWorkflowId(vaultID string, epoch uint64) string {
	return fmt.Sprintf(c.SyncNavWorkflowId, vaultID, epoch)
}

// GetReconcileScheduleID returns the schedule ID for the stale-destination reconciler.
func (c *Client) GetReconcileScheduleID() string {
	return c.ReconcileScheduleID
}

// ThreeMinuteSpec returns a schedule spec for three minutes.
func (c *Client) ThreeMinuteSpec() client.ScheduleSpec {
	return c.GetScheduleSpec(3 * time.Minute)
}

// OneHourSpec returns a schedule spec for one hour.
func (c *Client) OneHourSpec() client.ScheduleSpec {
	return c.GetScheduleSpec(time.Hour)
}

// GetScheduleSpec returns a schedule spec for the given interval.
func (c *Client) GetScheduleSpec(interval time.Duration) client.ScheduleSpec {
	return client.ScheduleSpec{Intervals: []client.ScheduleIntervalSpec{{Every: interval}}}
}

// Health returns the health of the Temporal client.
func (c *Client) Health(ctx context.Context) (Health, error) {
	h := Health{ConnectionOK: true}
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	svc := c.TClient.WorkflowService()
	if svc != nil {
		if rep, err := svc.DescribeTaskQueue(ctx, &workflowservicepb.DescribeTaskQueueRequest{
			Namespace:     c.Namespace,
			TaskQueue:     &taskqueuepb.TaskQueue{Name: c.SyncQueue},
			TaskQueueType: enums.TASK_QUEUE_TYPE_WORKFLOW,
		}); err == nil {
			h.SyncQueue = rep.GetPollers()
		}
	}
	return h, nil
}

// Close closes the underlying Temporal connection.
func (c *Client) Close() {
	if c.TClient != nil {
		c.TClient.Close()
	}
}
