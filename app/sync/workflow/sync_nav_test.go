package workflow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/tessera-fund/vaultx/app/sync/activity"
	"github.com/tessera-fund/vaultx/app/sync/types"
	"github.com/tessera-fund/vaultx/app/sync/workflow"
	"github.com/tessera-fund/vaultx/pkg/crosschain"
	"github.com/tessera-fund/vaultx/pkg/temporal"
)

// mockSyncActivities stands in for the real activity context. Method names
// must match the real activities so the workflow's references resolve.
type mockSyncActivities struct {
	mu sync.Mutex

	// chains that should fail every anchor attempt
	failChains map[uint64]bool

	anchorCalls atomic.Int32
	ledgerCalls atomic.Int32

	recorded *crosschain.SyncResult
}

func (m *mockSyncActivities) AnchorDestination(_ context.Context, in types.ActivityAnchorDestinationInput) (types.ActivityAnchorDestinationOutput, error) {
	m.anchorCalls.Add(1)
	out := types.ActivityAnchorDestinationOutput{ChainID: in.Destination.ChainID}
	if m.failChains[in.Destination.ChainID] {
		return out, errors.New("destination unreachable")
	}
	out.AnchorHash = "0xanchor"
	out.DurationMs = 12.5
	return out, nil
}

func (m *mockSyncActivities) AnchorLedger(_ context.Context, in types.ActivityAnchorLedgerInput) (types.ActivityAnchorLedgerOutput, error) {
	m.ledgerCalls.Add(1)
	return types.ActivityAnchorLedgerOutput{AnchorHash: "0xledger"}, nil
}

func (m *mockSyncActivities) VerifyAttestation(_ context.Context, in types.ActivityVerifyAttestationInput) (types.ActivityVerifyAttestationOutput, error) {
	out := types.ActivityVerifyAttestationOutput{OK: len(in.AnchorHashes) > 0, Attestation: "deadbeef"}
	for _, h := range in.AnchorHashes {
		if h == "" {
			out.OK = false
		}
	}
	return out, nil
}

func (m *mockSyncActivities) RecordSyncOutcome(_ context.Context, in types.ActivityRecordSyncOutcomeInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := in.Result
	m.recorded = &result
	return nil
}

func testDestinations() []crosschain.Destination {
	return []crosschain.Destination{
		{ChainID: 1, Name: "ethereum", Kind: crosschain.KindEVM, Endpoint: "http://anchor-eth:8080"},
		{ChainID: 100, Name: "osmosis", Kind: crosschain.KindCosmos, Endpoint: "http://anchor-osmo:8080"},
		{ChainID: 42161, Name: "arbitrum", Kind: crosschain.KindEVM, Endpoint: "http://anchor-arb:8080"},
	}
}

func syncTestEnv(t *testing.T, mock *mockSyncActivities) (*testsuite.TestWorkflowEnvironment, workflow.Context) {
	t.Helper()

	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	wfCtx := workflow.Context{
		TemporalClient:  &temporal.Client{SyncQueue: "sync"},
		ActivityContext: &activity.Context{},
	}

	env.RegisterWorkflow(wfCtx.SyncNavWorkflow)
	env.RegisterActivity(mock.AnchorDestination)
	env.RegisterActivity(mock.AnchorLedger)
	env.RegisterActivity(mock.VerifyAttestation)
	env.RegisterActivity(mock.RecordSyncOutcome)

	return env, wfCtx
}

func TestSyncNavWorkflow_AllDestinationsSucceed(t *testing.T) {
	mock := &mockSyncActivities{failChains: map[uint64]bool{}}
	env, wfCtx := syncTestEnv(t, mock)

	env.ExecuteWorkflow(wfCtx.SyncNavWorkflow, types.WorkflowSyncNavInput{
		VaultID:      "vault-1",
		Epoch:        7,
		NAVPerShare:  1_050_000,
		LedgerRoot:   "roothash",
		Timestamp:    1_700_000_000,
		Destinations: testDestinations(),
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result crosschain.SyncResult
	require.NoError(t, env.GetWorkflowResult(&result))

	assert.Equal(t, uint64(3), result.Successful)
	assert.Equal(t, uint64(0), result.Failed)
	assert.Len(t, result.Anchors, 3)
	assert.True(t, result.AttestationOK)
	assert.Equal(t, "0xledger", result.LedgerAnchorHash)

	assert.Equal(t, int32(3), mock.anchorCalls.Load())
	assert.Equal(t, int32(1), mock.ledgerCalls.Load())

	require.NotNil(t, mock.recorded, "outcome should be recorded")
	assert.Equal(t, uint64(3), mock.recorded.Successful)
}

// A failing destination must not abort its siblings: the other two anchors
// land, the workflow completes without error, and the round is unattested.
func TestSyncNavWorkflow_PartialFailure(t *testing.T) {
	mock := &mockSyncActivities{failChains: map[uint64]bool{100: true}}
	env, wfCtx := syncTestEnv(t, mock)

	env.ExecuteWorkflow(wfCtx.SyncNavWorkflow, types.WorkflowSyncNavInput{
		VaultID:      "vault-1",
		Epoch:        8,
		NAVPerShare:  1_060_000,
		Timestamp:    1_700_000_060,
		Destinations: testDestinations(),
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError(), "partial failure must not fail the workflow")

	var result crosschain.SyncResult
	require.NoError(t, env.GetWorkflowResult(&result))

	assert.Equal(t, uint64(2), result.Successful)
	assert.Equal(t, uint64(1), result.Failed)
	assert.False(t, result.AttestationOK, "a partial round must be unattested")

	var failedAnchor *crosschain.AnchorResult
	for i := range result.Anchors {
		if result.Anchors[i].ChainID == 100 {
			failedAnchor = &result.Anchors[i]
		}
	}
	require.NotNil(t, failedAnchor)
	assert.NotEmpty(t, failedAnchor.Error)
	assert.Empty(t, failedAnchor.AnchorHash)

	require.NotNil(t, mock.recorded, "outcome recorded even for partial rounds")
	assert.Equal(t, uint64(1), mock.recorded.Failed)
}

func TestSyncNavWorkflow_NoDestinations(t *testing.T) {
	mock := &mockSyncActivities{failChains: map[uint64]bool{}}
	env, wfCtx := syncTestEnv(t, mock)

	env.ExecuteWorkflow(wfCtx.SyncNavWorkflow, types.WorkflowSyncNavInput{
		VaultID:     "vault-1",
		Epoch:       9,
		NAVPerShare: 1_000_000,
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result crosschain.SyncResult
	require.NoError(t, env.GetWorkflowResult(&result))

	assert.Equal(t, uint64(0), result.Successful)
	assert.Equal(t, uint64(0), result.Failed)
	assert.False(t, result.AttestationOK, "an empty round attests nothing")
	assert.Equal(t, int32(0), mock.anchorCalls.Load())
}

type mockReconcileActivities struct {
	out types.ActivityReviveOutput
	err error
}

func (m *mockReconcileActivities) ReviveFailedDestinations(_ context.Context) (types.ActivityReviveOutput, error) {
	return m.out, m.err
}

func TestReconcileSyncWorkflow(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	mock := &mockReconcileActivities{
		out: types.ActivityReviveOutput{Examined: 3, Revived: 2, StillFailed: 1},
	}

	wfCtx := workflow.Context{
		TemporalClient:  &temporal.Client{SyncQueue: "sync"},
		ActivityContext: &activity.Context{},
	}

	env.RegisterWorkflow(wfCtx.ReconcileSyncWorkflow)
	env.RegisterActivity(mock.ReviveFailedDestinations)

	env.ExecuteWorkflow(wfCtx.ReconcileSyncWorkflow)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out types.ActivityReviveOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, uint64(3), out.Examined)
	assert.Equal(t, uint64(2), out.Revived)
	assert.Equal(t, uint64(1), out.StillFailed)
}
