package nav

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tessera-fund/vaultx/pkg/bridge"
	"github.com/tessera-fund/vaultx/pkg/vault"
)

type memStore struct {
	states      int
	tranches    int
	driftEpochs int
}

func (m *memStore) SaveVaultState(ctx context.Context, v *vault.Vault) error {
	m.states++
	return nil
}

func (m *memStore) SaveTranches(ctx context.Context, vaultID string, epoch uint64, tranches []vault.Tranche) error {
	m.tranches++
	return nil
}

func (m *memStore) SaveDriftEpoch(ctx context.Context, vaultID string, epoch, driftBps uint64, violation bool) error {
	m.driftEpochs++
	return nil
}

type syncRecorder struct {
	starts []uint64
}

func (s *syncRecorder) StartNavSync(ctx context.Context, vaultID string, epoch, navPerShare uint64) error {
	s.starts = append(s.starts, epoch)
	return nil
}

type testFixture struct {
	engine   *Engine
	store    *memStore
	sync     *syncRecorder
	handle   *vault.Handle
	oracle   ed25519.PrivateKey
	emPriv   []ed25519.PrivateKey
	baseTime time.Time
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	oraclePub, oraclePriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var emPub []ed25519.PublicKey
	var emPriv []ed25519.PrivateKey
	for i := 0; i < 4; i++ {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		emPub = append(emPub, pub)
		emPriv = append(emPriv, priv)
	}

	tranches := make([]vault.Tranche, vault.TrancheCount)
	for i := range tranches {
		tranches[i] = vault.Tranche{Type: vault.TrancheType(i), NAVPerShare: 1_000_000}
	}

	registry := vault.NewRegistry()
	handle := registry.Put(&vault.Vault{
		ID:          "fund-1",
		NAVPerShare: 1_000_000,
		TotalAssets: 10_000_000_000,
		Tranches:    tranches,
		Config:      vault.DefaultConfig(),
	})

	store := &memStore{}
	sync := &syncRecorder{}
	baseTime := time.Unix(1_700_000_000, 0)

	engine := NewEngine(zap.NewNop(), registry, store)
	engine.OracleKeys = map[string]ed25519.PublicKey{"oracle-1": oraclePub}
	engine.EmergencyKeys = emPub
	engine.Sync = sync
	engine.Now = func() time.Time { return baseTime }

	return &testFixture{
		engine:   engine,
		store:    store,
		sync:     sync,
		handle:   handle,
		oracle:   oraclePriv,
		emPriv:   emPriv,
		baseTime: baseTime,
	}
}

func (f *testFixture) submission(navPerShare uint64) vault.NAVSubmission {
	return vault.NAVSubmission{
		VaultID:          "fund-1",
		OracleID:         "oracle-1",
		NAVPerShare:      navPerShare,
		TotalAssets:      10_000_000_000,
		TotalLiabilities: 250_000_000,
		TrancheNAVs:      []uint64{1_010_000, 1_010_000, 1_010_000, 1_010_000, 1_010_000},
		Timestamp:        f.baseTime.Unix(),
		ConfidenceBps:    9_800,
	}
}

func (f *testFixture) sign(sub vault.NAVSubmission) []byte {
	digest := SubmissionDigest(sub)
	return ed25519.Sign(f.oracle, digest[:])
}

func TestSubmitNAVCommits(t *testing.T) {
	f := newFixture(t)
	sub := f.submission(1_010_000)

	epoch, err := f.engine.SubmitNAV(context.Background(), sub, f.sign(sub))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)

	v := f.handle.V
	assert.Equal(t, uint64(1_010_000), v.NAVPerShare)
	assert.Equal(t, uint64(250_000_000), v.TotalLiabilities)
	assert.Equal(t, uint64(1), v.Epoch)
	assert.Equal(t, sub.Timestamp, v.LastNAVUpdate)
	assert.Equal(t, uint64(100), v.Drift.At(1))
	assert.Equal(t, uint64(1_010_000), v.Tranches[0].NAVPerShare)

	assert.Equal(t, 1, f.store.states)
	assert.Equal(t, 1, f.store.tranches)
	assert.Equal(t, 1, f.store.driftEpochs)
	assert.Equal(t, []uint64{1}, f.sync.starts)
}

func TestSubmitNAVUnauthorizedOracle(t *testing.T) {
	f := newFixture(t)
	sub := f.submission(1_010_000)
	sub.OracleID = "unknown"

	_, err := f.engine.SubmitNAV(context.Background(), sub, f.sign(sub))
	assert.ErrorIs(t, err, ErrUnauthorizedOracle)
}

func TestSubmitNAVInvalidProof(t *testing.T) {
	f := newFixture(t)
	sub := f.submission(1_010_000)

	// Signature over a different payload does not transfer.
	other := f.submission(1_020_000)
	_, err := f.engine.SubmitNAV(context.Background(), sub, f.sign(other))
	assert.ErrorIs(t, err, ErrInvalidProof)
	assert.Equal(t, uint64(0), f.handle.V.Epoch)
}

func TestSubmitNAVFreshnessWindow(t *testing.T) {
	f := newFixture(t)
	f.handle.V.LastNAVUpdate = f.baseTime.Unix()

	stale := f.submission(1_010_000)
	stale.Timestamp = f.baseTime.Unix() - 10
	_, err := f.engine.SubmitNAV(context.Background(), stale, f.sign(stale))
	assert.ErrorIs(t, err, ErrStaleNAVData)

	future := f.submission(1_010_000)
	future.Timestamp = f.baseTime.Add(301 * time.Second).Unix()
	_, err = f.engine.SubmitNAV(context.Background(), future, f.sign(future))
	assert.ErrorIs(t, err, ErrFutureNAVData)

	// Equal to the last update is still acceptable.
	boundary := f.submission(1_010_000)
	boundary.Timestamp = f.baseTime.Unix()
	_, err = f.engine.SubmitNAV(context.Background(), boundary, f.sign(boundary))
	assert.NoError(t, err)
}

func TestSubmitNAVExcessiveDriftLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	// 6% against a 5% bound.
	sub := f.submission(1_060_000)

	_, err := f.engine.SubmitNAV(context.Background(), sub, f.sign(sub))
	require.ErrorIs(t, err, ErrExcessiveNAVDrift)

	v := f.handle.V
	assert.Equal(t, uint64(1_000_000), v.NAVPerShare)
	assert.Equal(t, uint64(0), v.Epoch)
	// The rejected attempt still advances the violation streak.
	assert.Equal(t, uint32(1), v.Drift.ConsecutiveViolations)
	assert.Empty(t, f.sync.starts)
}

func TestSubmitNAVViolationStreakResetsOnAccept(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		sub := f.submission(1_060_000)
		_, err := f.engine.SubmitNAV(context.Background(), sub, f.sign(sub))
		require.ErrorIs(t, err, ErrExcessiveNAVDrift)
	}
	assert.Equal(t, uint32(2), f.handle.V.Drift.ConsecutiveViolations)

	good := f.submission(1_010_000)
	_, err := f.engine.SubmitNAV(context.Background(), good, f.sign(good))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), f.handle.V.Drift.ConsecutiveViolations)
}

func TestSubmitNAVRejectionIsSecurityEvent(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zap.WarnLevel)
	f.engine.Logger = zap.New(core)

	// A forged proof is a critical security event.
	sub := f.submission(1_010_000)
	_, err := f.engine.SubmitNAV(context.Background(), sub, []byte("forged"))
	require.ErrorIs(t, err, ErrInvalidProof)

	entries := logs.FilterMessage("NAV update rejected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "oracle-1", fields["oracleId"])
	assert.Equal(t, string(bridge.SeverityCritical), fields["severity"])

	// An unknown oracle is one too.
	sub.OracleID = "mallory"
	_, err = f.engine.SubmitNAV(context.Background(), sub, f.sign(sub))
	require.ErrorIs(t, err, ErrUnauthorizedOracle)
	assert.Len(t, logs.FilterMessage("NAV update rejected").All(), 2)

	// Out-of-bound drift warns.
	drifted := f.submission(1_200_000)
	_, err = f.engine.SubmitNAV(context.Background(), drifted, f.sign(drifted))
	require.ErrorIs(t, err, ErrExcessiveNAVDrift)
	entries = logs.FilterMessage("NAV update rejected").All()
	require.Len(t, entries, 3)
	assert.Equal(t, string(bridge.SeverityWarning), entries[2].ContextMap()["severity"])
}

func TestSubmitNAVTrancheCountGate(t *testing.T) {
	f := newFixture(t)
	sub := f.submission(1_010_000)
	sub.TrancheNAVs = []uint64{1_010_000, 1_010_000}

	_, err := f.engine.SubmitNAV(context.Background(), sub, f.sign(sub))
	assert.ErrorIs(t, err, vault.ErrTrancheNAVCountMismatch)
	assert.Equal(t, uint64(0), f.handle.V.Epoch)
}

func (f *testFixture) emergencySigs(epoch, newNAV uint64, reason vault.EmergencyReason, signers ...int) [][]byte {
	digest := EmergencyDigest("fund-1", epoch, newNAV, reason)
	var sigs [][]byte
	for _, i := range signers {
		sigs = append(sigs, ed25519.Sign(f.emPriv[i], digest[:]))
	}
	return sigs
}

func TestEmergencyNAVUpdate(t *testing.T) {
	f := newFixture(t)
	sigs := f.emergencySigs(0, 1_200_000, vault.ReasonOracleFailure, 0, 1, 2)

	epoch, err := f.engine.EmergencyNAVUpdate(context.Background(), "fund-1", 1_200_000, vault.ReasonOracleFailure, sigs)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)

	v := f.handle.V
	assert.Equal(t, uint64(1_200_000), v.NAVPerShare)
	assert.Equal(t, vault.StatusEmergency, v.Status)
}

func TestEmergencyNAVUpdateReplayRejected(t *testing.T) {
	f := newFixture(t)
	sigs := f.emergencySigs(0, 1_200_000, vault.ReasonOracleFailure, 0, 1, 2)

	_, err := f.engine.EmergencyNAVUpdate(context.Background(), "fund-1", 1_200_000, vault.ReasonOracleFailure, sigs)
	require.NoError(t, err)

	// A regular update recovers the vault to a higher NAV.
	f.handle.V.Status = vault.StatusActive
	f.handle.V.Config.MaxDriftBps = 2_000
	sub := f.submission(1_400_000)
	_, err = f.engine.SubmitNAV(context.Background(), sub, f.sign(sub))
	require.NoError(t, err)
	require.Equal(t, uint64(1_400_000), f.handle.V.NAVPerShare)

	// The captured signature set was minted against epoch 0. Replaying it
	// to drag NAV back down fails, and the vault is untouched.
	_, err = f.engine.EmergencyNAVUpdate(context.Background(), "fund-1", 1_200_000, vault.ReasonOracleFailure, sigs)
	assert.ErrorIs(t, err, ErrUnauthorizedEmergency)
	assert.Equal(t, uint64(1_400_000), f.handle.V.NAVPerShare)
	assert.Equal(t, uint64(2), f.handle.V.Epoch)
}

func TestEmergencyNAVUpdateThreshold(t *testing.T) {
	f := newFixture(t)

	sigs := f.emergencySigs(0, 1_200_000, vault.ReasonOracleFailure, 0, 1)
	_, err := f.engine.EmergencyNAVUpdate(context.Background(), "fund-1", 1_200_000, vault.ReasonOracleFailure, sigs)
	assert.ErrorIs(t, err, ErrInsufficientMultiSigProofs)

	// The same authority signing three times counts once.
	sigs = f.emergencySigs(0, 1_200_000, vault.ReasonOracleFailure, 0, 0, 0)
	_, err = f.engine.EmergencyNAVUpdate(context.Background(), "fund-1", 1_200_000, vault.ReasonOracleFailure, sigs)
	assert.ErrorIs(t, err, ErrInsufficientMultiSigProofs)

	assert.Equal(t, vault.StatusActive, f.handle.V.Status)
}

func TestEmergencyNAVUpdateNoValidSigners(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.EmergencyNAVUpdate(context.Background(), "fund-1", 1_200_000, vault.ReasonOracleFailure, [][]byte{{1, 2, 3}})
	assert.ErrorIs(t, err, ErrUnauthorizedEmergency)
}

func TestEmergencyNAVUpdateChangeCap(t *testing.T) {
	f := newFixture(t)
	// 30% move against the 25% cap.
	sigs := f.emergencySigs(0, 1_300_000, vault.ReasonMarketDislocation, 0, 1, 2)

	_, err := f.engine.EmergencyNAVUpdate(context.Background(), "fund-1", 1_300_000, vault.ReasonMarketDislocation, sigs)
	assert.ErrorIs(t, err, ErrEmergencyChangeTooLarge)
	assert.Equal(t, uint64(1_000_000), f.handle.V.NAVPerShare)
}
