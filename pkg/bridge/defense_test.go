package bridge

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fixedConsensus struct {
	value uint64
	ok    bool
}

func (f fixedConsensus) ConsensusValue(ctx context.Context, vaultID string) (uint64, bool) {
	return f.value, f.ok
}

type defenseFixture struct {
	defense *Defense
	priv    ed25519.PrivateKey
}

func newDefenseFixture(t *testing.T) *defenseFixture {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	guard := NewOriginGuard(map[uint64]ed25519.PublicKey{1: pub})
	d := NewDefense(zap.NewNop(), guard, NewMessageFilter(), NewMetrics())
	d.Consensus = fixedConsensus{value: 1_000_000, ok: true}

	return &defenseFixture{defense: d, priv: priv}
}

func (f *defenseFixture) envelope(id string) *Envelope {
	payload, _ := json.Marshal(NAVPayload{VaultID: "fund-1", Value: 1_001_000})
	return &Envelope{
		MessageID:          id,
		SourceChainID:      1,
		DestinationChainID: 2,
		Sender:             "0xsender",
		Receiver:           "0xreceiver",
		PayloadKind:        PayloadKindNAV,
		Payload:            payload,
		Timestamp:          time.Now().Unix(),
	}
}

func (f *defenseFixture) sign(env *Envelope) []byte {
	digest := env.Digest()
	return ed25519.Sign(f.priv, digest[:])
}

func TestScreenAccepts(t *testing.T) {
	f := newDefenseFixture(t)
	env := f.envelope("msg-1")

	err := f.defense.Screen(context.Background(), env, f.sign(env))
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.defense.Metrics.ChainVerifications.Value())
	assert.Equal(t, int64(0), f.defense.Metrics.FraudAttemptsDetected.Value())
}

func TestScreenUnknownChain(t *testing.T) {
	f := newDefenseFixture(t)
	env := f.envelope("msg-1")
	env.SourceChainID = 99

	err := f.defense.Screen(context.Background(), env, f.sign(env))
	assert.ErrorIs(t, err, ErrUnknownSourceChain)
	assert.Equal(t, int64(1), f.defense.Metrics.FraudAttemptsDetected.Value())
}

func TestScreenTamperedEnvelope(t *testing.T) {
	f := newDefenseFixture(t)
	env := f.envelope("msg-1")
	proof := f.sign(env)

	// Any post-signature mutation invalidates the origin proof.
	env.Receiver = "0xattacker"
	err := f.defense.Screen(context.Background(), env, proof)
	assert.ErrorIs(t, err, ErrInvalidOriginProof)
}

func TestScreenReplay(t *testing.T) {
	f := newDefenseFixture(t)
	env := f.envelope("msg-1")
	proof := f.sign(env)

	require.NoError(t, f.defense.Screen(context.Background(), env, proof))

	err := f.defense.Screen(context.Background(), env, proof)
	assert.ErrorIs(t, err, ErrReplayDetected)
	assert.Equal(t, int64(1), f.defense.Metrics.MessagesFiltered.Value())
}

func TestScreenExpired(t *testing.T) {
	f := newDefenseFixture(t)
	env := f.envelope("msg-1")
	env.Timestamp = time.Now().Add(-time.Hour).Unix()

	err := f.defense.Screen(context.Background(), env, f.sign(env))
	assert.ErrorIs(t, err, ErrMessageExpired)
}

func TestScreenConsensusGate(t *testing.T) {
	f := newDefenseFixture(t)

	env := f.envelope("msg-1")
	payload, _ := json.Marshal(NAVPayload{VaultID: "fund-1", Value: 1_400_000})
	env.Payload = payload

	err := f.defense.Screen(context.Background(), env, f.sign(env))
	assert.ErrorIs(t, err, ErrConsensusMismatch)
	assert.Equal(t, int64(1), f.defense.Metrics.FraudAttemptsDetected.Value())

	// The gates are conjunctive: an otherwise well-formed NAV value with
	// no fresh consensus round to check it against is rejected, however
	// plausible or implausible the number looks.
	f.defense.Consensus = fixedConsensus{ok: false}
	env2 := f.envelope("msg-2")
	payload2, _ := json.Marshal(NAVPayload{VaultID: "fund-1", Value: 999_999_999})
	env2.Payload = payload2
	err = f.defense.Screen(context.Background(), env2, f.sign(env2))
	assert.ErrorIs(t, err, ErrConsensusUnavailable)

	// Same with no consensus source wired at all.
	f.defense.Consensus = nil
	env3 := f.envelope("msg-3")
	err = f.defense.Screen(context.Background(), env3, f.sign(env3))
	assert.ErrorIs(t, err, ErrConsensusUnavailable)
}

func TestReportOracleOutlierCarriesReading(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	guard := NewOriginGuard(map[uint64]ed25519.PublicKey{1: pub})
	d := NewDefense(zap.New(core), guard, NewMessageFilter(), NewMetrics())

	d.ReportOracleOutlier(context.Background(), "fund-1", "compromised", 1_400_000, 4_000)

	entries := logs.FilterMessage("defense alert").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, string(AlertOracleManipulation), fields["kind"])
	assert.Equal(t, "compromised", fields["oracleId"])
	assert.Equal(t, uint64(1_400_000), fields["value"])
	assert.Equal(t, uint64(4_000), fields["deviationBps"])
}

func TestFilterStructure(t *testing.T) {
	filter := NewMessageFilter()

	tests := []struct {
		name   string
		mutate func(*Envelope)
		want   error
	}{
		{name: "missing id", mutate: func(e *Envelope) { e.MessageID = "" }, want: ErrMalformedMessage},
		{name: "missing sender", mutate: func(e *Envelope) { e.Sender = "" }, want: ErrMalformedMessage},
		{name: "empty payload", mutate: func(e *Envelope) { e.Payload = nil }, want: ErrMalformedMessage},
		{name: "oversized payload", mutate: func(e *Envelope) { e.Payload = make([]byte, maxPayloadBytes+1) }, want: ErrMalformedMessage},
		{name: "self loop", mutate: func(e *Envelope) { e.DestinationChainID = e.SourceChainID }, want: ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &Envelope{
				MessageID:          "msg",
				SourceChainID:      1,
				DestinationChainID: 2,
				Sender:             "a",
				Receiver:           "b",
				Payload:            []byte("x"),
				Timestamp:          time.Now().Unix(),
			}
			tt.mutate(env)
			assert.ErrorIs(t, filter.Check(env), tt.want)
		})
	}
}

func TestFilterPrune(t *testing.T) {
	filter := NewMessageFilter()
	now := time.Now()
	filter.Now = func() time.Time { return now }

	env := &Envelope{
		MessageID:          "old",
		SourceChainID:      1,
		DestinationChainID: 2,
		Sender:             "a",
		Receiver:           "b",
		Payload:            []byte("x"),
		Timestamp:          now.Unix(),
	}
	require.NoError(t, filter.Check(env))
	assert.Equal(t, 1, filter.SeenCount())

	// Inside retention nothing is pruned.
	assert.Equal(t, 0, filter.Prune())

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, filter.Prune())
	assert.Equal(t, 0, filter.SeenCount())
}
