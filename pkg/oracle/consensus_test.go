package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func reading(id string, value uint64, ts time.Time) Reading {
	return Reading{OracleID: id, Value: value, Timestamp: ts.Unix()}
}

func TestConsensusExcludesManipulatedOutlier(t *testing.T) {
	now := time.Now()
	cfg := DefaultConfig()

	readings := []Reading{
		reading("chainlink", 1_000_000, now),
		reading("pyth", 1_002_000, now),
		reading("redstone", 998_000, now),
		// 40% above the honest cluster, far past the 10% deviation bound.
		reading("compromised", 1_400_000, now),
	}

	res, err := Consensus(now, cfg, readings)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Participants)
	require.Len(t, res.Outliers, 1)
	assert.Equal(t, "compromised", res.Outliers[0].OracleID)
	assert.Equal(t, uint64(1_000_000), res.Value)
	assert.Equal(t, uint64(1_001_000), res.Pivot)
	assert.Equal(t, uint64(7_500), res.ConfidenceBps)
}

func TestConsensusQuorum(t *testing.T) {
	now := time.Now()
	cfg := DefaultConfig()

	_, err := Consensus(now, cfg, []Reading{
		reading("a", 1_000_000, now),
		reading("b", 1_000_000, now),
	})
	assert.ErrorIs(t, err, ErrInsufficientQuorum)

	// Outlier exclusion dropping the set below quorum also fails the
	// round, but the excluded readings and the screening pivot survive
	// so the failure can still be alerted on per source.
	res, err := Consensus(now, cfg, []Reading{
		reading("a", 1_000_000, now),
		reading("b", 1_001_000, now),
		reading("c", 2_000_000, now),
	})
	assert.ErrorIs(t, err, ErrInsufficientQuorum)
	require.Len(t, res.Outliers, 1)
	assert.Equal(t, "c", res.Outliers[0].OracleID)
	assert.Equal(t, uint64(1_001_000), res.Pivot)
}

func TestConsensusDiscardsStaleReadings(t *testing.T) {
	now := time.Now()
	cfg := DefaultConfig()

	readings := []Reading{
		reading("a", 1_000_000, now),
		reading("b", 1_000_500, now),
		reading("c", 999_500, now),
		reading("stale", 500_000, now.Add(-time.Hour)),
	}

	res, err := Consensus(now, cfg, readings)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Participants)
	assert.Empty(t, res.Outliers)
	assert.Equal(t, uint64(10_000), res.ConfidenceBps)
}

func TestConsensusNoFreshReadings(t *testing.T) {
	now := time.Now()
	_, err := Consensus(now, DefaultConfig(), []Reading{
		reading("a", 1_000_000, now.Add(-time.Hour)),
	})
	assert.ErrorIs(t, err, ErrNoFreshReadings)
}

type stubSource struct {
	id    string
	value uint64
	err   error
	delay time.Duration
}

func (s *stubSource) ID() string { return s.id }

func (s *stubSource) Fetch(ctx context.Context, _ string) (Reading, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Reading{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Reading{}, s.err
	}
	return Reading{OracleID: s.id, Value: s.value, Timestamp: time.Now().Unix()}, nil
}

func TestPollerCollectsDespiteFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond

	sources := []Source{
		&stubSource{id: "a", value: 1_000_000},
		&stubSource{id: "b", value: 1_001_000},
		&stubSource{id: "c", value: 999_000},
		&stubSource{id: "down", err: errors.New("connection refused")},
		&stubSource{id: "slow", value: 1_000_000, delay: time.Second},
	}

	metrics := NewMetrics()
	p := NewPoller(zap.NewNop(), cfg, sources, metrics)
	defer p.Stop()

	res, err := p.PollConsensus(context.Background(), "fund-1")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Participants)
	assert.Equal(t, int64(5), metrics.QueriesTotal.Value())
	assert.Equal(t, int64(2), metrics.Failures.Value())
}
