package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTranches() []Tranche {
	tranches := make([]Tranche, TrancheCount)
	for i := range tranches {
		tranches[i] = Tranche{
			Type:        TrancheType(i),
			NAVPerShare: 1_000_000,
			TotalShares: 1_000_000_000,
		}
	}
	return tranches
}

func TestDriftLedgerRingWrap(t *testing.T) {
	var d DriftLedger

	d.Record(0, 42, 500)
	require.Equal(t, uint64(42), d.At(0))

	// Epoch 100 lands in the same slot and overwrites epoch 0.
	d.Record(100, 77, 500)
	assert.Equal(t, uint64(77), d.At(100))
	assert.Equal(t, uint64(77), d.At(0))
	assert.Equal(t, uint64(100), d.LastEpoch)
}

func TestDriftLedgerViolationStreak(t *testing.T) {
	var d DriftLedger

	assert.True(t, d.Record(1, 600, 500))
	assert.True(t, d.Record(2, 800, 500))
	assert.Equal(t, uint32(2), d.ConsecutiveViolations)
	assert.False(t, d.Frozen(3))

	assert.True(t, d.Record(3, 501, 500))
	assert.True(t, d.Frozen(3))

	// A single in-bound epoch clears the streak entirely.
	assert.False(t, d.Record(4, 100, 500))
	assert.Equal(t, uint32(0), d.ConsecutiveViolations)
	assert.False(t, d.Frozen(3))
}

func TestDriftLedgerBoundaryIsNotViolation(t *testing.T) {
	var d DriftLedger
	assert.False(t, d.Record(1, 500, 500))
	assert.Equal(t, uint32(0), d.ConsecutiveViolations)
}

func TestApplyWaterfall(t *testing.T) {
	tranches := testTranches()
	navs := []uint64{1_010_000, 1_020_000, 1_050_000, 900_000, 1_200_000}

	require.NoError(t, ApplyWaterfall(tranches, navs))

	for i := range tranches {
		assert.Equal(t, navs[i], tranches[i].NAVPerShare)
	}
	// Appreciation accrues as yield, drawdowns do not.
	assert.Equal(t, uint64(10_000), tranches[0].AccruedYield)
	assert.Equal(t, uint64(0), tranches[3].AccruedYield)
	assert.Equal(t, uint64(200_000), tranches[4].AccruedYield)
}

func TestApplyWaterfallSeniorBound(t *testing.T) {
	tranches := testTranches()
	// 6% move on the senior tranche exceeds the 5% bound.
	navs := []uint64{1_060_000, 1_000_000, 1_000_000, 1_000_000, 1_000_000}

	err := ApplyWaterfall(tranches, navs)
	require.ErrorIs(t, err, ErrExcessiveSeniorTrancheVolatility)

	// Rejected vector leaves every tranche untouched.
	for i := range tranches {
		assert.Equal(t, uint64(1_000_000), tranches[i].NAVPerShare)
		assert.Equal(t, uint64(0), tranches[i].AccruedYield)
	}
}

func TestApplyWaterfallCountMismatch(t *testing.T) {
	tranches := testTranches()
	err := ApplyWaterfall(tranches, []uint64{1, 2, 3})
	assert.ErrorIs(t, err, ErrTrancheNAVCountMismatch)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrVaultNotFound)

	v := &Vault{ID: "fund-1", Config: DefaultConfig(), Tranches: testTranches()}
	r.Put(v)

	h, err := r.Get("fund-1")
	require.NoError(t, err)

	err = h.WithLock(func(v *Vault) error {
		v.Epoch++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.V.Epoch)
	assert.Equal(t, 1, r.Size())
}
