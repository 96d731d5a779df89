package vaultmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriftBps(t *testing.T) {
	tests := []struct {
		name   string
		oldNAV uint64
		newNAV uint64
		want   uint64
	}{
		{name: "five percent up", oldNAV: 1_000_000, newNAV: 1_050_000, want: 500},
		{name: "five percent down", oldNAV: 1_000_000, newNAV: 950_000, want: 500},
		{name: "unchanged", oldNAV: 1_000_000, newNAV: 1_000_000, want: 0},
		{name: "zero previous value", oldNAV: 0, newNAV: 1_000_000, want: 0},
		{name: "doubled", oldNAV: 500, newNAV: 1_000, want: 10_000},
		{name: "sub-bps rounds down", oldNAV: 1_000_000, newNAV: 1_000_099, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DriftBps(tt.oldNAV, tt.newNAV))
		})
	}
}

func TestSharesForDeposit(t *testing.T) {
	shares, err := SharesForDeposit(1_000_000, 2_000_000)
	require.NoError(t, err)
	// NAV of 2.0 per share halves the minted quantity.
	assert.Equal(t, uint64(500_000), shares)

	_, err = SharesForDeposit(1_000_000, 0)
	assert.ErrorIs(t, err, ErrMathOverflow)

	_, err = SharesForDeposit(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrMathOverflow)
}

func TestRedemptionInverseNeverExceedsDeposit(t *testing.T) {
	navs := []uint64{1, 999_999, 1_000_000, 1_000_001, 3_141_592, 42_000_000}
	deposits := []uint64{1, 7, 1_000, 999_983, 5_000_000_000}

	for _, nav := range navs {
		for _, deposit := range deposits {
			shares, err := SharesForDeposit(deposit, nav)
			require.NoError(t, err)
			assets, err := AssetsForRedemption(shares, nav)
			require.NoError(t, err)
			assert.LessOrEqual(t, assets, deposit,
				"deposit=%d nav=%d shares=%d", deposit, nav, shares)
		}
	}
}

func TestApplyBps(t *testing.T) {
	fee, err := ApplyBps(1_000_000, 150)
	require.NoError(t, err)
	assert.Equal(t, uint64(15_000), fee)

	zero, err := ApplyBps(0, 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), zero)
}

func TestCheckedArithmetic(t *testing.T) {
	sum, err := CheckedAdd(1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sum)

	_, err = CheckedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrMathOverflow)

	diff, err := CheckedSub(10, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), diff)

	_, err = CheckedSub(4, 10)
	assert.ErrorIs(t, err, ErrMathOverflow)
}
