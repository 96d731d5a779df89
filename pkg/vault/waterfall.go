package vault

import "github.com/tessera-fund/vaultx/pkg/vaultmath"

// seniorVolatilityBoundBps caps how far the senior tranche NAV may move in a
// single update. The senior layer is sold as low-volatility; a larger move is
// treated as a reporting fault rather than applied.
const seniorVolatilityBoundBps = 500

// ApplyWaterfall applies a new per-tranche NAV vector to the capital
// structure. The vector must carry one value per tranche in seniority order.
// The whole vector is validated before any tranche is touched, so a rejected
// update leaves every tranche unchanged.
func ApplyWaterfall(tranches []Tranche, trancheNAVs []uint64) error {
	if len(trancheNAVs) != len(tranches) {
		return ErrTrancheNAVCountMismatch
	}

	for i := range tranches {
		if tranches[i].Type == TrancheSenior {
			if vaultmath.DriftBps(tranches[i].NAVPerShare, trancheNAVs[i]) > seniorVolatilityBoundBps {
				return ErrExcessiveSeniorTrancheVolatility
			}
		}
	}

	for i := range tranches {
		old := tranches[i].NAVPerShare
		tranches[i].NAVPerShare = trancheNAVs[i]
		// Yield only accrues on appreciation; drawdowns floor at zero.
		if trancheNAVs[i] > old {
			tranches[i].AccruedYield += trancheNAVs[i] - old
		}
	}
	return nil
}
