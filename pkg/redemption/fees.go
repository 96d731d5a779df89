package redemption

import (
	"github.com/tessera-fund/vaultx/pkg/vault"
	"github.com/tessera-fund/vaultx/pkg/vaultmath"
)

const (
	// instantFeePremiumBps is charged on top of the tranche base for
	// immediate settlement.
	instantFeePremiumBps = 100

	// auctionFeeDiscountBps rewards auction participants for providing
	// batch liquidity.
	auctionFeeDiscountBps = 50

	// congestionFeeBps is added while pending redemptions exceed the
	// congestion threshold.
	congestionFeeBps       = 50
	congestionThresholdBps = 2_000
)

// FeeBps computes the effective fee for a request type given current vault
// pressure. The auction discount floors at zero rather than going negative.
func FeeBps(v *vault.Vault, tranche vault.Tranche, rtype Type) uint64 {
	bps := tranche.RedemptionFeeBps

	switch rtype {
	case TypeInstant:
		bps += instantFeePremiumBps
	case TypeAuction:
		if bps > auctionFeeDiscountBps {
			bps -= auctionFeeDiscountBps
		} else {
			bps = 0
		}
	}

	if congested(v) {
		bps += congestionFeeBps
	}
	return bps
}

func congested(v *vault.Vault) bool {
	return vaultmath.RatioBps(v.TotalPending, v.TotalAssets) > congestionThresholdBps
}

// InstantLiquidity returns the assets available for instant settlement:
// total assets minus queued reservations minus the liquidity reserve.
func InstantLiquidity(v *vault.Vault) uint64 {
	reserve, err := vaultmath.ApplyBps(v.TotalAssets, v.Config.LiquidityReserveBps)
	if err != nil {
		return 0
	}
	committed := v.TotalPending + reserve
	if committed >= v.TotalAssets {
		return 0
	}
	return v.TotalAssets - committed
}
