// Package vaultmath implements the fixed-point share and fee arithmetic used
// by the vault accounting paths. All operations are checked: any intermediate
// that cannot round-trip through uint64 returns ErrMathOverflow instead of
// wrapping silently.
package vaultmath

import (
	"errors"
	"math/bits"
)

const (
	// ShareScale is the fixed-point scale for share quantities (1e6).
	ShareScale = 1_000_000

	// BpsDenominator is the basis-point denominator.
	BpsDenominator = 10_000
)

var ErrMathOverflow = errors.New("arithmetic overflow")

// mulDiv computes a*b/d over a 128-bit intermediate. Returns ErrMathOverflow
// when d is zero or the quotient does not fit in uint64.
func mulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrMathOverflow
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, ErrMathOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

// SharesForDeposit converts a deposit amount into shares at the given NAV
// per share. Zero NAV is an error.
func SharesForDeposit(amount, navPerShare uint64) (uint64, error) {
	return mulDiv(amount, ShareScale, navPerShare)
}

// AssetsForRedemption converts a share quantity into assets at the given NAV
// per share.
func AssetsForRedemption(shares, navPerShare uint64) (uint64, error) {
	return mulDiv(shares, navPerShare, ShareScale)
}

// DriftBps returns the absolute NAV change in basis points relative to the
// previous value. A zero previous value yields zero drift, so the first
// update after initialization always passes the drift gate.
func DriftBps(oldNAV, newNAV uint64) uint64 {
	if oldNAV == 0 {
		return 0
	}
	var delta uint64
	if newNAV > oldNAV {
		delta = newNAV - oldNAV
	} else {
		delta = oldNAV - newNAV
	}
	hi, lo := bits.Mul64(delta, BpsDenominator)
	if hi >= oldNAV {
		// Quotient exceeds uint64; drift is effectively unbounded.
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, oldNAV)
	return q
}

// RatioBps returns part/whole expressed in basis points, zero when whole is
// zero. Saturates at MaxUint64 for pathological inputs.
func RatioBps(part, whole uint64) uint64 {
	if whole == 0 {
		return 0
	}
	hi, lo := bits.Mul64(part, BpsDenominator)
	if hi >= whole {
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, whole)
	return q
}

// ApplyBps returns amount*bps/10000, checked.
func ApplyBps(amount, bps uint64) (uint64, error) {
	return mulDiv(amount, bps, BpsDenominator)
}

// CheckedAdd returns a+b or ErrMathOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrMathOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrMathOverflow when b exceeds a.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrMathOverflow
	}
	return diff, nil
}
