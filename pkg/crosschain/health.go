package crosschain

import "github.com/puzpuzpuz/xsync/v4"

// defaultDegradedAfter is how many consecutive failures mark a chain
// degraded.
const defaultDegradedAfter = 3

// HealthTracker tracks consecutive anchor failures per destination. A chain
// with too many consecutive failures is reported degraded so the reconciler
// can prioritize it; any success resets the streak.
type HealthTracker struct {
	DegradedAfter uint32

	failures *xsync.Map[uint64, uint32]
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		DegradedAfter: defaultDegradedAfter,
		failures:      xsync.NewMap[uint64, uint32](),
	}
}

// RecordSuccess clears the failure streak for a chain.
func (h *HealthTracker) RecordSuccess(chainID uint64) {
	h.failures.Delete(chainID)
}

// RecordFailure extends the streak and returns its new length.
func (h *HealthTracker) RecordFailure(chainID uint64) uint32 {
	streak, _ := h.failures.Compute(chainID, func(old uint32, _ bool) (uint32, xsync.ComputeOp) {
		return old + 1, xsync.UpdateOp
	})
	return streak
}

// Degraded reports whether the chain's streak crossed the threshold.
func (h *HealthTracker) Degraded(chainID uint64) bool {
	streak, ok := h.failures.Load(chainID)
	return ok && streak >= h.DegradedAfter
}

// DegradedChains lists every currently degraded chain.
func (h *HealthTracker) DegradedChains() []uint64 {
	var out []uint64
	h.failures.Range(func(chainID uint64, streak uint32) bool {
		if streak >= h.DegradedAfter {
			out = append(out, chainID)
		}
		return true
	})
	return out
}
