package redemption

import (
	"time"

	"github.com/tessera-fund/vaultx/pkg/utils"
)

// TimeSlots derives the current slot from wall-clock time. Every node that
// shares the genesis and interval derives the same slot number, which is what
// makes processing-slot commitments verifiable across restarts.
type TimeSlots struct {
	Genesis  time.Time
	Interval time.Duration
}

// NewTimeSlotsFromEnv reads SLOT_GENESIS_UNIX and SLOT_INTERVAL_MS.
func NewTimeSlotsFromEnv() TimeSlots {
	genesis := utils.EnvInt64("SLOT_GENESIS_UNIX", 1_700_000_000)
	intervalMs := utils.EnvInt64("SLOT_INTERVAL_MS", 400)
	return TimeSlots{
		Genesis:  time.Unix(genesis, 0),
		Interval: time.Duration(intervalMs) * time.Millisecond,
	}
}

func (t TimeSlots) CurrentSlot() uint64 {
	elapsed := time.Since(t.Genesis)
	if elapsed <= 0 {
		return 0
	}
	return uint64(elapsed / t.Interval)
}
