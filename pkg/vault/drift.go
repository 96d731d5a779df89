package vault

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// DriftWindow is the number of recent epochs retained in the drift ring.
const DriftWindow = 100

// DriftLedger is a fixed ring of per-epoch NAV drift observations. Epoch N
// lands in slot N % DriftWindow, so an epoch 100 apart overwrites its
// predecessor and the ring always holds the trailing window.
type DriftLedger struct {
	Window                [DriftWindow]uint64 `json:"window"`
	LastEpoch             uint64              `json:"last_epoch"`
	ConsecutiveViolations uint32              `json:"consecutive_violations"`
}

// Record stores the drift for an epoch and updates the violation streak
// against maxDriftBps. In-bound drift resets the streak; out-of-bound drift
// extends it. Returns true when this observation is a violation.
func (d *DriftLedger) Record(epoch, driftBps, maxDriftBps uint64) bool {
	d.Window[epoch%DriftWindow] = driftBps
	d.LastEpoch = epoch

	if driftBps > maxDriftBps {
		d.ConsecutiveViolations++
		return true
	}
	d.ConsecutiveViolations = 0
	return false
}

// RecordViolation extends the violation streak without writing a ring slot.
// Used when a submission is rejected at the drift gate, so no epoch is
// minted but the circuit still counts the attempt.
func (d *DriftLedger) RecordViolation() {
	d.ConsecutiveViolations++
}

// At returns the recorded drift for an epoch inside the trailing window.
func (d *DriftLedger) At(epoch uint64) uint64 {
	return d.Window[epoch%DriftWindow]
}

// Frozen reports whether the violation streak has tripped the redemption
// freeze circuit.
func (d *DriftLedger) Frozen(threshold uint32) bool {
	return threshold > 0 && d.ConsecutiveViolations >= threshold
}

// Root returns a hex digest over the trailing window and its position.
// Anchored alongside the NAV so auditors can verify the drift history a
// destination chain saw matches what this node recorded.
func (d *DriftLedger) Root() string {
	h, _ := blake2b.New256(nil)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], d.LastEpoch)
	h.Write(buf[:])
	for _, driftBps := range d.Window {
		binary.LittleEndian.PutUint64(buf[:], driftBps)
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
