// Package oracle implements meta-oracle consensus: readings from independent
// price sources are filtered for staleness, checked for quorum and aggregated
// with outlier exclusion, so a minority of compromised feeds cannot steer the
// accepted NAV.
package oracle

import (
	"errors"
	"sort"
	"time"

	"github.com/tessera-fund/vaultx/pkg/vaultmath"
)

var (
	ErrInsufficientQuorum = errors.New("insufficient oracle quorum")
	ErrNoFreshReadings    = errors.New("no fresh oracle readings")
)

// Reading is one oracle's report for a vault NAV.
type Reading struct {
	OracleID  string `json:"oracle_id"`
	Value     uint64 `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// Config sets the consensus policy.
type Config struct {
	MinQuorum       int           // minimum fresh readings to aggregate
	MaxDeviationBps uint64        // max deviation from the aggregate before exclusion
	StaleAfter      time.Duration // readings older than this are discarded
	Timeout         time.Duration // per-source fetch timeout (used by Poller)
}

// DefaultConfig returns the production consensus policy.
func DefaultConfig() Config {
	return Config{
		MinQuorum:       3,
		MaxDeviationBps: 1_000,
		StaleAfter:      5 * time.Minute,
		Timeout:         3 * time.Second,
	}
}

// Result is one consensus round. Pivot is the full-set median used for
// outlier screening and is populated even when the round fails quorum, so
// callers can report how far an excluded reading sat from the pack.
type Result struct {
	Value         uint64    `json:"value"`
	Pivot         uint64    `json:"pivot"`
	Participants  int       `json:"participants"`
	Outliers      []Reading `json:"outliers,omitempty"`
	ConfidenceBps uint64    `json:"confidence_bps"`
}

// Consensus aggregates readings taken at the given time. Outliers beyond
// MaxDeviationBps from the full-set median are excluded; the round still
// succeeds if the survivors meet quorum. Excluded readings are returned so
// callers can raise manipulation alerts per source.
func Consensus(now time.Time, cfg Config, readings []Reading) (Result, error) {
	cutoff := now.Add(-cfg.StaleAfter).Unix()

	fresh := make([]Reading, 0, len(readings))
	for _, r := range readings {
		if r.Timestamp >= cutoff {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		return Result{}, ErrNoFreshReadings
	}
	if len(fresh) < cfg.MinQuorum {
		return Result{}, ErrInsufficientQuorum
	}

	pivot := median(fresh)

	survivors := make([]Reading, 0, len(fresh))
	var outliers []Reading
	for _, r := range fresh {
		if vaultmath.DriftBps(pivot, r.Value) > cfg.MaxDeviationBps {
			outliers = append(outliers, r)
			continue
		}
		survivors = append(survivors, r)
	}
	if len(survivors) < cfg.MinQuorum {
		return Result{Pivot: pivot, Outliers: outliers}, ErrInsufficientQuorum
	}

	return Result{
		Value:         median(survivors),
		Pivot:         pivot,
		Participants:  len(survivors),
		Outliers:      outliers,
		ConfidenceBps: uint64(len(survivors)) * vaultmath.BpsDenominator / uint64(len(fresh)),
	}, nil
}

func median(readings []Reading) uint64 {
	values := make([]uint64, len(readings))
	for i, r := range readings {
		values[i] = r.Value
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return values[mid-1] + (values[mid]-values[mid-1])/2
}
