package crosschain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tessera-fund/vaultx/pkg/utils"
)

// ParseDestinations decodes a JSON array of destinations, e.g.
//
//	[{"chain_id":1,"name":"ethereum","kind":"evm","endpoint":"http://anchor-eth:8080","timeout":30000000000}]
func ParseDestinations(raw string) ([]Destination, error) {
	if raw == "" {
		return nil, nil
	}
	var dests []Destination
	if err := json.Unmarshal([]byte(raw), &dests); err != nil {
		return nil, fmt.Errorf("invalid destinations config: %w", err)
	}
	for i, d := range dests {
		if d.ChainID == 0 {
			return nil, fmt.Errorf("destination %d: chain_id is required", i)
		}
		if d.Endpoint == "" {
			return nil, fmt.Errorf("destination %d (chain %d): endpoint is required", i, d.ChainID)
		}
	}
	return dests, nil
}

// DestinationsFromEnv reads the destination set from SYNC_DESTINATIONS.
func DestinationsFromEnv() ([]Destination, error) {
	return ParseDestinations(utils.Env("SYNC_DESTINATIONS", ""))
}

// LedgerDestinationFromEnv reads the optional drift-ledger anchor endpoint
// from LEDGER_ANCHOR_ENDPOINT. Returns nil when unset.
func LedgerDestinationFromEnv() *Destination {
	endpoint := utils.Env("LEDGER_ANCHOR_ENDPOINT", "")
	if endpoint == "" {
		return nil
	}
	return &Destination{
		ChainID:  utils.EnvUint64("LEDGER_ANCHOR_CHAIN_ID", 0),
		Name:     "immutable-ledger",
		Kind:     KindInternal,
		Endpoint: endpoint,
		Timeout:  utils.EnvDuration("LEDGER_ANCHOR_TIMEOUT", 30*time.Second),
	}
}
