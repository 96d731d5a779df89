package bridge

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// ParseOriginKeys decodes a JSON object of chain ID to hex-encoded ed25519
// attestation key, e.g. {"1":"3d4017c3e843895a92b70aa74d1b7ebc..."}.
func ParseOriginKeys(raw string) (map[uint64]ed25519.PublicKey, error) {
	if raw == "" {
		return nil, nil
	}
	var encoded map[string]string
	if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
		return nil, fmt.Errorf("invalid origin keys config: %w", err)
	}
	keys := make(map[uint64]ed25519.PublicKey, len(encoded))
	for chainStr, hexKey := range encoded {
		chainID, err := strconv.ParseUint(chainStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain ID %q: %w", chainStr, err)
		}
		rawKey, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("chain %d: invalid hex key: %w", chainID, err)
		}
		if len(rawKey) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("chain %d: expected %d key bytes, got %d", chainID, ed25519.PublicKeySize, len(rawKey))
		}
		keys[chainID] = ed25519.PublicKey(rawKey)
	}
	return keys, nil
}
