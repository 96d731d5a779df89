package nav

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ParseOracleKeys decodes a JSON object of oracle ID to hex-encoded ed25519
// public key, e.g. {"oracle-1":"3d4017c3e843895a92b70aa74d1b7ebc..."}.
func ParseOracleKeys(raw string) (map[string]ed25519.PublicKey, error) {
	if raw == "" {
		return nil, nil
	}
	var encoded map[string]string
	if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
		return nil, fmt.Errorf("invalid oracle keys config: %w", err)
	}
	keys := make(map[string]ed25519.PublicKey, len(encoded))
	for id, hexKey := range encoded {
		key, err := decodeKey(hexKey)
		if err != nil {
			return nil, fmt.Errorf("oracle %q: %w", id, err)
		}
		keys[id] = key
	}
	return keys, nil
}

// ParseEmergencyKeys decodes a JSON array of hex-encoded ed25519 public keys.
func ParseEmergencyKeys(raw string) ([]ed25519.PublicKey, error) {
	if raw == "" {
		return nil, nil
	}
	var encoded []string
	if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
		return nil, fmt.Errorf("invalid emergency keys config: %w", err)
	}
	keys := make([]ed25519.PublicKey, 0, len(encoded))
	for i, hexKey := range encoded {
		key, err := decodeKey(hexKey)
		if err != nil {
			return nil, fmt.Errorf("emergency key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func decodeKey(hexKey string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("expected %d key bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
