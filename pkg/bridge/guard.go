package bridge

import "crypto/ed25519"

// OriginGuard verifies that a message genuinely originates from a registered
// source chain. Each registered chain has one attestation key; the origin
// proof is that key's signature over the envelope digest.
type OriginGuard struct {
	keys map[uint64]ed25519.PublicKey
}

func NewOriginGuard(keys map[uint64]ed25519.PublicKey) *OriginGuard {
	return &OriginGuard{keys: keys}
}

// RegisterChain adds or replaces the attestation key for a chain.
func (g *OriginGuard) RegisterChain(chainID uint64, key ed25519.PublicKey) {
	if g.keys == nil {
		g.keys = make(map[uint64]ed25519.PublicKey)
	}
	g.keys[chainID] = key
}

// Verify checks the envelope's origin proof against the source chain's key.
func (g *OriginGuard) Verify(env *Envelope, proof []byte) error {
	key, ok := g.keys[env.SourceChainID]
	if !ok {
		return ErrUnknownSourceChain
	}
	if len(proof) != ed25519.SignatureSize {
		return ErrInvalidOriginProof
	}
	digest := env.Digest()
	if !ed25519.Verify(key, digest[:], proof) {
		return ErrInvalidOriginProof
	}
	return nil
}
