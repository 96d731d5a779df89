// Package nav implements the NAV integrity engine: every submitted NAV passes
// an ordered gate chain (authority, proof, freshness, drift, tranche
// structure) before it becomes the vault's truth, and a rejected submission
// leaves vault state byte-for-byte unchanged.
package nav

import (
	"crypto/ed25519"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/tessera-fund/vaultx/pkg/vault"
)

// Domain tags keep signatures for one message kind from validating as
// another.
const (
	submissionDomain = "vaultx:nav:v1"
	emergencyDomain  = "vaultx:emergency:v1"
)

// ProofVerifier checks an integrity proof over a submission digest.
type ProofVerifier interface {
	Verify(digest [32]byte, proof []byte, key ed25519.PublicKey) bool
}

// Ed25519Verifier treats the proof as an ed25519 signature over the digest.
type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(digest [32]byte, proof []byte, key ed25519.PublicKey) bool {
	if len(key) != ed25519.PublicKeySize || len(proof) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(key, digest[:], proof)
}

// SubmissionDigest is the canonical blake2b-256 digest an oracle signs for a
// NAV submission. Field order is fixed; changing it is a wire break.
func SubmissionDigest(sub vault.NAVSubmission) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(submissionDomain))
	h.Write([]byte(sub.VaultID))
	h.Write([]byte(sub.OracleID))
	writeUint64(h, sub.NAVPerShare)
	writeUint64(h, sub.TotalAssets)
	writeUint64(h, sub.TotalLiabilities)
	writeUint64(h, uint64(len(sub.TrancheNAVs)))
	for _, nav := range sub.TrancheNAVs {
		writeUint64(h, nav)
	}
	writeUint64(h, uint64(sub.Timestamp))
	writeUint64(h, sub.ConfidenceBps)

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// EmergencyDigest is the digest each emergency signer signs for an override.
// It binds the vault's current epoch, so a captured signature set is dead
// the moment any update advances the vault.
func EmergencyDigest(vaultID string, epoch, newNAV uint64, reason vault.EmergencyReason) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(emergencyDomain))
	h.Write([]byte(vaultID))
	writeUint64(h, epoch)
	writeUint64(h, newNAV)
	h.Write([]byte{byte(reason)})

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

func writeUint64(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}
