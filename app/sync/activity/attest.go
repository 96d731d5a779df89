package activity

import (
	"context"
	"encoding/binary"
	"encoding/hex"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/tessera-fund/vaultx/app/sync/types"
)

const attestationDomain = "vaultx:attest:v1"

// VerifyAttestation folds the destination anchor hashes into a single round
// attestation. The round attests only when every launched destination produced
// a non-empty anchor hash, so a partial round is recorded as unattested and
// picked up by the reconcile schedule.
func (c *Context) VerifyAttestation(_ context.Context, in types.ActivityVerifyAttestationInput) (types.ActivityVerifyAttestationOutput, error) {
	out := types.ActivityVerifyAttestationOutput{OK: len(in.AnchorHashes) > 0}

	h, err := blake2b.New256(nil)
	if err != nil {
		return out, err
	}

	var buf [8]byte
	h.Write([]byte(attestationDomain))
	h.Write([]byte(in.VaultID))
	binary.LittleEndian.PutUint64(buf[:], in.Epoch)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], in.NAVPerShare)
	h.Write(buf[:])

	for _, anchorHash := range in.AnchorHashes {
		if anchorHash == "" {
			out.OK = false
			continue
		}
		h.Write([]byte(anchorHash))
	}

	out.Attestation = hex.EncodeToString(h.Sum(nil))

	c.Logger.Debug("Attestation computed",
		zap.String("vaultId", in.VaultID),
		zap.Uint64("epoch", in.Epoch),
		zap.Bool("ok", out.OK))

	return out, nil
}
