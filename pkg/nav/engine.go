package nav

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/pkg/bridge"
	"github.com/tessera-fund/vaultx/pkg/redis"
	"github.com/tessera-fund/vaultx/pkg/vault"
	"github.com/tessera-fund/vaultx/pkg/vaultmath"
)

var (
	ErrUnauthorizedOracle         = errors.New("oracle is not authorized for this vault")
	ErrInvalidProof               = errors.New("invalid integrity proof")
	ErrStaleNAVData               = errors.New("submission is older than the last accepted update")
	ErrFutureNAVData              = errors.New("submission timestamp is too far in the future")
	ErrExcessiveNAVDrift          = errors.New("NAV drift exceeds the configured bound")
	ErrUnauthorizedEmergency      = errors.New("signer is not an emergency authority")
	ErrInsufficientMultiSigProofs = errors.New("not enough distinct emergency signatures")
	ErrEmergencyChangeTooLarge    = errors.New("emergency NAV change exceeds the override cap")
)

// maxFutureSkew is how far ahead of local time a submission timestamp may
// run before it is rejected as future-dated.
const maxFutureSkew = 300 * time.Second

// emergencyChangeCapBps bounds a multisig override to a 25% NAV move.
const emergencyChangeCapBps = 2_500

// minEmergencySigners is the multisig threshold for an override.
const minEmergencySigners = 3

// Store is the persistence surface the engine commits through.
type Store interface {
	SaveVaultState(ctx context.Context, v *vault.Vault) error
	SaveTranches(ctx context.Context, vaultID string, epoch uint64, tranches []vault.Tranche) error
	SaveDriftEpoch(ctx context.Context, vaultID string, epoch, driftBps uint64, violation bool) error
}

// SyncStarter kicks off cross-chain propagation for an accepted epoch.
// Propagation is downstream of commitment: its failure never unwinds state.
type SyncStarter interface {
	StartNavSync(ctx context.Context, vaultID string, epoch, navPerShare uint64) error
}

// ConfidenceSource reports the current meta-oracle consensus confidence for
// a vault in basis points. Advisory only.
type ConfidenceSource interface {
	Confidence(ctx context.Context, vaultID string) uint64
}

// Engine validates and commits NAV submissions.
type Engine struct {
	Logger   *zap.Logger
	Registry *vault.Registry
	Store    Store
	Redis    *redis.Client
	Sync     SyncStarter

	// OracleKeys maps an authorized oracle ID to its signing key.
	OracleKeys map[string]ed25519.PublicKey

	// EmergencyKeys are the recognized emergency authorities.
	EmergencyKeys []ed25519.PublicKey

	Verifier   ProofVerifier
	Confidence ConfidenceSource

	// Now is injectable for tests.
	Now func() time.Time
}

func NewEngine(logger *zap.Logger, registry *vault.Registry, store Store) *Engine {
	return &Engine{
		Logger:   logger,
		Registry: registry,
		Store:    store,
		Verifier: Ed25519Verifier{},
		Now:      time.Now,
	}
}

// SubmitNAV runs the gate chain for one submission and, if every gate
// passes, commits the new epoch: aggregates, drift ledger, tranche waterfall,
// persistence, event, sync kick-off. Gate order is fixed; the first failing
// gate's error is returned and the vault is left unchanged.
func (e *Engine) SubmitNAV(ctx context.Context, sub vault.NAVSubmission, proof []byte) (uint64, error) {
	handle, err := e.Registry.Get(sub.VaultID)
	if err != nil {
		return 0, err
	}

	var committedEpoch uint64
	err = handle.WithLock(func(v *vault.Vault) error {
		// Gate 1: authority.
		key, ok := e.OracleKeys[sub.OracleID]
		if !ok {
			return ErrUnauthorizedOracle
		}

		// Gate 2: integrity proof.
		digest := SubmissionDigest(sub)
		if !e.Verifier.Verify(digest, proof, key) {
			return ErrInvalidProof
		}

		// Gate 3: freshness window.
		if sub.Timestamp < v.LastNAVUpdate {
			return ErrStaleNAVData
		}
		if sub.Timestamp > e.Now().Add(maxFutureSkew).Unix() {
			return ErrFutureNAVData
		}

		// Gate 4: drift bound. A rejected submission still feeds the
		// violation streak so repeated out-of-bound reports trip the
		// redemption freeze circuit.
		driftBps := vaultmath.DriftBps(v.NAVPerShare, sub.NAVPerShare)
		if driftBps > v.Config.MaxDriftBps {
			v.Drift.RecordViolation()
			if persistErr := e.Store.SaveVaultState(ctx, v); persistErr != nil {
				e.Logger.Warn("failed to persist drift violation streak",
					zap.String("vaultId", v.ID),
					zap.Error(persistErr))
			}
			return ErrExcessiveNAVDrift
		}

		// Gate 5: tranche structure. ApplyWaterfall validates the whole
		// vector before mutating, so a failure here leaves tranches intact.
		if err := vault.ApplyWaterfall(v.Tranches, sub.TrancheNAVs); err != nil {
			return err
		}

		// Commit.
		oldNAV := v.NAVPerShare
		v.NAVPerShare = sub.NAVPerShare
		v.TotalAssets = sub.TotalAssets
		v.TotalLiabilities = sub.TotalLiabilities
		v.Epoch++
		v.LastNAVUpdate = sub.Timestamp
		v.Drift.Record(v.Epoch, driftBps, v.Config.MaxDriftBps)
		committedEpoch = v.Epoch

		if err := e.Store.SaveVaultState(ctx, v); err != nil {
			return err
		}
		if err := e.Store.SaveTranches(ctx, v.ID, v.Epoch, v.Tranches); err != nil {
			return err
		}
		if err := e.Store.SaveDriftEpoch(ctx, v.ID, v.Epoch, driftBps, false); err != nil {
			return err
		}

		e.publishNAVUpdated(ctx, v, driftBps, oldNAV, digest)
		return nil
	})
	if err != nil {
		e.reportRejection(ctx, sub.VaultID, sub.OracleID, sub.NAVPerShare, err)
		return 0, err
	}

	// Propagation is fire-and-forget relative to the committed epoch.
	if e.Sync != nil {
		if err := e.Sync.StartNavSync(ctx, sub.VaultID, committedEpoch, sub.NAVPerShare); err != nil {
			e.Logger.Warn("failed to start NAV sync workflow",
				zap.String("vaultId", sub.VaultID),
				zap.Uint64("epoch", committedEpoch),
				zap.Error(err))
		}
	}

	return committedEpoch, nil
}

// EmergencyNAVUpdate applies a multisig NAV override, bypassing the oracle
// proof gate. It requires signatures from at least three distinct emergency
// authorities and caps the change at 25%. The vault enters Emergency status.
func (e *Engine) EmergencyNAVUpdate(ctx context.Context, vaultID string, newNAV uint64, reason vault.EmergencyReason, sigs [][]byte) (uint64, error) {
	handle, err := e.Registry.Get(vaultID)
	if err != nil {
		return 0, err
	}

	var committedEpoch uint64
	err = handle.WithLock(func(v *vault.Vault) error {
		// The signed digest binds the epoch the signers saw, and the
		// check runs under the lock so a concurrent update that advances
		// the epoch invalidates the set. Replaying yesterday's
		// signatures fails here.
		digest := EmergencyDigest(v.ID, v.Epoch, newNAV, reason)
		signers := e.countDistinctSigners(digest, sigs)
		if signers == 0 {
			return ErrUnauthorizedEmergency
		}
		if signers < minEmergencySigners {
			return ErrInsufficientMultiSigProofs
		}

		if vaultmath.DriftBps(v.NAVPerShare, newNAV) > emergencyChangeCapBps {
			return ErrEmergencyChangeTooLarge
		}

		v.NAVPerShare = newNAV
		v.Status = vault.StatusEmergency
		v.Epoch++
		v.LastNAVUpdate = e.Now().Unix()
		committedEpoch = v.Epoch

		if err := e.Store.SaveVaultState(ctx, v); err != nil {
			return err
		}

		if e.Redis != nil {
			payload, _ := json.Marshal(vault.EmergencyNAVAppliedEvent{
				VaultID:     v.ID,
				Epoch:       v.Epoch,
				NAVPerShare: v.NAVPerShare,
				Reason:      reason.String(),
				Signers:     signers,
				Timestamp:   v.LastNAVUpdate,
			})
			e.Redis.Publish(ctx, redis.ChannelNAVUpdated, payload)
		}

		e.Logger.Warn("emergency NAV override applied",
			zap.String("vaultId", v.ID),
			zap.Uint64("epoch", v.Epoch),
			zap.Uint64("navPerShare", newNAV),
			zap.String("reason", reason.String()),
			zap.Int("signers", signers))
		return nil
	})
	if err != nil {
		e.reportRejection(ctx, vaultID, "", newNAV, err)
		return 0, err
	}
	return committedEpoch, nil
}

// gateSeverity classifies a gate rejection for alerting. Authorization and
// proof failures are critical; freshness, drift and structure rejections
// warn. Anything else (persistence failures, unknown vaults) is not a
// security event and maps to no severity.
func gateSeverity(err error) (bridge.Severity, bool) {
	switch {
	case errors.Is(err, ErrUnauthorizedOracle),
		errors.Is(err, ErrInvalidProof),
		errors.Is(err, ErrUnauthorizedEmergency),
		errors.Is(err, ErrInsufficientMultiSigProofs):
		return bridge.SeverityCritical, true
	case errors.Is(err, ErrStaleNAVData),
		errors.Is(err, ErrFutureNAVData),
		errors.Is(err, ErrExcessiveNAVDrift),
		errors.Is(err, ErrEmergencyChangeTooLarge),
		errors.Is(err, vault.ErrTrancheNAVCountMismatch),
		errors.Is(err, vault.ErrExcessiveSeniorTrancheVolatility):
		return bridge.SeverityWarning, true
	default:
		return "", false
	}
}

// reportRejection logs a rejected update as a security event and publishes a
// defense alert so operators see manipulation attempts, not just the caller.
func (e *Engine) reportRejection(ctx context.Context, vaultID, oracleID string, navPerShare uint64, cause error) {
	severity, ok := gateSeverity(cause)
	if !ok {
		return
	}

	e.Logger.Warn("NAV update rejected",
		zap.String("vaultId", vaultID),
		zap.String("oracleId", oracleID),
		zap.Uint64("navPerShare", navPerShare),
		zap.String("severity", string(severity)),
		zap.Error(cause))

	if e.Redis == nil {
		return
	}
	payload, err := json.Marshal(bridge.DefenseAlert{
		Kind:      bridge.AlertOracleManipulation,
		Severity:  severity,
		OracleID:  oracleID,
		Value:     navPerShare,
		Detail:    cause.Error(),
		Timestamp: e.Now().Unix(),
	})
	if err != nil {
		return
	}
	e.Redis.Publish(ctx, redis.ChannelDefenseAlerts, payload)
}

// countDistinctSigners returns how many distinct emergency keys produced a
// valid signature over the digest. Each key counts once no matter how many
// signatures reference it.
func (e *Engine) countDistinctSigners(digest [32]byte, sigs [][]byte) int {
	used := make(map[int]bool, len(e.EmergencyKeys))
	for _, sig := range sigs {
		for i, key := range e.EmergencyKeys {
			if used[i] {
				continue
			}
			if ed25519.Verify(key, digest[:], sig) {
				used[i] = true
				break
			}
		}
	}
	return len(used)
}

func (e *Engine) publishNAVUpdated(ctx context.Context, v *vault.Vault, driftBps, oldNAV uint64, digest [32]byte) {
	if e.Redis == nil {
		return
	}

	var confidence uint64
	if e.Confidence != nil {
		confidence = e.Confidence.Confidence(ctx, v.ID)
	}

	payload, err := json.Marshal(vault.NAVUpdatedEvent{
		VaultID:        v.ID,
		Epoch:          v.Epoch,
		OldNAVPerShare: oldNAV,
		NAVPerShare:    v.NAVPerShare,
		TotalAssets:    v.TotalAssets,
		DriftBps:       driftBps,
		ConfidenceBps:  confidence,
		ProofDigest:    hex.EncodeToString(digest[:]),
		Timestamp:      v.LastNAVUpdate,
	})
	if err != nil {
		return
	}
	e.Redis.Publish(ctx, redis.ChannelNAVUpdated, payload)
}
