package controller

import (
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	"github.com/tessera-fund/vaultx/pkg/nav"
	"github.com/tessera-fund/vaultx/pkg/vault"
)

// navStatus maps a gate rejection to an HTTP status.
func navStatus(err error) int {
	switch {
	case errors.Is(err, vault.ErrVaultNotFound):
		return http.StatusNotFound
	case errors.Is(err, nav.ErrUnauthorizedOracle),
		errors.Is(err, nav.ErrInvalidProof),
		errors.Is(err, nav.ErrUnauthorizedEmergency),
		errors.Is(err, nav.ErrInsufficientMultiSigProofs):
		return http.StatusForbidden
	case errors.Is(err, nav.ErrStaleNAVData),
		errors.Is(err, nav.ErrFutureNAVData),
		errors.Is(err, nav.ErrExcessiveNAVDrift),
		errors.Is(err, nav.ErrEmergencyChangeTooLarge),
		errors.Is(err, vault.ErrTrancheNAVCountMismatch),
		errors.Is(err, vault.ErrExcessiveSeniorTrancheVolatility):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// HandleSubmitNAV runs one oracle submission through the gate chain.
func (c *Controller) HandleSubmitNAV(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		OracleID         string   `json:"oracle_id"`
		NAVPerShare      uint64   `json:"nav_per_share"`
		TotalAssets      uint64   `json:"total_assets"`
		TotalLiabilities uint64   `json:"total_liabilities"`
		TrancheNAVs      []uint64 `json:"tranche_navs"`
		Timestamp        int64    `json:"timestamp"`
		ConfidenceBps    uint64   `json:"confidence_bps"`
		Proof            string   `json:"proof"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	proof, err := hex.DecodeString(body.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("proof must be hex encoded"))
		return
	}

	sub := vault.NAVSubmission{
		VaultID:          id,
		OracleID:         body.OracleID,
		NAVPerShare:      body.NAVPerShare,
		TotalAssets:      body.TotalAssets,
		TotalLiabilities: body.TotalLiabilities,
		TrancheNAVs:      body.TrancheNAVs,
		Timestamp:        body.Timestamp,
		ConfidenceBps:    body.ConfidenceBps,
	}

	epoch, err := c.App.Engine.SubmitNAV(r.Context(), sub, proof)
	if err != nil {
		writeError(w, navStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vault_id": id,
		"epoch":    epoch,
	})
}

// HandleEmergencyNAV applies a multisig NAV override.
func (c *Controller) HandleEmergencyNAV(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		NAVPerShare uint64   `json:"nav_per_share"`
		Reason      string   `json:"reason"`
		Signatures  []string `json:"signatures"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reason, err := parseEmergencyReason(body.Reason)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sigs := make([][]byte, 0, len(body.Signatures))
	for _, s := range body.Signatures {
		raw, decodeErr := hex.DecodeString(s)
		if decodeErr != nil {
			writeError(w, http.StatusBadRequest, errors.New("signatures must be hex encoded"))
			return
		}
		sigs = append(sigs, raw)
	}

	epoch, err := c.App.Engine.EmergencyNAVUpdate(r.Context(), id, body.NAVPerShare, reason, sigs)
	if err != nil {
		writeError(w, navStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vault_id": id,
		"epoch":    epoch,
		"reason":   reason.String(),
	})
}

func parseEmergencyReason(s string) (vault.EmergencyReason, error) {
	switch s {
	case "oracle_failure":
		return vault.ReasonOracleFailure, nil
	case "market_dislocation":
		return vault.ReasonMarketDislocation, nil
	case "bridge_compromise":
		return vault.ReasonBridgeCompromise, nil
	case "custody_event":
		return vault.ReasonCustodyEvent, nil
	default:
		return 0, errors.New("unknown emergency reason: " + s)
	}
}
