package controller

import (
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/pkg/bridge"
)

// bridgeStatus maps a gate rejection to an HTTP status.
func bridgeStatus(err error) int {
	switch {
	case errors.Is(err, bridge.ErrUnknownSourceChain),
		errors.Is(err, bridge.ErrInvalidOriginProof):
		return http.StatusForbidden
	case errors.Is(err, bridge.ErrReplayDetected):
		return http.StatusConflict
	case errors.Is(err, bridge.ErrMalformedMessage),
		errors.Is(err, bridge.ErrMessageExpired),
		errors.Is(err, bridge.ErrConsensusMismatch),
		errors.Is(err, bridge.ErrConsensusUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// HandleBridgeInbound screens one inbound cross-chain message. A rejection
// is recorded as a defense event; screening verdicts are final, there is no
// retry path for a dropped message.
func (c *Controller) HandleBridgeInbound(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Envelope bridge.Envelope `json:"envelope"`
		Proof    string          `json:"proof"`
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

	ctx := r.Context()
	if err := c.App.Defense.Screen(ctx, &body.Envelope, proof); err != nil {
		record := bridge.DefenseAlert{
			Kind:      bridge.AlertMessageTampering,
			Severity:  bridge.SeverityWarning,
			ChainID:   body.Envelope.SourceChainID,
			MessageID: body.Envelope.MessageID,
			Detail:    err.Error(),
			Timestamp: time.Now().Unix(),
		}
		if dbErr := c.App.DB.RecordDefenseEvent(ctx, record); dbErr != nil {
			c.App.Logger.Warn("Failed to record defense event",
				zap.String("messageId", body.Envelope.MessageID), zap.Error(dbErr))
		}
		writeError(w, bridgeStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message_id": body.Envelope.MessageID,
		"accepted":   true,
	})
}
