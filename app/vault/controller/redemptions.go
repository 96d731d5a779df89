package controller

import (
	"errors"
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tessera-fund/vaultx/pkg/redemption"
	"github.com/tessera-fund/vaultx/pkg/vault"
)

// redemptionStatus maps a scheduler rejection to an HTTP status.
func redemptionStatus(err error) int {
	switch {
	case errors.Is(err, vault.ErrVaultNotFound):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrVaultPaused),
		errors.Is(err, redemption.ErrRedemptionsFrozen):
		return http.StatusLocked
	case errors.Is(err, redemption.ErrProcessingInProgress):
		return http.StatusConflict
	case errors.Is(err, redemption.ErrInvalidRedemptionAmount),
		errors.Is(err, redemption.ErrInsufficientShares),
		errors.Is(err, redemption.ErrSharesLocked),
		errors.Is(err, redemption.ErrDepositTooSmall),
		errors.Is(err, redemption.ErrDepositTooLarge),
		errors.Is(err, redemption.ErrSlippageExceeded),
		errors.Is(err, redemption.ErrBelowAuctionMinimum),
		errors.Is(err, vault.ErrInvalidTrancheIndex),
		errors.Is(err, vault.ErrVaultCapacityExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, redemption.ErrInsufficientLiquidity),
		errors.Is(err, redemption.ErrRedemptionQueueFull):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func parseRedemptionType(s string) (redemption.Type, error) {
	switch s {
	case "instant":
		return redemption.TypeInstant, nil
	case "queued", "":
		return redemption.TypeQueued, nil
	case "auction":
		return redemption.TypeAuction, nil
	default:
		return 0, errors.New("unknown redemption type: " + s)
	}
}

// HandleDeposit mints shares into a tranche.
func (c *Controller) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		User    string `json:"user"`
		Tranche int    `json:"tranche"`
		Amount  uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.User == "" {
		writeError(w, http.StatusBadRequest, errors.New("user is required"))
		return
	}

	shares, err := c.App.Scheduler.RecordDeposit(r.Context(), id, body.User, body.Tranche, body.Amount)
	if err != nil {
		writeError(w, redemptionStatus(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"vault_id": id,
		"user":     body.User,
		"tranche":  body.Tranche,
		"shares":   shares,
	})
}

// HandleRequestRedemption routes a redemption request through the scheduler.
func (c *Controller) HandleRequestRedemption(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		User         string `json:"user"`
		Tranche      int    `json:"tranche"`
		Shares       uint64 `json:"shares"`
		MinAssetsOut uint64 `json:"min_assets_out"`
		Type         string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.User == "" {
		writeError(w, http.StatusBadRequest, errors.New("user is required"))
		return
	}

	rtype, err := parseRedemptionType(body.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req, err := c.App.Scheduler.RequestRedemption(r.Context(), id, body.User, body.Tranche, body.Shares, body.MinAssetsOut, rtype)
	if err != nil {
		writeError(w, redemptionStatus(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, req)
}

// HandleProcessRedemptions drives one queue batch and one auction batch.
func (c *Controller) HandleProcessRedemptions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		MaxCount uint64 `json:"max_count"`
	}
	// Empty body means default batch size.
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.MaxCount == 0 {
		body.MaxCount = 100
	}

	ctx := r.Context()
	queueRes, err := c.App.Scheduler.ProcessQueue(ctx, id, uuid.NewString(), body.MaxCount)
	if err != nil {
		writeError(w, redemptionStatus(err), err)
		return
	}

	auctionRes, err := c.App.Scheduler.ProcessAuctionBatch(ctx, id, uuid.NewString())
	if err != nil && !errors.Is(err, redemption.ErrProcessingInProgress) {
		writeError(w, redemptionStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queue":   queueRes,
		"auction": auctionRes,
	})
}
