package controller

import (
	"errors"
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	"github.com/tessera-fund/vaultx/pkg/vault"
)

type vaultSummary struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	NAVPerShare  uint64 `json:"nav_per_share"`
	TotalAssets  uint64 `json:"total_assets"`
	TotalShares  uint64 `json:"total_shares"`
	Epoch        uint64 `json:"epoch"`
	TotalPending uint64 `json:"total_pending"`
}

// HandleVaultsList returns a summary of every registered vault.
func (c *Controller) HandleVaultsList(w http.ResponseWriter, _ *http.Request) {
	summaries := make([]vaultSummary, 0, c.App.Registry.Size())
	c.App.Registry.Range(func(id string, h *vault.Handle) bool {
		_ = h.WithLock(func(v *vault.Vault) error {
			summaries = append(summaries, vaultSummary{
				ID:           v.ID,
				Status:       v.Status.String(),
				NAVPerShare:  v.NAVPerShare,
				TotalAssets:  v.TotalAssets,
				TotalShares:  v.TotalShares,
				Epoch:        v.Epoch,
				TotalPending: v.TotalPending,
			})
			return nil
		})
		return true
	})
	writeJSON(w, http.StatusOK, summaries)
}

// HandleVaultDetail returns the full state of one vault.
func (c *Controller) HandleVaultDetail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	handle, err := c.App.Registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	var snapshot vault.Vault
	_ = handle.WithLock(func(v *vault.Vault) error {
		snapshot = *v
		snapshot.Tranches = append([]vault.Tranche(nil), v.Tranches...)
		return nil
	})

	writeJSON(w, http.StatusOK, snapshot)
}

// HandleVaultDrift returns the trailing drift window and circuit state.
func (c *Controller) HandleVaultDrift(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	handle, err := c.App.Registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	var payload struct {
		Window     []uint64 `json:"window"`
		LastEpoch  uint64   `json:"last_epoch"`
		Violations uint32   `json:"consecutive_violations"`
		Frozen     bool     `json:"frozen"`
		Root       string   `json:"root"`
	}
	_ = handle.WithLock(func(v *vault.Vault) error {
		payload.Window = append([]uint64(nil), v.Drift.Window[:]...)
		payload.LastEpoch = v.Drift.LastEpoch
		payload.Violations = v.Drift.ConsecutiveViolations
		payload.Frozen = v.Drift.Frozen(v.Config.FreezeThreshold)
		payload.Root = v.Drift.Root()
		return nil
	})

	writeJSON(w, http.StatusOK, payload)
}

// HandleVaultSync returns the per-destination propagation state.
func (c *Controller) HandleVaultSync(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := c.App.Registry.Get(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	states, err := c.App.DB.CrossChainStates(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

// HandleQueueStatus returns the redemption queue position counters.
func (c *Controller) HandleQueueStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	handle, err := c.App.Registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	head, tail, totalPending, err := c.App.DB.LoadQueueMeta(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	var frozen bool
	_ = handle.WithLock(func(v *vault.Vault) error {
		frozen = v.Drift.Frozen(v.Config.FreezeThreshold)
		return nil
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"head":          head,
		"tail":          tail,
		"depth":         tail - head,
		"total_pending": totalPending,
		"frozen":        frozen,
	})
}

// HandleVaultCreate registers a new vault. Omitted config and tranche
// sections fall back to the production defaults.
func (c *Controller) HandleVaultCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID       string          `json:"id"`
		Config   *vault.Config   `json:"config,omitempty"`
		Tranches []vault.Tranche `json:"tranches,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.ID == "" {
		writeError(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}
	if _, err := c.App.Registry.Get(body.ID); err == nil {
		writeError(w, http.StatusConflict, errors.New("vault already exists"))
		return
	}

	v := &vault.Vault{
		ID:          body.ID,
		NAVPerShare: 1_000_000,
		Tranches:    vault.DefaultTranches(),
		Config:      vault.DefaultConfig(),
	}
	if body.Config != nil {
		v.Config = *body.Config
	}
	if len(body.Tranches) > 0 {
		if len(body.Tranches) != vault.TrancheCount {
			writeError(w, http.StatusBadRequest, vault.ErrTrancheNAVCountMismatch)
			return
		}
		v.Tranches = body.Tranches
	}

	ctx := r.Context()
	if err := c.App.DB.SaveVaultState(ctx, v); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := c.App.DB.SaveTranches(ctx, v.ID, 0, v.Tranches); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	c.App.Registry.Put(v)
	writeJSON(w, http.StatusCreated, v)
}
