package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	"github.com/tessera-fund/vaultx/app/vault/types"
	"github.com/tessera-fund/vaultx/pkg/utils"
)

type User struct {
	Username string `json:"username"`
	Hash     []byte `json:"hash"`
	Role     string `json:"role"`
}

type Controller struct {
	App        *types.App
	AdminToken string
	Users      map[string]User
	JWTSecret  []byte
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	adminToken := utils.Env("ADMIN_TOKEN", "devtoken")
	adminUser := utils.Env("ADMIN_USER", "admin")
	adminPass := utils.Env("ADMIN_PASSWORD", "admin")
	jwtSecret := []byte(utils.Env("SESSION_SECRET", "change-me-please"))

	phash, _ := utils.HashOrRead(adminPass)
	users := map[string]User{
		adminUser: {Username: adminUser, Hash: phash, Role: "admin"},
	}
	if usersJSON := utils.Env("API_USERS", ""); usersJSON != "" {
		_ = json.Unmarshal([]byte(usersJSON), &users)
	}

	return &Controller{
		App:        app,
		AdminToken: adminToken,
		Users:      users,
		JWTSecret:  jwtSecret,
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })).Methods(http.MethodGet)
	r.Handle("/readyz", http.HandlerFunc(c.HandleReady)).Methods(http.MethodGet)
	r.Handle("/api/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/login", c.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", c.HandleLogout).Methods(http.MethodPost)

	// Vault state
	r.Handle("/api/vaults", c.RequireAuth(http.HandlerFunc(c.HandleVaultsList))).Methods(http.MethodGet)
	r.Handle("/api/vaults", c.RequireAdmin(http.HandlerFunc(c.HandleVaultCreate))).Methods(http.MethodPost)
	r.Handle("/api/vaults/{id}", c.RequireAuth(http.HandlerFunc(c.HandleVaultDetail))).Methods(http.MethodGet)
	r.Handle("/api/vaults/{id}/drift", c.RequireAuth(http.HandlerFunc(c.HandleVaultDrift))).Methods(http.MethodGet)
	r.Handle("/api/vaults/{id}/sync", c.RequireAuth(http.HandlerFunc(c.HandleVaultSync))).Methods(http.MethodGet)
	r.Handle("/api/vaults/{id}/queue", c.RequireAuth(http.HandlerFunc(c.HandleQueueStatus))).Methods(http.MethodGet)

	// NAV submission
	r.Handle("/api/vaults/{id}/nav", c.RequireAuth(http.HandlerFunc(c.HandleSubmitNAV))).Methods(http.MethodPost)
	r.Handle("/api/vaults/{id}/nav/emergency", c.RequireAdmin(http.HandlerFunc(c.HandleEmergencyNAV))).Methods(http.MethodPost)

	// Deposits and redemptions
	r.Handle("/api/vaults/{id}/deposits", c.RequireAuth(http.HandlerFunc(c.HandleDeposit))).Methods(http.MethodPost)
	r.Handle("/api/vaults/{id}/redemptions", c.RequireAuth(http.HandlerFunc(c.HandleRequestRedemption))).Methods(http.MethodPost)
	r.Handle("/api/vaults/{id}/redemptions/process", c.RequireAdmin(http.HandlerFunc(c.HandleProcessRedemptions))).Methods(http.MethodPost)

	// Bridge ingress
	r.Handle("/api/bridge/inbound", c.RequireAuth(http.HandlerFunc(c.HandleBridgeInbound))).Methods(http.MethodPost)

	// Observability
	r.Handle("/api/metrics", c.RequireAuth(http.HandlerFunc(c.HandleMetrics))).Methods(http.MethodGet)

	return r, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
