package controller

import (
	"net/http"
)

func (c *Controller) HandleReady(w http.ResponseWriter, _ *http.Request) {
	if c.App.Ready() {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}

// HandleHealth reports the health of every backing service this node can
// reach. The endpoint itself stays 200 as long as the process is serving.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]any{
		"status": "ok",
		"vaults": c.App.Registry.Size(),
	}

	if c.App.RedisClient != nil {
		health["redis_ok"] = c.App.RedisClient.Health(ctx) == nil
	}
	if c.App.TemporalClient != nil {
		th, err := c.App.TemporalClient.Health(ctx)
		health["temporal_ok"] = err == nil
		if err == nil {
			health["sync_pollers"] = len(th.SyncQueue)
		}
	}

	writeJSON(w, http.StatusOK, health)
}

// HandleMetrics exposes the counters kept by the defense layer and the
// oracle poller.
func (c *Controller) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"defense": c.App.Defense.Metrics.Snapshot(),
		"oracle": map[string]any{
			"queries_total": c.App.Poller.Metrics.QueriesTotal.Value(),
			"failures":      c.App.Poller.Metrics.Failures.Value(),
		},
		"replay_cache_size": c.App.Defense.Filter.SeenCount(),
	}
	writeJSON(w, http.StatusOK, payload)
}
