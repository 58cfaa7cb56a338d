package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newHTTPHandler serves /health and the Prometheus endpoint.
func newHTTPHandler(a *app, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", healthHandler(a))
	mux.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func healthHandler(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check storage
		if err := a.store.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["storage"] = map[string]string{
				"driver": a.cfg.Storage.Driver,
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["storage"] = map[string]string{
				"driver": a.cfg.Storage.Driver,
				"status": "connected",
			}
		}

		// Check connections
		stats := a.mgr.Supervisor().Stats()
		health.Components["connections"] = map[string]interface{}{
			"live":      stats.Live,
			"connected": stats.Connected,
			"failing":   stats.Failing,
		}
		if stats.Failing > 0 || stats.Connected < stats.Live {
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		// Check monitor progress
		last := a.mgr.LastPass()
		monitor := map[string]interface{}{"last_pass": nil}
		if !last.IsZero() {
			monitor["last_pass"] = last.UTC().Format(time.RFC3339)
			// Three missed passes means the loop is wedged.
			if time.Since(last) > 3*a.cfg.Manager.CheckInterval+a.cfg.Manager.PassTimeout {
				health.Status = "unhealthy"
			}
		}
		health.Components["monitor"] = monitor

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	}
}
