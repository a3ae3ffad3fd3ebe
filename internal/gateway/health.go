package gateway

import (
	"context"
	"net/http"
	"time"
)

const healthProbeTimeout = 3 * time.Second

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string            `json:"status"` // "ok" or "degraded"
	Sessions int               `json:"sessions"`
	Checks   map[string]string `json:"checks,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// A failing provider or repository reports "degraded" with 503; the memory
// API itself stays usable in that state.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Sessions: g.orch.STM().Len(),
			Checks:   map[string]string{},
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()

		if g.health != nil {
			resp.Checks["provider"] = probe(ctx, g.health.HealthCheck)
		}
		if g.store != nil {
			resp.Checks["store"] = probe(ctx, g.store.Ping)
		}
		for _, v := range resp.Checks {
			if v != "ok" {
				resp.Status = "degraded"
			}
		}

		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func probe(ctx context.Context, check func(context.Context) error) string {
	if err := check(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}
