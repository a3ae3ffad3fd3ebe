package gateway

import (
	"net/http"
	"time"

	"github.com/skillminer/memoryd/internal/cron"
	"github.com/skillminer/memoryd/internal/security"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime      int64                  `json:"uptime_seconds"`
	Sessions    int                    `json:"sessions"`
	TopK        int                    `json:"top_k"`
	Threshold   float64                `json:"similarity_threshold"`
	Dimensions  int                    `json:"embedding_dimensions"`
	MaxMessages int                    `json:"stm_max_messages"`
	MaxTokens   int                    `json:"stm_max_tokens"`
	AuditErrors int64                  `json:"audit_write_errors"`
	RateLimits  []security.BucketUsage `json:"rate_limits"`
	Jobs        []cron.JobStatus       `json:"jobs,omitempty"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stmCfg := g.orch.STM().Config()
		orchCfg := g.orch.Config()
		writeJSON(w, http.StatusOK, StatusResponse{
			Uptime:      int64(time.Since(g.startedAt).Seconds()),
			Sessions:    g.orch.STM().Len(),
			TopK:        orchCfg.TopK,
			Threshold:   orchCfg.Threshold,
			Dimensions:  g.orch.LTM().Dimensions(),
			MaxMessages: stmCfg.MaxMessages,
			MaxTokens:   stmCfg.MaxTokens,
			AuditErrors: g.auditLogger.WriteErrors(),
			RateLimits:  g.rateLimiter.Usage(),
			Jobs:        g.jobStatus(),
		})
	}
}

func (g *Gateway) jobStatus() []cron.JobStatus {
	if g.scheduler == nil {
		return nil
	}
	return g.scheduler.Status()
}
