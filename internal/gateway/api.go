package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	ctxengine "github.com/skillminer/memoryd/internal/context"
	"github.com/skillminer/memoryd/internal/cron"
	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/security"
)

const (
	defaultListLimit     = 20
	maxListLimit         = 200
	defaultBackfillLimit = 100
)

type contextRequest struct {
	OwnerID   string `json:"owner_id"`
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type contextResponse struct {
	memory.MergedContext
	Prompt string `json:"prompt"`
}

// handleBuildContext serves POST /api/context.
func (g *Gateway) handleBuildContext() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contextRequest
		if err := decodeBody(w, r, g.config.MaxBodyBytes, &req); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		mc, err := g.orch.BuildContext(r.Context(), req.OwnerID, req.SessionID, req.Query)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, contextResponse{
			MergedContext: mc,
			Prompt: ctxengine.Render(mc, g.estimator, ctxengine.RenderOptions{
				MaxTokens: g.config.RenderMaxTokens,
			}),
		})
	}
}

type turnInput struct {
	ID        string    `json:"id,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

type turnRequest struct {
	OwnerID   string    `json:"owner_id"`
	SessionID string    `json:"session_id"`
	User      turnInput `json:"user"`
	Assistant turnInput `json:"assistant"`
}

type turnResponse struct {
	UserTurnID      string `json:"user_turn_id"`
	AssistantTurnID string `json:"assistant_turn_id"`
}

func (in turnInput) turn(ownerID, sessionID string, role memory.Role) memory.Turn {
	t := memory.NewTurn(ownerID, sessionID, role, in.Text)
	if in.ID != "" {
		t.ID = in.ID
	}
	if !in.CreatedAt.IsZero() {
		t.CreatedAt = in.CreatedAt.UTC()
	}
	return t
}

// handleUpdateAfterTurn serves POST /api/turns. The client calls it once the
// assistant reply has been delivered.
func (g *Gateway) handleUpdateAfterTurn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req turnRequest
		if err := decodeBody(w, r, g.config.MaxBodyBytes, &req); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		user := req.User.turn(req.OwnerID, req.SessionID, memory.RoleUser)
		assistant := req.Assistant.turn(req.OwnerID, req.SessionID, memory.RoleAssistant)

		if err := g.orch.UpdateAfterTurn(r.Context(), req.OwnerID, req.SessionID, user, assistant); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, turnResponse{
			UserTurnID:      user.ID,
			AssistantTurnID: assistant.ID,
		})
	}
}

// handleListSessions serves GET /api/sessions, optionally filtered by ?owner=.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := r.URL.Query().Get("owner")
		if owner != "" {
			if err := security.ValidateID(owner); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, g.orch.STM().Sessions(owner))
	}
}

// handleGetSession serves GET /api/sessions/{id}.
func (g *Gateway) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := g.orch.STM().Session(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// handleDeleteSession serves DELETE /api/sessions/{id}. Long-term memory
// of the session's owner is kept.
func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !g.orch.EndSession(id) {
			writeError(w, http.StatusNotFound, fmt.Errorf("%w: session %s", memory.ErrNotFound, id))
			return
		}
		g.audit(r, security.AuditEvent{Type: security.EventSessionDelete, SessionID: id})
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleListMemories serves GET /api/owners/{owner}/memories?limit=N.
func (g *Gateway) handleListMemories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "owner")
		if err := security.ValidateID(owner); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		limit, err := queryInt(r, "limit", defaultListLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		recs, err := g.orch.LTM().Recent(r.Context(), owner, min(limit, maxListLimit))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if recs == nil {
			recs = []memory.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

// handleEvents serves GET /api/events?owner=ID as a websocket stream of
// degraded-path and session expiry events.
func (g *Gateway) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if owner := r.URL.Query().Get("owner"); owner != "" {
			if err := security.ValidateID(owner); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		g.events.ServeHTTP(w, r)
	}
}

// handleForgetOwner serves DELETE /api/owners/{owner}/memories.
func (g *Gateway) handleForgetOwner() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "owner")
		if err := security.ValidateID(owner); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		res, err := g.orch.ForgetOwner(r.Context(), owner)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		g.audit(r, security.AuditEvent{
			Type:     security.EventForgetOwner,
			OwnerID:  owner,
			Records:  res.Records,
			Sessions: res.Sessions,
		})
		writeJSON(w, http.StatusOK, res)
	}
}

// handleForgetTurn serves DELETE /api/owners/{owner}/turns/{turn}.
func (g *Gateway) handleForgetTurn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, turn := chi.URLParam(r, "owner"), chi.URLParam(r, "turn")
		for _, id := range []string{owner, turn} {
			if err := security.ValidateID(id); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		n, err := g.orch.ForgetTurn(r.Context(), owner, turn)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		g.audit(r, security.AuditEvent{
			Type:    security.EventForgetTurn,
			OwnerID: owner,
			TurnID:  turn,
			Records: n,
		})
		writeJSON(w, http.StatusOK, map[string]int{"records": n})
	}
}

// handleBackfill serves POST /api/backfill?limit=N, embedding records that
// were stored while the embedder was unavailable.
func (g *Gateway) handleBackfill() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit", defaultBackfillLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		n, err := g.orch.LTM().Backfill(r.Context(), limit)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"embedded": n})
	}
}

// handleRunJob serves POST /api/jobs/{name}/run, running a maintenance job
// outside its schedule.
func (g *Gateway) handleRunJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		err := g.scheduler.Trigger(r.Context(), name)
		switch {
		case errors.Is(err, cron.ErrUnknownJob):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, cron.ErrJobBusy):
			writeError(w, http.StatusConflict, err)
		case err != nil:
			writeError(w, statusFor(err), err)
		default:
			writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "completed"})
		}
	}
}

func (g *Gateway) audit(r *http.Request, ev security.AuditEvent) {
	ev.Metadata = map[string]string{
		"principal":   principal(r.Context()),
		"remote_addr": r.RemoteAddr,
		"method":      r.Method,
		"path":        r.URL.Path,
	}
	g.auditLogger.Log(ev)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", memory.ErrValidation, key)
	}
	return n, nil
}
