package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/cron"
)

func TestJobs_TriggerAndStatus(t *testing.T) {
	t.Parallel()

	runs := 0
	sched := cron.NewScheduler(nil)
	_ = sched.RegisterJob(cron.Func{JobName: "session_sweep", Expr: "0 0 1 1 *", Fn: func(context.Context) error {
		runs++
		return nil
	}})
	_ = sched.RegisterJob(cron.Func{JobName: "embedding_backfill", Expr: "0 0 1 1 *", Fn: func(context.Context) error {
		return errors.New("embedder offline")
	}})
	tg := newTestGateway(t, Config{AuditLog: "off"}, func(appCtx *core.AppContext) {
		appCtx.RegisterService(cron.ServiceName, sched)
	})

	if rec := tg.do(t, http.MethodPost, "/api/jobs/session_sweep/run", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("run sweep = %d %s", rec.Code, rec.Body)
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
	if rec := tg.do(t, http.MethodPost, "/api/jobs/embedding_backfill/run", nil, ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("failing job = %d, want 500", rec.Code)
	}
	if rec := tg.do(t, http.MethodPost, "/api/jobs/compact/run", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown job = %d, want 404", rec.Code)
	}

	resp := decode[StatusResponse](t, tg.do(t, http.MethodGet, "/status", nil, ""))
	if len(resp.Jobs) != 2 {
		t.Fatalf("jobs = %+v", resp.Jobs)
	}
	if resp.Jobs[0].Runs != 1 || resp.Jobs[1].LastError != "embedder offline" {
		t.Errorf("jobs = %+v", resp.Jobs)
	}
}

func TestJobs_NotMountedWithoutScheduler(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{AuditLog: "off"}, nil)
	if rec := tg.do(t, http.MethodPost, "/api/jobs/session_sweep/run", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if resp := decode[StatusResponse](t, tg.do(t, http.MethodGet, "/status", nil, "")); resp.Jobs != nil {
		t.Errorf("jobs = %+v, want none", resp.Jobs)
	}
}
