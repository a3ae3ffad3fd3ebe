package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/ltm"
	"github.com/skillminer/memoryd/internal/memory/memorytest"
	"github.com/skillminer/memoryd/internal/observability"
	"github.com/skillminer/memoryd/internal/orchestrator"
	"github.com/skillminer/memoryd/internal/security"
	"github.com/skillminer/memoryd/internal/stm"
)

// testGateway is a provisioned gateway over in-memory stores.
type testGateway struct {
	*Gateway
	handler http.Handler
	orch    *orchestrator.Orchestrator
	appCtx  *core.AppContext

	mu     sync.Mutex
	events []security.AuditEvent
}

// newTestGateway provisions a gateway. register runs before the services
// are resolved so tests can publish extra services.
func newTestGateway(t *testing.T, cfg Config, register func(*core.AppContext)) *testGateway {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := core.NewAppContext(logger, t.TempDir())

	short := stm.NewManager(stm.Config{}, stm.Options{Logger: logger})
	long, err := ltm.NewStore(ltm.NewMemoryRepository(), &memorytest.Embedder{}, ltm.Config{}, ltm.Options{Logger: logger})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	orch, err := orchestrator.New(short, long, orchestrator.Config{TopK: 3, Threshold: 0.2}, orchestrator.Options{Logger: logger})
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	appCtx.RegisterService(orchestrator.ServiceName, orch)
	appCtx.RegisterService(observability.ServiceMetrics, observability.NewMetrics())
	if register != nil {
		register(appCtx)
	}

	tg := &testGateway{Gateway: &Gateway{config: cfg}, orch: orch, appCtx: appCtx}
	if err := tg.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	t.Cleanup(func() { _ = tg.Stop(t.Context()) })

	tg.auditLogger = security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(ev security.AuditEvent) {
			tg.mu.Lock()
			tg.events = append(tg.events, ev)
			tg.mu.Unlock()
		},
	})
	if err := tg.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	tg.handler = tg.buildRouter()
	return tg
}

func (tg *testGateway) auditEvents() []security.AuditEvent {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return append([]security.AuditEvent(nil), tg.events...)
}

// do sends a request with an optional JSON body and bearer token.
func (tg *testGateway) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	tg.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}
