// Package gateway exposes the memory subsystem over HTTP: context assembly,
// turn updates, session administration, deletion, health and metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	ctxengine "github.com/skillminer/memoryd/internal/context"
	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/cron"
	"github.com/skillminer/memoryd/internal/events"
	"github.com/skillminer/memoryd/internal/ltm"
	"github.com/skillminer/memoryd/internal/observability"
	"github.com/skillminer/memoryd/internal/orchestrator"
	"github.com/skillminer/memoryd/internal/provider"
	"github.com/skillminer/memoryd/internal/security"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// Pinger is implemented by repositories that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports it.
type Gateway struct {
	config      Config
	appCtx      *core.AppContext
	logger      *slog.Logger
	server      *http.Server
	auditLogger *security.AuditLogger
	auditFile   io.Closer
	rateLimiter *security.RateLimiter
	startedAt   time.Time

	// Resolved lazily at Start() via service registry.
	orch        *orchestrator.Orchestrator
	metrics     *observability.Metrics
	events      *events.Hub
	scheduler   *cron.Scheduler
	httpMetrics *httpMetrics
	estimator   ctxengine.TokenEstimator
	health      provider.HealthChecker
	store       Pinger
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.rateLimiter = security.NewRateLimiter(g.config.RateLimit)

	redactor := security.NewRedactor()
	for _, s := range g.config.Auth.Secrets() {
		redactor.AddLiteral(s)
	}

	var w io.Writer
	switch g.config.AuditLog {
	case "off":
	case "":
		g.config.AuditLog = filepath.Join(ctx.DataDir, "audit.jsonl")
		fallthrough
	default:
		if err := os.MkdirAll(filepath.Dir(g.config.AuditLog), 0o750); err != nil {
			return fmt.Errorf("gateway: creating audit log dir: %w", err)
		}
		f, err := os.OpenFile(g.config.AuditLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("gateway: opening audit log: %w", err)
		}
		w, g.auditFile = f, f
	}
	g.auditLogger = security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   w,
		Redactor: redactor,
	})
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	host, _, err := net.SplitHostPort(g.config.Bind)
	if err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if !g.config.Auth.IsConfigured() && !isLoopback(host) {
		return fmt.Errorf("gateway: auth must be configured to bind %s", g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	if err := g.resolve(); err != nil {
		return err
	}
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway auth not configured, api is open on loopback", "addr", g.config.Bind)
	}

	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadTimeout:       g.config.ReadTimeout,
		ReadHeaderTimeout: g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// resolve binds the orchestrator (required) and the optional services.
func (g *Gateway) resolve() error {
	orch, err := core.Lookup[*orchestrator.Orchestrator](g.appCtx, orchestrator.ServiceName)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	g.orch = orch

	if m, err := core.Lookup[*observability.Metrics](g.appCtx, observability.ServiceMetrics); err == nil {
		g.metrics = m
		if g.httpMetrics == nil {
			g.httpMetrics = newHTTPMetrics(m.Registry())
		}
	}
	if hub, err := core.Lookup[*events.Hub](g.appCtx, events.ServiceName); err == nil {
		g.events = hub
	}
	if sched, err := core.Lookup[*cron.Scheduler](g.appCtx, cron.ServiceName); err == nil {
		g.scheduler = sched
	}
	if est, err := core.Lookup[ctxengine.TokenEstimator](g.appCtx, ctxengine.ServiceEstimator); err == nil {
		g.estimator = est
	} else {
		g.estimator = ctxengine.NewCharEstimator(0)
	}
	if p, err := core.Lookup[provider.Provider](g.appCtx, provider.ServiceName); err == nil {
		if hc, ok := p.(provider.HealthChecker); ok {
			g.health = hc
		}
	}
	if repo, err := core.Lookup[ltm.Repository](g.appCtx, ltm.ServiceRepository); err == nil {
		if p, ok := repo.(Pinger); ok {
			g.store = p
		}
	}
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	var err error
	if g.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
		defer cancel()

		g.logger.Info("gateway shutting down")
		err = g.server.Shutdown(shutdownCtx)
		g.server = nil
	}
	if g.auditFile != nil {
		err = errors.Join(err, g.auditFile.Close())
		g.auditFile = nil
	}
	return err
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
