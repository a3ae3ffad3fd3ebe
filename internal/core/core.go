package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

const defaultShutdownTimeout = 30 * time.Second

// App owns the loaded modules of one memoryd process and drives their
// Start/Stop lifecycle. Modules stop in reverse load order, so the gateway
// goes down before the orchestrator and the orchestrator before its stores.
type App struct {
	// ShutdownTimeout bounds the whole stop sequence. Zero means 30s.
	ShutdownTimeout time.Duration

	ctx     *AppContext
	modules []loaded
	logger  *slog.Logger
}

type loaded struct {
	id      ModuleID
	module  Module
	running bool
}

func NewApp(ctx *AppContext) *App {
	return &App{ctx: ctx, logger: ctx.Logger.With("component", "core")}
}

// Context returns the AppContext modules were provisioned with.
func (a *App) Context() *AppContext { return a.ctx }

// LoadModules loads ids in order. On failure every module loaded so far
// is stopped, so no repository is left open.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			_ = a.stop(len(a.modules)-1, true)
			a.modules = nil
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.AppendModule(mod.ModuleInfo().ID, mod)
	}
	return nil
}

// AppendModule adds a module built outside the registry (the event hub,
// the embedding cache, the scheduler) to the lifecycle.
func (a *App) AppendModule(id ModuleID, mod Module) {
	a.modules = append(a.modules, loaded{id: id, module: mod})
	a.logger.Debug("module added", "module", string(id))
}

func (a *App) Module(id ModuleID) (Module, bool) {
	for _, m := range a.modules {
		if m.id == id {
			return m.module, true
		}
	}
	return nil, false
}

// ModuleIDs lists loaded modules in load order.
func (a *App) ModuleIDs() []ModuleID {
	ids := make([]ModuleID, 0, len(a.modules))
	for _, m := range a.modules {
		ids = append(ids, m.id)
	}
	return ids
}

// Start starts modules in load order. Modules without Start are marked
// running so Stop still reaches them. If one fails, those before it are
// stopped again.
func (a *App) Start() error {
	for i := range a.modules {
		m := &a.modules[i]
		if s, ok := m.module.(Starter); ok {
			began := time.Now()
			if err := s.Start(); err != nil {
				_ = a.stop(i-1, false)
				return fmt.Errorf("starting module %s: %w", m.id, err)
			}
			a.logger.Info("module started", "module", string(m.id), "took", time.Since(began))
		}
		m.running = true
	}
	return nil
}

// Stop stops running modules in reverse order and returns every Stop error.
func (a *App) Stop() error {
	return a.stop(len(a.modules)-1, false)
}

// Close stops every module whether or not it was started. One-shot CLI
// commands assemble the app without starting it.
func (a *App) Close() {
	_ = a.stop(len(a.modules)-1, true)
	a.modules = nil
}

func (a *App) stop(from int, all bool) error {
	timeout := a.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for i := from; i >= 0; i-- {
		m := &a.modules[i]
		if !m.running && !all {
			continue
		}
		m.running = false
		s, ok := m.module.(Stopper)
		if !ok {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop failed", "module", string(m.id), "error", err)
			errs = append(errs, fmt.Errorf("stopping module %s: %w", m.id, err))
		}
	}
	return errors.Join(errs...)
}

// Run starts the modules and blocks until ctx is done or SIGINT/SIGTERM
// arrives, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	a.logger.Info("shutting down", "reason", context.Cause(ctx))
	err := a.Stop()
	a.logger.Info("shutdown complete")
	return err
}
