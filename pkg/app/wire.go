package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skillminer/memoryd/internal/config"
	ctxengine "github.com/skillminer/memoryd/internal/context"
	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/cron"
	"github.com/skillminer/memoryd/internal/embedding"
	"github.com/skillminer/memoryd/internal/entity"
	"github.com/skillminer/memoryd/internal/events"
	"github.com/skillminer/memoryd/internal/ltm"
	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/observability"
	"github.com/skillminer/memoryd/internal/orchestrator"
	"github.com/skillminer/memoryd/internal/provider"
	"github.com/skillminer/memoryd/internal/stm"
)

// Runtime is a fully assembled memory subsystem. The App has been loaded
// but not started.
type Runtime struct {
	App          *core.App
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *cron.Scheduler
	Metrics      *observability.Metrics
	Events       *events.Hub
}

// Close releases every module without starting them.
func (r *Runtime) Close() {
	r.App.Close()
}

// schedulerModule wraps the cron scheduler so it participates in the App
// lifecycle after every configured module.
type schedulerModule struct {
	scheduler *cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "memory.cron"}
}

func (m *schedulerModule) Start() error { return m.scheduler.Start() }

func (m *schedulerModule) Stop(ctx context.Context) error { return m.scheduler.Stop(ctx) }

// closerModule releases an assembled component on shutdown.
type closerModule struct {
	id    core.ModuleID
	close func()
}

func (m *closerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: m.id}
}

func (m *closerModule) Stop(context.Context) error {
	m.close()
	return nil
}

// Assemble loads the configured modules and builds the STM manager, LTM
// store and orchestrator on top of the services they registered. The
// orchestrator is published before returning so modules resolved at Start
// (the gateway) can find it.
func Assemble(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	appCtx := core.NewAppContext(logger, cfg.DataDir).WithModuleConfigs(cfg.Modules)
	application := core.NewApp(appCtx)
	application.ShutdownTimeout = cfg.ShutdownTimeout
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return nil, err
	}

	rt, err := wire(application, appCtx, cfg, logger)
	if err != nil {
		application.Close()
		return nil, err
	}
	return rt, nil
}

func wire(application *core.App, appCtx *core.AppContext, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	mem := cfg.Memory
	metrics := observability.NewMetrics()
	hub := events.NewHub(logger)
	observer := observability.Multi{observability.NewLogObserver(logger), metrics, hub}
	application.AppendModule("memory.events", &closerModule{id: "memory.events", close: hub.Close})

	estimator, err := ctxengine.EstimatorByName(mem.STM.Estimator)
	if err != nil {
		if estimator == nil {
			return nil, fmt.Errorf("%w: %w", memory.ErrConfiguration, err)
		}
		logger.Warn("token estimator unavailable, using char estimate", "estimator", mem.STM.Estimator, "error", err)
	}

	embedder, err := resolveEmbedder(appCtx, mem.LTM, logger)
	if err != nil {
		return nil, err
	}
	if cached, ok := embedder.(*embedding.Cached); ok {
		application.AppendModule("memory.embedding_cache", &closerModule{id: "memory.embedding_cache", close: cached.Close})
	}

	llm, _ := core.Lookup[provider.Provider](appCtx, provider.ServiceName)
	if llm != nil {
		logger.Info("llm provider available", "model", llm.ModelName())
	}

	repo, err := core.Lookup[ltm.Repository](appCtx, ltm.ServiceRepository)
	if err != nil {
		logger.Warn("no repository module configured, long-term memory is not persisted")
		repo = ltm.NewMemoryRepository()
	}
	index, _ := core.Lookup[ltm.Index](appCtx, ltm.ServiceIndex)

	long, err := ltm.NewStore(repo, embedder, ltm.Config{
		TopK:      mem.LTM.TopK,
		Threshold: mem.LTM.Threshold(),
		ScanLimit: mem.LTM.ScanLimit,
	}, ltm.Options{
		Index:     index,
		Extractor: buildExtractor(appCtx, mem.LTM.Extractor, llm, mem.STM.SummaryMaxTokens, observer),
		Observer:  observer,
		Recorder:  metrics,
		Logger:    logger.With("component", "ltm"),
	})
	if err != nil {
		return nil, err
	}

	short := stm.NewManager(stm.Config{
		MaxMessages:  mem.STM.MaxMessages,
		MaxTokens:    mem.STM.MaxTokens,
		RetainRecent: mem.STM.RetainRecent,
		SessionTTL:   mem.STM.SessionTTL,
	}, stm.Options{
		Summarizer: buildSummarizer(llm, mem.STM, observer),
		Estimator:  estimator,
		Observer:   observer,
		Recorder:   metrics,
		Logger:     logger.With("component", "stm"),
	})

	short.SetExpireHook(hub.SessionExpired)

	orch, err := orchestrator.New(short, long, orchestrator.Config{
		TopK:      mem.LTM.TopK,
		Threshold: mem.LTM.Threshold(),
	}, orchestrator.Options{
		Observer: observer,
		Logger:   logger.With("component", "orchestrator"),
	})
	if err != nil {
		return nil, err
	}

	appCtx.RegisterService(orchestrator.ServiceName, orch)
	appCtx.RegisterService(observability.ServiceMetrics, metrics)
	appCtx.RegisterService(ctxengine.ServiceEstimator, estimator)
	appCtx.RegisterService(events.ServiceName, hub)

	scheduler := cron.NewScheduler(logger)
	jobs := []cron.Job{
		&cron.SessionSweepJob{
			Sessions:     short,
			Logger:       logger,
			ScheduleExpr: mem.Cron.SessionSweep,
		},
		&cron.EmbeddingBackfillJob{
			Store:        long,
			BatchSize:    mem.Cron.BackfillBatch,
			Logger:       logger,
			ScheduleExpr: mem.Cron.EmbeddingBackfill,
		},
	}
	for _, j := range jobs {
		if err := scheduler.RegisterJob(j); err != nil {
			return nil, err
		}
	}
	appCtx.RegisterService(cron.ServiceName, scheduler)
	application.AppendModule("memory.cron", &schedulerModule{scheduler: scheduler})

	logger.Info("memory subsystem assembled",
		"repository", fmt.Sprintf("%T", repo),
		"native_index", index != nil,
		"dimensions", embedder.Dimensions(),
		"top_k", mem.LTM.TopK,
		"threshold", mem.LTM.Threshold(),
	)

	return &Runtime{
		App:          application,
		Orchestrator: orch,
		Scheduler:    scheduler,
		Metrics:      metrics,
		Events:       hub,
	}, nil
}

// resolveEmbedder prefers an embedder published by a module and falls back
// to local feature hashing. Either is wrapped in the query cache unless it
// is disabled.
func resolveEmbedder(appCtx *core.AppContext, cfg config.LTMConfig, logger *slog.Logger) (memory.Embedder, error) {
	embedder, err := core.Lookup[memory.Embedder](appCtx, memory.ServiceEmbedder)
	if err != nil {
		logger.Info("no embedder module configured, using feature hashing", "dimensions", cfg.EmbeddingDimensions)
		embedder = embedding.NewHashing(cfg.EmbeddingDimensions)
	}
	if cfg.EmbeddingCacheSize < 0 {
		return embedder, nil
	}
	cached, err := embedding.NewCached(embedder, cfg.EmbeddingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("building embedding cache: %w", err)
	}
	return cached, nil
}

func buildSummarizer(llm provider.Provider, cfg config.STMConfig, observer memory.Observer) memory.Summarizer {
	extractive := ctxengine.NewExtractiveSummarizer(cfg.SummarySentences)
	if llm == nil {
		return extractive
	}
	return &ctxengine.FallbackSummarizer{
		Primary:  ctxengine.NewProviderSummarizer(llm, cfg.SummaryMaxTokens),
		Fallback: extractive,
		OnFallback: func(ctx context.Context, err error) {
			observer.Degraded(ctx, memory.DegradedEvent{Op: memory.OpSummarize, Err: err})
		},
	}
}

// buildExtractor assembles the entity extractor named in config. A module
// published extractor is tried first in a chain.
func buildExtractor(appCtx *core.AppContext, name string, llm provider.Provider, maxTokens int, observer memory.Observer) memory.EntityExtractor {
	keyword := entity.NewKeywordExtractor(nil, nil)
	var links []memory.EntityExtractor
	if custom, err := core.Lookup[memory.EntityExtractor](appCtx, memory.ServiceExtractor); err == nil {
		links = append(links, custom)
	}

	switch name {
	case "keyword":
		links = append(links, keyword)
	case "provider":
		if llm == nil {
			appCtx.Logger.Warn("entity extractor falls back to keywords", "error", provider.ErrNoProvider)
			links = append(links, keyword)
			break
		}
		links = append(links, entity.NewProviderExtractor(llm, maxTokens))
	default:
		if llm != nil {
			links = append(links, entity.NewProviderExtractor(llm, maxTokens))
		}
		links = append(links, keyword)
	}

	if len(links) == 1 {
		return links[0]
	}
	chain := entity.NewChain(links...)
	chain.OnError = func(ctx context.Context, err error) {
		observer.Degraded(ctx, memory.DegradedEvent{Op: memory.OpExtractEntities, Err: err})
	}
	return chain
}
