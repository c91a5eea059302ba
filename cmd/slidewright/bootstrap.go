package main

import (
	"context"
	"fmt"
	"log/slog"

	"slidewright/internal/analyze"
	"slidewright/internal/cache"
	"slidewright/internal/config"
	"slidewright/internal/extract"
	"slidewright/internal/ledger"
	"slidewright/internal/logging"
	"slidewright/internal/render"
	"slidewright/internal/stage"
	"slidewright/internal/store"
	"slidewright/internal/workflow"
)

// pipelineRuntime bundles the persistence and scheduling pieces shared by
// `serve` and `run`.
type pipelineRuntime struct {
	store     *store.Store
	ledger    *ledger.Ledger
	scheduler *workflow.Scheduler
	cache     cache.Client
}

func openRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...workflow.Option) (*pipelineRuntime, error) {
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	led := ledger.New(st)
	sched := workflow.NewScheduler(cfg, st, led, logger, opts...)

	rt := &pipelineRuntime{store: st, ledger: led, scheduler: sched}
	rt.cache = openCache(ctx, cfg, logger)
	if err := registerStages(sched, cfg, rt.cache, logger); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

// Close releases the cache connection and the store. The scheduler must be
// stopped first.
func (rt *pipelineRuntime) Close() error {
	if rt.cache != nil {
		_ = rt.cache.Close()
	}
	return rt.store.Close()
}

// openCache connects the optional analysis cache. A configured but
// unreachable Redis only disables caching.
func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) cache.Client {
	client, err := cache.NewFromConfig(ctx, cfg)
	if err != nil {
		logging.WarnWithContext(logger, "analysis cache unavailable; continuing without it", "cache_unavailable",
			logging.String("redis_addr", cfg.Cache.RedisAddr),
			logging.String(logging.FieldErrorHint, "check cache.redis_addr or clear it to disable caching"),
			logging.String(logging.FieldImpact, "analysis results are recomputed for every request"),
			logging.Error(err),
		)
		return nil
	}
	return client
}

func registerStages(sched *workflow.Scheduler, cfg *config.Config, cacheClient cache.Client, logger *slog.Logger) error {
	completer := analyze.NewCompleter(cfg)

	executors := map[ledger.Type]stage.Executor{
		ledger.TypeExtract: extract.New(logger),
		ledger.TypeAnalyze: analyze.New(cfg, completer, cacheClient, logger),
		ledger.TypeRender:  render.New(cfg, logger),
	}
	for _, taskType := range ledger.Types {
		if err := sched.Register(taskType, executors[taskType]); err != nil {
			return err
		}
	}
	return nil
}
