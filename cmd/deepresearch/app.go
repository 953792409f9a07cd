package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/dusk-indust/deepresearch/internal/cache"
	"github.com/dusk-indust/deepresearch/internal/config"
	"github.com/dusk-indust/deepresearch/internal/fetch"
	"github.com/dusk-indust/deepresearch/internal/llm"
	"github.com/dusk-indust/deepresearch/internal/orchestrator"
	"github.com/dusk-indust/deepresearch/internal/search"
	"github.com/dusk-indust/deepresearch/internal/sources"
	"github.com/dusk-indust/deepresearch/internal/status"
)

// app is the wired research stack shared by research and serve.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	dispatcher *search.Dispatcher
	store      sources.Store
	archive    *status.Archive // nil when archiveDir is unset
	orch       *orchestrator.Orchestrator
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	c, err := cache.New(cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}

	provider, err := search.NewProvider(cfg.Search, &http.Client{Timeout: cfg.Search.RequestTimeout.Std()})
	if err != nil {
		return nil, err
	}
	dispatcher := search.NewDispatcher(provider, c, search.OptionsFromConfig(cfg.Search), logger)

	ollama := llm.NewOllama(cfg.LLM.Host, cfg.LLM.Model, &http.Client{Timeout: cfg.LLM.RequestTimeout.Std()})
	ollama.Temperature = cfg.LLM.Temperature
	client := llm.WithRetry(ollama, cfg.LLM.MaxAttempts, cfg.LLM.InitialBackoff.Std(), cfg.LLM.MaxBackoff.Std(), logger)

	store, err := sources.Open(ctx, cfg.Sources, logger)
	if err != nil {
		return nil, fmt.Errorf("open source graph: %w", err)
	}

	deps := orchestrator.Deps{
		LLM:     client,
		Search:  dispatcher,
		Sources: store,
		Logger:  logger,
	}
	if cfg.Fetch.On() {
		deps.Fetch = fetch.New(&http.Client{Timeout: cfg.Fetch.Timeout.Std()}, fetch.Options{
			MaxPages:    cfg.Fetch.MaxPages,
			MaxChars:    cfg.Fetch.MaxChars,
			Concurrency: cfg.Fetch.Concurrency,
			Blocked:     cfg.Fetch.Blocked,
		}, logger)
	}
	var archive *status.Archive
	if cfg.ArchiveDir != "" {
		archive = status.NewArchive(cfg.ArchiveDir)
		deps.Archive = archive
	}

	logger.Debug("research stack ready",
		zap.String("provider", provider.Name()),
		zap.String("model", cfg.LLM.Model),
		zap.String("cache", c.Dir()),
		zap.String("graph", cfg.Sources.Graph),
		zap.Bool("fetch", cfg.Fetch.On()),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		dispatcher: dispatcher,
		store:      store,
		archive:    archive,
		orch:       orchestrator.New(orchestrator.OptionsFromConfig(cfg), deps),
	}, nil
}

func (a *app) Close() {
	a.orch.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close source graph", zap.Error(err))
	}
	_ = a.logger.Sync()
}
