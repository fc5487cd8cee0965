package main

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"

	"github.com/rahul/quill/internal/llm"
	"github.com/rahul/quill/internal/observability"
	"github.com/rahul/quill/internal/persist"
	"github.com/rahul/quill/internal/retrieval"
	"github.com/rahul/quill/internal/store"
	"github.com/rahul/quill/internal/workflow"
	"github.com/rahul/quill/pkg/config"
)

// app holds everything both serve and run need.
type app struct {
	cfg      *config.Config
	log      *observability.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	db       *sql.DB
	prompts  *workflow.PromptManager
	engine   *workflow.Engine

	closers []func()
}

func newApp(path string, logLevel string) (_ *app, err error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, err := observability.NewLogger(observability.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		LLMPath: cfg.Log.LLMPath,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if a.metrics, err = observability.NewMetrics(a.registry); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	name, pcfg := cfg.GetDefaultProvider()
	if name == "" {
		return nil, errors.New("no enabled provider found in config")
	}
	model, err := llm.NewModel(name, pcfg)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	gen := llm.NewGenerator(model, pcfg.Model,
		llm.WithLogger(log),
		llm.WithMetrics(a.metrics),
	)

	chain, closeRetrieval, err := retrieval.Build(cfg.Retrieval, log, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	a.closers = append(a.closers, closeRetrieval)

	if a.db, err = store.Open(cfg.Memory.Path); err != nil {
		return nil, err
	}

	committer, closePersist := persist.Build(cfg.Persistence, persist.Deps{
		Contents: store.NewContentStore(a.db),
		Embedder: a.embedder(name, pcfg),
		Log:      log,
	})
	a.closers = append(a.closers, closePersist)

	a.prompts = workflow.NewPromptManager(cfg.App.PromptsDir)
	a.engine, err = workflow.NewEngine(workflow.Options{
		Generator:         gen,
		Retriever:         chain,
		Committer:         committer,
		Prompts:           a.prompts,
		Logger:            log,
		Metrics:           a.metrics,
		MaxResearchRounds: cfg.Workflow.MaxResearchRounds,
		MaxPlanRounds:     cfg.Workflow.MaxPlanRounds,
		MaxPolishRounds:   cfg.Workflow.MaxPolishRounds,
		MaxQueries:        cfg.Workflow.MaxQueries,
	})
	if err != nil {
		return nil, err
	}

	log.Info("quill ready",
		zap.String("provider", name), zap.String("model", pcfg.Model),
		zap.String("db", cfg.Memory.Path))
	return a, nil
}

// embedder is only built when a vector backend is configured. Without one
// those backends are skipped.
func (a *app) embedder(name string, pcfg config.ProviderConfig) embeddings.Embedder {
	backends := a.cfg.Persistence.Backends
	if !slices.Contains(backends, "chromem") && !slices.Contains(backends, "qdrant") {
		return nil
	}
	if pcfg.EmbeddingModel != "" {
		pcfg.Model = pcfg.EmbeddingModel
	}
	e, err := llm.NewEmbedder(name, pcfg)
	if err != nil {
		a.log.Warn("embedder unavailable", zap.String("provider", name), zap.Error(err))
		return nil
	}
	return e
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.log.Sync()
}
