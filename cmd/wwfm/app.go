package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/category"
	"github.com/jandy1990/wwfm-platform-sub006/internal/config"
	"github.com/jandy1990/wwfm-platform-sub006/internal/coverage"
	"github.com/jandy1990/wwfm-platform-sub006/internal/credibility"
	"github.com/jandy1990/wwfm-platform-sub006/internal/distribution"
	"github.com/jandy1990/wwfm-platform-sub006/internal/export"
	"github.com/jandy1990/wwfm-platform-sub006/internal/inserter"
	"github.com/jandy1990/wwfm-platform-sub006/internal/llm"
	"github.com/jandy1990/wwfm-platform-sub006/internal/mapping"
	"github.com/jandy1990/wwfm-platform-sub006/internal/pipeline"
	"github.com/jandy1990/wwfm-platform-sub006/internal/store"
	"github.com/jandy1990/wwfm-platform-sub006/internal/worker"
)

// app holds the wired pipeline components shared by every command.
type app struct {
	cfg      *config.Config
	registry *category.Registry
	db       *store.SQLiteStore
	recorder audit.Recorder
	selector *coverage.Selector
	inserter *inserter.Inserter
	runner   *pipeline.Runner
	quality  *worker.QualityOrchestrator
	exporter *export.Exporter
	strategy coverage.Strategy
}

// newApp builds the component graph from configuration. The caller owns
// the returned app and must call close.
func newApp(cfg *config.Config) (*app, error) {
	registry, err := newRegistry(cfg.Credibility)
	if err != nil {
		return nil, err
	}

	strategy, err := coverage.ParseStrategy(cfg.Coverage.Strategy)
	if err != nil {
		return nil, fmt.Errorf("coverage strategy: %w", err)
	}

	categories, err := parseCategories(cfg.Generation.Categories)
	if err != nil {
		return nil, err
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	a, err := wire(cfg, registry, db, strategy, categories)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg *config.Config, registry *category.Registry, db *store.SQLiteStore, strategy coverage.Strategy, categories []category.Category) (*app, error) {
	recorder := audit.NewStoreRecorder(db)

	selector, err := coverage.NewSelector(db, coverage.Options{
		Thresholds: coverage.Thresholds{
			Minimum: cfg.Coverage.Minimum,
			Target:  cfg.Coverage.Target,
			Maximum: cfg.Coverage.Maximum,
		},
		ArenaOrder:   cfg.Coverage.ArenaOrder,
		ArenaWeights: cfg.Coverage.ArenaWeights,
		Seed:         cfg.Coverage.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("coverage selector: %w", err)
	}

	mapper := mapping.New(registry, recorder)
	ins := inserter.New(db, registry, distribution.NewAggregator(mapper), recorder, inserter.Config{
		MaxRetries:     uint64(cfg.Persistence.MaxRetries),
		RetryBaseDelay: time.Duration(cfg.Persistence.RetryBaseDelay),
	})

	client := llm.NewClient(llmConfig(cfg.LLM, cfg.LLM.Model))
	qualityClient := client
	if cfg.LLM.QualityModel != "" && cfg.LLM.QualityModel != cfg.LLM.Model {
		qualityClient = llm.NewClient(llmConfig(cfg.LLM, cfg.LLM.QualityModel))
	}
	slog.Info("llm client initialized", "model", client.ModelName(), "quality_model", qualityClient.ModelName())

	gate, err := credibility.NewGate(registry, llm.NewLaughTest(client), cfg.Credibility.Threshold, recorder)
	if err != nil {
		return nil, fmt.Errorf("credibility gate: %w", err)
	}

	runner := pipeline.NewRunner(selector, llm.NewGenerator(client, registry), gate, ins, registry, recorder, pipeline.Config{
		Concurrency:    cfg.Generation.Concurrency,
		PerCategory:    cfg.Generation.PerCategory,
		Categories:     categories,
		MaxRetries:     uint64(cfg.Generation.MaxRetries),
		RetryBaseDelay: time.Duration(cfg.Generation.RetryBaseDelay),
	})

	quality, err := worker.NewQualityOrchestrator(db, llm.NewQualityChecker(qualityClient), ins, recorder, worker.QualityConfig{
		BatchSize:          cfg.Quality.BatchSize,
		TriggerThreshold:   cfg.Quality.TriggerThreshold,
		PollInterval:       time.Duration(cfg.Quality.PollInterval),
		RunInterval:        time.Duration(cfg.Quality.RunInterval),
		ScoreThreshold:     cfg.Quality.ScoreThreshold,
		MaxSpendPerRun:     cfg.Quality.MaxSpendPerRun,
		MaxSpendPerDay:     cfg.Quality.MaxSpendPerDay,
		EstimatedBatchCost: cfg.Quality.EstimatedBatchCost,
	})
	if err != nil {
		return nil, fmt.Errorf("quality orchestrator: %w", err)
	}

	uploader, err := export.NewUploader(cfg.Export)
	if err != nil {
		return nil, fmt.Errorf("audit uploader: %w", err)
	}

	return &app{
		cfg:      cfg,
		registry: registry,
		db:       db,
		recorder: recorder,
		selector: selector,
		inserter: ins,
		runner:   runner,
		quality:  quality,
		exporter: export.NewExporter(db, uploader, cfg.Export.Prefix),
		strategy: strategy,
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}
}

func newRegistry(cfg config.CredibilityConfig) (*category.Registry, error) {
	if len(cfg.Overrides) == 0 {
		return category.Default(), nil
	}
	overrides := make(map[category.Category]category.Thresholds, len(cfg.Overrides))
	for name, o := range cfg.Overrides {
		c, err := category.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("credibility override: %w", err)
		}
		overrides[c] = category.Thresholds{
			MinEffectiveness:  o.MinEffectiveness,
			MaxNewConnections: o.MaxNewConnections,
		}
	}
	return category.NewRegistry(overrides)
}

func parseCategories(names []string) ([]category.Category, error) {
	var out []category.Category
	for _, name := range names {
		c, err := category.Parse(name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func llmConfig(cfg config.LLMConfig, model string) llm.Config {
	return llm.Config{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Model:             model,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Temperature:       cfg.Temperature,
		Pricing: llm.Pricing{
			PromptPer1K:     cfg.PromptPricePer1K,
			CompletionPer1K: cfg.CompletionPricePer1K,
		},
	}
}
