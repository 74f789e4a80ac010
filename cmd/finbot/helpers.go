package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/finbot/internal/budget"
	"github.com/Veraticus/finbot/internal/chart"
	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/config"
	"github.com/Veraticus/finbot/internal/dispatch"
	"github.com/Veraticus/finbot/internal/llm"
	"github.com/Veraticus/finbot/internal/report"
	"github.com/Veraticus/finbot/internal/service"
	"github.com/Veraticus/finbot/internal/storage"
	"github.com/spf13/viper"
)

// envKeyReplacer maps nested keys onto env names: server.addr -> FINBOT_SERVER_ADDR.
var envKeyReplacer = strings.NewReplacer(".", "_")

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, common.NewUserError(
			"Invalid configuration; check the config file and FINBOT_* environment variables",
			fmt.Errorf("failed to load config: %w", err))
	}
	return cfg, nil
}

// initStorage opens the ledger and brings its schema up to date.
func initStorage(ctx context.Context, cfg config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func closeStorage(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		slog.Error("failed to close storage", "error", err)
	}
}

func newResolver(cfg config.Config) (*llm.Resolver, error) {
	if err := cfg.RequireLLM(); err != nil {
		return nil, common.NewUserError("An OpenAI API key is required; set llm.api_key or OPENAI_API_KEY", err)
	}
	return llm.NewResolver(llm.Config{
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		BaseURL:    cfg.LLM.BaseURL,
		MaxRetries: cfg.LLM.MaxRetries,
		RateLimit:  cfg.LLM.RateLimit,
		CacheTTL:   cfg.LLM.CacheTTL,
	}, slog.Default())
}

// newAggregator wires the report aggregator with the PNG chart renderer.
func newAggregator(cfg config.Config, store report.Store, notifier service.Notifier) *report.Aggregator {
	return report.NewAggregator(store, notifier, chart.NewPieRenderer(), cfg.Budget.Location, slog.Default())
}

// newDispatcher wires the chat pipeline around one notifier.
func newDispatcher(cfg config.Config, store *storage.SQLiteStorage, classifier service.IntentClassifier, notifier service.Notifier) *dispatch.Dispatcher {
	evaluator := budget.NewEvaluator(store, notifier, cfg.Budget.Location, slog.Default())
	aggregator := newAggregator(cfg, store, notifier)
	return dispatch.New(store, classifier, notifier, evaluator, aggregator, dispatch.WithLogger(slog.Default()))
}
