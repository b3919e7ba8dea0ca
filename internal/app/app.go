// Package app собирает зависимости процесса из конфигурации.
//
// CLI и сервер используют один и тот же набор: реестр инструментов,
// клиент модели, стратегии, engine, наблюдатели (метрики, события)
// и, если настроен, архив отчётов.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/agentflow/internal/config"
	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/llm"
	"github.com/shaiso/agentflow/internal/mq"
	"github.com/shaiso/agentflow/internal/orchestrator"
	"github.com/shaiso/agentflow/internal/repo"
	"github.com/shaiso/agentflow/internal/runs"
	"github.com/shaiso/agentflow/internal/strategy"
	"github.com/shaiso/agentflow/internal/telemetry"
	"github.com/shaiso/agentflow/internal/tools"
)

// Options — необязательные параметры сборки.
type Options struct {
	// Handlers — именованные inline обработчики поверх DefaultHandlers.
	Handlers domain.HandlerSet

	// Registerer — куда регистрировать метрики. nil — метрики не собираются.
	Registerer prometheus.Registerer

	// Tools — реестр инструментов. nil — tools.DefaultRegistry().
	Tools *tools.Registry
}

// App — собранные зависимости.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Tools      *tools.Registry
	Conditions *engine.ConditionEvaluator
	Runner     orchestrator.Runner
	Runs       *runs.Manager

	// Reports — архив отчётов, nil если db.url не задан.
	Reports *repo.ReportRepo

	// Events — соединение с RabbitMQ, nil если amqp.url не задан.
	Events *mq.Connection

	pool *pgxpool.Pool
}

// New собирает App. Недоступные БД или брокер — ошибка:
// раз адрес задан, работа без них не предполагается.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	a.Tools = opts.Tools
	if a.Tools == nil {
		a.Tools = tools.DefaultRegistry()
	}

	model, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	a.Conditions, err = engine.NewConditionEvaluator()
	if err != nil {
		return nil, fmt.Errorf("create condition evaluator: %w", err)
	}

	var observers orchestrator.MultiObserver
	if opts.Registerer != nil {
		observers = append(observers, telemetry.NewMetrics(opts.Registerer))
	}

	if cfg.AMQP.URL != "" {
		a.Events, err = mq.Dial(ctx, cfg.AMQP.URL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		observers = append(observers, mq.NewPublisher(a.Events, logger))
	}

	var store runs.Store
	if cfg.DB.URL != "" {
		a.pool, err = repo.NewPool(ctx, cfg.DB.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := repo.Migrate(ctx, a.pool); err != nil {
			a.Close()
			return nil, err
		}
		a.Reports = repo.NewReportRepo(a.pool)
		store = a.Reports
	}

	a.Runner, err = orchestrator.NewRunner(cfg.Engine.Mode, orchestrator.Config{
		Strategies:  strategy.NewRegistry(model, a.Tools, logger),
		Conditions:  a.Conditions,
		MaxParallel: cfg.Engine.MaxParallel,
		Retry:       cfg.Engine.RetryPolicy(),
		Observer:    observers,
		Logger:      logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Runs = runs.New(runs.Config{
		Runner:      a.Runner,
		Tools:       a.Tools,
		StrictTools: cfg.Engine.StrictTools,
		Handlers:    mergeHandlers(opts.Handlers),
		Conditions:  a.Conditions,
		Store:       store,
		Logger:      logger,
	})

	return a, nil
}

// Close освобождает ресурсы.
func (a *App) Close() error {
	var errs []error
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.Conditions != nil {
		a.Conditions.Close()
	}
	return errors.Join(errs...)
}
