// agentflow-server — HTTP API для запуска workflows.
//
// Использование:
//
//	agentflow-server [--config FILE]
//
// Кроме /api/v1 сервер отдаёт /healthz и /metrics. Если задан
// metrics.addr, метрики обслуживаются отдельным listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/agentflow/internal/api"
	"github.com/shaiso/agentflow/internal/app"
	"github.com/shaiso/agentflow/internal/config"
	"github.com/shaiso/agentflow/internal/telemetry"
)

var startTime = time.Now()

func main() {
	configPath := flag.String("config", "", "config file (YAML, JSON or TOML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLoggerTo(os.Stderr, telemetry.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	logger.Info("starting agentflow-server", "mode", cfg.Engine.Mode)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := app.New(ctx, cfg, logger, app.Options{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Reports != nil {
		logger.Info("report archive enabled")
	}
	if a.Events != nil {
		logger.Info("event publishing enabled")
	}

	handler := api.NewHandler(api.Config{
		Runs:    a.Runs,
		Reports: a.Reports,
		Logger:  logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	handler.RegisterRoutes(mux)

	servers := []*http.Server{{Addr: cfg.Server.Addr, Handler: mux}}
	if cfg.Metrics.Addr == "" || cfg.Metrics.Addr == cfg.Server.Addr {
		mux.Handle("/metrics", promhttp.Handler())
	} else {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	return errors.Join(errs...)
}
