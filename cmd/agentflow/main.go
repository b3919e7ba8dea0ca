// agentflow — инструмент командной строки для выполнения workflows.
//
// Использование:
//
//	agentflow [--config FILE] [--json] <command> [flags]
//
// Команды:
//
//	validate  Проверка определения
//	run       Выполнение workflow
//	graph     Экспорт графа
//	history   Архив отчётов
//	schedule  Запуски по расписанию
//	events    События жизненного цикла
//	remote    Работа с agentflow-server
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/agentflow/internal/app"
	"github.com/shaiso/agentflow/internal/cli"
	"github.com/shaiso/agentflow/internal/config"
	"github.com/shaiso/agentflow/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string
	var jsonOutput bool
	var logLevel string
	var mode string
	var apiURL string

	rootCmd := &cobra.Command{
		Use:           "agentflow",
		Short:         "agentflow — workflow execution engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML, JSON or TOML)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "Engine mode (blocking, cooperative)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("AGENTFLOW_API_URL", "http://localhost:8080"), "agentflow-server URL for remote commands")

	appFn := func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if mode != "" {
			cfg.Engine.Mode = mode
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
		}

		// Логи идут в stderr, stdout остаётся для данных.
		logger := telemetry.SetupLoggerTo(os.Stderr, telemetry.ParseLevel(cfg.Log.Level), cfg.Log.Format)
		return app.New(ctx, cfg, logger, app.Options{})
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }

	rootCmd.AddCommand(
		cli.NewValidateCmd(appFn, outputFn),
		cli.NewRunCmd(appFn, outputFn, os.Stdin),
		cli.NewGraphCmd(outputFn),
		cli.NewHistoryCmd(appFn, outputFn),
		cli.NewScheduleCmd(appFn, outputFn),
		cli.NewEventsCmd(appFn, outputFn),
		cli.NewRemoteCmd(clientFn, outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
