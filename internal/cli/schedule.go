package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/runs"
	"github.com/shaiso/agentflow/internal/scheduler"
)

// NewScheduleCmd создаёт команду повторного запуска workflow по расписанию.
//
// Команда работает на переднем плане до сигнала или до --max-runs запусков.
// Файл определения читается заново перед каждым запуском.
func NewScheduleCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var cronExpr string
	var every time.Duration
	var timezone string
	var inputs []string
	var maxRuns int

	cmd := &cobra.Command{
		Use:   "schedule FILE",
		Short: "Run a workflow on a cron or interval schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			if (cronExpr == "") == (every == 0) {
				return fmt.Errorf("exactly one of --cron or --every is required")
			}
			if every != 0 && every < time.Second {
				return fmt.Errorf("--every must be at least 1s")
			}

			input, err := parseInputs(inputs)
			if err != nil {
				return inputError(out, err)
			}

			// Определение проверяется до старта, чтобы не ждать первого срабатывания.
			if _, err := loadDefinition(out, args[0]); err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), appFn)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var launched atomic.Int64
			launcher := definitionLauncher(a.Runs, out, func() {
				if maxRuns > 0 && launched.Add(1) >= int64(maxRuns) {
					cancel()
				}
			})

			sched := scheduler.New(scheduler.Config{Launcher: launcher, Logger: a.Logger})
			entry := &domain.Schedule{
				Name:           filepath.Base(args[0]),
				DefinitionPath: args[0],
				CronExpr:       cronExpr,
				IntervalSec:    int(every / time.Second),
				Timezone:       timezone,
				Input:          input,
			}
			if err := sched.Add(entry, time.Now()); err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Scheduled %s, next run at %s", entry.Name, entry.NextDueAt.Local().Format(time.RFC3339)))

			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (5 fields or @descriptor)")
	cmd.Flags().DurationVar(&every, "every", 0, "Fixed interval between runs (e.g. 30s, 5m)")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "Timezone for cron expressions")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().IntVar(&maxRuns, "max-runs", 0, "Stop after N runs (0 = run until interrupted)")

	return cmd
}

// definitionLauncher читает определение из файла расписания и выполняет его.
// Ошибка выполнения workflow не считается ошибкой запуска: отчёт уже выведен.
func definitionLauncher(manager *runs.Manager, out *Output, onLaunch func()) scheduler.Launcher {
	return scheduler.LauncherFunc(func(ctx context.Context, sched *domain.Schedule) (uuid.UUID, error) {
		def, err := engine.LoadDefinitionFile(sched.DefinitionPath)
		if err != nil {
			return uuid.Nil, err
		}

		run, report, err := manager.Start(ctx, def, sched.Input)
		if err != nil && report == nil {
			return uuid.Nil, err
		}
		defer onLaunch()

		if out.JSONMode() {
			out.JSON(report)
		} else {
			fmt.Fprintf(out.Writer(), "%s  %s  %s  exit=%d  %dms\n",
				time.Now().Format(time.RFC3339), report.RunID, report.Status, report.ExitCode, report.DurationMs)
		}
		return run.ID(), nil
	})
}
