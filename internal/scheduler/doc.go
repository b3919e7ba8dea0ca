// Package scheduler повторно запускает определения workflow по расписанию.
//
// Структура:
//   - scheduler.go — Scheduler (Add, Tick, Run)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Launcher: launcher,
//	    Logger:   logger,
//	})
//	if err := sched.Add(&domain.Schedule{DefinitionPath: "wf.yaml", CronExpr: "*/5 * * * *"}, time.Now()); err != nil {
//	    return err
//	}
//	return sched.Run(ctx)
//
// Расписания живут в памяти процесса.
package scheduler
