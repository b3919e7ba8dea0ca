package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/agentflow/internal/domain"
)

// ErrInvalidSchedule — расписание без cron и интервала или с невалидным cron.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Launcher запускает workflow по расписанию.
type Launcher interface {
	Launch(ctx context.Context, sched *domain.Schedule) (uuid.UUID, error)
}

// LauncherFunc — адаптер функции к Launcher.
type LauncherFunc func(ctx context.Context, sched *domain.Schedule) (uuid.UUID, error)

// Launch реализует Launcher.
func (f LauncherFunc) Launch(ctx context.Context, sched *domain.Schedule) (uuid.UUID, error) {
	return f(ctx, sched)
}

// Scheduler — планировщик повторных запусков.
type Scheduler struct {
	launcher Launcher
	logger   *slog.Logger
	tick     time.Duration

	mu        sync.Mutex
	schedules []*domain.Schedule
}

// Config — конфигурация Scheduler.
type Config struct {
	Launcher Launcher
	Logger   *slog.Logger

	// TickInterval — период проверки расписаний (default: 1s).
	TickInterval time.Duration
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{
		launcher: cfg.Launcher,
		logger:   logger,
		tick:     tick,
	}
}

// Add проверяет расписание, вычисляет первое время запуска и регистрирует его.
func (s *Scheduler) Add(sched *domain.Schedule, now time.Time) error {
	if sched.IsCron() {
		if err := ValidateCronExpr(sched.CronExpr); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	} else if !sched.IsInterval() {
		return fmt.Errorf("%w: neither cron nor interval set", ErrInvalidSchedule)
	}

	next, err := CalculateNextDue(sched, now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	sched.NextDueAt = &next
	sched.Enabled = true

	s.mu.Lock()
	s.schedules = append(s.schedules, sched)
	s.mu.Unlock()

	s.logger.Info("schedule added",
		"schedule", sched.Name,
		"definition", sched.DefinitionPath,
		"next_due_at", next,
	)
	return nil
}

// Schedules возвращает зарегистрированные расписания.
func (s *Scheduler) Schedules() []*domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Schedule(nil), s.schedules...)
}

// Tick запускает все расписания, время которых наступило.
//
// Ошибка одного запуска не блокирует остальные, следующее время
// вычисляется и после неё. Возвращает число созданных запусков.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	var created int
	for _, sched := range s.Schedules() {
		if !sched.IsDue(now) {
			continue
		}

		runID, launchErr := s.launcher.Launch(ctx, sched)
		if launchErr != nil {
			s.logger.Error("failed to launch scheduled run",
				"schedule", sched.Name,
				"definition", sched.DefinitionPath,
				"error", launchErr,
			)
		} else {
			created++
			s.logger.Info("created run from schedule",
				"schedule", sched.Name,
				"run_id", runID.String(),
			)
		}

		next, err := CalculateNextDue(sched, now)
		if err != nil {
			s.logger.Error("failed to calculate next due, disabling schedule",
				"schedule", sched.Name,
				"error", err,
			)
			s.mu.Lock()
			sched.Enabled = false
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		if launchErr == nil {
			sched.RecordRun(runID, now, next)
		} else {
			sched.NextDueAt = &next
		}
		s.mu.Unlock()
	}
	return created
}

// Run вызывает Tick с периодом TickInterval до отмены контекста.
func (s *Scheduler) Run(ctx context.Context) error {
	tk := time.NewTicker(s.tick)
	defer tk.Stop()

	for {
		select {
		case t := <-tk.C:
			s.Tick(ctx, t)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
