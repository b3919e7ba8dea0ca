package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание повторного запуска определения workflow.
//
// Запуск возможен:
// - по cron-выражению: "0 9 * * *" (каждый день в 9:00)
// - по интервалу: каждые N секунд
type Schedule struct {
	// Name — имя расписания для логов.
	Name string `json:"name,omitempty"`

	// DefinitionPath — файл определения workflow (YAML или JSON).
	// Файл читается заново перед каждым запуском.
	DefinitionPath string `json:"definition_path"`

	// CronExpr — cron-выражение из пяти полей.
	// Если задан CronExpr, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между запусками.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для cron. По умолчанию: "UTC".
	Timezone string `json:"timezone,omitempty"`

	Enabled bool `json:"enabled"`

	// Input — входные данные каждого запуска.
	Input map[string]any `json:"input,omitempty"`

	NextDueAt *time.Time `json:"next_due_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`

	// Runs — сколько запусков создано.
	Runs int `json:"runs"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun записывает информацию о запуске.
func (s *Schedule) RecordRun(runID uuid.UUID, at, nextDue time.Time) {
	s.LastRunAt = &at
	s.LastRunID = &runID
	s.NextDueAt = &nextDue
	s.Runs++
}
