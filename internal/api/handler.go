package api

import (
	"log/slog"

	"github.com/shaiso/agentflow/internal/repo"
	"github.com/shaiso/agentflow/internal/runs"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runs    *runs.Manager
	reports *repo.ReportRepo
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Runs *runs.Manager

	// Reports — архив отчётов (опционально). Используется для
	// запусков, которых нет в памяти процесса, и для /history.
	Reports *repo.ReportRepo

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		runs:    cfg.Runs,
		reports: cfg.Reports,
		logger:  logger,
	}
}
