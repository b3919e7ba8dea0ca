package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/orchestrator"
)

// ReportRepo — архив отчётов о запусках.
//
// Архив только для чтения человеком: выполнение из него не восстанавливается.
type ReportRepo struct {
	db DB
}

// NewReportRepo создаёт новый ReportRepo.
func NewReportRepo(db DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// ReportSummary — строка истории запусков.
type ReportSummary struct {
	RunID      uuid.UUID             `json:"run_id"`
	WorkflowID string                `json:"workflow_id"`
	Status     domain.WorkflowStatus `json:"status"`
	ExitCode   int                   `json:"exit_code"`
	StartedAt  *time.Time            `json:"started_at,omitempty"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
	DurationMs int64                 `json:"duration_ms"`
	SavedAt    time.Time             `json:"saved_at"`
}

// ReportFilter — параметры фильтрации истории.
type ReportFilter struct {
	WorkflowID string
	Status     domain.WorkflowStatus
	Limit      int
	Offset     int
}

// Save сохраняет отчёт. Повторное сохранение того же run (после resume) перезаписывает запись.
func (r *ReportRepo) Save(ctx context.Context, report *orchestrator.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	query := `
		INSERT INTO run_reports (run_id, workflow_id, status, exit_code, started_at, finished_at, duration_ms, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE
		SET status = EXCLUDED.status, exit_code = EXCLUDED.exit_code,
		    finished_at = EXCLUDED.finished_at, duration_ms = EXCLUDED.duration_ms,
		    report = EXCLUDED.report, saved_at = now()
	`
	_, err = r.db.Exec(ctx, query,
		report.RunID,
		report.WorkflowID,
		string(report.Status),
		report.ExitCode,
		report.StartedAt,
		report.FinishedAt,
		report.DurationMs,
		body,
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// Get возвращает отчёт по ID запуска.
func (r *ReportRepo) Get(ctx context.Context, runID uuid.UUID) (*orchestrator.Report, error) {
	query := `
		SELECT report FROM run_reports
		WHERE run_id = $1
	`
	var body []byte
	err := r.db.QueryRow(ctx, query, runID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}

	var report orchestrator.Report
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

// List возвращает историю запусков, новые первыми.
func (r *ReportRepo) List(ctx context.Context, filter ReportFilter) ([]ReportSummary, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `
		SELECT run_id, workflow_id, status, exit_code, started_at, finished_at, duration_ms, saved_at
		FROM run_reports
		WHERE ($1::text IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY saved_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query,
		nullString(filter.WorkflowID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []ReportSummary
	for rows.Next() {
		var s ReportSummary
		var status string
		if err := rows.Scan(
			&s.RunID,
			&s.WorkflowID,
			&status,
			&s.ExitCode,
			&s.StartedAt,
			&s.FinishedAt,
			&s.DurationMs,
			&s.SavedAt,
		); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		s.Status = domain.WorkflowStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
