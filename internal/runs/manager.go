// Package runs ведёт реестр запусков процесса.
//
// Manager связывает определения, engine и архив отчётов: строит workflow,
// запускает его, хранит живое состояние для resume и экспорта графа
// и сохраняет итоговый отчёт в архив.
package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/orchestrator"
	"github.com/shaiso/agentflow/internal/telemetry"
)

// ErrRunNotFound — запуск не найден в реестре процесса.
var ErrRunNotFound = errors.New("run not found")

// Store — архив отчётов.
type Store interface {
	Save(ctx context.Context, report *orchestrator.Report) error
}

// Config — зависимости Manager.
type Config struct {
	// Runner — engine (обязателен).
	Runner orchestrator.Runner

	// Tools — проверка наличия инструментов при валидации.
	Tools engine.ToolChecker

	// StrictTools — отсутствующий инструмент является ошибкой валидации.
	StrictTools bool

	Handlers   domain.HandlerSet
	Conditions *engine.ConditionEvaluator

	// Store — архив отчётов. nil — отчёты не сохраняются.
	Store Store

	Logger *slog.Logger
}

// Run — запуск в реестре.
type Run struct {
	Def      *domain.WorkflowDef
	Workflow *domain.Workflow

	// exec сериализует Run/Resume одного запуска.
	exec sync.Mutex

	created time.Time
	done    chan struct{}

	mu  sync.RWMutex
	err error
}

// ID возвращает идентификатор запуска.
func (r *Run) ID() uuid.UUID {
	return r.Workflow.RunID
}

// Report собирает отчёт по текущему состоянию workflow.
// Пока engine работает, статус запуска — running.
func (r *Run) Report() *orchestrator.Report {
	return orchestrator.NewReport(r.Workflow)
}

// Err возвращает ошибку последнего вызова engine (отмена, неправильное использование).
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Done закрывается, когда первый вызов engine вернул управление.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

func (r *Run) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Manager — реестр запусков.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.RWMutex
	runs map[uuid.UUID]*Run
}

// New создаёт Manager.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
		runs:   make(map[uuid.UUID]*Run),
	}
}

// Options возвращает параметры валидации и построения.
func (m *Manager) Options() engine.Options {
	return engine.Options{
		Tools:             m.cfg.Tools,
		AllowMissingTools: !m.cfg.StrictTools,
		Handlers:          m.cfg.Handlers,
		Conditions:        m.cfg.Conditions,
		Logger:            m.logger,
	}
}

// Validate проверяет определение, не запуская его.
func (m *Manager) Validate(def *domain.WorkflowDef) error {
	return engine.Validate(def, m.Options())
}

// Prepare строит workflow и регистрирует запуск, не выполняя его.
func (m *Manager) Prepare(def *domain.WorkflowDef) (*Run, error) {
	wf, err := engine.Build(def, m.Options())
	if err != nil {
		return nil, err
	}

	run := &Run{Def: def, Workflow: wf, created: time.Now(), done: make(chan struct{})}

	m.mu.Lock()
	m.runs[wf.RunID] = run
	m.mu.Unlock()

	return run, nil
}

// Start строит workflow и выполняет его до конца или паузы.
//
// Ошибка построения возвращается без регистрации запуска.
// Отмена контекста возвращает и отчёт, и ошибку.
func (m *Manager) Start(ctx context.Context, def *domain.WorkflowDef, input map[string]any) (*Run, *orchestrator.Report, error) {
	run, err := m.Prepare(def)
	if err != nil {
		return nil, nil, err
	}
	report, err := m.Execute(ctx, run, input)
	return run, report, err
}

// Submit строит workflow и выполняет его в фоне.
func (m *Manager) Submit(ctx context.Context, def *domain.WorkflowDef, input map[string]any) (*Run, error) {
	run, err := m.Prepare(def)
	if err != nil {
		return nil, err
	}
	go func() {
		_, _ = m.Execute(context.WithoutCancel(ctx), run, input)
	}()
	return run, nil
}

// Execute выполняет подготовленный запуск.
func (m *Manager) Execute(ctx context.Context, run *Run, input map[string]any) (*orchestrator.Report, error) {
	run.exec.Lock()
	defer run.exec.Unlock()
	defer closeOnce(run.done)

	report, err := m.cfg.Runner.Run(ctx, run.Workflow, input)
	run.setErr(err)
	m.archive(ctx, report)
	return report, err
}

// Resume передаёт ответ task, ожидающему ввода, и продолжает запуск.
func (m *Manager) Resume(ctx context.Context, runID uuid.UUID, taskID string, input map[string]any) (*orchestrator.Report, error) {
	run, err := m.Get(runID)
	if err != nil {
		return nil, err
	}

	run.exec.Lock()
	defer run.exec.Unlock()

	report, err := m.cfg.Runner.Resume(ctx, run.Workflow, taskID, input)
	if report == nil {
		telemetry.WithTaskID(m.runLogger(run.Workflow.ID, runID), taskID).
			Warn("resume rejected", "error", err)
		return nil, err
	}
	run.setErr(err)
	m.archive(ctx, report)
	return report, err
}

// Get возвращает запуск по ID.
func (m *Manager) Get(runID uuid.UUID) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// List возвращает запуски процесса, новые первыми.
func (m *Manager) List() []*Run {
	m.mu.RLock()
	out := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, run)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].created.After(out[j].created)
	})
	return out
}

func (m *Manager) archive(ctx context.Context, report *orchestrator.Report) {
	if m.cfg.Store == nil || report == nil {
		return
	}
	if err := m.cfg.Store.Save(context.WithoutCancel(ctx), report); err != nil {
		m.runLogger(report.WorkflowID, report.RunID).Error("failed to archive report", "error", err)
	}
}

func (m *Manager) runLogger(workflowID string, runID uuid.UUID) *slog.Logger {
	return telemetry.WithRunID(telemetry.WithWorkflowID(m.logger, workflowID), runID.String())
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}
